package pressure

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestManager_NoSignalsMeansZeroPressure(t *testing.T) {
	m := NewManager(DefaultConfig(), fixedClock(time.Unix(1000, 0)))
	if p := m.GlobalPressure(); p != 0 {
		t.Fatalf("expected 0 pressure with no signals, got %f", p)
	}
	if m.ShouldPauseSpawning() {
		t.Fatalf("should not pause with no pressure")
	}
	if m.AdaptiveBatchSize() != 25 {
		t.Fatalf("expected aggressive batch size 25, got %d", m.AdaptiveBatchSize())
	}
}

func TestManager_SignalsRaisePressure(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewManager(DefaultConfig(), fixedClock(now))
	for _, api := range allAPITypes {
		for i := 0; i < 25; i++ {
			m.Signal429(api, "")
		}
	}
	p := m.GlobalPressure()
	if p <= 0 {
		t.Fatalf("expected positive pressure after 25 signals per API, got %f", p)
	}
	if !m.ShouldPauseSpawning() {
		t.Fatalf("expected pause recommendation after heavy 429 signaling")
	}
}

func TestManager_PressureDecaysOverTime(t *testing.T) {
	cfg := DefaultConfig()
	start := time.Unix(1000, 0)
	clock := start
	m := NewManager(cfg, func() time.Time { return clock })

	for i := 0; i < 25; i++ {
		m.Signal429(APICrossref, "")
	}
	immediate := m.GlobalPressure()

	clock = start.Add(cfg.RecoveryWindow)
	decayed := m.GlobalPressure()

	if decayed >= immediate {
		t.Fatalf("expected pressure to decay after the recovery window: immediate=%f decayed=%f", immediate, decayed)
	}
	if decayed != 0 {
		t.Fatalf("expected full decay to 0 at exactly the recovery window boundary, got %f", decayed)
	}
}

func TestManager_HysteresisBetweenPauseAndResume(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, fixedClock(time.Unix(1000, 0)))
	for _, api := range allAPITypes {
		for i := 0; i < 16; i++ {
			m.Signal429(api, "")
		}
	}
	p := m.GlobalPressure()
	if p <= cfg.ResumeThreshold || p >= cfg.PauseThreshold {
		t.Skipf("signal count didn't land pressure in the hysteresis band (got %f), adjust fixture", p)
	}
	if m.ShouldPauseSpawning() {
		t.Fatalf("should not pause below pause threshold")
	}
	if m.CanResumeSpawning() {
		t.Fatalf("should not resume above resume threshold")
	}
}

func TestManager_ProxyMarkedDegradedAfterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, fixedClock(time.Unix(1000, 0)))
	for i := int64(0); i < cfg.ProxyDegradedThreshold; i++ {
		m.Signal429(APICrossref, "proxy-1")
	}
	got := m.HealthyProxy([]string{"proxy-1", "proxy-2"})
	if got != "proxy-2" {
		t.Fatalf("expected only proxy-2 to be healthy, got %s", got)
	}
}

func TestManager_AllProxiesDegradedResets(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, fixedClock(time.Unix(1000, 0)))
	for i := int64(0); i < cfg.ProxyDegradedThreshold; i++ {
		m.Signal429(APICrossref, "proxy-1")
		m.Signal429(APICrossref, "proxy-2")
	}
	got := m.HealthyProxy([]string{"proxy-1", "proxy-2"})
	if got != "proxy-1" && got != "proxy-2" {
		t.Fatalf("expected a reset proxy to be returned, got %q", got)
	}
}

func TestManager_BestKeyPicksLowestCount(t *testing.T) {
	m := NewManager(DefaultConfig(), fixedClock(time.Unix(1000, 0)))
	m.SignalKeyed429("key-a")
	m.SignalKeyed429("key-a")
	m.SignalKeyed429("key-b")

	got := m.BestKey("key-a", "key-b", "key-c")
	if got != "key-c" {
		t.Fatalf("expected untouched key-c (count 0) to win, got %q", got)
	}

	got = m.BestKey("key-a", "key-b")
	if got != "key-b" {
		t.Fatalf("expected key-b (count 1) over key-a (count 2), got %q", got)
	}
}

func TestManager_BestKeyEmptyAndSingle(t *testing.T) {
	m := NewManager(DefaultConfig(), fixedClock(time.Unix(1000, 0)))
	if got := m.BestKey(); got != "" {
		t.Fatalf("expected empty string for no candidates, got %q", got)
	}
	if got := m.BestKey("only-key"); got != "only-key" {
		t.Fatalf("expected sole candidate returned, got %q", got)
	}
}

func TestManager_AdaptiveBatchSizeTiers(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		signals int
		want    int
	}{
		{0, 25},
	}
	for _, tc := range cases {
		m := NewManager(cfg, fixedClock(time.Unix(1000, 0)))
		for i := 0; i < tc.signals; i++ {
			m.Signal429(APICrossref, "")
		}
		if got := m.AdaptiveBatchSize(); got != tc.want {
			t.Fatalf("signals=%d: expected batch size %d, got %d", tc.signals, tc.want, got)
		}
	}
}
