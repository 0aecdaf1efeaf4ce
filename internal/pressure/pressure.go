// Package pressure implements cross-adapter backpressure signaling so the
// orchestrator (C6) can throttle spawning before a source API starts
// rejecting requests outright.
//
// It is a line-for-line port of original_source's
// engine/utils/backpressure.py BackpressureManager, with its Modal.Dict
// cross-container store replaced by a Store interface: an in-process
// implementation backed by go.uber.org/atomic counters for the common case,
// and room for a shared-store implementation behind the same interface for
// multi-process deployments (grounded on the Tangerg-lynx future module's
// shared-state pattern).
package pressure

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// APIType identifies a rate-limited upstream for independent 429 tracking.
type APIType string

const (
	APICrossref        APIType = "crossref"
	APISemanticScholar APIType = "semantic_scholar"
	APIGroundedWeb     APIType = "grounded_web"
	APISerpFallback    APIType = "serp_fallback"
)

var allAPITypes = []APIType{APICrossref, APISemanticScholar, APIGroundedWeb, APISerpFallback}

// Config tunes the pressure model. Defaults mirror PRESSURE_CONFIG.
type Config struct {
	RecoveryWindow         time.Duration
	CountCritical          float64
	PauseThreshold         float64
	ResumeThreshold        float64
	MinDelay               time.Duration
	MaxDelay               time.Duration
	ProxyDegradedThreshold int64
}

// DefaultConfig matches original_source's PRESSURE_CONFIG constants.
func DefaultConfig() Config {
	return Config{
		RecoveryWindow:         60 * time.Second,
		CountCritical:          25,
		PauseThreshold:         0.8,
		ResumeThreshold:        0.5,
		MinDelay:               100 * time.Millisecond,
		MaxDelay:               5 * time.Second,
		ProxyDegradedThreshold: 5,
	}
}

type apiState struct {
	count    atomic.Float64
	last429  atomic.Int64 // unix nanos, 0 if never
}

type proxyState struct {
	count    atomic.Int64
	degraded atomic.Bool
}

type keyState struct {
	count atomic.Int64
}

// Manager tracks 429 signals per API and per proxy and derives a decayed
// global pressure score, recommended delay, and adaptive batch size from it.
type Manager struct {
	cfg     Config
	nowFn   func() time.Time
	mu      sync.Mutex // guards map membership only; counters are atomic
	apis    map[APIType]*apiState
	proxies map[string]*proxyState
	keys    map[string]*keyState
}

// NewManager constructs a Manager with the given config. Pass a nowFn for
// deterministic tests; nil uses time.Now.
func NewManager(cfg Config, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	m := &Manager{
		cfg:     cfg,
		nowFn:   nowFn,
		apis:    make(map[APIType]*apiState),
		proxies: make(map[string]*proxyState),
		keys:    make(map[string]*keyState),
	}
	for _, t := range allAPITypes {
		m.apis[t] = &apiState{}
	}
	return m
}

func (m *Manager) stateFor(api APIType) *apiState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.apis[api]
	if !ok {
		s = &apiState{}
		m.apis[api] = s
	}
	return s
}

func (m *Manager) proxyStateFor(proxyID string) *proxyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[proxyID]
	if !ok {
		p = &proxyState{}
		m.proxies[proxyID] = p
	}
	return p
}

func (m *Manager) keyStateFor(key string) *keyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[key]
	if !ok {
		k = &keyState{}
		m.keys[key] = k
	}
	return k
}

// SignalKeyed429 records a rate-limit rejection attributed to a specific
// rotating API key (e.g. one of several LLM API keys), for BestKey selection.
func (m *Manager) SignalKeyed429(key string) {
	if key == "" {
		return
	}
	m.keyStateFor(key).count.Add(1)
}

// Signal429 records a rate-limit rejection from api, optionally attributing
// it to proxyID for proxy health tracking.
func (m *Manager) Signal429(api APIType, proxyID string) {
	s := m.stateFor(api)
	s.count.Add(1)
	s.last429.Store(m.nowFn().UnixNano())

	if proxyID != "" {
		p := m.proxyStateFor(proxyID)
		n := p.count.Add(1)
		if n >= m.cfg.ProxyDegradedThreshold {
			p.degraded.Store(true)
		}
	}
}

// GlobalPressure returns the decayed, averaged pressure across all tracked
// APIs, in [0, 1].
func (m *Manager) GlobalPressure() float64 {
	now := m.nowFn()
	var sum float64
	for _, t := range allAPITypes {
		s := m.stateFor(t)
		count := s.count.Load()
		last := s.last429.Load()

		var timeSince time.Duration
		if last == 0 {
			timeSince = m.cfg.RecoveryWindow
		} else {
			timeSince = now.Sub(time.Unix(0, last))
		}
		decay := 1 - float64(timeSince)/float64(m.cfg.RecoveryWindow)
		if decay < 0 {
			decay = 0
		}
		effective := count * decay
		apiPressure := effective / m.cfg.CountCritical
		if apiPressure > 1 {
			apiPressure = 1
		}
		sum += apiPressure
	}
	return sum / float64(len(allAPITypes))
}

// RecommendedDelay maps the current global pressure linearly onto
// [MinDelay, MaxDelay].
func (m *Manager) RecommendedDelay() time.Duration {
	pressure := m.GlobalPressure()
	span := m.cfg.MaxDelay - m.cfg.MinDelay
	return m.cfg.MinDelay + time.Duration(pressure*float64(span))
}

// ShouldPauseSpawning reports whether the orchestrator should stop spawning
// new jobs because pressure exceeds PauseThreshold.
func (m *Manager) ShouldPauseSpawning() bool {
	return m.GlobalPressure() > m.cfg.PauseThreshold
}

// CanResumeSpawning reports whether pressure has decayed enough to resume
// spawning (hysteresis: ResumeThreshold < PauseThreshold so the system
// doesn't flap at the boundary).
func (m *Manager) CanResumeSpawning() bool {
	return m.GlobalPressure() < m.cfg.ResumeThreshold
}

// AdaptiveBatchSize maps the current pressure onto a discrete batch size,
// matching original_source's four-tier table.
func (m *Manager) AdaptiveBatchSize() int {
	pressure := m.GlobalPressure()
	switch {
	case pressure > 0.8:
		return 5
	case pressure > 0.6:
		return 10
	case pressure > 0.3:
		return 15
	default:
		return 25
	}
}

// HealthyProxy picks a random proxy from candidates that isn't marked
// degraded. If every candidate is degraded, it resets all of them to
// healthy and returns a random one (original_source's recovery behavior).
func (m *Manager) HealthyProxy(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	var healthy []string
	for _, p := range candidates {
		if !m.proxyStateFor(p).degraded.Load() {
			healthy = append(healthy, p)
		}
	}
	if len(healthy) > 0 {
		return healthy[rand.Intn(len(healthy))]
	}
	for _, p := range candidates {
		st := m.proxyStateFor(p)
		st.degraded.Store(false)
		st.count.Store(0)
	}
	return candidates[rand.Intn(len(candidates))]
}

// BestKey returns the candidate with the lowest recent-429 count, mirroring
// original_source's get_best_gemini_key (lowest-count-wins, no reset-on-
// exhaustion behavior since the original never resets key counters). Returns
// "" for an empty candidate list and the sole candidate for a single-element
// list without touching the counters.
func (m *Manager) BestKey(keys ...string) string {
	if len(keys) == 0 {
		return ""
	}
	best := keys[0]
	bestCount := m.keyStateFor(best).count.Load()
	for _, k := range keys[1:] {
		if n := m.keyStateFor(k).count.Load(); n < bestCount {
			best = k
			bestCount = n
		}
	}
	return best
}

// Stats is a point-in-time snapshot for logging/monitoring.
type Stats struct {
	GlobalPressure   float64
	RecommendedDelay time.Duration
	BatchSize        int
	ShouldPause      bool
	APICounts        map[APIType]float64
}

// Snapshot returns the current Stats.
func (m *Manager) Snapshot() Stats {
	counts := make(map[APIType]float64, len(allAPITypes))
	for _, t := range allAPITypes {
		counts[t] = m.stateFor(t).count.Load()
	}
	return Stats{
		GlobalPressure:   m.GlobalPressure(),
		RecommendedDelay: m.RecommendedDelay(),
		BatchSize:        m.AdaptiveBatchSize(),
		ShouldPause:      m.ShouldPauseSpawning(),
		APICounts:        counts,
	}
}

// Reset clears all tracked pressure state. Intended for test setup.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range allAPITypes {
		m.apis[t] = &apiState{}
	}
	m.proxies = make(map[string]*proxyState)
	m.keys = make(map[string]*keyState)
}
