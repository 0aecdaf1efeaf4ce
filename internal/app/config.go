// Package app wires every CDCS component into one runnable pipeline:
// plan, research, deduplicate, enrich, quality-filter, and compile.
// It is grounded on the teacher's internal/app package, trimmed to this
// subsystem's single research-then-compile flow instead of the teacher's
// fetch/select/synth/verify report pipeline.
package app

import "time"

// Config holds runtime configuration for one CDCS run.
type Config struct {
	Topic string
	Scope string
	Seeds []string

	Style         string // "APA7", "IEEE", "Chicago", "MLA"
	DraftLanguage string

	TargetMin       int
	ParallelWorkers int
	PerQueryTimeout time.Duration
	FanoutAll       bool

	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	// LLMAPIKeys holds additional fallback keys; when non-empty, the active
	// key is chosen from LLMAPIKey plus these via the pressure manager's
	// lowest-recent-429 BestKey selection instead of always using LLMAPIKey.
	LLMAPIKeys []string

	// ProxyList is the raw PROXY_LIST convention value ("host:port[:user:pass]"
	// entries, comma-separated), parsed via httpclient.ParseProxyList and set
	// on the shared httpclient.Client so outbound requests rotate across
	// proxies with degraded-proxy avoidance.
	ProxyList string

	// Source adapters
	SemanticScholarEnabled bool
	SerpLogin              string
	SerpPassword           string

	// Behavior
	StrictQuality    bool
	CheckDOILiveness bool
	CheckURLLiveness bool
	ResearchMissing  bool

	InputPath  string
	OutputPath string

	CacheDir    string
	CacheClear  bool
	CacheMaxAge time.Duration
	Verbose     bool
}
