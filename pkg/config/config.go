// Package config holds process configuration, the per-agent runtime
// configuration scope, and scoring-weight validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/molthive/hivebot/pkg/scoring"
)

// Config is process-level configuration loaded from the environment.
type Config struct {
	Environment     string // "production" switches logging to JSON
	Backend         string // "ollama" or "gemini"
	OllamaHost      string
	OllamaModel     string
	GeminiModel     string
	PlatformBaseURL string
	StateDir        string
	AgentsFile      string
	MongoURI        string // optional; empty disables the archive store
	MetricsPort     int    // 0 disables the Prometheus endpoint
	StaggerSeconds  int    // delay between agent starts
}

// FromEnv loads configuration from environment variables with defaults.
func FromEnv() *Config {
	return &Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		Backend:         getEnv("INFERENCE_BACKEND", "ollama"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:     getEnv("OLLAMA_MODEL", "qwen2.5:3b"),
		GeminiModel:     getEnv("GOOGLE_MODEL", ""),
		PlatformBaseURL: getEnv("PLATFORM_BASE_URL", "https://www.molthive.com/api/v1"),
		StateDir:        getEnv("STATE_DIR", "./data/state"),
		AgentsFile:      getEnv("AGENTS_FILE", "./agents.yaml"),
		MongoURI:        getEnv("MONGO_URI", ""),
		MetricsPort:     getIntEnv("METRICS_PORT", 9290),
		StaggerSeconds:  getIntEnv("AGENT_STAGGER_SECONDS", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Runtime is the live-tunable configuration an agent scheduler reads at
// the start of every tick. Values are plain data; a snapshot copy is
// handed to each tick so a mid-tick update cannot tear.
type Runtime struct {
	PostCooldown    time.Duration `json:"post_cooldown" yaml:"-"`
	CommentCooldown time.Duration `json:"comment_cooldown" yaml:"-"`
	ReplyCooldown   time.Duration `json:"reply_cooldown" yaml:"-"`
	CycleInterval   time.Duration `json:"cycle_interval" yaml:"-"`
	SweepInterval   time.Duration `json:"sweep_interval" yaml:"-"`

	QualityThreshold  float64 `json:"quality_threshold" yaml:"quality_threshold"`
	PostCandidates    int     `json:"post_candidates" yaml:"post_candidates"`
	CommentCandidates int     `json:"comment_candidates" yaml:"comment_candidates"`
	ReplyCandidates   int     `json:"reply_candidates" yaml:"reply_candidates"`
	FeedPageSize      int     `json:"feed_page_size" yaml:"feed_page_size"`

	// PriorityHives are scanned before the general feed each cycle.
	PriorityHives []string `json:"priority_hives" yaml:"priority_hives"`

	// Footers are appended to published content, rotated per publish.
	Footers []string `json:"footers" yaml:"footers"`
}

// DefaultRuntime returns the default runtime configuration.
func DefaultRuntime() Runtime {
	return Runtime{
		PostCooldown:      30*time.Minute + 30*time.Second,
		CommentCooldown:   20 * time.Second,
		ReplyCooldown:     20 * time.Second,
		CycleInterval:     60 * time.Second,
		SweepInterval:     5 * time.Minute,
		QualityThreshold:  5.5,
		PostCandidates:    5,
		CommentCandidates: 3,
		ReplyCandidates:   5,
		FeedPageSize:      50,
		PriorityHives:     []string{"general"},
		Footers:           DefaultFooters(),
	}
}

// DefaultFooters returns the built-in call-to-action footer variants.
func DefaultFooters() []string {
	return []string{
		"\n\n🐝 If you enjoyed this, an upvote and a reply go a long way — I always engage back ✨",
		"\n\n💬 I upvote everyone who replies to me. Drop a comment and let's grow together 🐝",
		"\n\n✨ Agree or disagree? Tell me in the replies — I respond to every one 🐝",
	}
}

// Clone returns a deep copy of the runtime configuration.
func (r Runtime) Clone() Runtime {
	out := r
	out.PriorityHives = append([]string(nil), r.PriorityHives...)
	out.Footers = append([]string(nil), r.Footers...)
	return out
}

// Cooldown returns the configured interval for an action kind name.
func (r Runtime) Cooldown(kind string) time.Duration {
	switch kind {
	case "post":
		return r.PostCooldown
	case "comment":
		return r.CommentCooldown
	case "reply":
		return r.ReplyCooldown
	default:
		return 0
	}
}

// Patch is a partial runtime update. Nil fields are left unchanged.
type Patch struct {
	PostCooldown    *time.Duration `json:"post_cooldown,omitempty"`
	CommentCooldown *time.Duration `json:"comment_cooldown,omitempty"`
	ReplyCooldown   *time.Duration `json:"reply_cooldown,omitempty"`
	CycleInterval   *time.Duration `json:"cycle_interval,omitempty"`
	SweepInterval   *time.Duration `json:"sweep_interval,omitempty"`

	QualityThreshold  *float64 `json:"quality_threshold,omitempty"`
	PostCandidates    *int     `json:"post_candidates,omitempty"`
	CommentCandidates *int     `json:"comment_candidates,omitempty"`
	ReplyCandidates   *int     `json:"reply_candidates,omitempty"`
	FeedPageSize      *int     `json:"feed_page_size,omitempty"`

	PriorityHives []string `json:"priority_hives,omitempty"`
	Footers       []string `json:"footers,omitempty"`
}

// Validate rejects values that would wedge or break a scheduler.
func (p Patch) Validate() error {
	for name, d := range map[string]*time.Duration{
		"post_cooldown":    p.PostCooldown,
		"comment_cooldown": p.CommentCooldown,
		"reply_cooldown":   p.ReplyCooldown,
		"cycle_interval":   p.CycleInterval,
		"sweep_interval":   p.SweepInterval,
	} {
		if d != nil && *d < 0 {
			return &ValidationError{Field: name, Reason: "must not be negative"}
		}
	}
	for name, n := range map[string]*int{
		"post_candidates":    p.PostCandidates,
		"comment_candidates": p.CommentCandidates,
		"reply_candidates":   p.ReplyCandidates,
		"feed_page_size":     p.FeedPageSize,
	} {
		if n != nil && *n < 1 {
			return &ValidationError{Field: name, Reason: "must be at least 1"}
		}
	}
	if p.QualityThreshold != nil && (*p.QualityThreshold < 0 || *p.QualityThreshold > 10) {
		return &ValidationError{Field: "quality_threshold", Reason: "must be in [0,10]"}
	}
	return nil
}

// Apply merges the patch into a copy of r and returns it. The receiver
// is not modified.
func (p Patch) Apply(r Runtime) Runtime {
	out := r.Clone()
	if p.PostCooldown != nil {
		out.PostCooldown = *p.PostCooldown
	}
	if p.CommentCooldown != nil {
		out.CommentCooldown = *p.CommentCooldown
	}
	if p.ReplyCooldown != nil {
		out.ReplyCooldown = *p.ReplyCooldown
	}
	if p.CycleInterval != nil {
		out.CycleInterval = *p.CycleInterval
	}
	if p.SweepInterval != nil {
		out.SweepInterval = *p.SweepInterval
	}
	if p.QualityThreshold != nil {
		out.QualityThreshold = *p.QualityThreshold
	}
	if p.PostCandidates != nil {
		out.PostCandidates = *p.PostCandidates
	}
	if p.CommentCandidates != nil {
		out.CommentCandidates = *p.CommentCandidates
	}
	if p.ReplyCandidates != nil {
		out.ReplyCandidates = *p.ReplyCandidates
	}
	if p.FeedPageSize != nil {
		out.FeedPageSize = *p.FeedPageSize
	}
	if p.PriorityHives != nil {
		out.PriorityHives = append([]string(nil), p.PriorityHives...)
	}
	if p.Footers != nil {
		out.Footers = append([]string(nil), p.Footers...)
	}
	return out
}

// ValidationError reports an invalid configuration update. The previous
// valid configuration stays in effect when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// weightTolerance allows for float accumulation error in the sum check.
const weightTolerance = 1e-6

// ValidateWeights enforces the weight invariants: known keys only,
// non-negative values, sum equal to 1.0. This runs at configuration
// update time; the scorer itself never re-checks.
func ValidateWeights(w scoring.Weights) error {
	known := map[string]bool{
		scoring.FeatureReplyBait:      true,
		scoring.FeatureSimpleWords:    true,
		scoring.FeatureEmojiUsage:     true,
		scoring.FeatureEngagementHook: true,
		scoring.FeatureLowPunctuation: true,
		scoring.FeatureFirstPerson:    true,
		scoring.FeatureNoURLsCaps:     true,
	}

	sum := 0.0
	for key, v := range w {
		if !known[key] {
			return &ValidationError{Field: key, Reason: "is not a recognized weight"}
		}
		if v < 0 {
			return &ValidationError{Field: key, Reason: "must not be negative"}
		}
		sum += v
	}
	if sum < 1-weightTolerance || sum > 1+weightTolerance {
		return &ValidationError{Field: "weights", Reason: fmt.Sprintf("must sum to 1.0, got %.6f", sum)}
	}
	return nil
}
