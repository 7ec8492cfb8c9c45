package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/molthive/hivebot/pkg/scoring"
)

// Identity describes one agent as declared in the agents file.
type Identity struct {
	Name      string `yaml:"name"`
	Bio       string `yaml:"bio"`
	Persona   string `yaml:"persona"`
	Style     string `yaml:"style"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`

	// Weights overrides the shared scoring weights for this agent only.
	Weights scoring.Weights `yaml:"weights"`
}

// Key resolves the platform API key, preferring the environment
// indirection over an inline value.
func (id Identity) Key() string {
	if id.APIKeyEnv != "" {
		if v := os.Getenv(id.APIKeyEnv); v != "" {
			return v
		}
	}
	return id.APIKey
}

// AgentsFile is the parsed agents configuration document. Runtime and
// Weights apply to every agent unless an identity overrides weights.
type AgentsFile struct {
	Agents  []Identity      `yaml:"agents"`
	Runtime Runtime         `yaml:"runtime"`
	Weights scoring.Weights `yaml:"weights"`
}

// runtimeDoc is the YAML shape of the runtime section. Durations are
// expressed in seconds so operators never fight duration syntax.
type runtimeDoc struct {
	PostCooldownSeconds    *float64 `yaml:"post_cooldown_seconds"`
	CommentCooldownSeconds *float64 `yaml:"comment_cooldown_seconds"`
	ReplyCooldownSeconds   *float64 `yaml:"reply_cooldown_seconds"`
	CycleIntervalSeconds   *float64 `yaml:"cycle_interval_seconds"`
	SweepIntervalSeconds   *float64 `yaml:"sweep_interval_seconds"`

	QualityThreshold  *float64 `yaml:"quality_threshold"`
	PostCandidates    *int     `yaml:"post_candidates"`
	CommentCandidates *int     `yaml:"comment_candidates"`
	ReplyCandidates   *int     `yaml:"reply_candidates"`
	FeedPageSize      *int     `yaml:"feed_page_size"`

	PriorityHives []string `yaml:"priority_hives"`
	Footers       []string `yaml:"footers"`
}

func (d runtimeDoc) patch() Patch {
	p := Patch{
		QualityThreshold:  d.QualityThreshold,
		PostCandidates:    d.PostCandidates,
		CommentCandidates: d.CommentCandidates,
		ReplyCandidates:   d.ReplyCandidates,
		FeedPageSize:      d.FeedPageSize,
		PriorityHives:     d.PriorityHives,
		Footers:           d.Footers,
	}
	secs := func(v *float64) *time.Duration {
		if v == nil {
			return nil
		}
		dur := time.Duration(*v * float64(time.Second))
		return &dur
	}
	p.PostCooldown = secs(d.PostCooldownSeconds)
	p.CommentCooldown = secs(d.CommentCooldownSeconds)
	p.ReplyCooldown = secs(d.ReplyCooldownSeconds)
	p.CycleInterval = secs(d.CycleIntervalSeconds)
	p.SweepInterval = secs(d.SweepIntervalSeconds)
	return p
}

type agentsDoc struct {
	Agents  []Identity      `yaml:"agents"`
	Runtime runtimeDoc      `yaml:"runtime"`
	Weights scoring.Weights `yaml:"weights"`
}

// LoadAgentsFile reads and validates the YAML agents file. Runtime
// values start from defaults and are overlaid by the file's runtime
// section; absent weights fall back to the built-in defaults.
func LoadAgentsFile(path string) (*AgentsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	return ParseAgentsFile(data)
}

// ParseAgentsFile parses an agents document from raw YAML.
func ParseAgentsFile(data []byte) (*AgentsFile, error) {
	var doc agentsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, &ValidationError{Field: "agents", Reason: "must list at least one agent"}
	}

	seen := map[string]bool{}
	for i, id := range doc.Agents {
		if id.Name == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("agents[%d].name", i), Reason: "must not be empty"}
		}
		if seen[id.Name] {
			return nil, &ValidationError{Field: "agents", Reason: fmt.Sprintf("duplicate name %q", id.Name)}
		}
		seen[id.Name] = true
		if len(id.Weights) > 0 {
			if err := ValidateWeights(id.Weights); err != nil {
				return nil, fmt.Errorf("agent %q: %w", id.Name, err)
			}
		}
	}

	patch := doc.Runtime.patch()
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	weights := doc.Weights
	if len(weights) == 0 {
		weights = scoring.DefaultWeights()
	} else if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	return &AgentsFile{
		Agents:  doc.Agents,
		Runtime: patch.Apply(DefaultRuntime()),
		Weights: weights,
	}, nil
}
