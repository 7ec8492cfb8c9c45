// Package pipeline generates candidate texts and selects the best one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/molthive/hivebot/pkg/llm"
	"github.com/molthive/hivebot/pkg/scoring"
	"github.com/molthive/hivebot/pkg/types"
)

// ErrNoCandidates reports that every generation attempt failed, so there
// is nothing to select from. The caller decides whether to retry on a
// later cycle; the pipeline never fabricates a fallback.
var ErrNoCandidates = errors.New("pipeline: no candidates generated")

// Generator produces text for a request. Satisfied by *arbiter.Arbiter.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, types.TokenUsage, error)
}

// Scorer scores a candidate text under a weight configuration.
// Satisfied by ScorerFunc around scoring.Score.
type Scorer interface {
	Score(text string, weights scoring.Weights) (float64, scoring.Breakdown)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(text string, weights scoring.Weights) (float64, scoring.Breakdown)

// Score implements Scorer.
func (f ScorerFunc) Score(text string, weights scoring.Weights) (float64, scoring.Breakdown) {
	return f(text, weights)
}

// Mode is one generation flavor: a temperature plus a prompt emphasis
// appended to the base prompt.
type Mode struct {
	Name        string  `json:"name" yaml:"name"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Emphasis    string  `json:"emphasis" yaml:"emphasis"`
}

// DefaultModes returns the built-in generation modes. Callers get a
// fresh slice each time.
func DefaultModes() []Mode {
	return []Mode{
		{
			Name:        "reply_bait",
			Temperature: 0.9,
			Emphasis:    "Write something people WANT to reply to. Ask a fun question, share a hot take, make a relatable observation. Use simple short words and add an emoji. Questions get replies.",
		},
		{
			Name:        "high_energy",
			Temperature: 1.0,
			Emphasis:    "Bring big fun energy 🔥. Bold, playful, simple words. Include an emoji. Ask something that makes people want to join in. Use 'I' statements.",
		},
		{
			Name:        "hot_take",
			Temperature: 1.0,
			Emphasis:    "Share a HOT TAKE people will debate. Use simple everyday words. Add an emoji. Say 'I think' or 'honestly' to make it personal. End with a question.",
		},
		{
			Name:        "relatable",
			Temperature: 0.85,
			Emphasis:    "Say something super RELATABLE that others will go 'same!' to. Use 'I' and 'my' a lot. Simple words only. Make people want to share their own take.",
		},
		{
			Name:        "debate_starter",
			Temperature: 0.95,
			Emphasis:    "Start a debate: bold claim plus question. Use short common words. Make it fun not mean.",
		},
	}
}

// Request describes one multi-candidate generation.
type Request struct {
	System  string
	Prompt  string
	Context string // short human-readable description for logs
	Modes   []Mode
	PerMode int // candidates per mode; minimum 1
}

// Candidate is one generated option. Candidates are ephemeral: they live
// only for the duration of a pipeline invocation.
type Candidate struct {
	Text        string            `json:"text"`
	Mode        string            `json:"mode"`
	Temperature float64           `json:"temperature"`
	Usage       types.TokenUsage  `json:"usage"`
	Score       float64           `json:"score"`
	Breakdown   scoring.Breakdown `json:"breakdown"`
	Index       int               `json:"index"`
}

// Result is the outcome of one pipeline invocation. Selected is nil when
// the best candidate fell below the quality threshold.
type Result struct {
	Selected   *Candidate       `json:"selected,omitempty"`
	Candidates []Candidate      `json:"candidates"`
	Usage      types.TokenUsage `json:"usage"`
	Duration   time.Duration    `json:"duration"`
	Reason     string           `json:"reason"`
}

// Accepted reports whether a candidate passed the quality gate.
func (r *Result) Accepted() bool { return r.Selected != nil }

// Pipeline generates candidates through a Generator and scores them.
type Pipeline struct {
	gen    Generator
	scorer Scorer
	log    *logrus.Entry
}

// New creates a pipeline. A nil scorer defaults to scoring.Score.
func New(gen Generator, scorer Scorer, log *logrus.Entry) *Pipeline {
	if scorer == nil {
		scorer = ScorerFunc(scoring.Score)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{gen: gen, scorer: scorer, log: log}
}

// GenerateAndSelectBest produces PerMode candidates per mode, scores each
// with the given weights, and applies the threshold gate.
//
// Generation is sequential: the arbiter admits one call at a time, so
// parallel fan-out would only reorder the queue. Selection is the
// strictly highest score; ties keep the earliest-generated candidate.
// Individual generation failures are logged and skipped; if every attempt
// fails the last backend error is surfaced wrapped in ErrNoCandidates.
func (p *Pipeline) GenerateAndSelectBest(ctx context.Context, req Request, weights scoring.Weights, threshold float64) (*Result, error) {
	modes := req.Modes
	if len(modes) == 0 {
		modes = DefaultModes()
	}
	perMode := req.PerMode
	if perMode < 1 {
		perMode = 1
	}

	// Read-copy so a concurrent weight update cannot tear an in-flight
	// scoring pass.
	weights = weights.Clone()

	start := time.Now()
	result := &Result{}
	var lastErr error

genLoop:
	for _, mode := range modes {
		for i := 0; i < perMode; i++ {
			if ctx.Err() != nil {
				break genLoop
			}

			prompt := req.Prompt
			if mode.Emphasis != "" {
				prompt = fmt.Sprintf("%s\n\nPRIORITY FOR THIS RESPONSE: %s", req.Prompt, mode.Emphasis)
			}

			text, usage, err := p.gen.Generate(ctx, llm.GenerateRequest{
				System:      req.System,
				Prompt:      prompt,
				Temperature: mode.Temperature,
			})
			result.Usage.Add(usage)
			if err != nil {
				lastErr = err
				p.log.WithError(err).WithField("mode", mode.Name).Warn("candidate generation failed")
				continue
			}

			text = strings.TrimSpace(text)
			if len(text) <= 5 {
				continue
			}

			score, breakdown := p.scorer.Score(text, weights)
			result.Candidates = append(result.Candidates, Candidate{
				Text:        text,
				Mode:        mode.Name,
				Temperature: mode.Temperature,
				Usage:       usage,
				Score:       score,
				Breakdown:   breakdown,
				Index:       len(result.Candidates),
			})
		}
	}
	result.Duration = time.Since(start)

	if len(result.Candidates) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoCandidates, lastErr)
		}
		return nil, ErrNoCandidates
	}

	// Strictly-greater comparison keeps the earliest candidate on ties.
	best := 0
	for i := 1; i < len(result.Candidates); i++ {
		if result.Candidates[i].Score > result.Candidates[best].Score {
			best = i
		}
	}
	winner := result.Candidates[best]

	if winner.Score < threshold {
		result.Reason = fmt.Sprintf("best of %d scored %.2f, below threshold %.2f",
			len(result.Candidates), winner.Score, threshold)
		p.log.WithFields(logrus.Fields{
			"context":   req.Context,
			"best":      winner.Score,
			"threshold": threshold,
		}).Info("no acceptable candidate")
		return result, nil
	}

	result.Selected = &winner
	result.Reason = fmt.Sprintf("best of %d: %.2f (%s)",
		len(result.Candidates), winner.Score, winner.Mode)
	return result, nil
}
