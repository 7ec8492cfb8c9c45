// Package arbiter serializes access to the shared inference backend.
//
// A GPU-bound backend cannot serve concurrent requests without contention
// collapse, so every generation in the process goes through one Arbiter
// holding a single admission slot. Callers queue first-come-first-served;
// at most one inference call is in flight at any instant.
package arbiter

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/molthive/hivebot/pkg/llm"
	"github.com/molthive/hivebot/pkg/types"
)

var (
	inferenceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivebot_inference_requests_total",
		Help: "Total inference calls by backend and outcome",
	}, []string{"backend", "outcome"})

	inferenceTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivebot_inference_tokens_total",
		Help: "Total tokens consumed by backend and kind",
	}, []string{"backend", "kind"})

	inferenceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hivebot_inference_duration_seconds",
		Help:    "Inference call latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	inferenceWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hivebot_inference_waiting",
		Help: "Callers currently waiting for the admission slot",
	})
)

// Arbiter owns exclusive access to one inference backend.
type Arbiter struct {
	backend llm.Backend
	slot    chan struct{}

	mu    sync.Mutex
	stats Stats
}

// Stats is a point-in-time telemetry snapshot.
type Stats struct {
	Calls        int64            `json:"calls"`
	Failures     int64            `json:"failures"`
	Tokens       types.TokenUsage `json:"tokens"`
	TotalLatency time.Duration    `json:"total_latency"`
	LastLatency  time.Duration    `json:"last_latency"`
	LongestWait  time.Duration    `json:"longest_wait"`
}

// New creates an arbiter around the given backend.
func New(backend llm.Backend) *Arbiter {
	a := &Arbiter{
		backend: backend,
		slot:    make(chan struct{}, 1),
	}
	a.slot <- struct{}{}
	return a
}

// Backend returns the wrapped backend.
func (a *Arbiter) Backend() llm.Backend { return a.backend }

// Generate runs one inference call under the admission slot. It blocks
// until the slot is free or ctx is done. Backend failures surface as
// llm.UnavailableError; the arbiter never retries.
func (a *Arbiter) Generate(ctx context.Context, req llm.GenerateRequest) (string, types.TokenUsage, error) {
	waitStart := time.Now()
	inferenceWaiting.Inc()
	select {
	case <-a.slot:
		inferenceWaiting.Dec()
	case <-ctx.Done():
		inferenceWaiting.Dec()
		return "", types.TokenUsage{}, ctx.Err()
	}
	defer func() { a.slot <- struct{}{} }()
	waited := time.Since(waitStart)

	start := time.Now()
	text, usage, err := a.backend.Generate(ctx, req)
	elapsed := time.Since(start)

	a.record(usage, elapsed, waited, err)

	if err != nil {
		inferenceRequests.WithLabelValues(a.backend.Name(), "error").Inc()
		return "", types.TokenUsage{}, err
	}

	inferenceRequests.WithLabelValues(a.backend.Name(), "ok").Inc()
	inferenceTokens.WithLabelValues(a.backend.Name(), "prompt").Add(float64(usage.PromptTokens))
	inferenceTokens.WithLabelValues(a.backend.Name(), "completion").Add(float64(usage.CompletionTokens))
	inferenceLatency.Observe(elapsed.Seconds())

	logrus.WithFields(logrus.Fields{
		"backend": a.backend.Name(),
		"latency": elapsed.Round(time.Millisecond),
		"waited":  waited.Round(time.Millisecond),
		"tokens":  usage.Total(),
	}).Debug("inference call complete")

	return text, usage, nil
}

func (a *Arbiter) record(usage types.TokenUsage, elapsed, waited time.Duration, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.Calls++
	if err != nil {
		a.stats.Failures++
	}
	a.stats.Tokens.Add(usage)
	a.stats.TotalLatency += elapsed
	a.stats.LastLatency = elapsed
	if waited > a.stats.LongestWait {
		a.stats.LongestWait = waited
	}
}

// Stats returns a snapshot of accumulated telemetry.
func (a *Arbiter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
