// Package agent runs one autonomous platform identity: a cycle
// scheduler over feed scanning, engagement, and posting, with durable
// state and per-action cooldowns.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/molthive/hivebot/pkg/config"
	"github.com/molthive/hivebot/pkg/pipeline"
	"github.com/molthive/hivebot/pkg/platform"
	"github.com/molthive/hivebot/pkg/scoring"
	"github.com/molthive/hivebot/pkg/types"
)

// RunState is the lifecycle state of an agent's scheduler.
type RunState string

const (
	// Running executes cycles on the configured interval.
	Running RunState = "running"
	// Paused skips cycles but keeps the loop alive and state loaded.
	Paused RunState = "paused"
	// Stopped is terminal. A stopped agent never runs again.
	Stopped RunState = "stopped"
)

// Recorder archives published content and activity to secondary
// storage. All methods must tolerate being called concurrently.
type Recorder interface {
	RecordPost(ctx context.Context, agent string, post *types.Post) error
	RecordActivity(ctx context.Context, agent string, act Activity) error
}

// Agent is one independent identity. All mutable fields are guarded by
// mu; the cycle loop and the upvote sweep share it, so their platform
// writes never interleave mid-decision.
type Agent struct {
	identity config.Identity
	api      platform.API
	pipe     *pipeline.Pipeline
	recorder Recorder // optional
	log      *logrus.Entry

	statePath string

	mu       sync.Mutex
	state    *State
	cfg      config.Runtime
	weights  scoring.Weights
	runState RunState

	activities activityLog
	lastReport CycleReport
	durations  []time.Duration // recent cycle durations, bounded
	cycleSeq   int
	footerSeq  int

	// now is replaced in tests to drive cooldown clocks.
	now func() time.Time
}

// Options configures a new agent.
type Options struct {
	Identity config.Identity
	API      platform.API
	Pipeline *pipeline.Pipeline
	Recorder Recorder
	StateDir string
	Runtime  config.Runtime
	Weights  scoring.Weights

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New loads the agent's checkpoint and prepares it in the Running
// state. A corrupt checkpoint is fatal for this agent only; the caller
// decides what to do with the rest of the fleet.
func New(opts Options) (*Agent, error) {
	statePath := StatePath(opts.StateDir, opts.Identity.Name)
	state, err := LoadState(statePath)
	if err != nil {
		return nil, err
	}

	weights := opts.Weights
	if len(opts.Identity.Weights) > 0 {
		weights = opts.Identity.Weights
	}
	if len(weights) == 0 {
		weights = scoring.DefaultWeights()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Agent{
		identity:  opts.Identity,
		api:       opts.API,
		pipe:      opts.Pipeline,
		recorder:  opts.Recorder,
		log:       logrus.WithField("agent", opts.Identity.Name),
		statePath: statePath,
		state:     state,
		cfg:       opts.Runtime.Clone(),
		weights:   weights.Clone(),
		runState:  Running,
		now:       now,
	}, nil
}

// Name returns the agent's platform name.
func (a *Agent) Name() string { return a.identity.Name }

// SetAPI swaps the platform client. Called when registration issues a
// fresh credential, before the cycle loop starts.
func (a *Agent) SetAPI(api platform.API) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.api = api
}

// Pause suspends cycle execution. Pausing a paused agent is a no-op;
// pausing a stopped agent is an error.
func (a *Agent) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runState == Stopped {
		return fmt.Errorf("agent %s is stopped", a.identity.Name)
	}
	a.runState = Paused
	return nil
}

// Resume returns a paused agent to Running. Resuming a running agent is
// a no-op; resuming a stopped agent is an error.
func (a *Agent) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runState == Stopped {
		return fmt.Errorf("agent %s is stopped", a.identity.Name)
	}
	a.runState = Running
	return nil
}

// UpdateRuntime swaps the runtime configuration. The running cycle
// keeps its snapshot; the next cycle sees the new values.
func (a *Agent) UpdateRuntime(cfg config.Runtime) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg.Clone()
}

// UpdateWeights swaps the scoring weights. Callers must have validated
// them already.
func (a *Agent) UpdateWeights(w scoring.Weights) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weights = w.Clone()
}

// snapshot returns copies of the tick inputs so a mid-cycle update
// cannot tear.
func (a *Agent) snapshot() (config.Runtime, scoring.Weights, RunState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Clone(), a.weights.Clone(), a.runState
}

// Run executes the cycle loop until ctx is cancelled or Stop is called.
// The inter-cycle delay is measured from cycle completion, so a slow
// cycle does not cause a burst of catch-up cycles.
func (a *Agent) Run(ctx context.Context) error {
	a.log.WithField("state_path", a.statePath).Info("agent starting")

	if err := a.Bootstrap(ctx); err != nil {
		a.log.WithError(err).Warn("own-post bootstrap failed, continuing with checkpoint only")
	}

	for {
		cfg, weights, state := a.snapshot()
		switch state {
		case Stopped:
			a.log.Info("agent stopped")
			return nil
		case Paused:
			if err := sleepCtx(ctx, time.Second); err != nil {
				return a.shutdown(err)
			}
			continue
		}

		report := a.runCycle(ctx, cfg, weights)
		a.finishCycle(report)

		if ctx.Err() != nil {
			return a.shutdown(ctx.Err())
		}
		if err := sleepCtx(ctx, cfg.CycleInterval); err != nil {
			return a.shutdown(err)
		}
	}
}

// Stop moves the agent to the terminal state and writes a final
// checkpoint.
func (a *Agent) Stop() {
	a.mu.Lock()
	a.runState = Stopped
	err := SaveState(a.statePath, a.state)
	a.mu.Unlock()
	if err != nil {
		a.log.WithError(err).Error("final checkpoint failed")
	}
}

func (a *Agent) shutdown(cause error) error {
	a.mu.Lock()
	err := SaveState(a.statePath, a.state)
	a.mu.Unlock()
	if err != nil {
		a.log.WithError(err).Error("shutdown checkpoint failed")
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return nil
	}
	return cause
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TaskStatus classifies one sub-task outcome.
type TaskStatus string

const (
	TaskOK      TaskStatus = "ok"
	TaskSkipped TaskStatus = "skipped"
	TaskFailed  TaskStatus = "failed"
)

// TaskResult is the explicit outcome of one cycle sub-task.
type TaskResult struct {
	Name   string     `json:"name"`
	Status TaskStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
	Err    string     `json:"error,omitempty"`
}

// CycleReport summarizes one completed cycle.
type CycleReport struct {
	Number   int           `json:"number"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Tasks    []TaskResult  `json:"tasks"`
}

// runCycle executes the ordered sub-tasks. A sub-task failure is
// recorded and the cycle moves on; one broken endpoint never takes the
// whole cycle down.
func (a *Agent) runCycle(ctx context.Context, cfg config.Runtime, weights scoring.Weights) CycleReport {
	a.cycleSeq++
	report := CycleReport{Number: a.cycleSeq, Started: a.now()}

	tasks := []struct {
		name string
		run  func(context.Context, config.Runtime, scoring.Weights) TaskResult
	}{
		{"heartbeat", a.heartbeat},
		{"scan_priority_hives", a.scanPriorityHives},
		{"scan_general_feed", a.scanGeneralFeed},
		{"monitor_own_posts", a.monitorOwnPosts},
		{"engage_hot_thread", a.engageHotThread},
		{"create_post", a.createPost},
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			report.Tasks = append(report.Tasks, TaskResult{
				Name: task.name, Status: TaskSkipped, Detail: "shutting down",
			})
			continue
		}
		res := task.run(ctx, cfg, weights)
		res.Name = task.name
		report.Tasks = append(report.Tasks, res)
		if res.Status == TaskFailed {
			a.log.WithField("task", task.name).WithField("error", res.Err).Warn("sub-task failed")
		}
	}

	report.Duration = a.now().Sub(report.Started)
	return report
}

// finishCycle checkpoints and records the report.
func (a *Agent) finishCycle(report CycleReport) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state.CyclesCompleted++
	a.lastReport = report
	a.durations = append(a.durations, report.Duration)
	if len(a.durations) > 50 {
		a.durations = a.durations[len(a.durations)-50:]
	}
	if err := SaveState(a.statePath, a.state); err != nil {
		a.log.WithError(err).Error("cycle checkpoint failed")
	}

	failed := 0
	for _, t := range report.Tasks {
		if t.Status == TaskFailed {
			failed++
		}
	}
	a.log.WithFields(logrus.Fields{
		"cycle":    report.Number,
		"duration": report.Duration.Round(time.Millisecond),
		"tasks":    len(report.Tasks),
		"failed":   failed,
	}).Info("cycle complete")
}

// Bootstrap rebuilds the own-post set from the platform. It fills gaps
// in a lost or stale checkpoint so the monitor task sees older posts.
func (a *Agent) Bootstrap(ctx context.Context) error {
	cfg, _, _ := a.snapshot()

	offset := 0
	found := 0
	for page := 0; page < 4; page++ {
		feed, err := a.api.GetFeed(ctx, "", "new", cfg.FeedPageSize, offset)
		if err != nil {
			return err
		}
		a.mu.Lock()
		for _, post := range feed.Posts {
			if post.Author.Name == a.identity.Name && !a.state.OwnPosts[post.ID] {
				a.state.OwnPosts[post.ID] = true
				found++
			}
		}
		a.mu.Unlock()
		if !feed.HasMore {
			break
		}
		offset = feed.NextOffset
	}

	if found > 0 {
		a.log.WithField("recovered", found).Info("own posts recovered from platform")
	}
	return nil
}
