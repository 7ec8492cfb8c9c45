// Package orchestrator runs a fleet of agents over one shared
// inference arbiter and owns the fleet-wide control surface.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/molthive/hivebot/pkg/agent"
	"github.com/molthive/hivebot/pkg/arbiter"
	"github.com/molthive/hivebot/pkg/config"
	"github.com/molthive/hivebot/pkg/pipeline"
	"github.com/molthive/hivebot/pkg/platform"
	"github.com/molthive/hivebot/pkg/scoring"
	"github.com/molthive/hivebot/pkg/types"
)

// ErrUnknownAgent is returned for control calls naming no known agent.
var ErrUnknownAgent = errors.New("orchestrator: unknown agent")

// APIFactory builds a platform client for one identity. Injected so
// tests and dry runs can substitute in-memory platforms.
type APIFactory func(id config.Identity) platform.API

// Options configures the orchestrator.
type Options struct {
	Agents   *config.AgentsFile
	Arbiter  *arbiter.Arbiter
	NewAPI   APIFactory
	Recorder agent.Recorder
	StateDir string
	Stagger  time.Duration
}

// Orchestrator owns the fleet. One arbiter and one pipeline are shared
// by every agent; runtime configuration and shared weights fan out to
// all of them on update.
type Orchestrator struct {
	arb      *arbiter.Arbiter
	pipe     *pipeline.Pipeline
	newAPI   APIFactory
	recorder agent.Recorder
	stateDir string
	stagger  time.Duration
	log      *logrus.Entry

	mu      sync.Mutex
	agents  map[string]*agent.Agent
	order   []string
	runtime config.Runtime
	weights scoring.Weights

	wg sync.WaitGroup
}

// New builds the fleet from the agents file. An agent with a corrupt
// checkpoint is refused and logged; the rest of the fleet still loads.
func New(opts Options) (*Orchestrator, error) {
	if opts.Agents == nil || len(opts.Agents.Agents) == 0 {
		return nil, errors.New("orchestrator: no agents configured")
	}

	o := &Orchestrator{
		arb:      opts.Arbiter,
		pipe:     pipeline.New(opts.Arbiter, nil, nil),
		newAPI:   opts.NewAPI,
		recorder: opts.Recorder,
		stateDir: opts.StateDir,
		stagger:  opts.Stagger,
		log:      logrus.WithField("component", "orchestrator"),
		agents:   map[string]*agent.Agent{},
		runtime:  opts.Agents.Runtime.Clone(),
		weights:  opts.Agents.Weights.Clone(),
	}

	for _, id := range opts.Agents.Agents {
		a, err := agent.New(agent.Options{
			Identity: id,
			API:      o.newAPI(id),
			Pipeline: o.pipe,
			Recorder: o.recorder,
			StateDir: o.stateDir,
			Runtime:  o.runtime,
			Weights:  o.weights,
		})
		if err != nil {
			var corrupt *agent.CorruptStateError
			if errors.As(err, &corrupt) {
				o.log.WithError(err).WithField("agent", id.Name).Error("refusing agent with corrupt state")
				continue
			}
			return nil, fmt.Errorf("agent %s: %w", id.Name, err)
		}
		o.agents[id.Name] = a
		o.order = append(o.order, id.Name)
	}

	if len(o.agents) == 0 {
		return nil, errors.New("orchestrator: every configured agent failed to load")
	}
	return o, nil
}

// RegisterAll claims any unclaimed identities. Registration is
// idempotent: already-claimed names are left alone.
func (o *Orchestrator) RegisterAll(ctx context.Context, ids []config.Identity) {
	for _, id := range ids {
		a := o.agents[id.Name]
		if a == nil {
			continue
		}
		api := o.newAPI(id)

		status, err := api.GetStatus(ctx)
		if err == nil && status.Claimed() {
			continue
		}

		registrar, ok := api.(platform.Registrar)
		if !ok {
			continue
		}
		reg, err := registrar.Register(ctx, id.Name, id.Bio)
		if err != nil {
			o.log.WithError(err).WithField("agent", id.Name).Warn("registration failed")
			continue
		}
		if reg.AlreadyExists {
			continue
		}

		// The issued key exists nowhere else; persist it and switch the
		// agent's client over so the claim is usable without a restart.
		credsPath := agent.CredentialsPath(o.stateDir, id.Name)
		if err := saveCredentials(credsPath, id.Name, reg); err != nil {
			o.log.WithError(err).WithField("agent", id.Name).Error("could not persist issued credential")
		}
		if reg.APIKey != "" {
			keyed := id
			keyed.APIKey = reg.APIKey
			keyed.APIKeyEnv = ""
			a.SetAPI(o.newAPI(keyed))
		}

		// An unclaimed identity cannot publish; hold it paused until an
		// operator claims it and resumes.
		if err := a.Pause(); err == nil {
			o.log.WithFields(logrus.Fields{
				"agent":       id.Name,
				"claim_url":   reg.ClaimURL,
				"credentials": credsPath,
			}).Info("agent registered and paused pending claim")
		}
	}
}

// saveCredentials writes an issued credential next to the agent's
// checkpoint, owner-readable only.
func saveCredentials(path, name string, reg *types.Registration) error {
	data, err := json.MarshalIndent(struct {
		Name             string    `json:"name"`
		APIKey           string    `json:"api_key"`
		ClaimURL         string    `json:"claim_url"`
		VerificationCode string    `json:"verification_code,omitempty"`
		IssuedAt         time.Time `json:"issued_at"`
	}{name, reg.APIKey, reg.ClaimURL, reg.VerificationCode, time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Run starts every agent's cycle loop and upvote sweep, staggered so
// the fleet does not stampede the arbiter, then blocks until ctx is
// cancelled and every loop has exited.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	names := append([]string(nil), o.order...)
	o.mu.Unlock()

	for i, name := range names {
		a := o.agents[name]
		if i > 0 && o.stagger > 0 {
			select {
			case <-time.After(o.stagger):
			case <-ctx.Done():
				return o.drain()
			}
		}

		o.wg.Add(2)
		go func(a *agent.Agent) {
			defer o.wg.Done()
			if err := a.Run(ctx); err != nil {
				o.log.WithError(err).WithField("agent", a.Name()).Error("agent loop exited")
			}
		}(a)
		go func(a *agent.Agent) {
			defer o.wg.Done()
			_ = a.RunSweep(ctx)
		}(a)
	}

	<-ctx.Done()
	return o.drain()
}

func (o *Orchestrator) drain() error {
	o.wg.Wait()
	o.log.Info("all agent loops drained")
	return nil
}

// StopAll stops every agent and waits up to grace for loops to drain.
// Each agent writes a final checkpoint as part of stopping.
func (o *Orchestrator) StopAll(grace time.Duration) {
	o.mu.Lock()
	for _, a := range o.agents {
		a.Stop()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		o.log.Warn("grace period expired with loops still running")
	}
}

// ListAgents returns fleet status snapshots in configuration order.
func (o *Orchestrator) ListAgents() []agent.Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]agent.Status, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.agents[name].Status())
	}
	return out
}

// AgentStatus returns one agent's snapshot.
func (o *Orchestrator) AgentStatus(name string) (agent.Status, error) {
	o.mu.Lock()
	a := o.agents[name]
	o.mu.Unlock()
	if a == nil {
		return agent.Status{}, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return a.Status(), nil
}

// PauseAgent suspends one agent's cycles.
func (o *Orchestrator) PauseAgent(name string) error {
	o.mu.Lock()
	a := o.agents[name]
	o.mu.Unlock()
	if a == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return a.Pause()
}

// ResumeAgent resumes a paused agent.
func (o *Orchestrator) ResumeAgent(name string) error {
	o.mu.Lock()
	a := o.agents[name]
	o.mu.Unlock()
	if a == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return a.Resume()
}

// UpdateRuntime validates a patch and fans the merged configuration out
// to every agent. On validation failure nothing changes.
func (o *Orchestrator) UpdateRuntime(patch config.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.runtime = patch.Apply(o.runtime)
	for _, a := range o.agents {
		a.UpdateRuntime(o.runtime)
	}
	o.log.Info("runtime configuration updated")
	return nil
}

// Runtime returns the current fleet-wide runtime configuration.
func (o *Orchestrator) Runtime() config.Runtime {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runtime.Clone()
}

// UpdateWeights validates and fans new shared scoring weights out to
// every agent. Invalid weights are rejected and the previous set stays
// in effect.
func (o *Orchestrator) UpdateWeights(w scoring.Weights) error {
	if err := config.ValidateWeights(w); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.weights = w.Clone()
	for _, a := range o.agents {
		a.UpdateWeights(o.weights)
	}
	o.log.Info("scoring weights updated")
	return nil
}

// Weights returns the current shared weights.
func (o *Orchestrator) Weights() scoring.Weights {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.weights.Clone()
}

// ApplyAgentsFile absorbs a hot-reloaded agents file: runtime and
// shared weights are fanned out to the running fleet. Agent membership
// changes require a restart and are logged, not applied.
func (o *Orchestrator) ApplyAgentsFile(f *config.AgentsFile) {
	o.mu.Lock()
	known := len(o.agents)
	o.mu.Unlock()

	if len(f.Agents) != known {
		o.log.Warn("agents file membership changed; restart to add or remove agents")
	}

	if err := o.UpdateWeights(f.Weights); err != nil {
		o.log.WithError(err).Warn("reloaded weights rejected")
	}

	o.mu.Lock()
	o.runtime = f.Runtime.Clone()
	for _, a := range o.agents {
		a.UpdateRuntime(o.runtime)
	}
	o.mu.Unlock()
}

// Arbiter exposes shared inference telemetry.
func (o *Orchestrator) Arbiter() *arbiter.Arbiter { return o.arb }
