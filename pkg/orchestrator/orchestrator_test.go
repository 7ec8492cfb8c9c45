package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molthive/hivebot/pkg/agent"
	"github.com/molthive/hivebot/pkg/arbiter"
	"github.com/molthive/hivebot/pkg/config"
	"github.com/molthive/hivebot/pkg/llm"
	"github.com/molthive/hivebot/pkg/platform"
	"github.com/molthive/hivebot/pkg/scoring"
	"github.com/molthive/hivebot/pkg/types"
)

type echoBackend struct{}

func (echoBackend) Name() string { return "echo" }

func (echoBackend) Generate(ctx context.Context, req llm.GenerateRequest) (string, types.TokenUsage, error) {
	return "echo response with enough length", types.TokenUsage{PromptTokens: 1, CompletionTokens: 1}, nil
}

func testAgentsFile(names ...string) *config.AgentsFile {
	f := &config.AgentsFile{
		Runtime: config.DefaultRuntime(),
		Weights: scoring.DefaultWeights(),
	}
	for _, n := range names {
		f.Agents = append(f.Agents, config.Identity{Name: n})
	}
	return f
}

func memoryFactory() APIFactory {
	return func(id config.Identity) platform.API {
		return platform.NewMemory(id.Name)
	}
}

func newTestOrchestrator(t *testing.T, stateDir string, names ...string) *Orchestrator {
	t.Helper()
	o, err := New(Options{
		Agents:   testAgentsFile(names...),
		Arbiter:  arbiter.New(echoBackend{}),
		NewAPI:   memoryFactory(),
		StateDir: stateDir,
	})
	require.NoError(t, err)
	return o
}

func TestNew_CorruptStateRefusesOnlyThatAgent(t *testing.T) {
	stateDir := t.TempDir()
	badPath := agent.StatePath(stateDir, "broken")
	require.NoError(t, os.MkdirAll(filepath.Dir(badPath), 0o755))
	require.NoError(t, os.WriteFile(badPath, []byte("{nope"), 0o644))

	o := newTestOrchestrator(t, stateDir, "healthy", "broken")

	statuses := o.ListAgents()
	require.Len(t, statuses, 1)
	assert.Equal(t, "healthy", statuses[0].Name)

	_, err := o.AgentStatus("broken")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestNew_AllCorruptFails(t *testing.T) {
	stateDir := t.TempDir()
	require.NoError(t, os.WriteFile(agent.StatePath(stateDir, "only"), []byte("{"), 0o644))

	_, err := New(Options{
		Agents:   testAgentsFile("only"),
		Arbiter:  arbiter.New(echoBackend{}),
		NewAPI:   memoryFactory(),
		StateDir: stateDir,
	})
	require.Error(t, err)
}

func TestUpdateRuntime_InvalidPatchKeepsPrevious(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), "buzz")
	before := o.Runtime()

	bad := -time.Second
	err := o.UpdateRuntime(config.Patch{PostCooldown: &bad})
	require.Error(t, err)
	var verr *config.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, before.PostCooldown, o.Runtime().PostCooldown)

	good := 2 * time.Hour
	require.NoError(t, o.UpdateRuntime(config.Patch{PostCooldown: &good}))
	assert.Equal(t, 2*time.Hour, o.Runtime().PostCooldown)
}

func TestUpdateWeights_RejectsInvalid(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), "buzz")

	err := o.UpdateWeights(scoring.Weights{"reply_bait": 0.5})
	require.Error(t, err)
	assert.Equal(t, scoring.DefaultWeights(), o.Weights(), "previous weights stay in effect")

	w := scoring.DefaultWeights()
	w[scoring.FeatureReplyBait] = 0.30
	w[scoring.FeatureNoURLsCaps] = 0.0
	require.NoError(t, o.UpdateWeights(w))
	assert.Equal(t, 0.30, o.Weights()[scoring.FeatureReplyBait])
}

func TestPauseResume_UnknownAgent(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), "buzz")

	assert.ErrorIs(t, o.PauseAgent("nobody"), ErrUnknownAgent)
	assert.ErrorIs(t, o.ResumeAgent("nobody"), ErrUnknownAgent)

	require.NoError(t, o.PauseAgent("buzz"))
	status, err := o.AgentStatus("buzz")
	require.NoError(t, err)
	assert.Equal(t, agent.Paused, status.RunState)

	require.NoError(t, o.ResumeAgent("buzz"))
	status, _ = o.AgentStatus("buzz")
	assert.Equal(t, agent.Running, status.RunState)
}

func TestListAgents_ConfigOrder(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), "zeta", "alpha", "mid")

	statuses := o.ListAgents()
	require.Len(t, statuses, 3)
	assert.Equal(t, "zeta", statuses[0].Name)
	assert.Equal(t, "alpha", statuses[1].Name)
	assert.Equal(t, "mid", statuses[2].Name)
}

func TestStopAll_WritesFinalCheckpoints(t *testing.T) {
	stateDir := t.TempDir()
	o := newTestOrchestrator(t, stateDir, "buzz", "drone-7")

	o.StopAll(time.Second)

	for _, name := range []string{"buzz", "drone-7"} {
		_, err := os.Stat(agent.StatePath(stateDir, name))
		assert.NoError(t, err, "final checkpoint for %s", name)

		status, err := o.AgentStatus(name)
		require.NoError(t, err)
		assert.Equal(t, agent.Stopped, status.RunState)
	}
}

// claimableAPI is a Memory platform whose credential starts unclaimed
// and which can mint a fresh key on registration.
type claimableAPI struct {
	platform.API
	reg *types.Registration
}

func (c *claimableAPI) GetStatus(ctx context.Context) (types.AgentStatus, error) {
	return types.StatusPendingClaim, nil
}

func (c *claimableAPI) Register(ctx context.Context, name, bio string) (*types.Registration, error) {
	return c.reg, nil
}

func TestRegisterAll_PersistsIssuedCredential(t *testing.T) {
	stateDir := t.TempDir()

	var mu sync.Mutex
	var factoryKeys []string
	newAPI := func(id config.Identity) platform.API {
		mu.Lock()
		factoryKeys = append(factoryKeys, id.APIKey)
		mu.Unlock()
		return &claimableAPI{
			API: platform.NewMemory(id.Name),
			reg: &types.Registration{
				APIKey:           "hive-key-123",
				ClaimURL:         "https://molthive.example/claim/buzz",
				VerificationCode: "buzz-42",
			},
		}
	}

	o, err := New(Options{
		Agents:   testAgentsFile("buzz"),
		Arbiter:  arbiter.New(echoBackend{}),
		NewAPI:   newAPI,
		StateDir: stateDir,
	})
	require.NoError(t, err)

	o.RegisterAll(context.Background(), testAgentsFile("buzz").Agents)

	// The issued key must land on disk, readable only by the owner.
	credsPath := agent.CredentialsPath(stateDir, "buzz")
	info, err := os.Stat(credsPath)
	require.NoError(t, err, "issued credential persisted")
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(credsPath)
	require.NoError(t, err)
	var creds struct {
		Name     string `json:"name"`
		APIKey   string `json:"api_key"`
		ClaimURL string `json:"claim_url"`
	}
	require.NoError(t, json.Unmarshal(data, &creds))
	assert.Equal(t, "buzz", creds.Name)
	assert.Equal(t, "hive-key-123", creds.APIKey)
	assert.Equal(t, "https://molthive.example/claim/buzz", creds.ClaimURL)

	// The agent's client is rebuilt with the fresh key and the agent is
	// held paused until an operator claims it.
	mu.Lock()
	assert.Contains(t, factoryKeys, "hive-key-123")
	mu.Unlock()

	status, err := o.AgentStatus("buzz")
	require.NoError(t, err)
	assert.Equal(t, agent.Paused, status.RunState)
}

func TestApplyAgentsFile_FansOut(t *testing.T) {
	o := newTestOrchestrator(t, t.TempDir(), "buzz")

	f := testAgentsFile("buzz")
	f.Runtime.QualityThreshold = 9.0
	o.ApplyAgentsFile(f)

	assert.Equal(t, 9.0, o.Runtime().QualityThreshold)
}
