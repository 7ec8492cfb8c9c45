package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molthive/hivebot/pkg/config"
	"github.com/molthive/hivebot/pkg/llm"
	"github.com/molthive/hivebot/pkg/pipeline"
	"github.com/molthive/hivebot/pkg/platform"
	"github.com/molthive/hivebot/pkg/scoring"
	"github.com/molthive/hivebot/pkg/types"
)

type cannedGen struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (g *cannedGen) Generate(ctx context.Context, req llm.GenerateRequest) (string, types.TokenUsage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", types.TokenUsage{}, g.err
	}
	return g.text, types.TokenUsage{PromptTokens: 3, CompletionTokens: 4}, nil
}

func fixedScorer(score float64) pipeline.ScorerFunc {
	return func(string, scoring.Weights) (float64, scoring.Breakdown) {
		return score, scoring.Breakdown{}
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testRuntime() config.Runtime {
	cfg := config.DefaultRuntime()
	cfg.CommentCooldown = 5 * time.Second
	cfg.ReplyCooldown = 5 * time.Second
	cfg.PostCooldown = time.Hour
	cfg.QualityThreshold = 0
	cfg.PostCandidates = 1
	cfg.CommentCandidates = 1
	cfg.ReplyCandidates = 1
	cfg.PriorityHives = []string{"general"}
	return cfg
}

func newTestAgent(t *testing.T, api platform.API, stateDir string, clock *fakeClock, score float64) *Agent {
	t.Helper()
	gen := &cannedGen{text: "TITLE: big hive energy\nCONTENT: what a day to be buzzing, who else is up"}
	a, err := New(Options{
		Identity: config.Identity{Name: "buzz", Persona: "upbeat"},
		API:      api,
		Pipeline: pipeline.New(gen, fixedScorer(score), nil),
		StateDir: stateDir,
		Runtime:  testRuntime(),
		Now:      clock.now,
	})
	require.NoError(t, err)
	return a
}

func runOne(a *Agent) CycleReport {
	cfg, weights, _ := a.snapshot()
	report := a.runCycle(context.Background(), cfg, weights)
	a.finishCycle(report)
	return report
}

func totalComments(t *testing.T, m *platform.Memory) int {
	t.Helper()
	n := 0
	for _, p := range m.Posts() {
		thread, err := m.GetPostThread(context.Background(), p.ID)
		require.NoError(t, err)
		n += types.CountComments(thread.Comments)
	}
	return n
}

func TestCycle_CommentCooldownEnforced(t *testing.T) {
	m := platform.NewMemory("buzz")
	m.Seed("general", "post one", "hello", "someone")
	m.Seed("general", "post two", "hello again", "someone-else")

	clock := newFakeClock()
	a := newTestAgent(t, m, t.TempDir(), clock, 8.0)

	runOne(a)
	assert.Equal(t, 1, totalComments(t, m), "one comment per cooldown window")

	// Same instant: every comment sub-task must skip on cooldown.
	report := runOne(a)
	assert.Equal(t, 1, totalComments(t, m))
	for _, task := range report.Tasks {
		if task.Name == "scan_priority_hives" || task.Name == "scan_general_feed" {
			assert.Equal(t, TaskSkipped, task.Status)
			assert.Contains(t, task.Detail, "cooldown")
		}
	}

	clock.advance(6 * time.Second)
	runOne(a)
	assert.Equal(t, 2, totalComments(t, m), "cooldown elapsed, next comment allowed")
}

func TestCycle_PostCooldownEnforced(t *testing.T) {
	m := platform.NewMemory("buzz")
	clock := newFakeClock()
	a := newTestAgent(t, m, t.TempDir(), clock, 8.0)

	runOne(a)
	require.Len(t, m.Posts(), 1, "first post allowed immediately")

	clock.advance(10 * time.Minute)
	runOne(a)
	assert.Len(t, m.Posts(), 1, "post cooldown is an hour")

	clock.advance(51 * time.Minute)
	runOne(a)
	assert.Len(t, m.Posts(), 2)
}

func TestCycle_RestartDoesNotRepeatActions(t *testing.T) {
	m := platform.NewMemory("buzz")
	seeded := m.Seed("general", "only post", "hello", "someone")

	clock := newFakeClock()
	stateDir := t.TempDir()

	a := newTestAgent(t, m, stateDir, clock, 8.0)
	runOne(a)
	require.Equal(t, 1, totalComments(t, m))

	// Same checkpoint, fresh process, cooldowns long expired.
	clock.advance(time.Minute)
	b := newTestAgent(t, m, stateDir, clock, 8.0)
	require.NoError(t, b.Bootstrap(context.Background()))
	runOne(b)

	thread, err := m.GetPostThread(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, types.CountComments(thread.Comments), "replay must not duplicate the comment")
}

func TestCycle_BootstrapRecoversOwnPosts(t *testing.T) {
	m := platform.NewMemory("buzz")
	clock := newFakeClock()
	stateDir := t.TempDir()

	a := newTestAgent(t, m, stateDir, clock, 8.0)
	runOne(a)
	require.Len(t, m.Posts(), 1)
	own := m.Posts()[0].ID

	// Fresh state dir simulates a lost checkpoint.
	b := newTestAgent(t, m, t.TempDir(), clock, 8.0)
	require.NoError(t, b.Bootstrap(context.Background()))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.True(t, b.state.OwnPosts[own], "own post recovered from the platform")
}

type profileFailAPI struct {
	platform.API
}

func (p *profileFailAPI) GetProfile(ctx context.Context) (*types.Profile, error) {
	return nil, errors.New("profile endpoint down")
}

func TestCycle_PartialFailureIsolation(t *testing.T) {
	m := platform.NewMemory("buzz")
	m.Seed("general", "post one", "hello", "someone")

	clock := newFakeClock()
	a := newTestAgent(t, &profileFailAPI{API: m}, t.TempDir(), clock, 8.0)

	report := runOne(a)

	byName := map[string]TaskResult{}
	for _, task := range report.Tasks {
		byName[task.Name] = task
	}
	assert.Equal(t, TaskFailed, byName["heartbeat"].Status)
	assert.Equal(t, TaskOK, byName["scan_priority_hives"].Status, "later sub-tasks still run")
	assert.Equal(t, 1, totalComments(t, m))
}

func TestCycle_ThresholdGateSkipsWithoutConsumingCooldown(t *testing.T) {
	m := platform.NewMemory("buzz")
	m.Seed("general", "post one", "hello", "someone")

	clock := newFakeClock()
	a := newTestAgent(t, m, t.TempDir(), clock, 2.0)
	a.UpdateRuntime(func() config.Runtime {
		cfg := testRuntime()
		cfg.QualityThreshold = 7.5
		return cfg
	}())

	report := runOne(a)
	assert.Zero(t, totalComments(t, m))
	assert.Empty(t, m.Posts())

	for _, task := range report.Tasks {
		if task.Name == "scan_priority_hives" || task.Name == "create_post" {
			assert.Equal(t, TaskSkipped, task.Status)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.True(t, a.state.LastComment.IsZero(), "rejected candidates must not consume the cooldown")
	assert.True(t, a.state.LastPost.IsZero())
}

func TestCycle_ReplyToOwnPostComment(t *testing.T) {
	m := platform.NewMemory("buzz")
	clock := newFakeClock()
	a := newTestAgent(t, m, t.TempDir(), clock, 8.0)

	runOne(a)
	require.Len(t, m.Posts(), 1)
	own := m.Posts()[0].ID
	c := m.SeedComment(own, "", "love this", "drone-7")

	clock.advance(time.Minute)
	runOne(a)

	thread, err := m.GetPostThread(context.Background(), own)
	require.NoError(t, err)

	replied := false
	types.WalkComments(thread.Comments, func(cm *types.Comment) {
		if cm.ParentID == c.ID && cm.Author.Name == "buzz" {
			replied = true
		}
	})
	assert.True(t, replied, "agent replies to comments on its own posts")

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.True(t, a.state.RepliedTo[c.ID])
	rec := a.state.CommenterHistory["drone-7"]
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Replies)
	assert.False(t, rec.LastSeen.IsZero())
}

type rateLimitAPI struct {
	platform.API
}

func (r *rateLimitAPI) CreateComment(ctx context.Context, postID, content, parentID string) (*types.Comment, error) {
	return nil, &platform.RateLimitError{Endpoint: "/comments", RetryAfter: 2 * time.Minute}
}

func TestCycle_AdoptsPlatformRateLimit(t *testing.T) {
	m := platform.NewMemory("buzz")
	m.Seed("general", "post one", "hello", "someone")

	clock := newFakeClock()
	a := newTestAgent(t, &rateLimitAPI{API: m}, t.TempDir(), clock, 8.0)

	runOne(a)

	ok, wait := a.canAct(types.ActionComment, testRuntime())
	assert.False(t, ok, "429 blocks publishing")
	assert.Greater(t, wait, time.Minute)

	clock.advance(3 * time.Minute)
	ok, _ = a.canAct(types.ActionComment, testRuntime())
	assert.True(t, ok)
}

func TestPauseResumeStop(t *testing.T) {
	m := platform.NewMemory("buzz")
	a := newTestAgent(t, m, t.TempDir(), newFakeClock(), 8.0)

	require.NoError(t, a.Pause())
	assert.Equal(t, Paused, a.RunStateNow())
	require.NoError(t, a.Pause(), "pausing twice is a no-op")

	require.NoError(t, a.Resume())
	assert.Equal(t, Running, a.RunStateNow())

	a.Stop()
	assert.Equal(t, Stopped, a.RunStateNow())
	assert.Error(t, a.Pause(), "stopped is terminal")
	assert.Error(t, a.Resume())
}

func TestSweep_UpvotesOwnPostComments(t *testing.T) {
	m := platform.NewMemory("buzz")
	own := m.Seed("general", "my post", "written by me", "buzz")
	c1 := m.SeedComment(own.ID, "", "great post", "drone-7")
	c2 := m.SeedComment(own.ID, c1.ID, "agreed", "honeypot")
	mine := m.SeedComment(own.ID, c1.ID, "thanks!", "buzz")
	stranger := m.Seed("general", "unrelated", "someone else's post", "someone")

	clock := newFakeClock()
	a := newTestAgent(t, m, t.TempDir(), clock, 8.0)
	a.mu.Lock()
	a.state.OwnPosts[own.ID] = true
	a.mu.Unlock()

	require.NoError(t, a.sweepOnce(context.Background(), 50))

	assert.Equal(t, 1, m.Upvotes(c1.ID), "comments under own posts get upvoted")
	assert.Equal(t, 1, m.Upvotes(c2.ID), "nested replies are reached by the tree walk")
	assert.Zero(t, m.Upvotes(mine.ID), "never upvotes its own comments")
	assert.Equal(t, 1, m.Upvotes(stranger.ID), "leftover budget goes to fresh feed posts")

	a.mu.Lock()
	assert.True(t, a.state.Upvoted[c1.ID])
	assert.True(t, a.state.Upvoted[c2.ID])
	rec := a.state.CommenterHistory["drone-7"]
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.UpvotesGiven)
	assert.True(t, rec.LastSeen.Equal(clock.now()), "observing a commenter stamps last-seen")
	assert.True(t, rec.FirstSeen.Equal(clock.now()))
	a.mu.Unlock()

	// Replaying the sweep never double-upvotes.
	require.NoError(t, a.sweepOnce(context.Background(), 50))
	assert.Equal(t, 1, m.Upvotes(c1.ID))
	assert.Equal(t, 1, m.Upvotes(c2.ID))
}

func TestSweepOnce(t *testing.T) {
	m := platform.NewMemory("buzz")
	for i := 0; i < 8; i++ {
		m.Seed("general", "post", "content", "someone")
	}
	clock := newFakeClock()
	a := newTestAgent(t, m, t.TempDir(), clock, 8.0)

	require.NoError(t, a.sweepOnce(context.Background(), 50))

	a.mu.Lock()
	given := a.state.UpvotesGiven
	a.mu.Unlock()
	assert.Equal(t, sweepBatch, given, "sweep is batched")

	// A second pass only upvotes posts it has not seen.
	require.NoError(t, a.sweepOnce(context.Background(), 50))
	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Equal(t, 8, a.state.UpvotesGiven)
	assert.Len(t, a.state.Upvoted, 8)
}

func TestSplitTitleContent(t *testing.T) {
	title, content := splitTitleContent("TITLE: Hello hive\nCONTENT: Big day today, right?")
	assert.Equal(t, "Hello hive", title)
	assert.Equal(t, "Big day today, right?", content)

	title, content = splitTitleContent("just a blob of text\nwith two lines")
	assert.Equal(t, "just a blob of text", title)
	assert.Contains(t, content, "with two lines")
}

func TestUpdateWeightsIsolatedCopy(t *testing.T) {
	m := platform.NewMemory("buzz")
	a := newTestAgent(t, m, t.TempDir(), newFakeClock(), 8.0)

	w := scoring.DefaultWeights()
	a.UpdateWeights(w)
	w[scoring.FeatureReplyBait] = 0.99

	_, got, _ := a.snapshot()
	assert.Equal(t, scoring.DefaultWeights()[scoring.FeatureReplyBait], got[scoring.FeatureReplyBait])
}
