package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := StatePath(dir, "buzz")

	seen := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	s := NewState()
	s.LastPost = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.CommentedPosts["p1"] = true
	s.OwnPosts["p2"] = true
	s.CommenterHistory["drone-7"] = &CommenterRecord{
		Replies:      3,
		UpvotesGiven: 2,
		FirstSeen:    seen.Add(-time.Hour),
		LastSeen:     seen,
	}
	s.PostsCreated = 4

	require.NoError(t, SaveState(path, s))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.True(t, loaded.LastPost.Equal(s.LastPost))
	assert.True(t, loaded.CommentedPosts["p1"])
	assert.True(t, loaded.OwnPosts["p2"])
	assert.Equal(t, 4, loaded.PostsCreated)
	assert.False(t, loaded.SavedAt.IsZero())

	rec := loaded.CommenterHistory["drone-7"]
	require.NotNil(t, rec)
	assert.Equal(t, 3, rec.Replies)
	assert.Equal(t, 2, rec.UpvotesGiven)
	assert.True(t, rec.LastSeen.Equal(seen), "last-seen timestamp survives the checkpoint")
	assert.True(t, rec.FirstSeen.Equal(seen.Add(-time.Hour)))
}

func TestLoadStateMissingFileIsFresh(t *testing.T) {
	s, err := LoadState(filepath.Join(t.TempDir(), "nope_state.json"))
	require.NoError(t, err)
	assert.NotNil(t, s.CommentedPosts)
	assert.Empty(t, s.CommentedPosts)
}

func TestLoadStateCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadState(path)
	require.Error(t, err)
	var corrupt *CorruptStateError
	assert.ErrorAs(t, err, &corrupt)

	// The broken file stays put for inspection.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestSaveStateLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := StatePath(dir, "buzz")
	require.NoError(t, SaveState(path, NewState()))
	require.NoError(t, SaveState(path, NewState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "buzz_state.json", entries[0].Name())
}

func TestStatePathSanitizesName(t *testing.T) {
	p := StatePath("/tmp/state", "agent one/../two")
	assert.Equal(t, "/tmp/state/agent_one____two_state.json", p)
}

func TestLoadStateNormalizesOldFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"posts_created": 2}`), 0o644))

	s, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.PostsCreated)
	assert.NotNil(t, s.Upvoted)
	assert.NotNil(t, s.CommenterHistory)
}
