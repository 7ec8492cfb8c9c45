package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molthive/hivebot/pkg/scoring"
)

func TestValidateWeights(t *testing.T) {
	require.NoError(t, ValidateWeights(scoring.DefaultWeights()))

	bad := scoring.DefaultWeights()
	bad[scoring.FeatureReplyBait] += 0.1
	err := ValidateWeights(bad)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	unknown := scoring.Weights{"charisma": 1.0}
	assert.Error(t, ValidateWeights(unknown))

	negative := scoring.DefaultWeights()
	negative[scoring.FeatureReplyBait] = -0.25
	negative[scoring.FeatureSimpleWords] = 0.70
	assert.Error(t, ValidateWeights(negative))
}

func TestPatchApplyLeavesOriginalUntouched(t *testing.T) {
	base := DefaultRuntime()
	cooldown := 2 * time.Hour
	threshold := 8.0

	patched := Patch{
		PostCooldown:     &cooldown,
		QualityThreshold: &threshold,
		PriorityHives:    []string{"science", "memes"},
	}.Apply(base)

	assert.Equal(t, 2*time.Hour, patched.PostCooldown)
	assert.Equal(t, 8.0, patched.QualityThreshold)
	assert.Equal(t, []string{"science", "memes"}, patched.PriorityHives)

	// Unpatched fields carry over; the base is untouched.
	assert.Equal(t, base.CommentCooldown, patched.CommentCooldown)
	assert.Equal(t, 30*time.Minute+30*time.Second, base.PostCooldown)
	assert.Equal(t, []string{"general"}, base.PriorityHives)
}

func TestPatchValidateRejectsBadValues(t *testing.T) {
	neg := -time.Second
	assert.Error(t, Patch{PostCooldown: &neg}.Validate())

	zero := 0
	assert.Error(t, Patch{PostCandidates: &zero}.Validate())

	tooHigh := 11.0
	assert.Error(t, Patch{QualityThreshold: &tooHigh}.Validate())

	ok := 7.5
	assert.NoError(t, Patch{QualityThreshold: &ok}.Validate())
}

func TestParseAgentsFile(t *testing.T) {
	doc := []byte(`
agents:
  - name: buzz
    bio: "chronically online bee"
    persona: "upbeat hype poster"
    api_key_env: BUZZ_API_KEY
  - name: drone-7
    bio: "deadpan observer"
runtime:
  post_cooldown_seconds: 1830
  comment_cooldown_seconds: 5
  quality_threshold: 6.5
  priority_hives: [general, offmychest]
weights:
  reply_bait: 0.25
  simple_words: 0.20
  emoji_usage: 0.15
  engagement_hook: 0.15
  low_punctuation: 0.10
  first_person: 0.10
  no_urls_caps: 0.05
`)
	parsed, err := ParseAgentsFile(doc)
	require.NoError(t, err)

	require.Len(t, parsed.Agents, 2)
	assert.Equal(t, "buzz", parsed.Agents[0].Name)
	assert.Equal(t, "BUZZ_API_KEY", parsed.Agents[0].APIKeyEnv)

	assert.Equal(t, 1830*time.Second, parsed.Runtime.PostCooldown)
	assert.Equal(t, 5*time.Second, parsed.Runtime.CommentCooldown)
	assert.Equal(t, 6.5, parsed.Runtime.QualityThreshold)
	assert.Equal(t, []string{"general", "offmychest"}, parsed.Runtime.PriorityHives)

	// Unset runtime fields keep defaults.
	assert.Equal(t, DefaultRuntime().CycleInterval, parsed.Runtime.CycleInterval)

	require.NoError(t, ValidateWeights(parsed.Weights))
	assert.Equal(t, 0.25, parsed.Weights[scoring.FeatureReplyBait])
}

func TestParseAgentsFileRejectsDuplicates(t *testing.T) {
	doc := []byte(`
agents:
  - name: buzz
  - name: buzz
`)
	_, err := ParseAgentsFile(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseAgentsFileRejectsBadWeights(t *testing.T) {
	doc := []byte(`
agents:
  - name: buzz
weights:
  reply_bait: 0.9
`)
	_, err := ParseAgentsFile(doc)
	require.Error(t, err)
}

func TestParseAgentsFileEmpty(t *testing.T) {
	_, err := ParseAgentsFile([]byte("agents: []"))
	require.Error(t, err)
}

func TestIdentityKeyPrefersEnv(t *testing.T) {
	t.Setenv("TEST_HIVEBOT_KEY", "from-env")
	id := Identity{APIKey: "inline", APIKeyEnv: "TEST_HIVEBOT_KEY"}
	assert.Equal(t, "from-env", id.Key())

	id.APIKeyEnv = "TEST_HIVEBOT_KEY_UNSET"
	assert.Equal(t, "inline", id.Key())
}
