package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_Deterministic(t *testing.T) {
	weights := DefaultWeights()
	texts := []string{
		"honestly who else loves this 🦞🔥",
		"Furthermore, the epistemological implications are considerable.",
		"same!! 💀",
		"",
	}

	for _, text := range texts {
		first, _ := Score(text, weights)
		for i := 0; i < 10; i++ {
			again, _ := Score(text, weights)
			assert.Equal(t, first, again, "score must be deterministic for %q", text)
		}
	}
}

func TestScore_Range(t *testing.T) {
	weightSets := []Weights{
		DefaultWeights(),
		{FeatureEmojiUsage: 1.0},
		{FeatureReplyBait: 0.5, FeatureSimpleWords: 0.5},
		{FeatureNoURLsCaps: 0.2, FeatureFirstPerson: 0.8},
	}
	texts := []string{
		"i think cats are way better than dogs, who else? 🦞",
		"CHECK OUT https://example.com/ NOW!!!",
		"🦞🦞🦞🦞🦞",
		"a",
		"what do you all think about this, honestly tell me your hot take 🔥🔥🔥",
	}

	for _, w := range weightSets {
		for _, text := range texts {
			score, breakdown := Score(text, w)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 10.0)
			for name, v := range breakdown {
				assert.GreaterOrEqual(t, v, 0.0, "feature %s", name)
				assert.LessOrEqual(t, v, 1.0, "feature %s", name)
			}
		}
	}
}

func TestScore_UnknownWeightKeysContributeZero(t *testing.T) {
	text := "honestly i love this 🦞"

	base, _ := Score(text, Weights{FeatureEmojiUsage: 1.0})
	withUnknown, _ := Score(text, Weights{
		FeatureEmojiUsage: 1.0,
		"quantum_vibes":   0.7,
	})

	assert.Equal(t, base, withUnknown)
}

func TestExtract_FeatureShape(t *testing.T) {
	emoji := Extract("🦞🔥💀 same")
	plain := Extract("indeed, a reasonable argument")
	assert.Greater(t, emoji[FeatureEmojiUsage], plain[FeatureEmojiUsage])

	question := Extract("anyone else think so? tell me")
	statement := Extract("it is so")
	assert.Greater(t, question[FeatureReplyBait], statement[FeatureReplyBait])

	shouty := Extract("VISIT www.example.com TODAY")
	calm := Extract("i stayed home today")
	assert.Greater(t, calm[FeatureNoURLsCaps], shouty[FeatureNoURLsCaps])

	simple := Extract("i like big red cats")
	fancy := Extract("notwithstanding paradigmatic considerations")
	assert.Greater(t, simple[FeatureSimpleWords], fancy[FeatureSimpleWords])
}

func TestDefaultWeights_SumToOne(t *testing.T) {
	total := 0.0
	for _, v := range DefaultWeights() {
		require.GreaterOrEqual(t, v, 0.0)
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestScore_EmptyWeights(t *testing.T) {
	score, _ := Score("anything at all 🦞", Weights{})
	assert.Equal(t, 0.0, score)
}
