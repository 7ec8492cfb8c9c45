// Package scoring implements the engagement scoring function.
//
// The feature set and default weights come from a Spearman-correlation
// analysis of roughly 100k platform comments: reply-provoking content is
// the strongest positive driver, long words and dense punctuation the
// strongest negative ones. Scoring is pure text math with no randomness
// and no external calls, so identical input always produces an identical
// score.
package scoring

import (
	"sort"
	"strings"
	"unicode"
)

// Weights maps feature names to non-negative weights. A valid
// configuration sums to 1.0; validation happens at configuration-update
// time (see pkg/config), not here.
type Weights map[string]float64

// Feature names recognized by the scorer. Weight keys outside this set
// contribute nothing.
const (
	FeatureReplyBait      = "reply_bait"
	FeatureSimpleWords    = "simple_words"
	FeatureEmojiUsage     = "emoji_usage"
	FeatureEngagementHook = "engagement_hook"
	FeatureLowPunctuation = "low_punctuation"
	FeatureFirstPerson    = "first_person"
	FeatureNoURLsCaps     = "no_urls_caps"
)

// DefaultWeights returns the analysis-derived weight set. Callers get a
// fresh copy each time.
func DefaultWeights() Weights {
	return Weights{
		FeatureReplyBait:      0.25,
		FeatureSimpleWords:    0.20,
		FeatureEmojiUsage:     0.15,
		FeatureEngagementHook: 0.15,
		FeatureLowPunctuation: 0.10,
		FeatureFirstPerson:    0.10,
		FeatureNoURLsCaps:     0.05,
	}
}

// Clone returns an independent copy of the weights.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Breakdown holds the normalized per-feature values for one scored text.
// Every value lies in [0,1].
type Breakdown map[string]float64

var replyMarkers = []string{
	"what do you", "anyone else", "hot take", "unpopular opinion",
	"change my mind", "fight me", "am i the only", "honestly",
	"i dare you", "prove me wrong", "who else", "thoughts",
	"tell me", "debate", "controversial", "i bet",
}

var hookMarkers = []string{
	"?", "right", "no cap", "fr fr", "or what", "tho", "tbh", "ngl",
}

var firstPersonMarkers = []string{
	"i ", "i'm", "my ", "me ", "mine", "i've", "i'd", "i'll",
}

var urlMarkers = []string{
	"http://", "https://", "www.", ".com/", ".org/",
}

// powerEmojis are below U+1F300 and would be missed by the range check.
const powerEmojis = "✨⚡"

// Score computes the weighted engagement score of text in [0,10].
// Unknown or missing weight keys contribute 0. The companion Breakdown
// reports each normalized feature value.
func Score(text string, weights Weights) (float64, Breakdown) {
	features := Extract(text)

	// Sum in sorted-key order: float addition is not associative, so
	// randomized map order would make identical input score differently.
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0.0
	for _, name := range names {
		weight := weights[name]
		if weight <= 0 {
			continue
		}
		total += weight * features[name]
	}

	score := total * 10
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, features
}

// Extract computes every feature of text, each normalized into [0,1].
func Extract(text string) Breakdown {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	words := strings.Fields(text)

	return Breakdown{
		FeatureReplyBait:      replyBait(lower),
		FeatureSimpleWords:    simpleWords(words),
		FeatureEmojiUsage:     emojiUsage(text),
		FeatureEngagementHook: engagementHook(lower),
		FeatureLowPunctuation: lowPunctuation(text),
		FeatureFirstPerson:    firstPerson(lower),
		FeatureNoURLsCaps:     noURLsCaps(text, lower),
	}
}

// replyBait rewards content that provokes responses: questions and
// debate-starting phrases.
func replyBait(lower string) float64 {
	v := 0.5
	if strings.Contains(lower, "?") {
		v += 0.3
	}
	for _, m := range replyMarkers {
		if strings.Contains(lower, m) {
			v += 0.2
		}
	}
	return clamp(v)
}

// simpleWords penalizes long average word length, the strongest
// negative correlate in the corpus.
func simpleWords(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	totalLen := 0
	for _, w := range words {
		totalLen += len([]rune(w))
	}
	avg := float64(totalLen) / float64(len(words))

	switch {
	case avg <= 3.5:
		return 1.0
	case avg <= 4.0:
		return 0.9
	case avg <= 4.5:
		return 0.7
	case avg <= 5.0:
		return 0.5
	case avg <= 5.5:
		return 0.3
	default:
		return 0.1
	}
}

func emojiUsage(text string) float64 {
	count := 0
	for _, r := range text {
		if r > 0x1F300 || strings.ContainsRune(powerEmojis, r) {
			count++
		}
	}
	switch {
	case count >= 3:
		return 1.0
	case count == 2:
		return 0.8
	case count == 1:
		return 0.5
	default:
		return 0.2
	}
}

func engagementHook(lower string) float64 {
	v := 0.3
	for _, m := range hookMarkers {
		if strings.Contains(lower, m) {
			v += 0.2
		}
	}
	return clamp(v)
}

// lowPunctuation rewards sparse punctuation.
func lowPunctuation(text string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	punct := 0
	for _, r := range runes {
		if strings.ContainsRune(`.,;:!"'-()[]{}/`, r) {
			punct++
		}
	}
	density := float64(punct) / float64(len(runes))

	switch {
	case density <= 0.03:
		return 1.0
	case density <= 0.06:
		return 0.8
	case density <= 0.10:
		return 0.6
	case density <= 0.15:
		return 0.4
	default:
		return 0.2
	}
}

func firstPerson(lower string) float64 {
	v := 0.4
	for _, m := range firstPersonMarkers {
		if strings.Contains(lower, m) {
			v += 0.3
		}
	}
	return clamp(v)
}

// noURLsCaps penalizes links and shouting.
func noURLsCaps(text, lower string) float64 {
	v := 1.0
	for _, m := range urlMarkers {
		if strings.Contains(lower, m) {
			v -= 0.5
			break
		}
	}

	upper, alpha := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			alpha++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if alpha > 0 {
		ratio := float64(upper) / float64(alpha)
		if ratio > 0.5 {
			v -= 0.3
		} else if ratio > 0.3 {
			v -= 0.1
		}
	}

	if v < 0.1 {
		v = 0.1
	}
	return v
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
