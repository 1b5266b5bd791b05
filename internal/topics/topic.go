// Package topics implements the topic aggregation and ranking pipeline:
// collect, merge, filter, score, select, draft scripts and assemble a result.
package topics

import (
	"strings"
)

// Origin identifies which feed produced a topic.
type Origin string

const (
	OriginTrend Origin = "trend"
	OriginNews  Origin = "news"
)

// SimilarityThreshold is the Jaccard ratio at or above which two keys are the same topic.
const SimilarityThreshold = 0.6

// TopicRecord is the unit of work passed between stages. Score is zero until scored.
type TopicRecord struct {
	Text           string `json:"text"`
	Origin         Origin `json:"origin"`
	Engagement     *int   `json:"engagement,omitempty"`
	Summary        string `json:"summary,omitempty"`
	SourceName     string `json:"source_name"`
	URL            string `json:"url,omitempty"`
	RankHint       *int   `json:"rank_hint,omitempty"`
	PublishedAt    string `json:"published_at,omitempty"`
	Score          int    `json:"score"`
	ScoreRationale string `json:"score_rationale,omitempty"`
}

// Scored reports whether the record has been through the scorer.
func (t TopicRecord) Scored() bool {
	return t.Score > 0
}

// RankedTopic is a topic with its 1-based position in the ranked view.
type RankedTopic struct {
	Position int         `json:"position"`
	Topic    TopicRecord `json:"topic"`
}

// ScriptIdea is one short video script.
type ScriptIdea struct {
	Hook      string `json:"hook"`
	Premise   string `json:"premise"`
	Punchline string `json:"punchline"`
}

// Key is the duplicate identity of a topic text.
func Key(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Jaccard returns |A∩B| / |A∪B| over whitespace-split tokens. Empty sets score 0.
func Jaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Similar reports whether two keys are near-duplicates.
func Similar(a, b string) bool {
	return Jaccard(a, b) >= SimilarityThreshold
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func intPtr(v int) *int {
	return &v
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
