package topics

import "sort"

// NoTopicsText is the text of the record SelectTop returns for empty input.
const NoTopicsText = "No topics available"

// Rank orders a copy of scored by score, highest first. Ties keep input order.
func Rank(scored []TopicRecord) []RankedTopic {
	sorted := cloneTopics(scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	out := make([]RankedTopic, len(sorted))
	for i, t := range sorted {
		out[i] = RankedTopic{Position: i + 1, Topic: t}
	}
	return out
}

// SelectTop returns the highest scoring topic, the earliest one on ties.
// Empty input yields the NoTopicsText sentinel with score 0.
func SelectTop(scored []TopicRecord) TopicRecord {
	if len(scored) == 0 {
		return TopicRecord{Text: NoTopicsText, Score: 0}
	}
	return Rank(scored)[0].Topic
}

// IsSentinel reports whether t is the empty-input record from SelectTop.
func IsSentinel(t TopicRecord) bool {
	return t.Text == NoTopicsText && t.Score == 0
}
