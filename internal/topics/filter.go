package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FilterCap is the most candidates shown to the relevance oracle.
const FilterCap = 50

const filterSummaryLimit = 100

const filterPrompt = `You are a Premier League football expert. Decide which of these topics are specifically about the English Premier League.

Topics:
%s

Relevant: Premier League clubs, players, managers and staff; PL matches, results and the table; transfer talk involving PL clubs; sackings and appointments at PL clubs; PL controversy and drama.
Not relevant: other leagues unless a PL club is involved; international football unless it is directly about PL players; other sports; anything that is not football.

Reply with ONLY a JSON array of the 1-based numbers of the relevant topics, for example [1, 3, 7].
If none are relevant reply [].`

// FilterRelevant returns the subsequence of topics the oracle judges relevant.
//
// Only the first FilterCap topics are judged and only those can be returned.
// On oracle error, timeout or an unparsable reply the whole input is returned
// unchanged. Empty input returns empty without calling the oracle.
func (r *Ranker) FilterRelevant(ctx context.Context, topics []TopicRecord) []TopicRecord {
	if len(topics) == 0 {
		return []TopicRecord{}
	}

	candidates := topics
	if len(candidates) > FilterCap {
		candidates = candidates[:FilterCap]
	}

	resp, err := r.complete(ctx, BuildFilterPrompt(candidates))
	if err != nil {
		r.log.Error("relevance filter failed, keeping all topics", "error", err, "count", len(topics))
		r.observer.OracleCall(StageFilter, OutcomeError)
		r.observer.Fallback(StageFilter)
		return cloneTopics(topics)
	}

	indices, ok := parseIndexList(resp)
	if !ok {
		r.log.Warn("could not parse relevance reply, keeping all topics", "reply", truncateRunes(resp, 200))
		r.observer.OracleCall(StageFilter, OutcomeUnparsed)
		r.observer.Fallback(StageFilter)
		return cloneTopics(topics)
	}
	r.observer.OracleCall(StageFilter, OutcomeOK)

	keep := make([]bool, len(candidates))
	for _, i := range indices {
		if i >= 1 && i <= len(candidates) {
			keep[i-1] = true
		}
	}

	out := make([]TopicRecord, 0, len(indices))
	for i, k := range keep {
		if k {
			out = append(out, candidates[i])
		}
	}

	r.log.Info("relevance filter done", "in", len(topics), "judged", len(candidates), "kept", len(out))
	return out
}

// BuildFilterPrompt numbers each candidate with its text and a short summary.
func BuildFilterPrompt(candidates []TopicRecord) string {
	var b strings.Builder
	for i, t := range candidates {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s - %s", i+1, t.Text, truncateRunes(t.Summary, filterSummaryLimit))
	}
	return fmt.Sprintf(filterPrompt, b.String())
}

// parseIndexList extracts the first bracketed list of integers from free text.
func parseIndexList(resp string) ([]int, bool) {
	match := indexListPattern.FindString(resp)
	if match == "" {
		return nil, false
	}
	var indices []int
	if err := json.Unmarshal([]byte(match), &indices); err != nil {
		return nil, false
	}
	return indices, true
}

func cloneTopics(in []TopicRecord) []TopicRecord {
	out := make([]TopicRecord, len(in))
	copy(out, in)
	return out
}
