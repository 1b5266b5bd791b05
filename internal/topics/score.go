package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ScoreCap is the most topics listed in the scoring prompt. Every topic is still scored.
const ScoreCap = 20

// Score bounds and the value given to topics the oracle did not cover.
const (
	MinScore     = 1
	MaxScore     = 10
	DefaultScore = 5
)

const (
	rationaleDefault       = "Default score"
	rationaleParseFailed   = "Default score (parsing failed)"
	rationaleErrorTemplate = "Default score (error: %s)"
	errorExcerptLimit      = 50
)

const scorePrompt = `You judge viral potential of Premier League football drama for UK fans on TikTok and Reels.

Score each topic from 1 to 10.

Topics:
%s

Weigh: club size (the Big 6 score higher); controversy (manager drama above player drama above transfer talk above plain results); meme potential; timeliness; how hard fans will react.

Reply with ONLY a JSON array, one object per topic:
[
  {"index": 1, "score": 8, "rationale": "Big 6 drama, manager under pressure, strong meme potential"},
  {"index": 2, "score": 5, "rationale": "Mid-table club, routine transfer story"}
]`

// Score returns a copy of topics with Score and ScoreRationale set on every element.
//
// Only the first ScoreCap topics appear in the prompt. Any topic the reply does
// not cover gets DefaultScore. An unparsable reply or a failed call gives every
// topic DefaultScore with a rationale saying why. Scores are clamped to [1,10].
func (r *Ranker) Score(ctx context.Context, topics []TopicRecord) []TopicRecord {
	out := cloneTopics(topics)
	for i := range out {
		out[i].Score = 0
		out[i].ScoreRationale = ""
	}
	if len(out) == 0 {
		return out
	}

	shown := out
	if len(shown) > ScoreCap {
		shown = shown[:ScoreCap]
	}

	resp, err := r.complete(ctx, BuildScorePrompt(shown))
	if err != nil {
		r.log.Error("scoring failed, using default scores", "error", err, "count", len(out))
		r.observer.OracleCall(StageScore, OutcomeError)
		r.observer.Fallback(StageScore)
		return applyDefault(out, fmt.Sprintf(rationaleErrorTemplate, truncateRunes(err.Error(), errorExcerptLimit)))
	}

	entries, ok := parseScoreEntries(resp)
	if !ok {
		r.log.Warn("could not parse scoring reply", "reply", truncateRunes(resp, 200))
		r.observer.OracleCall(StageScore, OutcomeUnparsed)
		r.observer.Fallback(StageScore)
		return applyDefault(out, rationaleParseFailed)
	}
	r.observer.OracleCall(StageScore, OutcomeOK)

	covered := 0
	for _, e := range entries {
		idx, ok := intValue(e["index"])
		if !ok || idx < 1 || idx > len(out) {
			continue
		}
		score, ok := intValue(e["score"])
		if !ok {
			score = DefaultScore
		}
		out[idx-1].Score = clampScore(score)
		out[idx-1].ScoreRationale = rationaleOf(e)
		covered++
	}

	out = applyDefault(out, rationaleDefault)
	r.log.Info("scoring done", "count", len(out), "covered", covered)
	return out
}

// BuildScorePrompt lists topics with their source and engagement.
func BuildScorePrompt(shown []TopicRecord) string {
	var b strings.Builder
	for i, t := range shown {
		if i > 0 {
			b.WriteByte('\n')
		}
		engagement := "N/A"
		if t.Engagement != nil {
			engagement = fmt.Sprint(*t.Engagement)
		}
		source := t.SourceName
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "%d. %s (Source: %s, Tweets: %s)", i+1, t.Text, source, engagement)
	}
	return fmt.Sprintf(scorePrompt, b.String())
}

// applyDefault fills every unscored topic in place.
func applyDefault(topics []TopicRecord, rationale string) []TopicRecord {
	for i := range topics {
		if !topics[i].Scored() {
			topics[i].Score = DefaultScore
			topics[i].ScoreRationale = rationale
		}
	}
	return topics
}

func parseScoreEntries(resp string) ([]map[string]any, bool) {
	match := jsonArrayPattern.FindString(resp)
	if match == "" {
		return nil, false
	}
	var raw []any
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, false
	}
	entries := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			entries = append(entries, m)
		}
	}
	return entries, true
}

func rationaleOf(e map[string]any) string {
	for _, k := range []string{"rationale", "breakdown", "reason"} {
		if s, ok := e[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func clampScore(s int) int {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}
