package topics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertAllScored(t *testing.T, in, out []TopicRecord) {
	t.Helper()
	require.Len(t, out, len(in))
	for i, o := range out {
		assert.Equal(t, in[i].Text, o.Text)
		assert.GreaterOrEqual(t, o.Score, MinScore, o.Text)
		assert.LessOrEqual(t, o.Score, MaxScore, o.Text)
	}
}

func TestScoreAppliesReply(t *testing.T) {
	reply := "```json\n[{\"index\": 2, \"score\": 9, \"rationale\": \"Big club drama\"}, {\"index\": 1, \"score\": 3, \"breakdown\": \"Routine\"}]\n```"
	r := newTestRanker(&fakeOracle{reply: reply})
	in := abc()

	out := r.Score(context.Background(), in)
	assertAllScored(t, in, out)
	assert.Equal(t, 3, out[0].Score)
	assert.Equal(t, "Routine", out[0].ScoreRationale)
	assert.Equal(t, 9, out[1].Score)
	assert.Equal(t, "Big club drama", out[1].ScoreRationale)
	assert.Equal(t, DefaultScore, out[2].Score)
	assert.Equal(t, "Default score", out[2].ScoreRationale)
}

func TestScoreOracleErrorDefaultsAll(t *testing.T) {
	err := errors.New(strings.Repeat("e", 80))
	r := newTestRanker(&fakeOracle{err: err})
	in := abc()

	out := r.Score(context.Background(), in)
	assertAllScored(t, in, out)
	for _, o := range out {
		assert.Equal(t, DefaultScore, o.Score)
		assert.Equal(t, "Default score (error: "+strings.Repeat("e", 50)+")", o.ScoreRationale)
	}
}

func TestScoreUnparsableDefaultsAll(t *testing.T) {
	for _, reply := range []string{"", "no idea", "[not json]"} {
		r := newTestRanker(&fakeOracle{reply: reply})
		out := r.Score(context.Background(), abc())
		assertAllScored(t, abc(), out)
		for _, o := range out {
			assert.Equal(t, "Default score (parsing failed)", o.ScoreRationale, "reply %q", reply)
		}
	}
}

func TestScoreClampsAndCoercesValues(t *testing.T) {
	reply := `[{"index": "1", "score": "12"}, {"index": 2.0, "score": -4, "rationale": "meh"}, {"index": 3, "score": "high"}, {"index": 7, "score": 8}, "junk"]`
	r := newTestRanker(&fakeOracle{reply: reply})

	out := r.Score(context.Background(), abc())
	assertAllScored(t, abc(), out)
	assert.Equal(t, 10, out[0].Score)
	assert.Equal(t, 1, out[1].Score)
	assert.Equal(t, DefaultScore, out[2].Score)
}

func TestScoreMissingRationaleLeftEmpty(t *testing.T) {
	r := newTestRanker(&fakeOracle{reply: `[{"index": 1, "score": 7}]`})
	out := r.Score(context.Background(), []TopicRecord{topic("A")})
	assert.Equal(t, 7, out[0].Score)
	assert.Empty(t, out[0].ScoreRationale)
}

func TestScoreBeyondPromptCapStillScored(t *testing.T) {
	in := make([]TopicRecord, 25)
	for i := range in {
		in[i] = topic(fmt.Sprintf("topic %d", i+1))
	}
	o := &fakeOracle{reply: `[{"index": 1, "score": 8, "rationale": "r"}]`}
	r := newTestRanker(o)

	out := r.Score(context.Background(), in)
	require.Len(t, out, 25)
	for _, s := range out {
		assert.GreaterOrEqual(t, s.Score, MinScore)
	}
	assert.Equal(t, 8, out[0].Score)
	assert.Equal(t, DefaultScore, out[24].Score)

	assert.Contains(t, o.prompts[0], "20. topic 20 (Source: twitter, Tweets: N/A)")
	assert.NotContains(t, o.prompts[0], "21. topic 21")
}

func TestScoreDoesNotMutateInput(t *testing.T) {
	in := []TopicRecord{scoredTopic("A", 2)}
	r := newTestRanker(&fakeOracle{reply: `[{"index": 1, "score": 9, "rationale": "x"}]`})
	out := r.Score(context.Background(), in)
	assert.Equal(t, 9, out[0].Score)
	assert.Equal(t, 2, in[0].Score)
}

func TestScoreEmptyInput(t *testing.T) {
	o := &fakeOracle{reply: "[]"}
	out := newTestRanker(o).Score(context.Background(), nil)
	assert.Empty(t, out)
	assert.Zero(t, o.calls())
}

func TestScorePromptShowsEngagement(t *testing.T) {
	eng := 9000
	p := BuildScorePrompt([]TopicRecord{
		{Text: "Arsenal bottle it again", SourceName: "twitter", Engagement: &eng},
		{Text: "Ten Hag sacked"},
	})
	assert.Contains(t, p, "1. Arsenal bottle it again (Source: twitter, Tweets: 9000)")
	assert.Contains(t, p, "2. Ten Hag sacked (Source: unknown, Tweets: N/A)")
}
