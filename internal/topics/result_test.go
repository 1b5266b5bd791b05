package topics

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleTruncatesAndCopies(t *testing.T) {
	scored := make([]TopicRecord, 12)
	for i := range scored {
		scored[i] = scoredTopic(fmt.Sprintf("topic %d", i+1), 12-i%10)
	}
	ranked := Rank(scored)
	winner := ranked[0].Topic
	scripts := FallbackScripts(winner.Text)
	counts := map[Origin]int{OriginTrend: 7}

	res := Assemble(winner, scripts, ranked, counts)
	assert.True(t, res.Succeeded)
	assert.Equal(t, StateDone, res.Status)
	require.NotNil(t, res.WinningTopic)
	assert.Equal(t, winner, *res.WinningTopic)
	assert.Len(t, res.TopN, TopN)
	assert.Len(t, res.Scripts, 3)
	assert.Equal(t, map[Origin]int{OriginTrend: 7, OriginNews: 0}, res.SourceCounts)

	scripts[0].Hook = "mutated"
	counts[OriginNews] = 99
	assert.NotEqual(t, "mutated", res.Scripts[0].Hook)
	assert.Zero(t, res.SourceCounts[OriginNews])
}

func TestRankedSummary(t *testing.T) {
	long := strings.Repeat("L", 80)
	ranked := Rank([]TopicRecord{
		scoredTopic("Arsenal bottle it again", 9),
		scoredTopic(long, 7),
		scoredTopic("c", 6), scoredTopic("d", 5), scoredTopic("e", 4), scoredTopic("f", 3),
	})
	res := Assemble(ranked[0].Topic, nil, ranked, map[Origin]int{OriginTrend: 3, OriginNews: 4})

	lines := strings.Split(res.RankedSummary(), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Sources: 3 Twitter, 4 News", lines[0])
	assert.Equal(t, "---", lines[1])
	assert.Equal(t, "1. [9/10] Arsenal bottle it again", lines[2])
	assert.Equal(t, "2. [7/10] "+strings.Repeat("L", 60), lines[3])
	assert.Equal(t, "5. [4/10] e", lines[6])
}

func TestScoreDisplay(t *testing.T) {
	w := scoredTopic("x", 8)
	w.ScoreRationale = "Big 6 drama"
	res := Assemble(w, nil, nil, nil)
	assert.Equal(t, "8/10 - Big 6 drama", res.ScoreDisplay())
	assert.Empty(t, PipelineResult{}.ScoreDisplay())
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateTerminatedEmpty.Terminal())
	assert.False(t, StateScoring.Terminal())
}

func TestDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	r := PipelineResult{StartedAt: start}
	assert.Zero(t, r.Duration())
	r.FinishedAt = start.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, r.Duration())
}

func TestEntryFlattensResult(t *testing.T) {
	winner := scoredTopic("Arsenal bottle the title", 9)
	winner.ScoreRationale = "Big 6 bottle job"
	res := Assemble(winner, FallbackScripts(winner.Text), Rank([]TopicRecord{winner}), map[Origin]int{OriginTrend: 4})
	res.RunID = "run-1"
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	e := res.Entry(ts)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, ts, e.Timestamp)
	assert.Equal(t, "Arsenal bottle the title", e.Topic)
	assert.Equal(t, "9/10 - Big 6 bottle job", e.Score)
	assert.True(t, strings.HasPrefix(e.RankedSummary, "Sources: 4 Twitter, 0 News"))
	require.Len(t, e.Scripts, ScriptCount)

	e.Scripts[0].Hook = "mutated"
	assert.NotEqual(t, "mutated", res.Scripts[0].Hook)
}
