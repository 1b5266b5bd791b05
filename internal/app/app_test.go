package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/metrics"
	"github.com/deusflow/banterbot/internal/topics"
)

// stageOracle answers each pipeline stage from its own canned reply.
type stageOracle struct {
	filter, score, scripts       string
	filterErr, scoreErr, callErr error
	onScore                      func()
}

func (o *stageOracle) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "You are a Premier League football expert"):
		return o.filter, o.filterErr
	case strings.HasPrefix(prompt, "You judge viral potential"):
		if o.onScore != nil {
			o.onScore()
		}
		return o.score, o.scoreErr
	case strings.HasPrefix(prompt, "You are a UK football content creator"):
		return o.scripts, o.callErr
	}
	return "", errors.New("unexpected prompt")
}

type recordingSink struct {
	name    string
	err     error
	mu      sync.Mutex
	entries []topics.Entry
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Append(_ context.Context, e topics.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func producer(recs ...topics.RawRecord) topics.Producer {
	return topics.ProducerFunc(func(context.Context) ([]topics.RawRecord, error) {
		return recs, nil
	})
}

type pausedFlag bool

func (p pausedFlag) Paused() bool { return bool(p) }

func newTestRunner(o topics.Oracle, trend, news topics.Producer, sinks []Sink, n Notifier) (*Runner, *metrics.Metrics) {
	m := metrics.New()
	r := NewRunner(Deps{
		Trend:           trend,
		News:            news,
		Ranker:          topics.NewRanker(o, topics.WithLogger(logger.Discard()), topics.WithObserver(m)),
		Sinks:           sinks,
		Notifier:        n,
		Metrics:         m,
		ProducerTimeout: time.Second,
		Logger:          logger.Discard(),
	})
	r.newID = func() string { return "run-test" }
	return r, m
}

func TestRunEndToEnd(t *testing.T) {
	oracle := &stageOracle{
		filter:  "[1]",
		score:   `[{"index": 1, "score": 9, "rationale": "Big club drama"}]`,
		callErr: errors.New("script backend down"),
	}
	sink := &recordingSink{name: "sheets"}
	notes := &recordingNotifier{}
	r, m := newTestRunner(oracle,
		producer(topics.RawRecord{"text": "Arsenal bottle it again", "engagement": 9000}),
		producer(),
		[]Sink{sink}, notes)

	res := r.Run(context.Background())

	assert.True(t, res.Succeeded)
	assert.Equal(t, topics.StateDone, res.Status)
	assert.Equal(t, "run-test", res.RunID)
	require.NotNil(t, res.WinningTopic)
	assert.Equal(t, "Arsenal bottle it again", res.WinningTopic.Text)
	assert.Equal(t, 9, res.WinningTopic.Score)
	assert.Equal(t, topics.FallbackScripts("Arsenal bottle it again"), res.Scripts)
	require.Len(t, res.Scripts, topics.ScriptCount)
	for _, s := range res.Scripts {
		assert.Contains(t, s.Hook+s.Premise+s.Punchline, "Arsenal bottle it again")
	}
	assert.Equal(t, map[topics.Origin]int{topics.OriginTrend: 1, topics.OriginNews: 0}, res.SourceCounts)
	assert.True(t, res.Persisted)
	assert.False(t, res.FinishedAt.IsZero())

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "9/10 - Big club drama", sink.entries[0].Score)
	assert.Equal(t, "run-test", sink.entries[0].RunID)

	assert.Equal(t, []string{
		"Fetching Twitter trends (UK)...",
		"Fetching football news...",
		"Processing topics...",
		`Top drama: "Arsenal bottle it again" (Score: 9/10)`,
		"Generating scripts...",
		"Done! 3 scripts added to Sheet",
	}, notes.all())

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats["runs_succeeded"])
	assert.Equal(t, int64(1), stats["oracle_fallbacks"])
	assert.Equal(t, "Arsenal bottle it again", stats["last_topic"])
}

func TestRunTerminatedEmpty(t *testing.T) {
	notes := &recordingNotifier{}
	sink := &recordingSink{name: "sheets"}
	r, m := newTestRunner(&stageOracle{filter: "[]"},
		producer(topics.RawRecord{"text": "Lakers win again"}),
		producer(topics.RawRecord{"title": "Wimbledon final set"}),
		[]Sink{sink}, notes)

	res := r.Run(context.Background())

	assert.False(t, res.Succeeded)
	assert.Equal(t, topics.StateTerminatedEmpty, res.Status)
	assert.Equal(t, EmptyRunError, res.Error)
	assert.Nil(t, res.WinningTopic)
	assert.Equal(t, 1, res.SourceCounts[topics.OriginNews])
	assert.Empty(t, sink.entries)
	assert.Contains(t, notes.all(), "No PL topics found today. Try again later.")
	assert.Equal(t, int64(1), m.GetStats()["runs_empty"])
}

func TestRunNoSourcesTerminatesEmptyWithoutOracle(t *testing.T) {
	oracle := &stageOracle{filterErr: errors.New("must not be called")}
	r, _ := newTestRunner(oracle, nil, nil, nil, nil)

	res := r.Run(context.Background())
	assert.Equal(t, topics.StateTerminatedEmpty, res.Status)
}

func TestRunPanicBecomesFailed(t *testing.T) {
	oracle := &stageOracle{filter: "[1]", onScore: func() { panic("scorer exploded") }}
	notes := &recordingNotifier{}
	r, m := newTestRunner(oracle, producer(topics.RawRecord{"text": "Spurs sack manager"}), nil, nil, notes)

	res := r.Run(context.Background())

	assert.False(t, res.Succeeded)
	assert.Equal(t, topics.StateFailed, res.Status)
	assert.Contains(t, res.Error, "SCORING")
	assert.Contains(t, res.Error, "scorer exploded")
	msgs := notes.all()
	assert.True(t, strings.HasPrefix(msgs[len(msgs)-1], "Error: "))
	assert.Equal(t, int64(1), m.GetStats()["runs_failed"])
	assert.False(t, m.Healthy())
}

func TestRunSinkFailureKeepsSuccess(t *testing.T) {
	good := &recordingSink{name: "postgres"}
	bad := &recordingSink{name: "sheets", err: errors.New("quota exceeded")}
	notes := &recordingNotifier{}
	r, m := newTestRunner(&stageOracle{filter: "[1]", score: "garbage", scripts: "also garbage"},
		producer(topics.RawRecord{"text": "Haaland hat-trick"}), nil, []Sink{bad, good}, notes)

	res := r.Run(context.Background())

	assert.True(t, res.Succeeded)
	assert.False(t, res.Persisted)
	assert.Equal(t, topics.DefaultScore, res.WinningTopic.Score)
	assert.Len(t, good.entries, 1)
	assert.Equal(t, int64(1), m.GetStats()["sink_failures"])
	assert.Contains(t, notes.all(), "Done! 3 scripts generated, but saving failed")
}

func TestRunNotifierFailureIsIgnored(t *testing.T) {
	notes := &recordingNotifier{err: errors.New("telegram down")}
	r, _ := newTestRunner(&stageOracle{filter: "[1]", score: `[{"index":1,"score":7}]`},
		producer(topics.RawRecord{"text": "Chelsea spend again"}), nil, []Sink{&recordingSink{name: "s"}}, notes)

	res := r.Run(context.Background())
	assert.True(t, res.Succeeded)
	assert.True(t, res.Persisted)
}

type panickingSink struct{}

func (panickingSink) Name() string { return "flaky" }

func (panickingSink) Append(context.Context, topics.Entry) error { panic("sheet client nil") }

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, string) error { panic("bot token revoked") }

func TestRunPanickingSinkCountsAsFailure(t *testing.T) {
	good := &recordingSink{name: "postgres"}
	r, m := newTestRunner(&stageOracle{filter: "[1]", score: `[{"index":1,"score":6}]`},
		producer(topics.RawRecord{"text": "Forest fined again"}), nil, []Sink{panickingSink{}, good}, nil)

	var res topics.PipelineResult
	require.NotPanics(t, func() { res = r.Run(context.Background()) })

	assert.True(t, res.Succeeded)
	assert.Equal(t, topics.StateDone, res.Status)
	assert.False(t, res.Persisted)
	assert.Len(t, good.entries, 1)
	assert.Equal(t, int64(1), m.GetStats()["sink_failures"])
}

func TestRunPanickingNotifierIsIgnored(t *testing.T) {
	sink := &recordingSink{name: "sheets"}
	r, _ := newTestRunner(&stageOracle{filter: "[1]", score: `[{"index":1,"score":7}]`},
		producer(topics.RawRecord{"text": "Chelsea spend again"}), nil, []Sink{sink}, panickingNotifier{})

	var res topics.PipelineResult
	require.NotPanics(t, func() { res = r.Run(context.Background()) })

	assert.Equal(t, topics.StateDone, res.Status)
	assert.True(t, res.Succeeded)
	assert.True(t, res.Persisted)
	assert.Len(t, sink.entries, 1)
}

func TestRunEscapesNarrationText(t *testing.T) {
	notes := &recordingNotifier{}
	r, _ := newTestRunner(&stageOracle{filter: "[1]", score: `[{"index":1,"score":9}]`},
		producer(topics.RawRecord{"text": "Spurs & Arsenal <3 chaos"}), nil, []Sink{&recordingSink{name: "s"}}, notes)

	r.Run(context.Background())
	assert.Contains(t, notes.all(), `Top drama: "Spurs &amp; Arsenal &lt;3 chaos" (Score: 9/10)`)

	notes = &recordingNotifier{}
	oracle := &stageOracle{filter: "[1]", onScore: func() { panic("bad <b> & worse") }}
	r, _ = newTestRunner(oracle, producer(topics.RawRecord{"text": "Spurs sack manager"}), nil, nil, notes)

	r.Run(context.Background())
	msgs := notes.all()
	last := msgs[len(msgs)-1]
	assert.Contains(t, last, "bad &lt;b&gt; &amp; worse")
	assert.NotContains(t, last, "<b>")
}

func TestRunConcurrentCallsShareOneRun(t *testing.T) {
	release := make(chan struct{})
	var fetches int32
	slow := topics.ProducerFunc(func(context.Context) ([]topics.RawRecord, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return []topics.RawRecord{{"text": "Villa in the Champions League places"}}, nil
	})
	r, _ := newTestRunner(&stageOracle{filter: "[1]", score: `[{"index":1,"score":8}]`}, slow, nil, nil, nil)

	var wg sync.WaitGroup
	results := make([]topics.PipelineResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Run(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fetches) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
	assert.Equal(t, results[0].RunID, results[1].RunID)
	assert.Equal(t, results[0].WinningTopic.Text, results[1].WinningTopic.Text)
}

func TestRunScheduledHonoursPause(t *testing.T) {
	notes := &recordingNotifier{}
	r, _ := newTestRunner(&stageOracle{filter: "[]"}, nil, nil, nil, notes)

	_, err := r.RunScheduled(context.Background(), pausedFlag(true))
	assert.ErrorIs(t, err, ErrPaused)
	assert.Equal(t, []string{"⏸ Scheduled run skipped (paused)\n\nUse /resume to re-enable."}, notes.all())

	res, err := r.RunScheduled(context.Background(), pausedFlag(false))
	require.NoError(t, err)
	assert.Equal(t, topics.StateTerminatedEmpty, res.Status)
}
