package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/retry"
	"github.com/deusflow/banterbot/internal/topics"
)

type sentMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// fakeAPI is a minimal Bot API: it records sendMessage calls and hands out queued updates once.
type fakeAPI struct {
	mu       sync.Mutex
	messages []sentMessage
	updates  []Update
	failChat string
	status   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		var m sentMessage
		_ = json.NewDecoder(r.Body).Decode(&m)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"ok":false,"description":"nope"}`))
			return
		}
		if m.ChatID == f.failChat {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
			return
		}
		f.messages = append(f.messages, m)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	case strings.HasSuffix(r.URL.Path, "/getUpdates"):
		f.mu.Lock()
		ups := f.updates
		f.updates = nil
		f.mu.Unlock()
		if len(ups) == 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": ups})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

func newTestClient(t *testing.T, api http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Token:   "TOKEN",
		BaseURL: srv.URL,
		Timeout: time.Second,
		Retry:   retry.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond},
	}, logger.Discard())
}

func TestSendMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	require.NoError(t, c.SendMessage(context.Background(), "42", "<b>hi</b>"))
	msgs := api.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0].ChatID)
	assert.Equal(t, "HTML", msgs[0].ParseMode)
}

func TestSendMessageClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"bad"}`))
	}))
	assert.Error(t, c.SendMessage(context.Background(), "1", "x"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendMessageServerErrorIsRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	assert.NoError(t, c.SendMessage(context.Background(), "1", "x"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

type chatList []int64

func (c chatList) Chats() []int64 { return c }

func TestNotifierBroadcastsToRegisteredAndDefault(t *testing.T) {
	api := &fakeAPI{}
	var count int32
	n := NewNotifier(newTestClient(t, api), chatList{1, 2}, "2", func() { atomic.AddInt32(&count, 1) }, logger.Discard())

	require.NoError(t, n.Notify(context.Background(), "Processing topics..."))
	var chats []string
	for _, m := range api.sent() {
		chats = append(chats, m.ChatID)
	}
	assert.Equal(t, []string{"1", "2"}, chats)
	assert.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestNotifierPartialFailureStillSucceeds(t *testing.T) {
	api := &fakeAPI{failChat: "1"}
	n := NewNotifier(newTestClient(t, api), chatList{1, 2}, "", nil, logger.Discard())
	assert.NoError(t, n.Notify(context.Background(), "x"))
	assert.Len(t, api.sent(), 1)
}

func TestNotifierErrors(t *testing.T) {
	api := &fakeAPI{status: http.StatusForbidden}
	c := newTestClient(t, api)

	err := NewNotifier(c, nil, "", nil, logger.Discard()).Notify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoChats)

	err = NewNotifier(c, chatList{5}, "", nil, logger.Discard()).Notify(context.Background(), "x")
	assert.Error(t, err)
}

type fakePipeline struct {
	res   topics.PipelineResult
	calls int32
}

func (p *fakePipeline) Run(context.Context) topics.PipelineResult {
	atomic.AddInt32(&p.calls, 1)
	return p.res
}

type fakeState struct {
	mu     sync.Mutex
	chats  []int64
	paused bool
}

func (s *fakeState) RegisterChat(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c == id {
			return false, nil
		}
	}
	s.chats = append(s.chats, id)
	return true, nil
}

func (s *fakeState) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeState) SetPaused(p bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = p
	return nil
}

type fakeHistory struct {
	entries []topics.Entry
	err     error
}

func (h fakeHistory) Recent(context.Context, int) ([]topics.Entry, error) { return h.entries, h.err }

func successResult() topics.PipelineResult {
	w := topics.TopicRecord{Text: "Arsenal bottle the title again", Origin: topics.OriginTrend, Score: 9, ScoreRationale: "Big 6"}
	res := topics.Assemble(w, topics.FallbackScripts(w.Text), topics.Rank([]topics.TopicRecord{w}), map[topics.Origin]int{topics.OriginTrend: 3, topics.OriginNews: 2})
	res.Persisted = true
	return res
}

func TestDispatch(t *testing.T) {
	client := newTestClient(t, &fakeAPI{})
	state := &fakeState{}
	pipe := &fakePipeline{res: successResult()}
	bot := NewBot(client, pipe, fakeHistory{entries: []topics.Entry{{Topic: "old topic", Score: "7/10 - x"}}}, state, logger.Discard())
	ctx := context.Background()

	replies := bot.dispatch(ctx, "start", 10)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "You are now registered")
	replies = bot.dispatch(ctx, "start", 10)
	assert.Contains(t, replies[0], "Welcome back")

	replies = bot.dispatch(ctx, "go", 10)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "Pipeline Complete")
	assert.Contains(t, replies[1], "Script 3")
	assert.Equal(t, int32(1), atomic.LoadInt32(&pipe.calls))

	assert.Contains(t, bot.dispatch(ctx, "pause", 10)[0], "paused")
	assert.True(t, state.Paused())
	assert.Contains(t, bot.dispatch(ctx, "status", 10)[0], "paused")
	assert.Contains(t, bot.dispatch(ctx, "resume", 10)[0], "resumed")
	assert.False(t, state.Paused())

	assert.Contains(t, bot.dispatch(ctx, "recent", 10)[0], "old topic")
	assert.Contains(t, bot.dispatch(ctx, "nope", 10)[0], "Unknown command")
}

func TestDispatchRecentWithoutHistory(t *testing.T) {
	bot := NewBot(newTestClient(t, &fakeAPI{}), &fakePipeline{}, nil, &fakeState{}, logger.Discard())
	assert.Equal(t, []string{"Run history is not configured."}, bot.dispatch(context.Background(), "recent", 1))

	bot.history = fakeHistory{err: errors.New("db down")}
	assert.Contains(t, bot.dispatch(context.Background(), "recent", 1)[0], "Error")
}

func TestBotRunHandlesUpdatesAndStops(t *testing.T) {
	api := &fakeAPI{updates: []Update{
		{UpdateID: 5, Message: &Message{Chat: Chat{ID: 77}, Text: "/status@PLBot"}},
		{UpdateID: 6, Message: &Message{Chat: Chat{ID: 77}, Text: "just chatting"}},
	}}
	bot := NewBot(newTestClient(t, api), &fakePipeline{}, nil, &fakeState{}, logger.Discard())
	bot.poll = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	require.Eventually(t, func() bool { return len(api.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}

	msgs := api.sent()
	assert.Equal(t, "77", msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "Bot is running")
}

func TestParseCommand(t *testing.T) {
	assert.Equal(t, "go", parseCommand("/go"))
	assert.Equal(t, "go", parseCommand("  /GO@PLBot now"))
	assert.Equal(t, "", parseCommand("hello /go"))
	assert.Equal(t, "", parseCommand(""))
}

func TestFormatSummary(t *testing.T) {
	res := successResult()
	out := FormatSummary(res)
	assert.Contains(t, out, "<b>Sources:</b> 3 Twitter, 2 News")
	assert.Contains(t, out, "→ 1. [9/10] Arsenal bottle the title again")
	assert.Contains(t, out, "🔥 <b>Score:</b> 9/10")
	assert.Contains(t, out, "3 scripts have been added")

	res.Persisted = false
	assert.Contains(t, FormatSummary(res), "could not be saved")

	assert.Contains(t, FormatSummary(topics.PipelineResult{Status: topics.StateTerminatedEmpty}), "No PL topics found today")
	assert.Equal(t, "❌ Pipeline failed: a &lt;b&gt; c",
		FormatSummary(topics.PipelineResult{Status: topics.StateFailed, Error: "a <b> c"}))
}

func TestFormatRecent(t *testing.T) {
	assert.Equal(t, "No recent entries found.", FormatRecent(nil))
	out := FormatRecent([]topics.Entry{
		{Topic: "Spurs & Arsenal", Score: "8/10 - derby", Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
	})
	assert.Contains(t, out, "1. <b>Spurs &amp; Arsenal</b>")
	assert.Contains(t, out, "2026-03-01")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab...", clip("abcdefgh", 5))
}

func TestClipKeepsHTMLWellFormed(t *testing.T) {
	// Cut would land inside the &amp; entity; the open <b> is closed.
	assert.Equal(t, "<b>Spurs ...</b>", clip("<b>Spurs &amp; Arsenal</b>", 16))
	// Cut would land inside the <i> tag.
	assert.Equal(t, "<b>Haaland</b> ...", clip("<b>Haaland</b> <i>scores again</i>", 20))

	long := strings.Repeat("<b>Hook:</b> Spurs &amp; Arsenal &lt;3 chaos\n", 200)
	got := clip(long, maxMessageRunes)
	assert.Less(t, len(got), len(long))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), maxMessageRunes)
	assert.Equal(t, strings.Count(got, "<b>"), strings.Count(got, "</b>"))
	last := strings.LastIndex(got, "&")
	if last >= 0 {
		assert.Contains(t, got[last:], ";")
	}
}
