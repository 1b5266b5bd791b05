package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/topics"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func entry() topics.Entry {
	return topics.Entry{
		RunID:     "run-1",
		Timestamp: time.Date(2026, 5, 3, 7, 0, 0, 0, time.UTC),
		Topic:     "Arsenal bottle it again",
		Score:     "9/10 - Big club drama",
		Scripts:   topics.FallbackScripts("Arsenal bottle it again"),
	}
}

func TestAppendPublishesKeyedEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, DefaultTopic, logger.Discard())

	require.NoError(t, p.Append(context.Background(), entry()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "run-1", string(w.msgs[0].Key))

	var got RunEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "run.completed", got.Type)
	assert.Equal(t, "Arsenal bottle it again", got.Topic)
	assert.Len(t, got.Scripts, topics.ScriptCount)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestAppendWrapsWriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := newPublisher(&fakeWriter{err: boom}, DefaultTopic, logger.Discard())

	err := p.Append(context.Background(), entry())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "run-1")
	assert.Equal(t, "kafka", p.Name())
}

func TestBuildMessageFlattensEntry(t *testing.T) {
	msg, err := BuildMessage(entry())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &raw))
	assert.Equal(t, "run-1", raw["run_id"])
	assert.Equal(t, "9/10 - Big club drama", raw["score"])
	assert.Equal(t, entry().Timestamp, msg.Time)
}
