package app

import (
	"context"
	"fmt"

	"github.com/deusflow/banterbot/internal/topics"
)

// Sink persists a finished run. Implemented by the sheet and the Postgres run history.
type Sink interface {
	Name() string
	Append(ctx context.Context, e topics.Entry) error
}

// Notifier delivers progress narration. Failures never change a run's outcome.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// PauseState reports whether scheduled runs are switched off.
type PauseState interface {
	Paused() bool
}

// persist writes e to every sink and reports whether all of them accepted it.
// Sinks are tried once each; a failing sink does not stop the others.
func (r *Runner) persist(ctx context.Context, e topics.Entry) bool {
	if len(r.sinks) == 0 {
		r.log.Warn("no sinks configured, result not persisted")
		return false
	}
	ok := true
	for _, s := range r.sinks {
		if err := appendTo(ctx, s, e); err != nil {
			r.log.Error("sink append failed", "sink", s.Name(), "run_id", e.RunID, "error", err)
			r.metrics.SinkFailure(s.Name())
			ok = false
			continue
		}
		r.log.Info("result persisted", "sink", s.Name(), "run_id", e.RunID)
	}
	return ok
}

func (r *Runner) notify(ctx context.Context, message string) {
	if r.notifier == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("progress notification panicked", "panic", p)
		}
	}()
	if err := r.notifier.Notify(ctx, message); err != nil {
		r.log.Warn("progress notification failed", "error", err)
	}
}

// appendTo turns a panicking sink into an ordinary failure.
func appendTo(ctx context.Context, s Sink, e topics.Entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Append(ctx, e)
}
