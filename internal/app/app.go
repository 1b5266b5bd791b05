// Package app runs the topic pipeline end to end: collect, merge, filter, score,
// select, write scripts, persist and narrate progress.
package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/metrics"
	"github.com/deusflow/banterbot/internal/topics"
)

// ErrPaused is returned by RunScheduled when the daily run is switched off.
var ErrPaused = errors.New("scheduled run paused")

// EmptyRunError is the error text of a run whose filter kept nothing.
const EmptyRunError = "No Premier League topics found"

const flightKey = "pipeline"

type Deps struct {
	Trend           topics.Producer
	News            topics.Producer
	Ranker          *topics.Ranker
	Sinks           []Sink
	Notifier        Notifier
	Metrics         *metrics.Metrics
	ProducerTimeout time.Duration
	Logger          *slog.Logger
}

type Runner struct {
	trend           topics.Producer
	news            topics.Producer
	ranker          *topics.Ranker
	sinks           []Sink
	notifier        Notifier
	metrics         *metrics.Metrics
	producerTimeout time.Duration
	log             *slog.Logger

	group singleflight.Group
	now   func() time.Time
	newID func() string
}

func NewRunner(d Deps) *Runner {
	m := d.Metrics
	if m == nil {
		m = metrics.Global
	}
	timeout := d.ProducerTimeout
	if timeout <= 0 {
		timeout = topics.DefaultProducerTimeout
	}
	ranker := d.Ranker
	if ranker == nil {
		ranker = topics.NewRanker(nil)
	}
	return &Runner{
		trend:           d.Trend,
		news:            d.News,
		ranker:          ranker,
		sinks:           d.Sinks,
		notifier:        d.Notifier,
		metrics:         m,
		producerTimeout: timeout,
		log:             logger.OrDefault(d.Logger).With("component", "runner"),
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// Run executes one pipeline pass. Calls that overlap an in-flight run wait for it
// and receive the same result.
func (r *Runner) Run(ctx context.Context) topics.PipelineResult {
	v, _, shared := r.group.Do(flightKey, func() (interface{}, error) {
		return r.run(ctx), nil
	})
	res := v.(topics.PipelineResult)
	if shared {
		r.log.Info("run result shared with concurrent caller", "run_id", res.RunID)
	}
	return res
}

// RunScheduled is Run for the daily trigger: it does nothing while paused.
func (r *Runner) RunScheduled(ctx context.Context, state PauseState) (topics.PipelineResult, error) {
	if state != nil && state.Paused() {
		r.log.Info("scheduled run is paused, skipping")
		r.notify(ctx, "⏸ Scheduled run skipped (paused)\n\nUse /resume to re-enable.")
		return topics.PipelineResult{}, ErrPaused
	}
	r.notify(ctx, "🕐 Scheduled run starting...")
	return r.Run(ctx), nil
}

func (r *Runner) run(ctx context.Context) (res topics.PipelineResult) {
	res = topics.PipelineResult{
		RunID:     r.newID(),
		Status:    topics.StateCollecting,
		StartedAt: r.now(),
	}
	log := r.log.With("run_id", res.RunID)
	r.metrics.RunStarted()
	log.Info("pipeline started")

	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline panicked", "stage", res.Status, "panic", p)
			res = r.failed(res, fmt.Errorf("%s: %v", res.Status, p))
			r.notify(ctx, "Error: "+html.EscapeString(res.Error))
		}
		r.finish(log, &res)
	}()

	// COLLECTING
	r.notify(ctx, "Fetching Twitter trends (UK)...")
	r.notify(ctx, "Fetching football news...")
	collected := topics.Collect(ctx, r.trend, r.news, r.producerTimeout, log)
	counts := collected.Counts()
	for origin, n := range counts {
		r.metrics.AddTopicsCollected(string(origin), n)
	}
	log.Info("sources collected", "trend", counts[topics.OriginTrend], "news", counts[topics.OriginNews])

	// MERGING
	res.Status = topics.StateMerging
	r.notify(ctx, "Processing topics...")
	merged := topics.Merge(collected.Trend, collected.News)
	r.metrics.AddDuplicatesDropped(len(collected.Trend) + len(collected.News) - len(merged))
	log.Info("topics merged", "unique", len(merged))

	// FILTERING
	res.Status = topics.StateFiltering
	relevant := r.ranker.FilterRelevant(ctx, merged)
	log.Info("topics filtered", "relevant", len(relevant))
	if len(relevant) == 0 {
		res.Status = topics.StateTerminatedEmpty
		res.Error = EmptyRunError
		res.SourceCounts = counts
		r.notify(ctx, "No PL topics found today. Try again later.")
		return res
	}

	// SCORING
	res.Status = topics.StateScoring
	scored := r.ranker.Score(ctx, relevant)

	// SELECTING
	res.Status = topics.StateSelecting
	ranked := topics.Rank(scored)
	winner := topics.SelectTop(scored)
	log.Info("topic selected", "topic", winner.Text, "score", winner.Score)
	r.notify(ctx, fmt.Sprintf("Top drama: \"%s\" (Score: %d/10)", html.EscapeString(winner.Text), winner.Score))

	// GENERATING_SCRIPTS
	res.Status = topics.StateGeneratingScripts
	r.notify(ctx, "Generating scripts...")
	scripts := r.ranker.GenerateScripts(ctx, winner)

	assembled := topics.Assemble(winner, scripts, ranked, counts)
	assembled.RunID = res.RunID
	assembled.StartedAt = res.StartedAt

	// PERSISTING
	assembled.Status = topics.StatePersisting
	res = assembled
	res.Persisted = r.persist(ctx, res.Entry(r.now()))

	// NOTIFYING
	res.Status = topics.StateNotifying
	if res.Persisted {
		r.notify(ctx, fmt.Sprintf("Done! %d scripts added to Sheet", len(res.Scripts)))
	} else {
		r.notify(ctx, fmt.Sprintf("Done! %d scripts generated, but saving failed", len(res.Scripts)))
	}

	res.Status = topics.StateDone
	return res
}

func (r *Runner) failed(res topics.PipelineResult, err error) topics.PipelineResult {
	res.Status = topics.StateFailed
	res.Succeeded = false
	res.Error = err.Error()
	return res
}

func (r *Runner) finish(log *slog.Logger, res *topics.PipelineResult) {
	res.FinishedAt = r.now()
	r.metrics.RunFinished(string(res.Status), res.Duration())

	switch res.Status {
	case topics.StateDone:
		r.metrics.SetLastRun(res.WinningTopic.Text)
		log.Info("pipeline completed", "persisted", res.Persisted, "elapsed", res.Duration())
	case topics.StateTerminatedEmpty:
		log.Info("pipeline ended without relevant topics", "elapsed", res.Duration())
	default:
		r.metrics.SetError(res.Error)
		log.Error("pipeline failed", "error", res.Error, "elapsed", res.Duration())
	}
}
