package topics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/banterbot/internal/logger"
)

// DefaultProducerTimeout bounds a single producer call.
const DefaultProducerTimeout = 30 * time.Second

// lateResultGrace is how long Collect waits past the deadline for a producer to return partial results.
const lateResultGrace = 2 * time.Second

// Producer is a feed returning raw topic records. Missing credentials yield an empty list.
type Producer interface {
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context) ([]RawRecord, error)

func (f ProducerFunc) Fetch(ctx context.Context) ([]RawRecord, error) {
	return f(ctx)
}

// Collected holds both feeds' normalised output.
type Collected struct {
	Trend []TopicRecord
	News  []TopicRecord
}

// Counts returns the number of records each feed produced.
func (c Collected) Counts() map[Origin]int {
	return map[Origin]int{
		OriginTrend: len(c.Trend),
		OriginNews:  len(c.News),
	}
}

// Collect runs both producers concurrently and waits for both. A failing or
// panicking producer contributes an empty list. At the deadline a producer gets a
// short grace period to return what it already fetched; one that stays silent
// contributes an empty list.
func Collect(ctx context.Context, trend, news Producer, timeout time.Duration, log *slog.Logger) Collected {
	log = logger.OrDefault(log)
	if timeout <= 0 {
		timeout = DefaultProducerTimeout
	}

	var out Collected
	var g errgroup.Group
	g.Go(func() error {
		out.Trend = fetchOne(ctx, trend, OriginTrend, timeout, log)
		return nil
	})
	g.Go(func() error {
		out.News = fetchOne(ctx, news, OriginNews, timeout, log)
		return nil
	})
	_ = g.Wait()

	return out
}

func fetchOne(ctx context.Context, p Producer, origin Origin, timeout time.Duration, log *slog.Logger) []TopicRecord {
	if p == nil {
		log.Debug("producer not configured", "origin", origin)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		raw []RawRecord
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		raw, err := p.Fetch(ctx)
		done <- result{raw: raw, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// A producer that honours ctx hands back what it already has.
		select {
		case res = <-done:
			log.Warn("producer hit its deadline", "origin", origin, "timeout", timeout)
		case <-time.After(lateResultGrace):
			log.Warn("producer timed out", "origin", origin, "timeout", timeout)
			return nil
		}
	}

	if res.err != nil {
		log.Warn("producer failed", "origin", origin, "error", res.err)
		return nil
	}
	recs := NormalizeAll(res.raw, origin)
	log.Info("producer finished", "origin", origin, "count", len(recs))
	return recs
}
