// Package oracle composes generative backends into the single Complete call the pipeline uses.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/banterbot/internal/cache"
	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/ratelimit"
)

// Provider is one generative backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Completer is anything that turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Recorder receives per-provider call outcomes.
type Recorder interface {
	ProviderCall(provider, outcome string)
}

// ErrNoProviders is returned when no backend is configured or every one is over budget.
var ErrNoProviders = errors.New("no oracle provider available")

// Chain tries providers in order until one answers.
type Chain struct {
	providers []Provider
	limiter   *ratelimit.OracleLimiter
	recorder  Recorder
	log       *slog.Logger
}

// NewChain builds a chain. limiter and recorder may be nil.
func NewChain(providers []Provider, limiter *ratelimit.OracleLimiter, recorder Recorder, log *slog.Logger) *Chain {
	return &Chain{
		providers: providers,
		limiter:   limiter,
		recorder:  recorder,
		log:       logger.OrDefault(log),
	}
}

// Len is the number of configured providers.
func (c *Chain) Len() int {
	return len(c.providers)
}

func (c *Chain) Complete(ctx context.Context, prompt string) (string, error) {
	var errs []error
	for _, p := range c.providers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if c.limiter != nil {
			if err := c.limiter.Use(p.Name()); err != nil {
				c.record(p.Name(), "limited")
				errs = append(errs, err)
				continue
			}
		}

		start := time.Now()
		text, err := p.Complete(ctx, prompt)
		if err != nil {
			c.log.Warn("oracle provider failed", "provider", p.Name(), "error", err, "elapsed", time.Since(start))
			c.record(p.Name(), "error")
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		c.log.Debug("oracle provider answered", "provider", p.Name(), "elapsed", time.Since(start), "chars", len(text))
		c.record(p.Name(), "ok")
		return text, nil
	}

	if len(errs) == 0 {
		return "", ErrNoProviders
	}
	return "", errors.Join(append([]error{ErrNoProviders}, errs...)...)
}

func (c *Chain) record(provider, outcome string) {
	if c.recorder != nil {
		c.recorder.ProviderCall(provider, outcome)
	}
}

// Store keeps oracle replies between calls. Lookups that fail count as misses.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// memoryStore is the in-process Store.
type memoryStore struct {
	c *cache.Cache[string]
}

func (m memoryStore) Get(_ context.Context, key string) (string, bool) { return m.c.Get(key) }

func (m memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) {
	m.c.Set(key, value, ttl)
}

// Cached serves repeated prompts from a Store. Only successful replies are stored.
type Cached struct {
	next    Completer
	store   Store
	mem     *cache.Cache[string]
	ttl     time.Duration
	limiter *ratelimit.OracleLimiter
}

// NewCached wraps next with an in-process TTL cache. A ttl of zero disables caching.
// Close releases the cache.
func NewCached(next Completer, ttl time.Duration, limiter *ratelimit.OracleLimiter) *Cached {
	c := &Cached{next: next, ttl: ttl, limiter: limiter}
	if ttl > 0 {
		c.mem = cache.New[string](ttl)
		c.store = memoryStore{c: c.mem}
	}
	return c
}

// NewCachedStore wraps next with an external Store, such as Redis shared by the
// bot and the scheduled job.
func NewCachedStore(next Completer, store Store, ttl time.Duration, limiter *ratelimit.OracleLimiter) *Cached {
	c := &Cached{next: next, ttl: ttl, limiter: limiter}
	if ttl > 0 {
		c.store = store
	}
	return c
}

func (c *Cached) Complete(ctx context.Context, prompt string) (string, error) {
	if c.store == nil {
		return c.next.Complete(ctx, prompt)
	}

	key := cache.Key(prompt)
	if text, ok := c.store.Get(ctx, key); ok {
		if c.limiter != nil {
			c.limiter.RecordCacheHit()
		}
		return text, nil
	}

	text, err := c.next.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.store.Set(ctx, key, text, c.ttl)
	return text, nil
}

func (c *Cached) Close() {
	if c.mem != nil {
		c.mem.Close()
	}
}
