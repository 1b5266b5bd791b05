package ratelimit

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/banterbot/internal/logger"
)

// OracleLimiter keeps a daily request budget per oracle provider plus an overall budget.
// A limit of 0 means unlimited.
type OracleLimiter struct {
	mu        sync.Mutex
	limits    map[string]int
	counts    map[string]int
	maxTotal  int
	total     int
	cacheHits int
	misses    int
	resetTime time.Time
	window    time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// NewOracleLimiter creates a limiter with the given per-provider limits.
func NewOracleLimiter(limits map[string]int, maxTotal int, log *slog.Logger) *OracleLimiter {
	l := &OracleLimiter{
		limits:   make(map[string]int, len(limits)),
		counts:   make(map[string]int),
		maxTotal: maxTotal,
		window:   24 * time.Hour,
		now:      time.Now,
		log:      logger.OrDefault(log),
	}
	for k, v := range limits {
		l.limits[k] = v
	}
	l.resetTime = l.now().Add(l.window)
	return l
}

// Allow reports whether provider has budget left, without consuming it.
func (l *OracleLimiter) Allow(provider string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	return l.exceeded(provider) == nil
}

// Use consumes one request of provider's budget.
func (l *OracleLimiter) Use(provider string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkReset()
	if err := l.exceeded(provider); err != nil {
		l.log.Warn("oracle budget exhausted", "provider", provider, "error", err)
		return err
	}

	l.counts[provider]++
	l.total++
	l.misses++
	l.log.Debug("oracle usage", "provider", provider, "used", l.counts[provider], "limit", l.limits[provider], "total", l.total)
	return nil
}

// RecordCacheHit counts a reply served without calling any provider.
func (l *OracleLimiter) RecordCacheHit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cacheHits++
}

func (l *OracleLimiter) exceeded(provider string) error {
	if limit := l.limits[provider]; limit > 0 && l.counts[provider] >= limit {
		return fmt.Errorf("%s rate limit exceeded (%d/%d)", provider, l.counts[provider], limit)
	}
	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return fmt.Errorf("total oracle rate limit exceeded (%d/%d)", l.total, l.maxTotal)
	}
	return nil
}

// CacheHitRate is the percentage of replies served from cache.
func (l *OracleLimiter) CacheHitRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hitRate()
}

func (l *OracleLimiter) hitRate() float64 {
	total := l.cacheHits + l.misses
	if total == 0 {
		return 0
	}
	return float64(l.cacheHits) / float64(total) * 100
}

// GetStats returns a snapshot for the monitoring endpoint.
func (l *OracleLimiter) GetStats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	providers := make([]string, 0, len(l.limits))
	for p := range l.limits {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	stats := map[string]interface{}{
		"total_used":     l.total,
		"total_limit":    l.maxTotal,
		"cache_hits":     l.cacheHits,
		"cache_misses":   l.misses,
		"cache_hit_rate": l.hitRate(),
		"reset_time":     l.resetTime.Format(time.RFC3339),
	}
	for _, p := range providers {
		stats[p+"_used"] = l.counts[p]
		stats[p+"_limit"] = l.limits[p]
	}
	return stats
}

func (l *OracleLimiter) checkReset() {
	if !l.now().After(l.resetTime) {
		return
	}
	l.log.Info("resetting oracle rate limiter", "total_used", l.total, "cache_hits", l.cacheHits)
	l.counts = make(map[string]int)
	l.total = 0
	l.cacheHits = 0
	l.misses = 0
	l.resetTime = l.now().Add(l.window)
}
