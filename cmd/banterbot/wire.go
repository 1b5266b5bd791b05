package main

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/deusflow/banterbot/internal/app"
	"github.com/deusflow/banterbot/internal/config"
	"github.com/deusflow/banterbot/internal/events"
	"github.com/deusflow/banterbot/internal/gemini"
	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/metrics"
	"github.com/deusflow/banterbot/internal/newsapi"
	"github.com/deusflow/banterbot/internal/openai"
	"github.com/deusflow/banterbot/internal/oracle"
	"github.com/deusflow/banterbot/internal/ratelimit"
	"github.com/deusflow/banterbot/internal/rediscache"
	"github.com/deusflow/banterbot/internal/retry"
	"github.com/deusflow/banterbot/internal/rss"
	"github.com/deusflow/banterbot/internal/scraper"
	"github.com/deusflow/banterbot/internal/sheets"
	"github.com/deusflow/banterbot/internal/storage"
	"github.com/deusflow/banterbot/internal/telegram"
	"github.com/deusflow/banterbot/internal/topics"
	"github.com/deusflow/banterbot/internal/twitter"
)

// services holds everything a command needs, plus what must be closed on exit.
type services struct {
	runner   *app.Runner
	limiter  *ratelimit.OracleLimiter
	state    *storage.StateFile
	history  telegram.History
	telegram *telegram.Client

	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, withTelegram bool) (*services, error) {
	svc := &services{}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	rc := retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}

	oracleClient, limiter, err := buildOracle(ctx, cfg, svc)
	if err != nil {
		return nil, err
	}
	svc.limiter = limiter

	ranker := topics.NewRanker(oracleClient,
		topics.WithTimeout(cfg.OracleTimeout),
		topics.WithScriptStyle(cfg.ScriptStyle),
		topics.WithLogger(logger.With("ranker")),
		topics.WithObserver(metrics.Global),
	)

	trend := twitter.NewClient(twitter.Config{
		APIKey:     cfg.TwitterAPIKey,
		Queries:    cfg.TwitterQueries,
		MaxResults: cfg.TwitterMaxResults,
		MaxAge:     cfg.TwitterMaxAge,
		QueryDelay: cfg.TwitterQueryDelay,
		Timeout:    cfg.RequestTimeout,
		Retry:      rc,
	}, logger.With("twitter"))

	news := buildNews(cfg, rc)

	svc.state = storage.NewStateFile(cfg.StateFilePath)
	if err := svc.state.Load(); err != nil {
		return nil, fmt.Errorf("load bot state: %w", err)
	}

	sinks, err := buildSinks(ctx, cfg, svc)
	if err != nil {
		return nil, err
	}

	var notifier app.Notifier
	if withTelegram && cfg.TelegramToken != "" {
		svc.telegram = telegram.NewClient(telegram.Config{
			Token:   cfg.TelegramToken,
			Timeout: cfg.RequestTimeout,
			Retry:   rc,
		}, logger.With("telegram"))
		notifier = telegram.NewNotifier(svc.telegram, svc.state, cfg.TelegramChatID,
			metrics.Global.IncrementMessagesSent, logger.With("notifier"))
	}

	svc.runner = app.NewRunner(app.Deps{
		Trend:           trend,
		News:            news,
		Ranker:          ranker,
		Sinks:           sinks,
		Notifier:        notifier,
		Metrics:         metrics.Global,
		ProducerTimeout: cfg.ProducerTimeout,
		Logger:          logger.Logger,
	})

	ok = true
	return svc, nil
}

// buildOracle chains the configured backends behind a daily budget and a response cache.
func buildOracle(ctx context.Context, cfg *config.Config, svc *services) (topics.Oracle, *ratelimit.OracleLimiter, error) {
	var providers []oracle.Provider
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		svc.closers = append(svc.closers, g.Close)
		providers = append(providers, g)
	}
	if cfg.OpenAIAPIKey != "" {
		o, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, "")
		if err != nil {
			return nil, nil, fmt.Errorf("openai client: %w", err)
		}
		providers = append(providers, o)
	}

	limiter := ratelimit.NewOracleLimiter(map[string]int{
		gemini.ProviderName: cfg.MaxGeminiRequests,
		openai.ProviderName: cfg.MaxOpenAIRequests,
	}, 0, logger.With("ratelimit"))

	chain := oracle.NewChain(providers, limiter, metrics.Global, logger.With("oracle"))

	var cached *oracle.Cached
	if cfg.RedisAddr != "" {
		store, err := rediscache.New(ctx, rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger.With("rediscache"))
		if err != nil {
			return nil, nil, fmt.Errorf("oracle cache: %w", err)
		}
		svc.closers = append(svc.closers, func() { _ = store.Close() })
		cached = oracle.NewCachedStore(chain, store, cfg.OracleCacheTTL, limiter)
	} else {
		cached = oracle.NewCached(chain, cfg.OracleCacheTTL, limiter)
	}
	svc.closers = append(svc.closers, cached.Close)

	logger.Info("oracle configured", "providers", chain.Len(), "cache_ttl", cfg.OracleCacheTTL)
	return cached, limiter, nil
}

// buildNews prefers the RapidAPI endpoints and falls back to RSS feeds.
func buildNews(cfg *config.Config, rc retry.RetryConfig) topics.Producer {
	leads := scraper.NewClient(cfg.RequestTimeout, logger.With("scraper"))
	primary := newsapi.NewClient(newsapi.Config{
		APIKey:     cfg.RapidAPIKey,
		MaxResults: cfg.NewsMaxResults,
		Timeout:    cfg.RequestTimeout,
		LeadBudget: cfg.ProducerTimeout / 3,
		Retry:      rc,
	}, leads, logger.With("newsapi"))

	feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil || len(feeds) == 0 {
		logger.Warn("rss fallback disabled", "path", cfg.FeedsConfigPath, "error", err)
		return primary
	}
	feed := rss.NewSource(feeds, cfg.NewsMaxResults, cfg.RequestTimeout, logger.With("rss"))
	return rss.Fallback(primary, feed, logger.With("news"))
}

func buildSinks(ctx context.Context, cfg *config.Config, svc *services) ([]app.Sink, error) {
	var sinks []app.Sink

	if cfg.GoogleSheetsID != "" {
		sheet, err := sheets.New(ctx, cfg.GoogleSheetsID, logger.With("sheets"),
			option.WithCredentialsFile(cfg.GoogleServiceAccountFile),
			option.WithScopes(sheetsapi.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("sheets sink: %w", err)
		}
		sinks = append(sinks, sheet)
		svc.history = sheet
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		store, err := storage.NewRunStore(ctx, cfg.DatabaseURL, logger.With("postgres"))
		if err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		svc.closers = append(svc.closers, func() { _ = store.Close() })
		sinks = append(sinks, store)
		// /recent reads from Postgres when it is configured.
		svc.history = store
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger.With("events"))
		svc.closers = append(svc.closers, func() { _ = pub.Close() })
		sinks = append(sinks, pub)
	}

	return sinks, nil
}
