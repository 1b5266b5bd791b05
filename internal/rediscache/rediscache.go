// Package rediscache stores oracle replies in Redis so separate processes share them.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deusflow/banterbot/internal/logger"
)

const keyPrefix = "banterbot:oracle:"

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Store implements oracle.Store on a Redis connection.
type Store struct {
	rdb    *redis.Client
	log    *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New connects and verifies the connection with a PING.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb, log: logger.OrDefault(log).With("component", "rediscache")}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	v, err := s.rdb.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Error("cache get failed", "key", key, "error", err)
		}
		s.misses.Add(1)
		return "", false
	}
	s.hits.Add(1)
	return v, true
}

// Set stores value. Errors are logged, not returned.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := s.rdb.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		s.log.Error("cache set failed", "key", key, "error", err)
	}
}

// Flush removes every cached reply and returns how many keys went.
func (s *Store) Flush(ctx context.Context) (int64, error) {
	var deleted int64
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan %s: %w", keyPrefix, err)
	}
	return deleted, nil
}

func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
