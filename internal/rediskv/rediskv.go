// Package rediskv keeps the session cache in Redis for deployments that run
// several console processes against one cache.
package rediskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/log"

	"github.com/redis/go-redis/v9"
)

// Store namespaces keys under prefix and expires them after ttl. A zero ttl keeps keys forever.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

func New(client *redis.Client, prefix string, ttl time.Duration, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default(log.ComponentSession)
	}
	return &Store{client: client, prefix: prefix, ttl: ttl, logger: logger.WithComponent(log.ComponentSession)}
}

// NewFromURL connects to a redis:// URL and verifies the connection.
func NewFromURL(ctx context.Context, url, prefix string, ttl time.Duration, logger *log.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s := New(client, prefix, ttl, logger)
	s.logger.InfoContext(ctx, "Redis session store connected", "addr", opts.Addr, "db", opts.DB)
	return s, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
