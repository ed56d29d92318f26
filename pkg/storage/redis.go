package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "report:preview:"

// RedisStorage keeps preview artifacts in Redis and lets keys expire natively.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage builds a Redis backed artifact store.
func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStorage{client: client, ttl: ttl}
}

// Create buffers the artifact and stores it on Close. An existing key is never overwritten.
func (s *RedisStorage) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if name == "" {
		return nil, fmt.Errorf("artifact name required")
	}
	return &redisWriter{ctx: ctx, store: s, key: redisKeyPrefix + name}, nil
}

// Read returns the artifact contents.
func (s *RedisStorage) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("read preview artifact: %w", err)
	}
	return data, nil
}

// Delete removes the artifact key.
func (s *RedisStorage) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+name).Err(); err != nil {
		return fmt.Errorf("delete preview artifact: %w", err)
	}
	return nil
}

// CleanupOlderThan is a no-op; Redis expires artifacts on its own.
func (s *RedisStorage) CleanupOlderThan(context.Context, time.Duration) ([]string, error) {
	return nil, nil
}

type redisWriter struct {
	ctx    context.Context
	store  *RedisStorage
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *redisWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed artifact")
	}
	return w.buf.Write(p)
}

func (w *redisWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	ok, err := w.store.client.SetNX(w.ctx, w.key, w.buf.Bytes(), w.store.ttl).Result()
	if err != nil {
		return fmt.Errorf("store preview artifact: %w", err)
	}
	if !ok {
		return fmt.Errorf("preview artifact %s already exists", w.key)
	}
	return nil
}
