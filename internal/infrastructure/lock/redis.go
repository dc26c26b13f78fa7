// Package lock provides a Redis-backed document lock shared by all
// service instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"salesflow/internal/core/apperror"
	"salesflow/internal/domain/sales"
	"salesflow/pkg/logger"
)

type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// RedisLocker implements sales.DocumentLocker with redislock.
type RedisLocker struct {
	client obtainer
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisLocker creates a locker. A lock is held for at most ttl.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 5),
	}
}

// Lock implements sales.DocumentLocker. A lock held elsewhere after the
// retries yields DOCUMENT_LOCKED.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lk, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperror.NewDocumentLocked(documentOf(key))
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "failed to release document lock", "key", key, "error", err)
		}
	}, nil
}

// documentOf extracts the document id from "sales:document:<id>".
func documentOf(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}

var _ sales.DocumentLocker = (*RedisLocker)(nil)
