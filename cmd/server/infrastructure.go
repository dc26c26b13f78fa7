package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"salesflow/internal/config"
	"salesflow/internal/domain/sales"
	"salesflow/internal/infrastructure/filestore"
	"salesflow/internal/infrastructure/http/v1/handlers"
	"salesflow/internal/infrastructure/lock"
	"salesflow/internal/infrastructure/notify"
	"salesflow/pkg/logger"
)

// infrastructure holds the optional external services of the server.
// Unset parts leave the sales service on its in-process defaults.
type infrastructure struct {
	notifier     sales.Notifier
	files        sales.FileStore
	locker       sales.DocumentLocker
	healthChecks map[string]handlers.Pinger

	closers []func() error
	log     *logger.Logger
}

func newInfrastructure(ctx context.Context, cfg *config.Config, log *logger.Logger) (*infrastructure, error) {
	infra := &infrastructure{
		notifier:     notify.LogNotifier{},
		healthChecks: make(map[string]handlers.Pinger),
		log:          log,
	}

	switch cfg.Notify.Driver {
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("notify driver kafka requires kafka.brokers")
		}
		n := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		infra.notifier = n
		infra.closers = append(infra.closers, n.Close)
		log.Infow("kafka notifications enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	case "pubsub":
		n, err := notify.NewPubSubNotifier(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic, cfg.PubSub.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("pubsub notifier: %w", err)
		}
		infra.notifier = n
		infra.closers = append(infra.closers, n.Close)
		log.Infow("pubsub notifications enabled", "project", cfg.PubSub.ProjectID, "topic", cfg.PubSub.Topic)
	}

	if cfg.GCS.Bucket != "" {
		store, err := filestore.NewGCS(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix, cfg.GCS.CredentialsJSON)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("gcs file store: %w", err)
		}
		infra.files = store
		infra.closers = append(infra.closers, store.Close)
		log.Infow("proof images stored in gcs", "bucket", cfg.GCS.Bucket)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			infra.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		infra.locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		infra.closers = append(infra.closers, rdb.Close)
		infra.healthChecks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		log.Infow("document locks held in redis", "addr", cfg.Redis.Addr)
	}

	return infra, nil
}

// Close releases clients in reverse order of creation.
func (i *infrastructure) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		if err := i.closers[j](); err != nil {
			i.log.Warnw("failed to close client", "error", err)
		}
	}
	i.closers = nil
}
