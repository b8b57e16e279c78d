package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightservice/config"
	"github.com/Domenick1991/flightservice/internal/balance"
	"github.com/Domenick1991/flightservice/internal/cache"
	"github.com/Domenick1991/flightservice/internal/kafka"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/notify"
	"github.com/Domenick1991/flightservice/internal/realtime"
	"github.com/Domenick1991/flightservice/internal/repository"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const eventBuffer = 1024

// Infra holds the connections both binaries share.
type Infra struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Cache    *cache.RedisCache
	Producer *kafka.Producer
	Events   *kafka.EventSink
	Stream   message.Subscriber
	Notifier *notify.Fanout
	Balance  *balance.Client

	closers []func() error
}

// OpenInfra connects to Postgres, Redis and Kafka and assembles the event
// fan-out: every event goes to the realtime stream and is queued for the Kafka
// event log. The caller must run Events.
func OpenInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	infra := &Infra{}

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	infra.DB = db
	infra.closers = append(infra.closers, func() error { db.Close(); return nil })
	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			infra.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	infra.Redis = cache.NewRedisClient(cfg.Redis)
	infra.closers = append(infra.closers, infra.Redis.Close)
	infra.Cache = cache.NewRedisCache(infra.Redis, cfg.Redis.CacheTTL())

	infra.Producer = kafka.NewProducer(cfg.Kafka.Brokers)
	infra.closers = append(infra.closers, infra.Producer.Close)
	if err := infra.Producer.CheckConnection(ctx); err != nil {
		logrus.WithError(err).Warn("kafka is not reachable yet; events will be retried")
	}

	pub, sub, err := realtime.NewRedisStream(infra.Redis, logging.NewWatermill(logrus.WithField("component", "realtime")))
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("realtime stream: %w", err)
	}
	infra.Stream = sub
	infra.closers = append(infra.closers, pub.Close, sub.Close)

	infra.Events = kafka.NewEventSink(infra.Producer, cfg.Kafka.EventsTopic, eventBuffer)
	infra.Notifier = notify.NewFanout(
		realtime.NewStreamSink(pub, cfg.Realtime.Topic),
		infra.Events,
	)

	infra.Balance = balance.NewClient(balance.Config{
		BaseURL:         cfg.Balance.BaseURL,
		InternalKey:     cfg.Balance.InternalKey,
		Timeout:         cfg.Balance.Timeout(),
		BreakerFailures: uint32(cfg.Balance.BreakerFailures),
		BreakerCooldown: cfg.Balance.BreakerCooldown(),
	})
	return infra, nil
}

// Close releases everything in reverse order of opening.
func (i *Infra) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		if err := i.closers[j](); err != nil {
			logrus.WithError(err).Warn("closing infrastructure")
		}
	}
	i.closers = nil
}
