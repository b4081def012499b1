package cli

import (
	"context"
	"time"

	"github.com/kmassidik/engagement/internal/common/clickhouse"
	"github.com/kmassidik/engagement/internal/common/db"
	"github.com/kmassidik/engagement/internal/common/kafka"
	"github.com/kmassidik/engagement/internal/common/redis"
	"github.com/kmassidik/engagement/internal/rating"
)

// ratingStack owns every connection a rating.Service was built from
type ratingStack struct {
	service  rating.Service
	database *db.DB
	closers  []func() error
}

func (s *ratingStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warnf("Failed to close connection: %v", err)
		}
	}
}

// connectRating connects Postgres and whichever optional backends are
// configured. Optional backends that fail to connect are logged and skipped,
// except ClickHouse, which is a sink and must not silently go stale.
func connectRating(ctx context.Context, withPublisher bool) (*ratingStack, error) {
	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	stack := &ratingStack{database: database, closers: []func() error{database.Close}}

	deps := rating.Dependencies{
		Source: rating.NewPostgresSource(database.DB, cfg.Rating.SourceTable),
		Sink:   rating.NewPostgresSink(database, cfg.Rating.TargetTable),
		Reader: rating.NewProfileReader(database.DB, cfg.Rating.TargetTable),
		DB:     database,
		Logger: log,
	}

	if cfg.ClickHouse.Enabled() {
		ch, err := clickhouse.Connect(cfg.ClickHouse, log)
		if err != nil {
			stack.Close()
			return nil, err
		}
		stack.closers = append(stack.closers, ch.Close)
		deps.Mirrors = append(deps.Mirrors, rating.NewClickHouseSink(ch.Conn, cfg.Rating.TargetTable))
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.Connect(cfg.Redis, log)
		if err != nil {
			log.Warnf("Continuing without Redis: %v", err)
		} else {
			stack.closers = append(stack.closers, redisClient.Close)
			deps.Redis = redisClient
		}
	}

	if withPublisher && cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, log)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := producer.Ping(pingCtx)
		cancel()
		if err != nil {
			producer.Close()
			log.Warnf("Continuing without Kafka producer: %v", err)
		} else {
			stack.closers = append(stack.closers, producer.Close)
			deps.Publisher = producer
		}
	}

	stack.service = rating.NewService(cfg.Rating, deps)
	return stack, nil
}
