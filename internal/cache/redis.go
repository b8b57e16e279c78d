package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Domenick1991/flightservice/config"
	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps flight listings keyed by status. Any flight change drops
// all listings at once and bumps a generation counter; a listing read before
// the bump is never written back.
type RedisCache struct {
	client     redis.UniversalClient
	flightsTTL time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

func NewRedisCache(client redis.UniversalClient, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, flightsTTL: flightsTTL}
}

// GetFlights returns nil, nil on a miss.
func (c *RedisCache) GetFlights(ctx context.Context, status domain.FlightStatus) ([]domain.FlightDetails, error) {
	data, err := c.client.HGet(ctx, flightsKey, statusField(status)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var flights []domain.FlightDetails
	if err := json.Unmarshal(data, &flights); err != nil {
		return nil, err
	}
	return flights, nil
}

// FlightsGeneration returns the current invalidation generation. Read it
// before loading a listing and hand it to SetFlights.
func (c *RedisCache) FlightsGeneration(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetFlights stores a listing loaded at generation gen. It does nothing if an
// invalidation happened since.
func (c *RedisCache) SetFlights(ctx context.Context, gen int64, status domain.FlightStatus, flights []domain.FlightDetails) error {
	payload, err := json.Marshal(flights)
	if err != nil {
		return err
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, flightsKey, statusField(status), payload)
			pipe.Expire(ctx, flightsKey, c.flightsTTL)
			return nil
		})
		return err
	}, generationKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisCache) InvalidateFlights(ctx context.Context) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, generationKey)
	pipe.Del(ctx, flightsKey)
	_, err := pipe.Exec(ctx)
	return err
}

const (
	flightsKey    = "cache:flights"
	generationKey = "cache:flights:gen"
)

func statusField(status domain.FlightStatus) string {
	if status == "" {
		return "all"
	}
	return string(status)
}
