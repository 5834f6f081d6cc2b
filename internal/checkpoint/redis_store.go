package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Ceezar89/ezbot-sub000/internal/metrics"
)

// Redis circuit breaker settings
const (
	RedisMinRequests     = 3                // Minimum requests before tripping
	RedisFailureRatio    = 0.6              // Failure ratio threshold (60%)
	RedisOpenTimeout     = 30 * time.Second // How long circuit stays open
	RedisHalfOpenMaxReqs = 1                // Max requests in half-open state
	RedisCountInterval   = 60 * time.Second // Window for counting failures

	defaultRedisTimeout = 500 * time.Millisecond
	defaultRedisPrefix  = "ezbot:checkpoint:"
)

// RedisOptions configures a RedisStore. Zero values use defaults.
type RedisOptions struct {
	Prefix  string
	TTL     time.Duration // 0 keeps blobs forever
	Timeout time.Duration // per operation
}

// RedisStore keeps blobs in Redis behind a circuit breaker, so an unavailable
// Redis costs one fast failure per checkpoint interval instead of a timeout.
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	opts    RedisOptions
}

// NewRedisStore wraps client.
func NewRedisStore(client *redis.Client, opts RedisOptions) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRedisTimeout
	}

	s := &RedisStore{client: client, opts: opts}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "checkpoint_redis",
		MaxRequests: RedisHalfOpenMaxReqs,
		Interval:    RedisCountInterval,
		Timeout:     RedisOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= RedisMinRequests && failureRatio >= RedisFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Checkpoint store circuit breaker changed state")
			metrics.UpdateBreakerState("redis", to.String())
		},
	})
	metrics.UpdateBreakerState("redis", s.breaker.State().String())
	return s, nil
}

// State returns the breaker state.
func (s *RedisStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *RedisStore) redisKey(key string) string {
	return s.opts.Prefix + key
}

// Save stores data under key.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		return nil, s.client.Set(opCtx, s.redisKey(key), data, s.opts.TTL).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to save %s to redis: %w", key, err)
	}
	return nil
}

// Load reads the blob under key. A missing key is not a breaker failure.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		data, err := s.client.Get(opCtx, s.redisKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return []byte(nil), nil
		}
		return data, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s from redis: %w", key, err)
	}
	data, _ := out.([]byte)
	if data == nil {
		return nil, ErrNotFound
	}
	return data, nil
}
