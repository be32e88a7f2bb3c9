package sink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/logger"
)

// redisMaxLen caps the alert stream, trimmed approximately.
const redisMaxLen = 10000

// Redis appends every alert to a Redis stream with XADD.
type Redis struct {
	client *redis.Client
	stream string
}

// NewRedis connects to the server described by cfg.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("connect to Redis %s: %w", cfg.Address, err)
	}

	logger.InfoKV(ctx, "Appending alerts to Redis stream", "address", cfg.Address, "stream", cfg.Stream)

	return &Redis{
		client: client,
		stream: cfg.Stream,
	}, nil
}

// Present appends the alerts of the frame to the stream.
func (s *Redis) Present(ctx context.Context, r *Result) error {
	if r == nil {
		return nil
	}

	for _, a := range r.Alerts {
		payload, err := marshalAlert(a)
		if err != nil {
			return writeError("redis", err)
		}

		err = s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: redisMaxLen,
			Approx: true,
			Values: map[string]any{
				"session_id": a.SessionID,
				"class":      a.Class,
				"frame":      strconv.Itoa(a.FrameIndex),
				"confidence": strconv.FormatFloat(a.Confidence, 'f', 4, 64),
				"data":       string(payload),
			},
		}).Err()
		if err != nil {
			return writeError("redis", fmt.Errorf("xadd %s: %w", s.stream, err))
		}
	}

	return nil
}

// Close closes the client.
func (s *Redis) Close() error {
	return s.client.Close()
}
