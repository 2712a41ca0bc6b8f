package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCursorPrefix = "vocaviews:cursor:"

// RedisCursors persists positions in Redis so a restarted pass resumes where it stopped.
type RedisCursors struct {
	rdb *redis.Client
}

// NewRedisCursors connects to redisURL and verifies the server answers.
func NewRedisCursors(ctx context.Context, redisURL string) (*RedisCursors, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("cursors: redis connected", slog.String("addr", opts.Addr))
	return &RedisCursors{rdb: rdb}, nil
}

func (r *RedisCursors) Load(ctx context.Context, stream string) (int64, bool, error) {
	v, err := r.rdb.Get(ctx, redisCursorPrefix+stream).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r *RedisCursors) Save(ctx context.Context, stream string, lastSeen int64) error {
	return r.rdb.Set(ctx, redisCursorPrefix+stream, lastSeen, 0).Err()
}

func (r *RedisCursors) Close() error {
	return r.rdb.Close()
}
