package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListClient is the part of *redis.Client the list source uses.
type ListClient interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// NewRedisClient opens a client for addr.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  -1, // BRPOP blocks longer than any fixed read timeout
		WriteTimeout: 3 * time.Second,
	})
}

// #region redis-source
// RedisSource pops JSON jobs from a Redis list. Producers LPUSH, the source
// BRPOPs, so jobs come out oldest first.
type RedisSource struct {
	client ListClient
	key    string
	poll   time.Duration
	log    *zap.Logger
}

func NewRedisSource(client ListClient, key string, log *zap.Logger) *RedisSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisSource{client: client, key: key, poll: 5 * time.Second, log: log}
}

func (s *RedisSource) Run(ctx context.Context, enqueue EnqueueFunc) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := s.client.BRPop(ctx, s.poll, s.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("redis pop failed", zap.String("key", s.key), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		// BRPOP replies [key, value]
		if len(res) != 2 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			s.log.Warn("redis job rejected", zap.String("payload", res[1]), zap.Error(err))
			continue
		}
		if err := enqueue(ctx, job); err != nil {
			s.log.Warn("redis job not enqueued", zap.String("item_id", job.ItemID), zap.Error(err))
		}
	}
}

// #endregion redis-source

// Push appends a job to the list for any RedisSource reading key.
func Push(ctx context.Context, client ListClient, key string, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}
