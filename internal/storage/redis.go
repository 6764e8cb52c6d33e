package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis"

	logx "remindbot/pkg/logx"
)

const defaultRedisKey = "remindbot:reminders"

// redisStore keeps the blob under one key; SET replaces it atomically.
type redisStore struct {
	client *redis.Client
	key    string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = defaultRedisKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Debug("redis storage connected", logx.String("addr", addr), logx.String("key", key))
	return &redisStore{client: client, key: key, log: log}, nil
}

func (s *redisStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := s.client.WithContext(ctx).Get(s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *redisStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.WithContext(ctx).Set(s.key, data, 0).Err()
}

func (s *redisStore) Close() error { return s.client.Close() }
