package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps transcripts in a Redis server over the native protocol.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return &RedisStore{client: client, keyPrefix: DefaultKeyPrefix, ttl: ttl}, nil
}

func (s *RedisStore) Load(ctx context.Context, threadID string) (*Transcript, error) {
	key, err := redisKey(s.keyPrefix, threadID)
	if err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return decodeTranscript(data)
}

func (s *RedisStore) Save(ctx context.Context, t *Transcript) error {
	payload, err := encodeTranscript(t)
	if err != nil {
		return err
	}
	key, err := redisKey(s.keyPrefix, t.ThreadID)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	key, err := redisKey(s.keyPrefix, threadID)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
