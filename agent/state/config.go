package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendUpstash = "upstash"
)

type Config struct {
	Backend       string        `envconfig:"BACKEND" split_words:"true" default:"memory"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" split_words:"true" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" split_words:"true"`
	RedisDB       int           `envconfig:"REDIS_DB" split_words:"true" default:"0"`
	UpstashURL    string        `envconfig:"UPSTASH_URL" split_words:"true"`
	UpstashToken  string        `envconfig:"UPSTASH_TOKEN" split_words:"true"`
	KeyPrefix     string        `envconfig:"KEY_PREFIX" split_words:"true" default:"atod:thread:"`
	TTL           time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
	Timeout       time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// NewStore builds the configured backend. Redis connectivity is checked
// up front so a bad address fails at startup rather than mid-conversation.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(cfg.TTL), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		store, err := NewRedisStore(client, cfg.TTL)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		if prefix := strings.TrimSpace(cfg.KeyPrefix); prefix != "" {
			store.keyPrefix = prefix
		}
		return store, nil
	case BackendUpstash:
		return NewUpstashRedisStore(UpstashRedisConfig{
			URL:     cfg.UpstashURL,
			Token:   cfg.UpstashToken,
			Timeout: cfg.Timeout,
		}, WithTTL(cfg.TTL), WithKeyPrefix(cfg.KeyPrefix))
	default:
		return nil, fmt.Errorf("unsupported memory backend %q", cfg.Backend)
	}
}
