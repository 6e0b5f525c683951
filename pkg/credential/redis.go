package credential

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "appraiser:credential:openai"

// RedisProvider stores the key under one fixed redis key with no expiry.
type RedisProvider struct {
	client redis.UniversalClient
	key    string
}

func NewRedisProvider(client redis.UniversalClient, key string) *RedisProvider {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	return &RedisProvider{client: client, key: key}
}

func (p *RedisProvider) Get(ctx context.Context) (string, bool, error) {
	val, err := p.client.Get(ctx, p.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	val = strings.TrimSpace(val)
	return val, val != "", nil
}

func (p *RedisProvider) Set(ctx context.Context, key string) error {
	key, err := ValidateKey(key)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, p.key, key, 0).Err()
}

func (p *RedisProvider) Clear(ctx context.Context) error {
	return p.client.Del(ctx, p.key).Err()
}
