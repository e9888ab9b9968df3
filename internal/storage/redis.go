package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/raine/landadmin/internal/credentials"
)

const (
	DefaultRedisPrefix = "landadmin:"
	redisOpTimeout     = 3 * time.Second
)

// RedisStore keeps values in Redis so several console processes share one
// session. Values are encrypted when an encryption key is set.
type RedisStore struct {
	client        *goredis.Client
	prefix        string
	encryptionKey []byte
}

var _ credentials.Storage = (*RedisStore)(nil)

// NewRedisStore wraps client. An empty prefix uses DefaultRedisPrefix and a nil
// encryptionKey stores values in plain text.
func NewRedisStore(client *goredis.Client, prefix string, encryptionKey []byte) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client:        client,
		prefix:        prefix,
		encryptionKey: encryptionKey,
	}
}

func (r *RedisStore) Get(key string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	if r.encryptionKey == nil {
		return value, nil
	}

	plaintext, err := Decrypt(value, r.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", key, err)
	}
	return string(plaintext), nil
}

func (r *RedisStore) Set(key, value string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if r.encryptionKey != nil {
		encrypted, err := Encrypt([]byte(value), r.encryptionKey)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
		value = encrypted
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
