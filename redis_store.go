package tessera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a CredentialStore backed by Redis, for server-side SDK
// consumers (e.g. the organizer dashboard backend) that share one credential
// pair across processes. The entry expires with the refresh token so stale
// pairs age out on their own.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore returns a store persisting the pair under the given key.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load returns the stored pair, or (nil, nil) when no pair is stored.
func (s *RedisStore) Load(ctx context.Context) (*Credentials, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &creds, nil
}

// Save replaces the stored pair, bounding its TTL by the refresh expiry.
func (s *RedisStore) Save(ctx context.Context, creds *Credentials) error {
	if creds == nil {
		return s.Clear(ctx)
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	var ttl time.Duration
	if !creds.RefreshExpiry.IsZero() {
		ttl = time.Until(creds.RefreshExpiry)
		if ttl <= 0 {
			return s.Clear(ctx)
		}
	}
	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Clear removes the stored pair.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
