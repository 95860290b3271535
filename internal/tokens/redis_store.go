package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	rdb "github.com/redis/go-redis/v9"
)

// RedisStore is a TokenStore and ConfigStore backed by redis.
//
// Records live under "tokens:{clientID}:{cacheKey}" and configurations under
// "config:{clientID}", with client ids lowercased. Records are written
// without a TTL; expiry policy stays with whoever operates the store.
type RedisStore struct {
	c *rdb.Client
}

// NewRedisStore creates a redis-backed store
func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db})}
}

// NewRedisStoreFromClient wraps an existing redis client
func NewRedisStoreFromClient(client *rdb.Client) *RedisStore {
	return &RedisStore{c: client}
}

// Get implements TokenStore
func (s *RedisStore) Get(ctx context.Context, clientID, cacheKey string) (*SecurityTokenRecord, error) {
	b, err := s.c.Get(ctx, tokensKey(clientID, cacheKey)).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}

	var record SecurityTokenRecord
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("failed to decode token record: %w", err)
	}
	return &record, nil
}

// Put implements TokenStore
func (s *RedisStore) Put(ctx context.Context, clientID, cacheKey string, record *SecurityTokenRecord) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}
	if err := s.c.Set(ctx, tokensKey(clientID, cacheKey), b, 0).Err(); err != nil {
		return fmt.Errorf("failed to write token record: %w", err)
	}
	return nil
}

// GetConfig implements ConfigStore
func (s *RedisStore) GetConfig(ctx context.Context, clientID string) (*ClientConfig, error) {
	b, err := s.c.Get(ctx, configKey(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read client configuration: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode client configuration: %w", err)
	}
	return &cfg, nil
}

// SetConfig stores a client configuration. Provided for provisioning
// tooling and tests; the broker itself only reads configuration.
func (s *RedisStore) SetConfig(ctx context.Context, cfg *ClientConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode client configuration: %w", err)
	}
	if err := s.c.Set(ctx, configKey(cfg.ClientID), b, 0).Err(); err != nil {
		return fmt.Errorf("failed to write client configuration: %w", err)
	}
	return nil
}

// Close releases the underlying redis client
func (s *RedisStore) Close() error {
	return s.c.Close()
}

func tokensKey(clientID, cacheKey string) string {
	return "tokens:" + strings.ToLower(clientID) + ":" + cacheKey
}

func configKey(clientID string) string {
	return "config:" + strings.ToLower(clientID)
}
