package tokens

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory TokenStore and ConfigStore.
// It backs tests and single-process deployments; production deployments use
// the redis store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*SecurityTokenRecord
	configs map[string]*ClientConfig
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*SecurityTokenRecord),
		configs: make(map[string]*ClientConfig),
	}
}

// Get implements TokenStore
func (s *MemoryStore) Get(ctx context.Context, clientID, cacheKey string) (*SecurityTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordKey(clientID, cacheKey)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return record.Clone(), nil
}

// Put implements TokenStore
func (s *MemoryStore) Put(ctx context.Context, clientID, cacheKey string, record *SecurityTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[recordKey(clientID, cacheKey)] = record.Clone()
	return nil
}

// GetConfig implements ConfigStore
func (s *MemoryStore) GetConfig(ctx context.Context, clientID string) (*ClientConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[strings.ToLower(clientID)]
	if !ok {
		return nil, ErrConfigNotFound
	}
	out := *cfg
	return &out, nil
}

// SetConfig stores a client configuration. Configuration ownership is
// external in production; this exists for tests and local setups.
func (s *MemoryStore) SetConfig(cfg *ClientConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cfg
	s.configs[strings.ToLower(cfg.ClientID)] = &c
}

// recordKey scopes records by client id the way the original storage layout
// scoped blobs by client container: client ids are case-insensitive
func recordKey(clientID, cacheKey string) string {
	return strings.ToLower(clientID) + "/" + cacheKey
}
