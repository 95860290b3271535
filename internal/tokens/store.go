package tokens

import (
	"context"
	"errors"
)

// Store lookup errors
var (
	// ErrRecordNotFound indicates no token record exists for the
	// (client id, cache key) pair
	ErrRecordNotFound = errors.New("security token record not found")

	// ErrConfigNotFound indicates no configuration exists for the client id
	ErrConfigNotFound = errors.New("client configuration not found")
)

// TokenStore persists security token records keyed by (client id, cache key).
//
// Put is last-writer-wins: two concurrent refreshes for the same cache key
// race on read-modify-write and the later write prevails. Both writers hold
// valid refresh material so the surviving record stays usable; the race is
// accepted rather than guarded (see DESIGN.md).
type TokenStore interface {
	// Get returns the record for (clientID, cacheKey).
	// Returns ErrRecordNotFound if absent.
	Get(ctx context.Context, clientID, cacheKey string) (*SecurityTokenRecord, error)

	// Put stores the record under (clientID, cacheKey), overwriting any
	// existing record
	Put(ctx context.Context, clientID, cacheKey string, record *SecurityTokenRecord) error
}

// ConfigStore reads per-client configuration. The broker never writes it.
type ConfigStore interface {
	// GetConfig returns the configuration for clientID.
	// Returns ErrConfigNotFound if absent.
	GetConfig(ctx context.Context, clientID string) (*ClientConfig, error)
}
