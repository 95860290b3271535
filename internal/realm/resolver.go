// Package realm resolves per-realm protocol endpoints from the token
// service's metadata document.
//
// Each realm (tenant GUID) publishes a JSON metadata document at
// "{endpointBase}/metadata/json/1?realm={realm}" listing its protocol
// endpoints. The broker only needs the endpoint whose protocol is "OAuth2":
// that is where grant requests are POSTed.
package realm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/iqcloud/acsbroker/internal/httpx"
)

// S2SProtocol identifies the OAuth2 server-to-server endpoint in a
// metadata document
const S2SProtocol = "OAuth2"

const metadataPath = "/metadata/json/1"

// ErrEndpointMissing indicates the metadata document has no OAuth2 endpoint
var ErrEndpointMissing = errors.New("metadata document does not contain an OAuth2 endpoint")

// Metadata is the realm metadata document wire format
type Metadata struct {
	ServiceName string            `json:"serviceName"`
	Endpoints   []Endpoint        `json:"endpoints"`
	Keys        []json.RawMessage `json:"keys"`
}

// Endpoint is a single protocol endpoint in a metadata document
type Endpoint struct {
	Location string `json:"location"`
	Protocol string `json:"protocol"`
	Usage    string `json:"usage"`
}

// Resolver fetches and caches realm metadata documents.
//
// Metadata lookups sit on the synchronous path of every token exchange, so
// the resolver retries transient failures with exponential backoff and
// caches documents per (endpoint base, realm) with a TTL.
type Resolver struct {
	endpointBase string
	client       *http.Client
	cache        *gocache.Cache
	maxTries     uint
}

// ResolverConfig contains configuration for metadata resolution
type ResolverConfig struct {
	// EndpointBase is the default scheme://authority of the global metadata
	// endpoint, used when a lookup does not supply its own base.
	EndpointBase string

	// Timeout bounds a single metadata fetch (default: httpx.DefaultTimeout)
	Timeout time.Duration

	// CacheTTL is how long a fetched document is served from cache.
	// Zero means no caching; every lookup refetches.
	CacheTTL time.Duration

	// MaxTries bounds fetch attempts per lookup (default: 3)
	MaxTries uint

	// Transport is an optional HTTP transport, used by tests to inject
	// fixture responses
	Transport http.RoundTripper
}

// NewResolver creates a metadata resolver
func NewResolver(cfg ResolverConfig) *Resolver {
	maxTries := cfg.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}

	var c *gocache.Cache
	if cfg.CacheTTL > 0 {
		c = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	return &Resolver{
		endpointBase: cfg.EndpointBase,
		client:       httpx.NewClient(cfg.Timeout, cfg.Transport),
		cache:        c,
		maxTries:     maxTries,
	}
}

// S2SEndpoint resolves the OAuth2 endpoint URL for a realm using the
// resolver's default endpoint base
func (r *Resolver) S2SEndpoint(ctx context.Context, realm string) (string, error) {
	return r.S2SEndpointAt(ctx, r.endpointBase, realm)
}

// S2SEndpointAt resolves the OAuth2 endpoint URL for a realm against an
// explicit endpoint base. Validated context tokens carry their own STS
// authority; callers pass it here instead of relying on process-wide state.
func (r *Resolver) S2SEndpointAt(ctx context.Context, endpointBase, realm string) (string, error) {
	if endpointBase == "" {
		endpointBase = r.endpointBase
	}

	doc, err := r.Metadata(ctx, endpointBase, realm)
	if err != nil {
		return "", err
	}

	for _, ep := range doc.Endpoints {
		if ep.Protocol == S2SProtocol {
			return ep.Location, nil
		}
	}
	return "", fmt.Errorf("%w: realm %s", ErrEndpointMissing, realm)
}

// Metadata fetches the metadata document for a realm, serving from cache
// when a fresh copy is available
func (r *Resolver) Metadata(ctx context.Context, endpointBase, realm string) (*Metadata, error) {
	cacheKey := endpointBase + "|" + realm
	if r.cache != nil {
		if cached, ok := r.cache.Get(cacheKey); ok {
			return cached.(*Metadata), nil
		}
	}

	metadataURL := endpointBase + metadataPath + "?realm=" + url.QueryEscape(realm)

	doc, err := backoff.Retry(ctx, func() (*Metadata, error) {
		return r.fetch(ctx, metadataURL)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(r.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata for realm %s: %w", realm, httpx.WrapTimeout(err))
	}

	if r.cache != nil {
		r.cache.Set(cacheKey, doc, gocache.DefaultExpiration)
	}
	return doc, nil
}

func (r *Resolver) fetch(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		// Transport errors are retryable, cancellation is not
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("metadata endpoint returned %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var doc Metadata
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode metadata document: %w", err))
	}
	return &doc, nil
}
