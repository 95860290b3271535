package tokens

import (
	"context"
	"fmt"
	"net/url"

	"github.com/iqcloud/acsbroker/internal/exchange"
	"github.com/iqcloud/acsbroker/internal/principal"
)

// Exchanger issues OAuth2 grant requests against a resolved endpoint
type Exchanger interface {
	RefreshGrant(ctx context.Context, endpoint, principal, clientSecret, refreshToken, resource string) (*exchange.TokenResponse, error)
	ClientCredentialsGrant(ctx context.Context, endpoint, principal, clientSecret, resource string) (*exchange.TokenResponse, error)
}

// EndpointResolver resolves the OAuth2 endpoint for a realm
type EndpointResolver interface {
	S2SEndpointAt(ctx context.Context, endpointBase, realm string) (string, error)
}

// Coordinator refreshes access tokens against stored records.
//
// It owns the refresh-on-use semantics of the token cache: every user token
// request goes through the refresh grant and, on success, rewrites the
// stored record. App-only tokens are deliberately never cached; each request
// performs a fresh client-credentials exchange.
type Coordinator struct {
	store     TokenStore
	configs   ConfigStore
	exchanger Exchanger
	resolver  EndpointResolver
}

// CoordinatorConfig contains the coordinator's collaborators
type CoordinatorConfig struct {
	TokenStore  TokenStore
	ConfigStore ConfigStore
	Exchanger   Exchanger
	Resolver    EndpointResolver
}

// NewCoordinator creates a token cache coordinator
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		store:     cfg.TokenStore,
		configs:   cfg.ConfigStore,
		exchanger: cfg.Exchanger,
		resolver:  cfg.Resolver,
	}
}

// RefreshUserAccessToken exchanges the record's refresh token for a fresh
// user access token, then persists the updated record under cacheKey.
//
// On exchange failure the stored record is left untouched: a stale access
// token is recoverable, a half-written record is not.
func (c *Coordinator) RefreshUserAccessToken(ctx context.Context, cacheKey string, record *SecurityTokenRecord, targetPrincipal, hostAuthority, clientSecret string) (*exchange.TokenResponse, error) {
	endpoint, err := c.resolver.S2SEndpointAt(ctx, "", record.Realm)
	if err != nil {
		return nil, err
	}

	caller := principal.Format(record.ClientID, "", record.Realm)
	resource := principal.Format(targetPrincipal, hostAuthority, record.Realm)

	resp, err := c.exchanger.RefreshGrant(ctx, endpoint, caller, clientSecret, record.RefreshToken, resource)
	if err != nil {
		return nil, err
	}

	record.AccessToken = resp.AccessToken
	record.AccessTokenExpires = resp.ExpiresOn
	if err := c.store.Put(ctx, record.ClientID, cacheKey, record); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token record: %w", err)
	}

	return resp, nil
}

// AppOnlyAccessToken mints an app-only access token for the record stored
// under (clientID, cacheKey). The record is read but never mutated, and the
// result is not cached.
func (c *Coordinator) AppOnlyAccessToken(ctx context.Context, clientID, cacheKey, targetPrincipal string) (string, error) {
	cfg, err := c.configs.GetConfig(ctx, clientID)
	if err != nil {
		return "", err
	}

	record, err := c.store.Get(ctx, clientID, cacheKey)
	if err != nil {
		return "", err
	}

	authority, err := HostAuthority(record.AppWebURL)
	if err != nil {
		return "", err
	}

	endpoint, err := c.resolver.S2SEndpointAt(ctx, "", record.Realm)
	if err != nil {
		return "", err
	}

	caller := principal.Format(record.ClientID, "", record.Realm)
	resource := principal.Format(targetPrincipal, authority, record.Realm)

	resp, err := c.exchanger.ClientCredentialsGrant(ctx, endpoint, caller, cfg.ClientSecret, resource)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// HostAuthority returns the host authority of a site URL
func HostAuthority(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("invalid site URL %q: %w", siteURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("site URL %q has no host", siteURL)
	}
	return u.Host, nil
}
