// Package exchange implements the two OAuth2 grant flows used to mint
// access tokens against a realm's security token service: the refresh-token
// grant (delegated user identity) and the client-credentials grant (app-only
// identity).
//
// Both flows POST a form-encoded grant request to the endpoint resolved from
// realm metadata and parse a JSON access-token response.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iqcloud/acsbroker/internal/clock"
	"github.com/iqcloud/acsbroker/internal/httpx"
)

// OAuth2 grant types used against the security token service
const (
	grantTypeRefreshToken      = "refresh_token"
	grantTypeClientCredentials = "client_credentials"
)

// Error is a failed exchange response. The upstream body is carried
// verbatim: operators diagnose federation failures (e.g. "invalid_client")
// primarily from that text, so it is never swallowed.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("token exchange failed with status %d - %s", e.StatusCode, e.Body)
}

// TokenResponse is a successful access token response
type TokenResponse struct {
	// AccessToken is the minted bearer token
	AccessToken string

	// ExpiresOn is when the token stops being valid. The upstream's expiry
	// reporting is historically unreliable; treat it as advisory.
	ExpiresOn time.Time
}

// tokenResponseWire is the access token response wire format
type tokenResponseWire struct {
	AccessToken string      `json:"access_token"`
	ExpiresOn   json.Number `json:"expires_on"`
	ExpiresIn   json.Number `json:"expires_in"`
	TokenType   string      `json:"token_type"`
}

// Client issues grant requests to resolved OAuth2 endpoints
type Client struct {
	client *http.Client
	clock  clock.Clock
}

// ClientConfig contains configuration for the exchange client
type ClientConfig struct {
	// Timeout bounds a single exchange call (default: httpx.DefaultTimeout)
	Timeout time.Duration

	// Transport is an optional HTTP transport, used by tests to inject
	// fixture responses
	Transport http.RoundTripper

	// Clock is the time source for expiry computation
	// If nil, uses system clock
	Clock clock.Clock
}

// NewClient creates an exchange client
func NewClient(cfg ClientConfig) *Client {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Client{
		client: httpx.NewClient(cfg.Timeout, cfg.Transport),
		clock:  clk,
	}
}

// RefreshGrant exchanges a refresh token for an access token.
//
// principal is the caller identity ("{clientId}@{realm}") and resource is
// the target identity ("{name}/{host}@{realm}").
func (c *Client) RefreshGrant(ctx context.Context, endpoint, principal, clientSecret, refreshToken, resource string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", grantTypeRefreshToken)
	form.Set("client_id", principal)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("resource", resource)
	return c.issue(ctx, endpoint, form)
}

// ClientCredentialsGrant mints an app-only access token from the client's
// own credentials. principal and resource follow the same format as
// RefreshGrant.
func (c *Client) ClientCredentialsGrant(ctx context.Context, endpoint, principal, clientSecret, resource string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", grantTypeClientCredentials)
	form.Set("client_id", principal)
	form.Set("client_secret", clientSecret)
	form.Set("resource", resource)
	return c.issue(ctx, endpoint, form)
}

func (c *Client) issue(ctx context.Context, endpoint string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, httpx.WrapTimeout(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var wire tokenResponseWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode exchange response: %w", err)
	}
	if wire.AccessToken == "" {
		return nil, fmt.Errorf("exchange response contains no access token")
	}

	return &TokenResponse{
		AccessToken: wire.AccessToken,
		ExpiresOn:   c.expiry(wire),
	}, nil
}

// expiry derives the token deadline from the response. The token service
// reports "expires_on" as epoch seconds; "expires_in" is accepted as a
// fallback for endpoints that only report a lifetime.
func (c *Client) expiry(wire tokenResponseWire) time.Time {
	if wire.ExpiresOn != "" {
		if secs, err := wire.ExpiresOn.Int64(); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	if wire.ExpiresIn != "" {
		if secs, err := wire.ExpiresIn.Int64(); err == nil {
			return c.clock.Now().Add(time.Duration(secs) * time.Second).UTC()
		}
	}
	return time.Time{}
}
