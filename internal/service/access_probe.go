package service

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/iqcloud/acsbroker/internal/httpx"
)

// AccessProbe verifies that an access token can actually read the target
// site. The broker uses it to distinguish "token minted" from "token
// honored": a tenant can decline the app-only principal while the token
// service still mints tokens for it.
type AccessProbe interface {
	// HasAccess performs a minimal read against appWebURL with the token.
	// false means the site rejected the credential; an error means the
	// probe itself could not run.
	HasAccess(ctx context.Context, appWebURL, accessToken string) (bool, error)
}

// HTTPAccessProbe probes access with a bearer GET against the site root
type HTTPAccessProbe struct {
	client *http.Client
}

// NewHTTPAccessProbe creates an HTTP access probe
func NewHTTPAccessProbe(timeout time.Duration, transport http.RoundTripper) *HTTPAccessProbe {
	return &HTTPAccessProbe{client: httpx.NewClient(timeout, transport)}
}

// HasAccess implements AccessProbe
func (p *HTTPAccessProbe) HasAccess(ctx context.Context, appWebURL, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, appWebURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return false, httpx.WrapTimeout(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return true, nil
	default:
		return false, &httpProbeError{status: resp.StatusCode}
	}
}

type httpProbeError struct {
	status int
}

func (e *httpProbeError) Error() string {
	return "access probe returned unexpected status " + http.StatusText(e.status)
}
