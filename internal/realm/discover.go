package realm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iqcloud/acsbroker/internal/httpx"
)

const bearerRealmPrefix = `Bearer realm="`

// Discoverer recovers the authentication realm of a target site by probing
// it with an empty bearer credential and reading the challenge header.
type Discoverer struct {
	client *http.Client
}

// NewDiscoverer creates a realm discoverer
func NewDiscoverer(timeout time.Duration, transport http.RoundTripper) *Discoverer {
	return &Discoverer{client: httpx.NewClient(timeout, transport)}
}

// FromTargetURL returns the realm GUID advertised by the site at siteURL.
//
// The site answers an unauthenticated request with a WWW-Authenticate
// challenge of the form `Bearer realm="<guid>"`. A missing challenge or a
// malformed realm yields "" rather than an error: older or differently
// configured sites simply have no discoverable realm.
func (d *Discoverer) FromTargetURL(ctx context.Context, siteURL string) (string, error) {
	probeURL := strings.TrimRight(siteURL, "/") + "/_vti_bin/client.svc"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer ")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", httpx.WrapTimeout(err)
	}
	defer resp.Body.Close()

	challenge := resp.Header.Get("WWW-Authenticate")
	if challenge == "" {
		return "", nil
	}

	idx := strings.Index(challenge, bearerRealmPrefix)
	if idx < 0 {
		return "", nil
	}

	rest := challenge[idx+len(bearerRealmPrefix):]
	if len(rest) < 36 {
		return "", nil
	}

	candidate := rest[:36]
	if _, err := uuid.Parse(candidate); err != nil {
		return "", nil
	}
	return candidate, nil
}
