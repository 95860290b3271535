package contexttoken

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/iqcloud/acsbroker/internal/claims"
	"github.com/iqcloud/acsbroker/internal/principal"
)

// Claim types carried by a context token
const (
	ClaimNameID       = "nameid"
	ClaimAppCtxSender = "appctxsender"
	ClaimRefreshToken = "refreshtoken"
	ClaimAppCtx       = "appctx"
)

// ContextToken is a validated context token issued by the resource provider
// at app launch or remote event time. It carries the refresh material and
// cache key claims needed to mint access tokens later.
type ContextToken struct {
	// Issuer is the signing envelope's "iss" value
	Issuer string

	// Audience is the signing envelope's "aud" value. Validation guarantees
	// it matches the expected principal for the caller's client id and host.
	Audience string

	// ValidFrom and ValidTo bound the token's lifetime
	ValidFrom time.Time
	ValidTo   time.Time

	// Claims is the ordered claim bag from the token payload
	Claims *claims.ClaimSet

	cacheKey      string
	stsURI        string
	appCtxPresent bool
}

// appContext is the JSON object carried inside the "appctx" claim
type appContext struct {
	CacheKey                string `json:"CacheKey"`
	SecurityTokenServiceURI string `json:"SecurityTokenServiceUri"`
}

// NameID returns the "nameid" claim
func (t *ContextToken) NameID() string {
	return t.Claims.Value(ClaimNameID)
}

// TargetPrincipalName returns the principal name portion of the
// "appctxsender" claim
func (t *ContextToken) TargetPrincipalName() string {
	sender, ok := t.Claims.Get(ClaimAppCtxSender)
	if !ok {
		return ""
	}
	return principal.SplitTarget(sender)
}

// RefreshToken returns the "refreshtoken" claim
func (t *ContextToken) RefreshToken() string {
	return t.Claims.Value(ClaimRefreshToken)
}

// Realm returns the realm portion of the token's audience
func (t *ContextToken) Realm() string {
	return principal.RealmOf(t.Audience)
}

// CacheKey returns the CacheKey field of the "appctx" claim
func (t *ContextToken) CacheKey() string {
	return t.cacheKey
}

// SecurityTokenServiceURI returns the SecurityTokenServiceUri field of the
// "appctx" claim
func (t *ContextToken) SecurityTokenServiceURI() string {
	return t.stsURI
}

// STSEndpointBase returns the scheme and authority of the token's security
// token service URI, e.g. "https://accounts.accesscontrol.example.net".
// This replaces the process-wide endpoint host the original protocol
// implementations derive as a validation side effect: callers thread the
// value explicitly into realm metadata lookups. Returns "" when the token
// carries no usable STS URI.
func (t *ContextToken) STSEndpointBase() string {
	if t.stsURI == "" {
		return ""
	}
	u, err := url.Parse(t.stsURI)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// decodeAppContext extracts the nested JSON object from the "appctx" claim.
// Decoding is best effort: a missing or malformed claim leaves the derived
// fields empty rather than failing validation, matching the lenient handling
// of optional claims in the protocol.
func (t *ContextToken) decodeAppContext() {
	raw, ok := t.Claims.Get(ClaimAppCtx)
	if !ok || raw == "" {
		return
	}
	var actx appContext
	if err := json.Unmarshal([]byte(raw), &actx); err != nil {
		return
	}
	t.appCtxPresent = true
	t.cacheKey = actx.CacheKey
	t.stsURI = actx.SecurityTokenServiceURI
}
