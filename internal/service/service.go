// Package service implements the broker's two entry points: acquiring a
// client context for a previously launched app, and processing a new app
// launch. It composes the token store, the realm resolver, the exchange
// client and the access probe into the acquisition policy.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iqcloud/acsbroker/internal/contexttoken"
	"github.com/iqcloud/acsbroker/internal/events"
	"github.com/iqcloud/acsbroker/internal/exchange"
	"github.com/iqcloud/acsbroker/internal/realm"
	"github.com/iqcloud/acsbroker/internal/tokens"
)

// DefaultTargetPrincipal is the well-known principal name of the resource
// provider the broker exchanges tokens for.
const DefaultTargetPrincipal = "00000003-0000-0ff1-ce00-000000000000"

// ContextHandle is a usable client context: a site URL plus an access token
// that has been verified (or at least freshly minted) against it.
type ContextHandle struct {
	// AppWebURL is the site the token grants access to
	AppWebURL string

	// AccessToken is the bearer token for AppWebURL
	AccessToken string

	// AppOnly tells whether the token carries app-only identity rather
	// than the launching user's
	AppOnly bool
}

// Authorization returns the Authorization header value for the handle
func (h *ContextHandle) Authorization() string {
	return "Bearer " + h.AccessToken
}

// RealmDiscoverer recovers the authentication realm of a site from its
// bearer challenge
type RealmDiscoverer interface {
	FromTargetURL(ctx context.Context, siteURL string) (string, error)
}

// ContextService acquires client contexts from cached token records
type ContextService struct {
	configs         tokens.ConfigStore
	store           tokens.TokenStore
	coordinator     *tokens.Coordinator
	validator       *contexttoken.Validator
	resolver        *realm.Resolver
	discoverer      RealmDiscoverer
	exchanger       tokens.Exchanger
	access          AccessProbe
	enqueuer        events.Enqueuer
	observer        Observer
	targetPrincipal string
}

// ContextServiceConfig contains the service's collaborators
type ContextServiceConfig struct {
	ConfigStore tokens.ConfigStore
	TokenStore  tokens.TokenStore
	Coordinator *tokens.Coordinator
	Validator   *contexttoken.Validator
	Resolver    *realm.Resolver
	Exchanger   tokens.Exchanger
	AccessProbe AccessProbe

	// Discoverer recovers the realm of records stored without one, e.g.
	// records primed out of band from just a site URL; nil disables recovery
	Discoverer RealmDiscoverer

	// Enqueuer delivers launch events; nil disables event delivery
	Enqueuer events.Enqueuer

	// Observer receives acquisition and launch telemetry; nil means NoOp
	Observer Observer

	// TargetPrincipal overrides DefaultTargetPrincipal when set
	TargetPrincipal string
}

// NewContextService creates a context service
func NewContextService(cfg ContextServiceConfig) *ContextService {
	observer := cfg.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}
	target := cfg.TargetPrincipal
	if target == "" {
		target = DefaultTargetPrincipal
	}
	return &ContextService{
		configs:         cfg.ConfigStore,
		store:           cfg.TokenStore,
		coordinator:     cfg.Coordinator,
		validator:       cfg.Validator,
		resolver:        cfg.Resolver,
		discoverer:      cfg.Discoverer,
		exchanger:       cfg.Exchanger,
		access:          cfg.AccessProbe,
		enqueuer:        cfg.Enqueuer,
		observer:        observer,
		targetPrincipal: target,
	}
}

// AcquireContext returns a verified client context for (clientID, cacheKey),
// or nil when no usable context exists.
//
// The user context is always refreshed first, even for app-only requests:
// the refresh grant is what keeps the stored refresh token alive. A user
// context that fails the access probe ends the acquisition; the site has
// revoked the user and an app-only token must not paper over that. When
// appOnly is set the service then mints an app-only token and probes it,
// falling back to the user context only when fallbackToUser allows it.
func (s *ContextService) AcquireContext(ctx context.Context, clientID, cacheKey string, appOnly, fallbackToUser bool) (*ContextHandle, error) {
	ctx, probe := s.observer.ContextAcquisitionStarted(ctx, clientID, cacheKey, appOnly, fallbackToUser)
	defer probe.End()

	handle, err := s.acquire(ctx, probe, clientID, cacheKey, appOnly, fallbackToUser)
	if err != nil {
		probe.Failed(err)
		return nil, fmt.Errorf("unable to get context for clientId=%s cacheKey=%s: %w", clientID, cacheKey, err)
	}
	return handle, nil
}

func (s *ContextService) acquire(ctx context.Context, probe AcquisitionProbe, clientID, cacheKey string, appOnly, fallbackToUser bool) (*ContextHandle, error) {
	cfg, record, err := s.load(ctx, clientID, cacheKey)
	if err != nil {
		return nil, err
	}
	if cfg == nil || record == nil {
		probe.RecordMissing()
		return nil, nil
	}

	authority, err := tokens.HostAuthority(record.AppWebURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.coordinator.RefreshUserAccessToken(ctx, cacheKey, record, s.targetPrincipal, authority, cfg.ClientSecret)
	if err != nil {
		return nil, err
	}
	probe.UserTokenRefreshed(resp.ExpiresOn)

	user := &ContextHandle{AppWebURL: record.AppWebURL, AccessToken: record.AccessToken}

	ok, err := s.access.HasAccess(ctx, user.AppWebURL, user.AccessToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The site rejected the user token. App-only identity would
		// outlive the user's revocation, so there is no fallback here.
		probe.UserAccessDenied()
		return nil, nil
	}

	if !appOnly {
		return user, nil
	}

	appToken, err := s.coordinator.AppOnlyAccessToken(ctx, clientID, cacheKey, s.targetPrincipal)
	if err != nil {
		return nil, err
	}
	probe.AppOnlyTokenIssued()

	app := &ContextHandle{AppWebURL: record.AppWebURL, AccessToken: appToken, AppOnly: true}

	ok, err = s.access.HasAccess(ctx, app.AppWebURL, app.AccessToken)
	if err != nil {
		return nil, err
	}
	if ok {
		return app, nil
	}

	probe.AppOnlyAccessDenied(fallbackToUser)
	if fallbackToUser {
		return user, nil
	}
	return nil, nil
}

// AcquireAccessToken returns a raw access token for (clientID, cacheKey)
// without probing site access. The empty string means no record exists.
//
// Callers that only need a bearer string for an outbound call use this; the
// probing path in AcquireContext is for handing a context to interactive
// work where acting on a revoked site must be prevented up front.
func (s *ContextService) AcquireAccessToken(ctx context.Context, clientID, cacheKey string, appOnly bool) (string, error) {
	ctx, probe := s.observer.ContextAcquisitionStarted(ctx, clientID, cacheKey, appOnly, false)
	defer probe.End()

	token, err := s.acquireToken(ctx, probe, clientID, cacheKey, appOnly)
	if err != nil {
		probe.Failed(err)
		return "", fmt.Errorf("unable to get context for clientId=%s cacheKey=%s: %w", clientID, cacheKey, err)
	}
	return token, nil
}

func (s *ContextService) acquireToken(ctx context.Context, probe AcquisitionProbe, clientID, cacheKey string, appOnly bool) (string, error) {
	cfg, record, err := s.load(ctx, clientID, cacheKey)
	if err != nil {
		return "", err
	}
	if cfg == nil || record == nil {
		probe.RecordMissing()
		return "", nil
	}

	authority, err := tokens.HostAuthority(record.AppWebURL)
	if err != nil {
		return "", err
	}

	resp, err := s.coordinator.RefreshUserAccessToken(ctx, cacheKey, record, s.targetPrincipal, authority, cfg.ClientSecret)
	if err != nil {
		return "", err
	}
	probe.UserTokenRefreshed(resp.ExpiresOn)

	if !appOnly {
		return record.AccessToken, nil
	}

	appToken, err := s.coordinator.AppOnlyAccessToken(ctx, clientID, cacheKey, s.targetPrincipal)
	if err != nil {
		return "", err
	}
	probe.AppOnlyTokenIssued()
	return appToken, nil
}

// AppOnlyContext is AcquireContext with app-only identity and no user
// fallback
func (s *ContextService) AppOnlyContext(ctx context.Context, clientID, cacheKey string) (*ContextHandle, error) {
	return s.AcquireContext(ctx, clientID, cacheKey, true, false)
}

// load fetches the client configuration and token record, translating the
// stores' not-found errors into nils.
func (s *ContextService) load(ctx context.Context, clientID, cacheKey string) (*tokens.ClientConfig, *tokens.SecurityTokenRecord, error) {
	cfg, err := s.configs.GetConfig(ctx, clientID)
	if err != nil {
		if errors.Is(err, tokens.ErrConfigNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	record, err := s.store.Get(ctx, clientID, cacheKey)
	if err != nil {
		if errors.Is(err, tokens.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	// Records primed out of band may carry only the site URL. Recover the
	// realm from the site's bearer challenge; the next successful refresh
	// persists it with the record.
	if record.Realm == "" && s.discoverer != nil {
		discovered, err := s.discoverer.FromTargetURL(ctx, record.AppWebURL)
		if err != nil {
			return nil, nil, err
		}
		if discovered == "" {
			return nil, nil, fmt.Errorf("unable to determine realm for site %s", record.AppWebURL)
		}
		record.Realm = discovered
	}
	return cfg, record, nil
}

var _ tokens.Exchanger = (*exchange.Client)(nil)
