package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"github.com/iqcloud/acsbroker/internal/events"
	"github.com/iqcloud/acsbroker/internal/principal"
	"github.com/iqcloud/acsbroker/internal/tokens"
)

// Launch errors
var (
	ErrUnknownClient = errors.New("no configuration for client")
	ErrNoCacheKey    = errors.New("context token carries no cache key")
)

// LaunchRequest carries the inputs of an app launch POST
type LaunchRequest struct {
	// TokenString is the raw context token posted by the resource provider
	TokenString string

	// RequestAuthority is the host authority the launch was posted to; the
	// token's audience is validated against it
	RequestAuthority string

	// ClientID identifies the launching client application
	ClientID string

	// AppWebURL is the site the app was launched from
	AppWebURL string

	// HostURL is the hosting site, when distinct from AppWebURL
	HostURL string
}

// LaunchResult is the outcome of a processed launch
type LaunchResult struct {
	// RedirectURL is where the launching browser should be sent
	RedirectURL string

	// CacheKey keys the stored token record for later acquisitions
	CacheKey string

	// EncodedCacheKey is the URL-safe form embedded in RedirectURL
	EncodedCacheKey string
}

// HandleLaunch validates a posted context token, primes the token cache for
// the launching client, emits the launch event and computes the redirect.
//
// The user token record is stored before the app-only exchange runs: a
// tenant that declines app-only permissions still gets a working user
// context, and the launch still succeeds.
func (s *ContextService) HandleLaunch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	ctx, probe := s.observer.LaunchStarted(ctx, req.ClientID, req.RequestAuthority)
	defer probe.End()

	result, err := s.handleLaunch(ctx, probe, req)
	if err != nil {
		probe.Failed(err)
		return nil, fmt.Errorf("launch failed for clientId=%s: %w", req.ClientID, err)
	}
	return result, nil
}

func (s *ContextService) handleLaunch(ctx context.Context, probe LaunchProbe, req LaunchRequest) (*LaunchResult, error) {
	cfg, err := s.configs.GetConfig(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, tokens.ErrConfigNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownClient, req.ClientID)
		}
		return nil, err
	}

	token, err := s.validator.Validate(req.TokenString, req.RequestAuthority, cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return nil, err
	}

	cacheKey := token.CacheKey()
	if cacheKey == "" {
		return nil, ErrNoCacheKey
	}
	tokenRealm := token.Realm()
	probe.TokenValidated(tokenRealm, cacheKey)

	authority, err := tokens.HostAuthority(req.AppWebURL)
	if err != nil {
		return nil, err
	}

	endpoint, err := s.resolver.S2SEndpointAt(ctx, token.STSEndpointBase(), tokenRealm)
	if err != nil {
		return nil, err
	}

	target := token.TargetPrincipalName()
	if target == "" {
		target = s.targetPrincipal
	}
	caller := principal.Format(cfg.ClientID, "", tokenRealm)
	resource := principal.Format(target, authority, tokenRealm)

	resp, err := s.exchanger.RefreshGrant(ctx, endpoint, caller, cfg.ClientSecret, token.RefreshToken(), resource)
	if err != nil {
		return nil, err
	}

	record := &tokens.SecurityTokenRecord{
		ClientID:           cfg.ClientID,
		AppWebURL:          req.AppWebURL,
		HostName:           req.HostURL,
		Realm:              tokenRealm,
		RefreshToken:       token.RefreshToken(),
		AccessToken:        resp.AccessToken,
		AccessTokenExpires: resp.ExpiresOn,
	}
	if err := s.store.Put(ctx, cfg.ClientID, cacheKey, record); err != nil {
		return nil, fmt.Errorf("failed to persist launch token record: %w", err)
	}
	probe.TokensStored(cacheKey)

	// App-only minting is best effort: the event still carries the user
	// token when the tenant declines app-only permissions.
	appToken := ""
	if appResp, err := s.exchanger.ClientCredentialsGrant(ctx, endpoint, caller, cfg.ClientSecret, resource); err == nil {
		appToken = appResp.AccessToken
	}

	if s.enqueuer != nil && cfg.NotificationQueueName != "" {
		event := &events.LaunchEvent{
			ClientID:        cfg.ClientID,
			AppWebURL:       req.AppWebURL,
			UserAccessToken: resp.AccessToken,
			AppAccessToken:  appToken,
			RetryCount:      events.DefaultRetryCount,
		}
		if err := s.enqueuer.Enqueue(ctx, event, cfg.NotificationQueueName, events.DefaultLaunchDelay); err != nil {
			return nil, fmt.Errorf("failed to enqueue launch event: %w", err)
		}
		probe.EventEnqueued(cfg.NotificationQueueName)
	}

	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(cacheKey))
	return &LaunchResult{
		RedirectURL:     launchRedirectURL(req.AppWebURL, cfg.ClientID, encodedKey),
		CacheKey:        cacheKey,
		EncodedCacheKey: encodedKey,
	}, nil
}

// launchRedirectURL builds the post-launch redirect target
func launchRedirectURL(appWebURL, clientID, encodedKey string) string {
	q := url.Values{}
	q.Set("cId", clientID)
	q.Set("cKey", encodedKey)
	return appWebURL + "?" + q.Encode()
}
