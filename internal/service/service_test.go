package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iqcloud/acsbroker/internal/exchange"
	"github.com/iqcloud/acsbroker/internal/tokens"
)

const (
	testClientID  = "4c9d4c44-6f83-4786-8d16-a1b7a9bcbc8a"
	testCacheKey  = "cache-key-1"
	testRealmGUID = "29ea9d1c-41b4-4946-9b06-b4d99ee4ba1a"
	testAppWebURL = "https://tenant.example.com/sites/app"
)

// fakeExchanger scripts grant outcomes and counts calls
type fakeExchanger struct {
	userToken  string
	appToken   string
	refreshErr error
	appOnlyErr error

	refreshCalls int
	appOnlyCalls int
}

func (f *fakeExchanger) RefreshGrant(ctx context.Context, endpoint, principal, clientSecret, refreshToken, resource string) (*exchange.TokenResponse, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &exchange.TokenResponse{
		AccessToken: f.userToken,
		ExpiresOn:   time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeExchanger) ClientCredentialsGrant(ctx context.Context, endpoint, principal, clientSecret, resource string) (*exchange.TokenResponse, error) {
	f.appOnlyCalls++
	if f.appOnlyErr != nil {
		return nil, f.appOnlyErr
	}
	return &exchange.TokenResponse{AccessToken: f.appToken}, nil
}

// fakeEndpointResolver returns a fixed endpoint without network access
type fakeEndpointResolver struct{}

func (fakeEndpointResolver) S2SEndpointAt(ctx context.Context, endpointBase, realm string) (string, error) {
	return "https://sts.example.net/tokens/OAuth/2", nil
}

// fakeAccessProbe scripts per-token access decisions
type fakeAccessProbe struct {
	granted map[string]bool
	err     error
	calls   int
}

func (f *fakeAccessProbe) HasAccess(ctx context.Context, appWebURL, accessToken string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.granted[accessToken], nil
}

// fakeDiscoverer scripts realm recovery from a site URL
type fakeDiscoverer struct {
	realm string
	calls int
}

func (f *fakeDiscoverer) FromTargetURL(ctx context.Context, siteURL string) (string, error) {
	f.calls++
	return f.realm, nil
}

type serviceFixture struct {
	service   *ContextService
	store     *tokens.MemoryStore
	exchanger *fakeExchanger
	probe     *fakeAccessProbe
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	store := tokens.NewMemoryStore()
	store.SetConfig(&tokens.ClientConfig{
		ClientID:     testClientID,
		ClientSecret: "secret-1",
	})

	record := &tokens.SecurityTokenRecord{
		ClientID:     testClientID,
		AppWebURL:    testAppWebURL,
		Realm:        testRealmGUID,
		RefreshToken: "refresh-token-1",
		AccessToken:  "stale-token",
	}
	if err := store.Put(context.Background(), testClientID, testCacheKey, record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exchanger := &fakeExchanger{userToken: "user-token", appToken: "app-token"}
	probe := &fakeAccessProbe{granted: map[string]bool{"user-token": true, "app-token": true}}

	coordinator := tokens.NewCoordinator(tokens.CoordinatorConfig{
		TokenStore:  store,
		ConfigStore: store,
		Exchanger:   exchanger,
		Resolver:    fakeEndpointResolver{},
	})

	svc := NewContextService(ContextServiceConfig{
		ConfigStore: store,
		TokenStore:  store,
		Coordinator: coordinator,
		Exchanger:   exchanger,
		AccessProbe: probe,
	})

	return &serviceFixture{service: svc, store: store, exchanger: exchanger, probe: probe}
}

func TestAcquireContext_UserContext(t *testing.T) {
	f := newServiceFixture(t)

	handle, err := f.service.AcquireContext(context.Background(), testClientID, testCacheKey, false, false)
	if err != nil {
		t.Fatalf("AcquireContext failed: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if handle.AccessToken != "user-token" {
		t.Errorf("AccessToken = %q, want user-token", handle.AccessToken)
	}
	if handle.AppOnly {
		t.Error("AppOnly = true for user context")
	}
	if handle.AppWebURL != testAppWebURL {
		t.Errorf("AppWebURL = %q, want %q", handle.AppWebURL, testAppWebURL)
	}
	if got := handle.Authorization(); got != "Bearer user-token" {
		t.Errorf("Authorization() = %q", got)
	}

	// The refreshed token was persisted
	stored, err := f.store.Get(context.Background(), testClientID, testCacheKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.AccessToken != "user-token" {
		t.Errorf("stored AccessToken = %q, want user-token", stored.AccessToken)
	}
}

func TestAcquireContext_MissingRecord(t *testing.T) {
	f := newServiceFixture(t)

	tests := []struct {
		name     string
		clientID string
		cacheKey string
	}{
		{"unknown client", "unknown-client", testCacheKey},
		{"unknown cache key", testClientID, "unknown-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle, err := f.service.AcquireContext(context.Background(), tt.clientID, tt.cacheKey, false, false)
			if err != nil {
				t.Fatalf("AcquireContext failed: %v", err)
			}
			if handle != nil {
				t.Errorf("handle = %+v, want nil", handle)
			}
		})
	}
}

func TestAcquireContext_UserAccessDenied(t *testing.T) {
	f := newServiceFixture(t)
	f.probe.granted["user-token"] = false

	// Even an app-only request with fallback ends when the user context is
	// rejected by the site.
	handle, err := f.service.AcquireContext(context.Background(), testClientID, testCacheKey, true, true)
	if err != nil {
		t.Fatalf("AcquireContext failed: %v", err)
	}
	if handle != nil {
		t.Errorf("handle = %+v, want nil", handle)
	}
	if f.exchanger.appOnlyCalls != 0 {
		t.Errorf("app-only exchange ran %d times after user denial, want 0", f.exchanger.appOnlyCalls)
	}
}

func TestAcquireContext_AppOnly(t *testing.T) {
	f := newServiceFixture(t)

	handle, err := f.service.AcquireContext(context.Background(), testClientID, testCacheKey, true, false)
	if err != nil {
		t.Fatalf("AcquireContext failed: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if !handle.AppOnly {
		t.Error("AppOnly = false, want true")
	}
	if handle.AccessToken != "app-token" {
		t.Errorf("AccessToken = %q, want app-token", handle.AccessToken)
	}

	// The user refresh still ran first to keep the refresh token alive
	if f.exchanger.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", f.exchanger.refreshCalls)
	}
}

func TestAcquireContext_AppOnlyDenied(t *testing.T) {
	t.Run("falls back to user when allowed", func(t *testing.T) {
		f := newServiceFixture(t)
		f.probe.granted["app-token"] = false

		handle, err := f.service.AcquireContext(context.Background(), testClientID, testCacheKey, true, true)
		if err != nil {
			t.Fatalf("AcquireContext failed: %v", err)
		}
		if handle == nil {
			t.Fatal("handle is nil")
		}
		if handle.AppOnly {
			t.Error("AppOnly = true, want user fallback")
		}
		if handle.AccessToken != "user-token" {
			t.Errorf("AccessToken = %q, want user-token", handle.AccessToken)
		}
	})

	t.Run("nil without fallback", func(t *testing.T) {
		f := newServiceFixture(t)
		f.probe.granted["app-token"] = false

		handle, err := f.service.AcquireContext(context.Background(), testClientID, testCacheKey, true, false)
		if err != nil {
			t.Fatalf("AcquireContext failed: %v", err)
		}
		if handle != nil {
			t.Errorf("handle = %+v, want nil", handle)
		}
	})
}

func TestAcquireContext_ExchangeFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.exchanger.refreshErr = &exchange.Error{StatusCode: 401, Body: `{"error":"invalid_grant"}`}

	_, err := f.service.AcquireContext(context.Background(), testClientID, testCacheKey, false, false)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// Unexpected failures carry the request identifiers for diagnosis
	if !strings.Contains(err.Error(), "clientId="+testClientID) {
		t.Errorf("error %q does not name the client id", err.Error())
	}
	if !strings.Contains(err.Error(), "cacheKey="+testCacheKey) {
		t.Errorf("error %q does not name the cache key", err.Error())
	}

	var exchErr *exchange.Error
	if !errors.As(err, &exchErr) {
		t.Errorf("error chain does not expose the exchange error: %v", err)
	}
}

func TestAcquireAccessToken(t *testing.T) {
	t.Run("user token without probing", func(t *testing.T) {
		f := newServiceFixture(t)

		token, err := f.service.AcquireAccessToken(context.Background(), testClientID, testCacheKey, false)
		if err != nil {
			t.Fatalf("AcquireAccessToken failed: %v", err)
		}
		if token != "user-token" {
			t.Errorf("token = %q, want user-token", token)
		}
		if f.probe.calls != 0 {
			t.Errorf("access probe ran %d times, want 0", f.probe.calls)
		}
	})

	t.Run("app-only token", func(t *testing.T) {
		f := newServiceFixture(t)

		token, err := f.service.AcquireAccessToken(context.Background(), testClientID, testCacheKey, true)
		if err != nil {
			t.Fatalf("AcquireAccessToken failed: %v", err)
		}
		if token != "app-token" {
			t.Errorf("token = %q, want app-token", token)
		}
	})

	t.Run("missing record yields empty token", func(t *testing.T) {
		f := newServiceFixture(t)

		token, err := f.service.AcquireAccessToken(context.Background(), testClientID, "unknown-key", false)
		if err != nil {
			t.Fatalf("AcquireAccessToken failed: %v", err)
		}
		if token != "" {
			t.Errorf("token = %q, want empty", token)
		}
	})
}

// newDiscoveryFixture seeds a record without a realm, as an out-of-band
// priming path would, and wires a scripted discoverer.
func newDiscoveryFixture(t *testing.T, discoverer *fakeDiscoverer) *serviceFixture {
	t.Helper()

	store := tokens.NewMemoryStore()
	store.SetConfig(&tokens.ClientConfig{
		ClientID:     testClientID,
		ClientSecret: "secret-1",
	})

	record := &tokens.SecurityTokenRecord{
		ClientID:     testClientID,
		AppWebURL:    testAppWebURL,
		RefreshToken: "refresh-token-1",
		AccessToken:  "stale-token",
	}
	if err := store.Put(context.Background(), testClientID, testCacheKey, record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exchanger := &fakeExchanger{userToken: "user-token", appToken: "app-token"}
	probe := &fakeAccessProbe{granted: map[string]bool{"user-token": true, "app-token": true}}

	svc := NewContextService(ContextServiceConfig{
		ConfigStore: store,
		TokenStore:  store,
		Coordinator: tokens.NewCoordinator(tokens.CoordinatorConfig{
			TokenStore:  store,
			ConfigStore: store,
			Exchanger:   exchanger,
			Resolver:    fakeEndpointResolver{},
		}),
		Exchanger:   exchanger,
		AccessProbe: probe,
		Discoverer:  discoverer,
	})

	return &serviceFixture{service: svc, store: store, exchanger: exchanger, probe: probe}
}

func TestAcquireAccessToken_RealmRecovered(t *testing.T) {
	discoverer := &fakeDiscoverer{realm: testRealmGUID}
	f := newDiscoveryFixture(t, discoverer)

	token, err := f.service.AcquireAccessToken(context.Background(), testClientID, testCacheKey, false)
	if err != nil {
		t.Fatalf("AcquireAccessToken failed: %v", err)
	}
	if token != "user-token" {
		t.Errorf("token = %q, want user-token", token)
	}
	if discoverer.calls != 1 {
		t.Errorf("discoverer ran %d times, want 1", discoverer.calls)
	}

	// The recovered realm is persisted with the refreshed record
	stored, err := f.store.Get(context.Background(), testClientID, testCacheKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Realm != testRealmGUID {
		t.Errorf("stored Realm = %q, want %q", stored.Realm, testRealmGUID)
	}
}

func TestAcquireAccessToken_RealmUnrecoverable(t *testing.T) {
	f := newDiscoveryFixture(t, &fakeDiscoverer{realm: ""})

	_, err := f.service.AcquireAccessToken(context.Background(), testClientID, testCacheKey, false)
	if err == nil {
		t.Fatal("expected error for a record whose realm cannot be recovered")
	}
	if !strings.Contains(err.Error(), "unable to determine realm") {
		t.Errorf("error %q does not name the realm failure", err.Error())
	}
	if f.exchanger.refreshCalls != 0 {
		t.Errorf("refresh ran %d times without a realm, want 0", f.exchanger.refreshCalls)
	}
}

func TestAcquireContext_RealmDiscoveryNotNeeded(t *testing.T) {
	// Records that already carry a realm never trigger discovery
	discoverer := &fakeDiscoverer{realm: "other-realm"}
	f := newDiscoveryFixture(t, discoverer)

	record := &tokens.SecurityTokenRecord{
		ClientID:     testClientID,
		AppWebURL:    testAppWebURL,
		Realm:        testRealmGUID,
		RefreshToken: "refresh-token-1",
		AccessToken:  "stale-token",
	}
	if err := f.store.Put(context.Background(), testClientID, testCacheKey, record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	handle, err := f.service.AcquireContext(context.Background(), testClientID, testCacheKey, false, false)
	if err != nil {
		t.Fatalf("AcquireContext failed: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if discoverer.calls != 0 {
		t.Errorf("discoverer ran %d times, want 0", discoverer.calls)
	}
	stored, err := f.store.Get(context.Background(), testClientID, testCacheKey)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Realm != testRealmGUID {
		t.Errorf("stored Realm = %q, want %q untouched", stored.Realm, testRealmGUID)
	}
}

func TestAppOnlyContext(t *testing.T) {
	f := newServiceFixture(t)
	f.probe.granted["app-token"] = false

	// AppOnlyContext never falls back to the user context
	handle, err := f.service.AppOnlyContext(context.Background(), testClientID, testCacheKey)
	if err != nil {
		t.Fatalf("AppOnlyContext failed: %v", err)
	}
	if handle != nil {
		t.Errorf("handle = %+v, want nil", handle)
	}
}
