package tokens

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/iqcloud/acsbroker/internal/exchange"
)

const targetPrincipal = "00000003-0000-0ff1-ce00-000000000000"

// fakeExchanger records grant calls and returns scripted responses
type fakeExchanger struct {
	refreshCalls  int
	appOnlyCalls  int
	lastPrincipal string
	lastResource  string
	lastRefresh   string
	refreshErr    error
	appOnlyErr    error
	response      *exchange.TokenResponse
}

func (f *fakeExchanger) RefreshGrant(ctx context.Context, endpoint, principal, clientSecret, refreshToken, resource string) (*exchange.TokenResponse, error) {
	f.refreshCalls++
	f.lastPrincipal = principal
	f.lastResource = resource
	f.lastRefresh = refreshToken
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.response, nil
}

func (f *fakeExchanger) ClientCredentialsGrant(ctx context.Context, endpoint, principal, clientSecret, resource string) (*exchange.TokenResponse, error) {
	f.appOnlyCalls++
	f.lastPrincipal = principal
	f.lastResource = resource
	if f.appOnlyErr != nil {
		return nil, f.appOnlyErr
	}
	return f.response, nil
}

// fakeResolver returns a fixed endpoint
type fakeResolver struct {
	endpoint string
	lastBase string
}

func (f *fakeResolver) S2SEndpointAt(ctx context.Context, endpointBase, realm string) (string, error) {
	f.lastBase = endpointBase
	return f.endpoint, nil
}

func newTestCoordinator(store *MemoryStore, exchanger *fakeExchanger) *Coordinator {
	return NewCoordinator(CoordinatorConfig{
		TokenStore:  store,
		ConfigStore: store,
		Exchanger:   exchanger,
		Resolver:    &fakeResolver{endpoint: "https://sts.example.net/tokens/OAuth/2"},
	})
}

func TestRefreshUserAccessToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	record := testRecord()
	if err := store.Put(ctx, record.ClientID, "key-1", record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	expires := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	exchanger := &fakeExchanger{
		response: &exchange.TokenResponse{AccessToken: "fresh-token", ExpiresOn: expires},
	}
	coordinator := newTestCoordinator(store, exchanger)

	resp, err := coordinator.RefreshUserAccessToken(ctx, "key-1", record, targetPrincipal, "tenant.example.com", "secret-1")
	if err != nil {
		t.Fatalf("RefreshUserAccessToken failed: %v", err)
	}
	if resp.AccessToken != "fresh-token" {
		t.Errorf("AccessToken = %q, want fresh-token", resp.AccessToken)
	}

	// Grant identities follow the {name}[/{host}]@{realm} format
	if want := record.ClientID + "@" + record.Realm; exchanger.lastPrincipal != want {
		t.Errorf("caller principal = %q, want %q", exchanger.lastPrincipal, want)
	}
	if want := targetPrincipal + "/tenant.example.com@" + record.Realm; exchanger.lastResource != want {
		t.Errorf("resource = %q, want %q", exchanger.lastResource, want)
	}
	if exchanger.lastRefresh != "refresh-token-1" {
		t.Errorf("refresh token = %q, want refresh-token-1", exchanger.lastRefresh)
	}

	// The refreshed token is persisted
	stored, err := store.Get(ctx, record.ClientID, "key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.AccessToken != "fresh-token" {
		t.Errorf("stored AccessToken = %q, want fresh-token", stored.AccessToken)
	}
	if !stored.AccessTokenExpires.Equal(expires) {
		t.Errorf("stored AccessTokenExpires = %v, want %v", stored.AccessTokenExpires, expires)
	}
}

func TestRefreshUserAccessToken_NoWriteOnFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	original := testRecord()
	if err := store.Put(ctx, original.ClientID, "key-1", original); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exchanger := &fakeExchanger{
		refreshErr: &exchange.Error{StatusCode: 401, Body: `{"error":"invalid_grant"}`},
	}
	coordinator := newTestCoordinator(store, exchanger)

	record := original.Clone()
	_, err := coordinator.RefreshUserAccessToken(ctx, "key-1", record, targetPrincipal, "tenant.example.com", "secret-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var exchErr *exchange.Error
	if !errors.As(err, &exchErr) {
		t.Fatalf("error type = %T, want *exchange.Error", err)
	}

	// The stored record must be untouched
	stored, getErr := store.Get(ctx, original.ClientID, "key-1")
	if getErr != nil {
		t.Fatalf("Get failed: %v", getErr)
	}
	if !reflect.DeepEqual(stored, original) {
		t.Errorf("stored record changed after failed refresh:\n got %+v\nwant %+v", stored, original)
	}
}

func TestAppOnlyAccessToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	record := testRecord()
	store.SetConfig(&ClientConfig{ClientID: record.ClientID, ClientSecret: "secret-1"})
	if err := store.Put(ctx, record.ClientID, "key-1", record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exchanger := &fakeExchanger{
		response: &exchange.TokenResponse{AccessToken: "app-token"},
	}
	coordinator := newTestCoordinator(store, exchanger)

	for i := 0; i < 2; i++ {
		token, err := coordinator.AppOnlyAccessToken(ctx, record.ClientID, "key-1", targetPrincipal)
		if err != nil {
			t.Fatalf("AppOnlyAccessToken call %d failed: %v", i, err)
		}
		if token != "app-token" {
			t.Errorf("token = %q, want app-token", token)
		}
	}

	// App-only tokens are never cached: every call exchanges
	if exchanger.appOnlyCalls != 2 {
		t.Errorf("exchange calls = %d, want 2", exchanger.appOnlyCalls)
	}

	// The host authority comes from the stored record's site URL
	if want := targetPrincipal + "/tenant.example.com@" + record.Realm; exchanger.lastResource != want {
		t.Errorf("resource = %q, want %q", exchanger.lastResource, want)
	}

	// The stored record is not mutated
	stored, err := store.Get(ctx, record.ClientID, "key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.AccessToken != "access-token-1" {
		t.Errorf("stored AccessToken = %q, want access-token-1 (unchanged)", stored.AccessToken)
	}
}

func TestAppOnlyAccessToken_MissingRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetConfig(&ClientConfig{ClientID: "client-a", ClientSecret: "secret-1"})

	coordinator := newTestCoordinator(store, &fakeExchanger{})

	_, err := coordinator.AppOnlyAccessToken(ctx, "client-a", "missing", targetPrincipal)
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("error = %v, want ErrRecordNotFound", err)
	}
}

func TestHostAuthority(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://tenant.example.com/sites/app", "tenant.example.com", false},
		{"https://tenant.example.com:8443/", "tenant.example.com:8443", false},
		{"not a url at all\x7f", "", true},
		{"/relative/path", "", true},
	}

	for _, tt := range tests {
		got, err := HostAuthority(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("HostAuthority(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("HostAuthority(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("HostAuthority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
