package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iqcloud/acsbroker/internal/credtoken"
	"github.com/iqcloud/acsbroker/internal/tokens"
)

func newCredentialService(t *testing.T) *ContextService {
	t.Helper()

	store := tokens.NewMemoryStore()
	store.SetConfig(&tokens.ClientConfig{
		ClientID:      testClientID,
		ClientSecret:  "secret-1",
		CredentialKey: &tokens.CredentialKeyConfig{Password: "credential-password", Salt: "client-salt"},
	})
	store.SetConfig(&tokens.ClientConfig{
		ClientID:     "keyless-client",
		ClientSecret: "secret-2",
	})

	return NewContextService(ContextServiceConfig{
		ConfigStore: store,
		TokenStore:  store,
	})
}

func TestSealCredential_RoundTrip(t *testing.T) {
	svc := newCredentialService(t)
	ctx := context.Background()

	cred := Credential{
		SiteURL:  testAppWebURL,
		Username: "tenant\\service-account",
		Password: "account-password",
	}

	token, err := svc.SealCredential(ctx, testClientID, cred)
	if err != nil {
		t.Fatalf("SealCredential failed: %v", err)
	}
	if strings.Contains(token, cred.Password) {
		t.Error("sealed token leaks the password")
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q is not URL-safe", token)
	}

	got, err := svc.OpenCredential(ctx, testClientID, token)
	if err != nil {
		t.Fatalf("OpenCredential failed: %v", err)
	}
	if *got != cred {
		t.Errorf("OpenCredential() = %+v, want %+v", got, cred)
	}
}

func TestSealCredential_Rejections(t *testing.T) {
	svc := newCredentialService(t)
	ctx := context.Background()
	cred := Credential{Username: "user", Password: "pw"}

	t.Run("unknown client", func(t *testing.T) {
		_, err := svc.SealCredential(ctx, "unregistered-client", cred)
		if !errors.Is(err, ErrUnknownClient) {
			t.Errorf("error = %v, want ErrUnknownClient", err)
		}
	})

	t.Run("no credential key", func(t *testing.T) {
		_, err := svc.SealCredential(ctx, "keyless-client", cred)
		if !errors.Is(err, ErrNoCredentialKey) {
			t.Errorf("error = %v, want ErrNoCredentialKey", err)
		}
	})
}

func TestOpenCredential_BadToken(t *testing.T) {
	svc := newCredentialService(t)
	ctx := context.Background()

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.OpenCredential(ctx, testClientID, "not-a-credential-token")
		if !errors.Is(err, credtoken.ErrOpenFailed) {
			t.Errorf("error = %v, want ErrOpenFailed", err)
		}
	})

	t.Run("token sealed under a different key", func(t *testing.T) {
		other, err := credtoken.NewSealer("other-password", "other-salt")
		if err != nil {
			t.Fatalf("NewSealer failed: %v", err)
		}
		token, err := other.Seal(`{"username":"user","password":"pw"}`)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}

		_, err = svc.OpenCredential(ctx, testClientID, token)
		if !errors.Is(err, credtoken.ErrOpenFailed) {
			t.Errorf("error = %v, want ErrOpenFailed", err)
		}
	})
}
