package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iqcloud/acsbroker/internal/credtoken"
	"github.com/iqcloud/acsbroker/internal/tokens"
)

// ErrNoCredentialKey indicates the client has no credential key configured
// and cannot seal or open credential tokens
var ErrNoCredentialKey = errors.New("client has no credential key configured")

// Credential is a stored-credential payload a client seals into an opaque
// token and hands back later instead of re-sending the raw secret.
type Credential struct {
	SiteURL  string `json:"site_url,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SealCredential encrypts a credential into an opaque URL-safe token using
// the client's configured credential key.
//
// Returns ErrUnknownClient for unregistered clients and ErrNoCredentialKey
// for clients without a credential key.
func (s *ContextService) SealCredential(ctx context.Context, clientID string, cred Credential) (string, error) {
	sealer, err := s.sealerFor(ctx, clientID)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("unable to encode credential for clientId=%s: %w", clientID, err)
	}

	token, err := sealer.Seal(string(payload))
	if err != nil {
		return "", fmt.Errorf("unable to seal credential for clientId=%s: %w", clientID, err)
	}
	return token, nil
}

// OpenCredential decrypts a credential token sealed for the client.
// A token that fails to open returns credtoken.ErrOpenFailed; callers that
// only need a yes/no answer check for it with errors.Is.
func (s *ContextService) OpenCredential(ctx context.Context, clientID, token string) (*Credential, error) {
	sealer, err := s.sealerFor(ctx, clientID)
	if err != nil {
		return nil, err
	}

	payload, err := sealer.Open(token)
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal([]byte(payload), &cred); err != nil {
		// Sealed by this key but not a credential payload
		return nil, fmt.Errorf("%w: unexpected payload", credtoken.ErrOpenFailed)
	}
	return &cred, nil
}

func (s *ContextService) sealerFor(ctx context.Context, clientID string) (*credtoken.Sealer, error) {
	cfg, err := s.configs.GetConfig(ctx, clientID)
	if err != nil {
		if errors.Is(err, tokens.ErrConfigNotFound) {
			return nil, ErrUnknownClient
		}
		return nil, err
	}
	if cfg.CredentialKey == nil {
		return nil, ErrNoCredentialKey
	}
	return credtoken.NewSealer(cfg.CredentialKey.Password, cfg.CredentialKey.Salt)
}
