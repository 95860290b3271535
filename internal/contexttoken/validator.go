// Package contexttoken parses and validates the compact signed context
// tokens sent by the resource provider at app launch and remote event time.
//
// A context token is a three-segment base64url JWS (header.payload.signature)
// signed with HMAC-SHA256 over the client's base64-decoded secret. No
// external certificate or key set is consulted: the per-client secret is the
// sole trust material.
package contexttoken

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/iqcloud/acsbroker/internal/claims"
	"github.com/iqcloud/acsbroker/internal/clock"
	"github.com/iqcloud/acsbroker/internal/principal"
)

// Common validation errors
var (
	ErrMalformedToken    = errors.New("malformed context token")
	ErrSignatureInvalid  = errors.New("context token signature invalid")
	ErrAudienceMismatch  = errors.New("context token audience mismatch")
	ErrTokenExpired      = errors.New("context token expired")
	ErrTokenNotYetValid  = errors.New("context token not yet valid")
	ErrInvalidClientKey  = errors.New("client secret is not valid trust material")
)

// Validator validates context tokens against per-client symmetric secrets
type Validator struct {
	clock clock.Clock
}

// ValidatorConfig contains configuration for context token validation
type ValidatorConfig struct {
	// Clock is the time source for lifetime validation
	// If nil, uses system clock
	Clock clock.Clock
}

// NewValidator creates a new context token validator
func NewValidator(cfg ValidatorConfig) *Validator {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Validator{clock: clk}
}

// Validate verifies the signature and audience of a context token string and
// returns the parsed token.
//
// expectedAppHost is the host authority the token was posted to. The expected
// audience is computed as principal.Format(clientID, expectedAppHost, realm),
// where realm is taken from the token's own audience. The realm is therefore
// self reported; the audience comparison is the only signature-independent
// authorization check, and it fails closed.
func (v *Validator) Validate(tokenString, expectedAppHost, clientID, clientSecret string) (*ContextToken, error) {
	if strings.Count(tokenString, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three dot-separated segments", ErrMalformedToken)
	}

	key, err := base64.StdEncoding.DecodeString(clientSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientKey, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidClientKey)
	}

	payload, err := jws.Verify([]byte(tokenString), jws.WithKey(jwa.HS256(), key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	token, err := parsePayload(payload)
	if err != nil {
		return nil, err
	}

	if err := v.validateLifetime(token); err != nil {
		return nil, err
	}

	realm := token.Realm()
	expected := principal.Format(clientID, expectedAppHost, realm)
	if !strings.EqualFold(token.Audience, expected) {
		return nil, fmt.Errorf("%w: %q is not the intended audience %q",
			ErrAudienceMismatch, expected, token.Audience)
	}

	return token, nil
}

// parsePayload decodes the claim bag and envelope fields of a verified
// token payload
func parsePayload(payload []byte) (*ContextToken, error) {
	set, err := claims.ParseJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	token := &ContextToken{
		Issuer:   set.Value("iss"),
		Audience: set.Value("aud"),
		Claims:   set,
	}

	if nbf, ok := set.Get("nbf"); ok {
		token.ValidFrom, err = parseEpoch(nbf)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid nbf: %v", ErrMalformedToken, err)
		}
	}
	if exp, ok := set.Get("exp"); ok {
		token.ValidTo, err = parseEpoch(exp)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid exp: %v", ErrMalformedToken, err)
		}
	}

	token.decodeAppContext()
	return token, nil
}

func (v *Validator) validateLifetime(token *ContextToken) error {
	now := v.clock.Now()
	if !token.ValidFrom.IsZero() && now.Before(token.ValidFrom) {
		return fmt.Errorf("%w: valid from %s", ErrTokenNotYetValid, token.ValidFrom.UTC().Format(time.RFC3339))
	}
	if !token.ValidTo.IsZero() && now.After(token.ValidTo) {
		return fmt.Errorf("%w: expired at %s", ErrTokenExpired, token.ValidTo.UTC().Format(time.RFC3339))
	}
	return nil
}

func parseEpoch(s string) (time.Time, error) {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
