package contexttoken

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/iqcloud/acsbroker/internal/claims"
	"github.com/iqcloud/acsbroker/internal/principal"
)

// PeekClientID extracts the client id from an UNVERIFIED token string by
// reading the name portion of its audience. Launch requests may omit an
// explicit client id, in which case it is recovered from the token itself
// before the client's secret can even be looked up.
//
// The result must not be trusted for anything other than locating the client
// configuration used for real validation.
func PeekClientID(tokenString string) (string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected three dot-separated segments", ErrMalformedToken)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	set, err := claims.ParseJSON(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	aud, ok := set.Get("aud")
	if !ok || aud == "" {
		return "", fmt.Errorf("%w: no audience claim", ErrMalformedToken)
	}

	return strings.ToLower(principal.NameOf(aud)), nil
}
