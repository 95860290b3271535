package httpfixture

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/iqcloud/acsbroker/internal/clock"
)

// STSFixture is a specialized HTTP fixture that plays the role of a
// security token service: it serves realm metadata documents and answers
// OAuth2 grant requests on the advertised token endpoint. It records every
// grant request so tests can assert on the exact form fields sent.
type STSFixture struct {
	endpointBase  string
	realm         string
	tokenEndpoint string
	clock         clock.Clock
	tokenTTL      time.Duration

	mu            sync.Mutex
	metadataCalls int
	grantForms    []url.Values
	accessTokens  map[string]string
	tokenFailure  *Fixture
}

// STSFixtureConfig configures an STS fixture
type STSFixtureConfig struct {
	// EndpointBase is the scheme and authority the fixture answers on,
	// e.g. "https://accounts.accesscontrol.example.net"
	EndpointBase string

	// Realm is the tenant realm the metadata document is served for
	Realm string

	// TokenTTL is the lifetime of issued tokens. Defaults to one hour.
	TokenTTL time.Duration

	// Clock is the time source for token expiry timestamps
	// If nil, uses system clock
	Clock clock.Clock
}

// NewSTSFixture creates an STS fixture
func NewSTSFixture(cfg STSFixtureConfig) (*STSFixture, error) {
	if cfg.EndpointBase == "" {
		return nil, fmt.Errorf("endpoint_base is required")
	}
	if cfg.Realm == "" {
		return nil, fmt.Errorf("realm is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}

	base := strings.TrimSuffix(cfg.EndpointBase, "/")
	return &STSFixture{
		endpointBase:  base,
		realm:         cfg.Realm,
		tokenEndpoint: base + "/tokens/OAuth/2",
		clock:         clk,
		tokenTTL:      ttl,
		accessTokens: map[string]string{
			"refresh_token":      "user-access-token",
			"client_credentials": "app-access-token",
		},
	}, nil
}

// TokenEndpoint returns the OAuth2 endpoint the metadata advertises
func (f *STSFixture) TokenEndpoint() string {
	return f.tokenEndpoint
}

// Realm returns the realm the fixture serves
func (f *STSFixture) Realm() string {
	return f.realm
}

// SetAccessToken overrides the token issued for a grant type
func (f *STSFixture) SetAccessToken(grantType, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessTokens[grantType] = token
}

// FailTokenRequests makes every grant request answer with the given status
// and body until cleared with ClearTokenFailure
func (f *STSFixture) FailTokenRequests(statusCode int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenFailure = &Fixture{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

// ClearTokenFailure restores normal grant handling
func (f *STSFixture) ClearTokenFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenFailure = nil
}

// MetadataCalls returns how many metadata documents were served
func (f *STSFixture) MetadataCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadataCalls
}

// GrantRequests returns the recorded grant request forms in order
func (f *STSFixture) GrantRequests() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]url.Values, len(f.grantForms))
	copy(out, f.grantForms)
	return out
}

// GetFixture implements FixtureProvider
func (f *STSFixture) GetFixture(req *http.Request) *Fixture {
	base := req.URL.Scheme + "://" + req.URL.Host
	if base != f.endpointBase {
		return nil
	}

	switch {
	case req.Method == http.MethodGet && req.URL.Path == "/metadata/json/1":
		if req.URL.Query().Get("realm") != f.realm {
			return &Fixture{StatusCode: 404, Body: `{"error": "realm not found"}`}
		}
		return f.metadataFixture()
	case req.Method == http.MethodPost && base+req.URL.Path == f.tokenEndpoint:
		return f.tokenFixture(req)
	default:
		return nil
	}
}

func (f *STSFixture) metadataFixture() *Fixture {
	f.mu.Lock()
	f.metadataCalls++
	f.mu.Unlock()

	doc := map[string]any{
		"serviceName": "ACS",
		"endpoints": []map[string]string{
			{
				"location": f.endpointBase + "/metadata/json/1?realm=" + f.realm,
				"protocol": "DelegationIssuance1.0",
				"usage":    "metadata",
			},
			{
				"location": f.tokenEndpoint,
				"protocol": "OAuth2",
				"usage":    "issuance",
			},
		},
		"keys": []any{},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return &Fixture{
			StatusCode: 500,
			Body:       fmt.Sprintf(`{"error": "failed to serialize metadata: %v"}`, err),
		}
	}

	return &Fixture{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func (f *STSFixture) tokenFixture(req *http.Request) *Fixture {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return &Fixture{StatusCode: 400, Body: `{"error": "unreadable body"}`}
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return &Fixture{StatusCode: 400, Body: `{"error": "malformed form"}`}
	}

	f.mu.Lock()
	f.grantForms = append(f.grantForms, form)
	failure := f.tokenFailure
	token := f.accessTokens[form.Get("grant_type")]
	f.mu.Unlock()

	if failure != nil {
		resp := *failure
		return &resp
	}
	if token == "" {
		return &Fixture{
			StatusCode: 400,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error": "unsupported_grant_type"}`,
		}
	}

	expiresOn := f.clock.Now().Add(f.tokenTTL).Unix()
	return &Fixture{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body: `{"access_token": "` + token + `", "token_type": "Bearer", "expires_on": "` +
			strconv.FormatInt(expiresOn, 10) + `"}`,
	}
}

// SignContextToken mints an HS256-signed compact token over the given
// payload, keyed by the base64-encoded client secret. Tests use it to
// produce launch tokens the validator accepts.
func SignContextToken(clientSecretB64 string, payload []byte) (string, error) {
	key, err := base64.StdEncoding.DecodeString(clientSecretB64)
	if err != nil {
		return "", fmt.Errorf("invalid client secret: %w", err)
	}
	signed, err := jws.Sign(payload, jws.WithKey(jwa.HS256(), key))
	if err != nil {
		return "", fmt.Errorf("failed to sign context token: %w", err)
	}
	return string(signed), nil
}
