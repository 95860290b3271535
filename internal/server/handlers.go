package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iqcloud/acsbroker/internal/contexttoken"
	"github.com/iqcloud/acsbroker/internal/credtoken"
	"github.com/iqcloud/acsbroker/internal/service"
)

// Form fields the resource provider may carry the context token in, probed
// in order
var contextTokenFields = []string{"AppContext", "AppContextToken", "AccessToken", "SPAppToken"}

// Handler serves the broker's HTTP endpoints
type Handler struct {
	service *service.ContextService
}

// NewHandler creates the HTTP handler set
func NewHandler(svc *service.ContextService) *Handler {
	return &Handler{service: svc}
}

// Health answers liveness probes
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Launch processes an app launch POST from the resource provider: it
// validates the posted context token, primes the token cache and redirects
// the browser into the app.
func (h *Handler) Launch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	tokenString := ""
	for _, field := range contextTokenFields {
		if v := r.PostFormValue(field); v != "" {
			tokenString = v
			break
		}
	}
	if tokenString == "" {
		writeError(w, http.StatusBadRequest, "no context token in request")
		return
	}

	appWebURL := r.URL.Query().Get("SPAppWebUrl")
	hostURL := r.URL.Query().Get("SPHostUrl")
	if appWebURL == "" {
		appWebURL = hostURL
	}
	if appWebURL == "" {
		writeError(w, http.StatusBadRequest, "no app web URL in request")
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		// The provider does not echo the client id; recover it from the
		// token's own audience before validation.
		peeked, err := contexttoken.PeekClientID(tokenString)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unable to determine client id")
			return
		}
		clientID = peeked
	}

	result, err := h.service.HandleLaunch(r.Context(), service.LaunchRequest{
		TokenString:      tokenString,
		RequestAuthority: r.Host,
		ClientID:         clientID,
		AppWebURL:        appWebURL,
		HostURL:          hostURL,
	})
	if err != nil {
		writeError(w, launchStatus(err), err.Error())
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// tokenResponse is the body of a successful token acquisition
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	AppOnly     bool   `json:"app_only"`
}

// contextResponse is the body of a successful context acquisition
type contextResponse struct {
	AppWebURL   string `json:"app_web_url"`
	AccessToken string `json:"access_token"`
	AppOnly     bool   `json:"app_only"`
}

// Token returns a raw access token for a cached client context
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	clientID, cacheKey, ok := h.contextParams(w, r)
	if !ok {
		return
	}
	appOnly := r.URL.Query().Get("appOnly") == "true"

	token, err := h.service.AcquireAccessToken(r.Context(), clientID, cacheKey, appOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if token == "" {
		writeError(w, http.StatusNotFound, "no context for client")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, AppOnly: appOnly})
}

// Context returns a verified client context
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	clientID, cacheKey, ok := h.contextParams(w, r)
	if !ok {
		return
	}
	appOnly := r.URL.Query().Get("appOnly") == "true"
	fallback := r.URL.Query().Get("fallbackToUser") == "true"

	handle, err := h.service.AcquireContext(r.Context(), clientID, cacheKey, appOnly, fallback)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if handle == nil {
		writeError(w, http.StatusNotFound, "no context for client")
		return
	}

	writeJSON(w, http.StatusOK, contextResponse{
		AppWebURL:   handle.AppWebURL,
		AccessToken: handle.AccessToken,
		AppOnly:     handle.AppOnly,
	})
}

// credentialTokenResponse is the body of a successful credential sealing
type credentialTokenResponse struct {
	CredentialToken string `json:"credential_token"`
}

// credentialValidationResponse reports whether a credential token opened
type credentialValidationResponse struct {
	Valid bool `json:"valid"`
}

// CreateCredentialToken seals posted credentials into an opaque token the
// client stores instead of the raw secret
func (h *Handler) CreateCredentialToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = r.PostFormValue("clientId")
	}
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "clientId is required")
		return
	}

	cred := service.Credential{
		SiteURL:  r.PostFormValue("siteUrl"),
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if cred.Username == "" || cred.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := h.service.SealCredential(r.Context(), clientID, cred)
	if err != nil {
		writeError(w, credentialStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, credentialTokenResponse{CredentialToken: token})
}

// ValidateCredentialToken reports whether a credential token opens under the
// client's credential key. An unopenable token is a negative answer, not an
// error.
func (h *Handler) ValidateCredentialToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = r.PostFormValue("clientId")
	}
	token := r.PostFormValue("credentialToken")
	if clientID == "" || token == "" {
		writeError(w, http.StatusBadRequest, "clientId and credentialToken are required")
		return
	}

	_, err := h.service.OpenCredential(r.Context(), clientID, token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, credentialValidationResponse{Valid: true})
	case errors.Is(err, credtoken.ErrOpenFailed):
		writeJSON(w, http.StatusOK, credentialValidationResponse{Valid: false})
	default:
		writeError(w, credentialStatus(err), err.Error())
	}
}

// credentialStatus maps credential sealing errors onto HTTP statuses
func credentialStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownClient),
		errors.Is(err, service.ErrNoCredentialKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// contextParams extracts the (clientID, cacheKey) pair shared by the token
// endpoints. cKey carries the URL-safe encoded key from the launch
// redirect; cacheKey carries it raw.
func (h *Handler) contextParams(w http.ResponseWriter, r *http.Request) (clientID, cacheKey string, ok bool) {
	q := r.URL.Query()
	clientID = q.Get("clientId")
	if clientID == "" {
		clientID = q.Get("cId")
	}
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "clientId is required")
		return "", "", false
	}

	cacheKey = q.Get("cacheKey")
	if cacheKey == "" {
		if encoded := q.Get("cKey"); encoded != "" {
			decoded, err := base64.RawURLEncoding.DecodeString(encoded)
			if err != nil {
				writeError(w, http.StatusBadRequest, "cKey is not valid base64url")
				return "", "", false
			}
			cacheKey = string(decoded)
		}
	}
	if cacheKey == "" {
		writeError(w, http.StatusBadRequest, "cacheKey is required")
		return "", "", false
	}
	return clientID, cacheKey, true
}

// launchStatus maps launch errors onto HTTP statuses
func launchStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownClient),
		errors.Is(err, service.ErrNoCacheKey),
		errors.Is(err, contexttoken.ErrMalformedToken):
		return http.StatusBadRequest
	case errors.Is(err, contexttoken.ErrSignatureInvalid),
		errors.Is(err, contexttoken.ErrAudienceMismatch),
		errors.Is(err, contexttoken.ErrTokenExpired),
		errors.Is(err, contexttoken.ErrTokenNotYetValid),
		errors.Is(err, contexttoken.ErrInvalidClientKey):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
