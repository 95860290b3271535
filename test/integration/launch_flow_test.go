package integration

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/iqcloud/acsbroker/internal/config"
	"github.com/iqcloud/acsbroker/internal/httpfixture"
	"github.com/iqcloud/acsbroker/internal/server"
)

const (
	launchClientID = "4c9d4c44-6f83-4786-8d16-a1b7a9bcbc8a"
	launchRealm    = "29ea9d1c-41b4-4946-9b06-b4d99ee4ba1a"
	launchSTSBase  = "https://accounts.accesscontrol.example.net"
	launchAppWeb   = "https://tenant.example.com/sites/app"
	launchKey      = "user-1;tenant.example.com"
)

// TestLaunchFlow drives a full app launch against a real HTTP listener:
// the provider posts the context token, the broker primes its token cache
// through the (fixture-served) STS, and the app redeems the redirect
// parameters for an access token.
func TestLaunchFlow(t *testing.T) {
	const httpPort = 18086

	clientSecret := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

	cfg := &config.Config{
		Server: config.ServerConfig{HTTPPort: httpPort},
		Clients: []config.ClientEntry{
			{ClientID: launchClientID, ClientSecret: clientSecret},
		},
		Fixtures: []config.FixtureConfig{
			{Type: "sts", EndpointBase: launchSTSBase, Realm: launchRealm},
		},
	}

	provider := config.NewProvider(cfg)
	contextService, err := provider.ContextService()
	if err != nil {
		t.Fatalf("failed to build context service: %v", err)
	}

	serverCfg := provider.ServerConfig()
	serverCfg.Service = contextService

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(serverCfg)
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = srv.Stop(stopCtx)
	}()

	waitForServer(t, httpPort, 5*time.Second)

	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// Sign a context token the way the resource provider would
	now := time.Now()
	appctx := fmt.Sprintf(`{\"CacheKey\":\"%s\",\"SecurityTokenServiceUri\":\"%s/tokens/OAuth/2\"}`,
		launchKey, launchSTSBase)
	payload := fmt.Sprintf(`{`+
		`"aud":"%s/tenant.example.com@%s",`+
		`"nbf":%d,"exp":%d,`+
		`"appctxsender":"00000003-0000-0ff1-ce00-000000000000@%s",`+
		`"appctx":"%s",`+
		`"refreshtoken":"refresh-token-1"`+
		`}`,
		launchClientID, launchRealm,
		now.Add(-time.Hour).Unix(), now.Add(time.Hour).Unix(),
		launchRealm,
		appctx,
	)
	contextToken, err := httpfixture.SignContextToken(clientSecret, []byte(payload))
	if err != nil {
		t.Fatalf("failed to sign context token: %v", err)
	}

	query := url.Values{}
	query.Set("clientId", launchClientID)
	query.Set("SPAppWebUrl", launchAppWeb)
	form := url.Values{}
	form.Set("AppContext", contextToken)

	launchURL := fmt.Sprintf("http://localhost:%d/launch?%s", httpPort, query.Encode())
	req, err := http.NewRequest(http.MethodPost, launchURL, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("failed to build launch request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "tenant.example.com"

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("launch request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("launch returned %d, want 302", resp.StatusCode)
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse redirect location: %v", err)
	}
	cKey := location.Query().Get("cKey")
	if cKey == "" {
		t.Fatal("redirect carries no cKey parameter")
	}

	// Redeem the redirect parameters for a token
	tokenURL := fmt.Sprintf("http://localhost:%d/token?cId=%s&cKey=%s",
		httpPort, url.QueryEscape(launchClientID), url.QueryEscape(cKey))
	body := httpGet(t, httpClient, tokenURL)

	if body["access_token"] != "user-access-token" {
		t.Errorf("access_token = %q, want user-access-token", body["access_token"])
	}
}
