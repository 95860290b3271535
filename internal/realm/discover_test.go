package realm

import (
	"context"
	"net/http"
	"testing"

	"github.com/iqcloud/acsbroker/internal/httpfixture"
)

func discovererWithChallenge(t *testing.T, challenge string) *Discoverer {
	t.Helper()

	provider := httpfixture.NewFuncProvider(func(req *http.Request) *httpfixture.Fixture {
		if req.URL.Path != "/_vti_bin/client.svc" {
			return nil
		}
		if req.Header.Get("Authorization") != "Bearer " {
			t.Errorf("probe sent Authorization %q, want empty bearer", req.Header.Get("Authorization"))
		}
		fixture := &httpfixture.Fixture{StatusCode: 401}
		if challenge != "" {
			fixture.Headers = map[string]string{"WWW-Authenticate": challenge}
		}
		return fixture
	})

	return NewDiscoverer(0, newFixtureTransport(t, provider))
}

func TestFromTargetURL(t *testing.T) {
	tests := []struct {
		name      string
		challenge string
		want      string
	}{
		{
			name:      "valid challenge",
			challenge: `Bearer realm="` + testRealm + `",client_id="00000003-0000-0ff1-ce00-000000000000"`,
			want:      testRealm,
		},
		{
			name:      "no challenge header",
			challenge: "",
			want:      "",
		},
		{
			name:      "challenge without realm",
			challenge: `NTLM`,
			want:      "",
		},
		{
			name:      "realm is not a GUID",
			challenge: `Bearer realm="not-a-guid-just-36-characters-long!"`,
			want:      "",
		},
		{
			name:      "realm truncated",
			challenge: `Bearer realm="29ea9d1c"`,
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := discovererWithChallenge(t, tt.challenge)

			got, err := d.FromTargetURL(context.Background(), "https://tenant.example.com/sites/app/")
			if err != nil {
				t.Fatalf("FromTargetURL failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("FromTargetURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
