package config

import (
	"fmt"

	"github.com/iqcloud/acsbroker/internal/clock"
	"github.com/iqcloud/acsbroker/internal/httpfixture"
)

// BuildHTTPFixtureProvider creates a composite HTTP fixture provider from fixture configurations
// Returns nil if no fixtures are configured (normal production mode)
func BuildHTTPFixtureProvider(fixtures []FixtureConfig, clk clock.Clock) (httpfixture.FixtureProvider, error) {
	if len(fixtures) == 0 {
		return nil, nil
	}

	if clk == nil {
		clk = clock.NewSystemClock()
	}

	// Build HTTP rule fixtures
	var rules []httpfixture.HTTPFixtureRule
	for _, f := range fixtures {
		if f.Type != "http_rule" {
			continue
		}

		rule := httpfixture.HTTPFixtureRule{
			Request: httpfixture.FixtureRequest{
				Method:  f.Request.Method,
				URL:     f.Request.URL,
				URLType: f.Request.URLType,
				Headers: f.Request.Headers,
			},
			Response: httpfixture.Fixture{
				StatusCode: f.Response.StatusCode,
				Headers:    f.Response.Headers,
				Body:       f.Response.Body,
			},
		}
		rules = append(rules, rule)
	}

	// Build STS fixtures
	var stsFixtures []*httpfixture.STSFixture
	for _, f := range fixtures {
		if f.Type != "sts" {
			continue
		}

		if f.EndpointBase == "" {
			return nil, fmt.Errorf("sts fixture missing required field: endpoint_base")
		}
		if f.Realm == "" {
			return nil, fmt.Errorf("sts fixture for %s missing required field: realm", f.EndpointBase)
		}

		stsFixture, err := httpfixture.NewSTSFixture(httpfixture.STSFixtureConfig{
			EndpointBase: f.EndpointBase,
			Realm:        f.Realm,
			Clock:        clk,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create STS fixture for %s: %w", f.EndpointBase, err)
		}

		stsFixtures = append(stsFixtures, stsFixture)
	}

	// Build list of providers to compose (always return non-nil, even if empty)
	providers := make([]httpfixture.FixtureProvider, 0)

	if len(rules) > 0 {
		providers = append(providers, httpfixture.NewRuleBasedProvider(rules))
	}

	for _, sts := range stsFixtures {
		providers = append(providers, sts)
	}

	// Always return a valid CompositeFixtureProvider, even if empty
	return httpfixture.NewCompositeFixtureProvider(providers), nil
}
