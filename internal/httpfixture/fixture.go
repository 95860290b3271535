// Package httpfixture provides canned HTTP responses behind an
// http.RoundTripper, so components that talk to remote services can be
// exercised without a network.
package httpfixture

import (
	"net/http"
	"regexp"
	"time"
)

// Fixture is a canned HTTP response
type Fixture struct {
	StatusCode int
	Headers    map[string]string
	Body       string

	// Delay simulates response latency when set
	Delay *time.Duration
}

// FixtureProvider supplies fixtures for requests. A nil return means the
// provider has no fixture for the request.
type FixtureProvider interface {
	GetFixture(req *http.Request) *Fixture
}

// FixtureRequest describes which requests a rule matches
type FixtureRequest struct {
	// Method matches the HTTP method; "*" matches any
	Method string

	// URL matches the full request URL. Interpreted as an anchored regular
	// expression when URLType is "pattern", as an exact string otherwise.
	URL     string
	URLType string

	// Headers must all be present with exactly these values
	Headers map[string]string
}

// HTTPFixtureRule pairs a request matcher with its canned response
type HTTPFixtureRule struct {
	Request  FixtureRequest
	Response Fixture
}

// RuleBasedProvider matches requests against an ordered rule list
type RuleBasedProvider struct {
	rules []HTTPFixtureRule
}

// NewRuleBasedProvider creates a provider from rules; the first matching
// rule wins
func NewRuleBasedProvider(rules []HTTPFixtureRule) *RuleBasedProvider {
	return &RuleBasedProvider{rules: rules}
}

// GetFixture implements FixtureProvider
func (p *RuleBasedProvider) GetFixture(req *http.Request) *Fixture {
	for i := range p.rules {
		rule := &p.rules[i]
		if !matchRule(&rule.Request, req) {
			continue
		}
		resp := rule.Response
		return &resp
	}
	return nil
}

func matchRule(r *FixtureRequest, req *http.Request) bool {
	if r.Method != "*" && r.Method != req.Method {
		return false
	}

	url := req.URL.String()
	if r.URLType == "pattern" {
		matched, err := regexp.MatchString("^(?:"+r.URL+")$", url)
		if err != nil || !matched {
			return false
		}
	} else if r.URL != url {
		return false
	}

	for key, want := range r.Headers {
		if req.Header.Get(key) != want {
			return false
		}
	}
	return true
}

// MapProvider looks fixtures up by "METHOD URL" key
type MapProvider struct {
	fixtures map[string]*Fixture
}

// NewMapProvider creates a provider from a fixture map keyed by
// "METHOD URL", e.g. "GET https://example.com/data"
func NewMapProvider(fixtures map[string]*Fixture) *MapProvider {
	return &MapProvider{fixtures: fixtures}
}

// GetFixture implements FixtureProvider
func (p *MapProvider) GetFixture(req *http.Request) *Fixture {
	return p.fixtures[req.Method+" "+req.URL.String()]
}

// FuncProvider adapts a function into a FixtureProvider
type FuncProvider func(req *http.Request) *Fixture

// NewFuncProvider creates a provider from a function
func NewFuncProvider(fn func(req *http.Request) *Fixture) FuncProvider {
	return FuncProvider(fn)
}

// GetFixture implements FixtureProvider
func (p FuncProvider) GetFixture(req *http.Request) *Fixture {
	return p(req)
}

// CompositeFixtureProvider asks each provider in order and returns the
// first fixture found
type CompositeFixtureProvider struct {
	providers []FixtureProvider
}

// NewCompositeFixtureProvider composes providers; earlier providers win
func NewCompositeFixtureProvider(providers []FixtureProvider) *CompositeFixtureProvider {
	return &CompositeFixtureProvider{providers: providers}
}

// GetFixture implements FixtureProvider
func (p *CompositeFixtureProvider) GetFixture(req *http.Request) *Fixture {
	for _, provider := range p.providers {
		if fixture := provider.GetFixture(req); fixture != nil {
			return fixture
		}
	}
	return nil
}
