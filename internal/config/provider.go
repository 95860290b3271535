package config

import (
	"fmt"
	"net/http"
	"time"

	"github.com/iqcloud/acsbroker/internal/contexttoken"
	"github.com/iqcloud/acsbroker/internal/events"
	"github.com/iqcloud/acsbroker/internal/exchange"
	"github.com/iqcloud/acsbroker/internal/httpfixture"
	"github.com/iqcloud/acsbroker/internal/realm"
	"github.com/iqcloud/acsbroker/internal/server"
	"github.com/iqcloud/acsbroker/internal/service"
	"github.com/iqcloud/acsbroker/internal/tokens"
)

// Provider constructs all application components from configuration
// This is the main entry point for building a configured broker instance
type Provider struct {
	config *Config

	// Lazily constructed components (cached after first call)
	tokenStore          tokens.TokenStore
	configStore         tokens.ConfigStore
	resolver            *realm.Resolver
	exchanger           *exchange.Client
	contextService      *service.ContextService
	enqueuer            events.Enqueuer
	httpFixtureProvider httpfixture.FixtureProvider
	httpFixtureBuilt    bool
	observer            service.Observer
}

// NewProvider creates a new provider from configuration
func NewProvider(config *Config) *Provider {
	return &Provider{
		config: config,
	}
}

// SetObserver sets the observer for all components built by this provider.
// Must be called before ContextService() or any method that depends on the observer.
func (p *Provider) SetObserver(observer service.Observer) {
	p.observer = observer
}

// SetEnqueuer sets the event enqueuer used by the launch flow. When unset,
// an in-memory enqueuer is used.
func (p *Provider) SetEnqueuer(enqueuer events.Enqueuer) {
	p.enqueuer = enqueuer
}

// Observer returns the configured observer.
// If SetObserver was called, returns that observer.
// Otherwise, creates a default observer from config.
func (p *Provider) Observer() (service.Observer, error) {
	if p.observer != nil {
		return p.observer, nil
	}

	// Build from config (fallback when SetObserver was not called)
	observer, err := NewObserver(p.config.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}

	p.observer = observer
	return observer, nil
}

// Stores returns the configured token and client configuration stores
func (p *Provider) Stores() (tokens.TokenStore, tokens.ConfigStore, error) {
	if p.tokenStore != nil {
		return p.tokenStore, p.configStore, nil
	}

	switch p.config.Store.Type {
	case "memory", "":
		store := tokens.NewMemoryStore()
		for i := range p.config.Clients {
			store.SetConfig(clientConfig(&p.config.Clients[i]))
		}
		p.tokenStore = store
		p.configStore = store
	case "redis":
		if p.config.Store.Redis.Addr == "" {
			return nil, nil, fmt.Errorf("redis store requires store.redis.addr")
		}
		store := tokens.NewRedisStore(p.config.Store.Redis.Addr, p.config.Store.Redis.DB)
		p.tokenStore = store
		p.configStore = store
	default:
		return nil, nil, fmt.Errorf("unknown store type: %s (supported: memory, redis)", p.config.Store.Type)
	}

	return p.tokenStore, p.configStore, nil
}

// Resolver returns the configured realm metadata resolver
func (p *Provider) Resolver() *realm.Resolver {
	if p.resolver != nil {
		return p.resolver
	}

	p.resolver = realm.NewResolver(realm.ResolverConfig{
		EndpointBase: p.config.Realm.EndpointBase,
		Timeout:      seconds(p.config.Realm.TimeoutSeconds),
		CacheTTL:     seconds(p.config.Realm.CacheTTLSeconds),
		MaxTries:     uint(p.config.Realm.MaxTries),
		Transport:    p.HTTPTransport(),
	})
	return p.resolver
}

// Exchanger returns the configured OAuth2 exchange client
func (p *Provider) Exchanger() *exchange.Client {
	if p.exchanger != nil {
		return p.exchanger
	}

	p.exchanger = exchange.NewClient(exchange.ClientConfig{
		Timeout:   seconds(p.config.Exchange.TimeoutSeconds),
		Transport: p.HTTPTransport(),
	})
	return p.exchanger
}

// Enqueuer returns the configured event enqueuer
func (p *Provider) Enqueuer() events.Enqueuer {
	if p.enqueuer == nil {
		p.enqueuer = events.NewMemoryEnqueuer()
	}
	return p.enqueuer
}

// ContextService returns the configured context service
func (p *Provider) ContextService() (*service.ContextService, error) {
	if p.contextService != nil {
		return p.contextService, nil
	}

	// Build dependencies
	tokenStore, configStore, err := p.Stores()
	if err != nil {
		return nil, err
	}

	resolver := p.Resolver()
	exchanger := p.Exchanger()

	coordinator := tokens.NewCoordinator(tokens.CoordinatorConfig{
		TokenStore:  tokenStore,
		ConfigStore: configStore,
		Exchanger:   exchanger,
		Resolver:    resolver,
	})

	// Get observer
	observer, err := p.Observer()
	if err != nil {
		return nil, fmt.Errorf("failed to get observer: %w", err)
	}

	p.contextService = service.NewContextService(service.ContextServiceConfig{
		ConfigStore:     configStore,
		TokenStore:      tokenStore,
		Coordinator:     coordinator,
		Validator:       contexttoken.NewValidator(contexttoken.ValidatorConfig{}),
		Resolver:        resolver,
		Discoverer:      realm.NewDiscoverer(seconds(p.config.Realm.TimeoutSeconds), p.HTTPTransport()),
		Exchanger:       exchanger,
		AccessProbe:     service.NewHTTPAccessProbe(seconds(p.config.AccessProbe.TimeoutSeconds), p.HTTPTransport()),
		Enqueuer:        p.Enqueuer(),
		Observer:        observer,
		TargetPrincipal: p.config.TargetPrincipal,
	})
	return p.contextService, nil
}

// ServerConfig returns the server configuration
func (p *Provider) ServerConfig() server.Config {
	return server.Config{
		HTTPPort: p.config.Server.HTTPPort,
	}
}

// HTTPTransport returns an HTTP RoundTripper configured with fixtures if available
// Returns nil if no special transport is needed (caller should use http.DefaultTransport)
func (p *Provider) HTTPTransport() http.RoundTripper {
	fixtureProvider := p.HTTPFixtureProvider()
	if fixtureProvider == nil {
		return nil
	}
	return httpfixture.NewTransport(httpfixture.TransportConfig{
		Provider: fixtureProvider,
		Strict:   true,
	})
}

// HTTPFixtureProvider returns the fixture provider for hermetic testing
// Returns nil if no fixtures are configured (normal production mode)
func (p *Provider) HTTPFixtureProvider() httpfixture.FixtureProvider {
	if p.httpFixtureBuilt {
		return p.httpFixtureProvider
	}

	provider, err := BuildHTTPFixtureProvider(p.config.Fixtures, nil)
	if err != nil {
		// In production mode, fixture errors should fail fast
		// This is a configuration error, not a runtime error
		panic(fmt.Sprintf("failed to build HTTP fixture provider: %v", err))
	}

	p.httpFixtureProvider = provider
	p.httpFixtureBuilt = true
	return p.httpFixtureProvider
}

// clientConfig converts a config entry into a stored client configuration
func clientConfig(entry *ClientEntry) *tokens.ClientConfig {
	cfg := &tokens.ClientConfig{
		ClientID:                   entry.ClientID,
		ClientSecret:               entry.ClientSecret,
		ProductID:                  entry.ProductID,
		ServiceBusConnectionString: entry.ServiceBusConnectionString,
		NotificationQueueName:      entry.NotificationQueueName,
	}
	if entry.Credential != nil {
		cfg.CredentialKey = &tokens.CredentialKeyConfig{
			Password: entry.Credential.Password,
			Salt:     entry.Credential.Salt,
		}
	}
	return cfg
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
