// Package config loads broker configuration from files, environment
// variables and command-line flags, and builds application components
// from it.
package config

// Config is the root broker configuration
type Config struct {
	Server        ServerConfig         `koanf:"server"`
	Observability *ObservabilityConfig `koanf:"observability"`
	Store         StoreConfig          `koanf:"store"`
	Realm         RealmConfig          `koanf:"realm"`
	Exchange      ExchangeConfig       `koanf:"exchange"`
	AccessProbe   AccessProbeConfig    `koanf:"access_probe"`

	// TargetPrincipal overrides the well-known resource provider principal
	TargetPrincipal string `koanf:"target_principal"`

	// Clients is the static client registry loaded at startup. Redis-backed
	// deployments may manage clients out of band instead.
	Clients []ClientEntry `koanf:"clients"`

	// Fixtures enables hermetic operation with canned HTTP responses
	Fixtures []FixtureConfig `koanf:"fixtures"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	HTTPPort int `koanf:"http_port"`
}

// StoreConfig selects and configures the token record store
type StoreConfig struct {
	// Type is "memory" or "redis"
	Type string `koanf:"type"`

	Redis RedisConfig `koanf:"redis"`
}

// RedisConfig configures the redis-backed store
type RedisConfig struct {
	Addr string `koanf:"addr"`
	DB   int    `koanf:"db"`
}

// RealmConfig configures realm metadata resolution
type RealmConfig struct {
	// EndpointBase is the default metadata host when a context token does
	// not advertise one
	EndpointBase string `koanf:"endpoint_base"`

	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`
	TimeoutSeconds  int `koanf:"timeout_seconds"`
	MaxTries        int `koanf:"max_tries"`
}

// ExchangeConfig configures the OAuth2 exchange client
type ExchangeConfig struct {
	TimeoutSeconds int `koanf:"timeout_seconds"`
}

// AccessProbeConfig configures site access verification
type AccessProbeConfig struct {
	TimeoutSeconds int `koanf:"timeout_seconds"`
}

// ClientEntry is one registered client application
type ClientEntry struct {
	ClientID                   string            `koanf:"client_id"`
	ClientSecret               string            `koanf:"client_secret"`
	ProductID                  string            `koanf:"product_id"`
	ServiceBusConnectionString string            `koanf:"service_bus_connection_string"`
	NotificationQueueName      string            `koanf:"notification_queue_name"`
	Credential                 *CredentialConfig `koanf:"credential"`
}

// CredentialConfig configures credential token sealing for a client
type CredentialConfig struct {
	Password string `koanf:"password"`
	Salt     string `koanf:"salt"`
}

// ObservabilityConfig configures logging and observers
type ObservabilityConfig struct {
	// Type is "logging", "noop" or "composite"
	Type string `koanf:"type"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// Observers holds sub-observer configs for the composite type
	Observers []ObservabilityConfig `koanf:"observers"`

	// Per-event overrides
	ContextAcquisition *EventConfig `koanf:"context_acquisition"`
	AppLaunch          *EventConfig `koanf:"app_launch"`
}

// EventConfig overrides logging for one event type
type EventConfig struct {
	Enabled  *bool  `koanf:"enabled"`
	LogLevel string `koanf:"log_level"`
}

// FixtureConfig configures one HTTP fixture
type FixtureConfig struct {
	// Type is "http_rule" or "sts"
	Type string `koanf:"type"`

	// http_rule fields
	Request  FixtureRequestConfig  `koanf:"request"`
	Response FixtureResponseConfig `koanf:"response"`

	// sts fields
	EndpointBase string `koanf:"endpoint_base"`
	Realm        string `koanf:"realm"`
}

// FixtureRequestConfig matches requests for an http_rule fixture
type FixtureRequestConfig struct {
	Method  string            `koanf:"method"`
	URL     string            `koanf:"url"`
	URLType string            `koanf:"url_type"`
	Headers map[string]string `koanf:"headers"`
}

// FixtureResponseConfig is the canned response of an http_rule fixture
type FixtureResponseConfig struct {
	StatusCode int               `koanf:"status_code"`
	Headers    map[string]string `koanf:"headers"`
	Body       string            `koanf:"body"`
}
