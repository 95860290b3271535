package config

import (
	"github.com/spf13/pflag"
)

// flagSpecs maps command-line flag names to config keys. Flags registered
// here are automatically overlaid onto the loaded configuration with
// highest precedence.
var flagSpecs = []struct {
	name, key, usage string
	kind             string
	defInt           int
	defString        string
}{
	{name: "server-http-port", key: "server.http_port", usage: "HTTP listen port", kind: "int", defInt: 8080},
	{name: "store-type", key: "store.type", usage: "token store backend (memory, redis)", kind: "string", defString: "memory"},
	{name: "store-redis-addr", key: "store.redis.addr", usage: "redis address for the redis store", kind: "string"},
	{name: "store-redis-db", key: "store.redis.db", usage: "redis database number", kind: "int"},
	{name: "realm-endpoint-base", key: "realm.endpoint_base", usage: "default realm metadata host", kind: "string"},
	{name: "target-principal", key: "target_principal", usage: "resource provider principal name", kind: "string"},
	{name: "log-level", key: "observability.log_level", usage: "log level (debug, info, warn, error)", kind: "string"},
	{name: "log-format", key: "observability.log_format", usage: "log format (json, text)", kind: "string"},
}

// RegisterFlags registers all configuration flags on the flag set
func RegisterFlags(fs *pflag.FlagSet) {
	for _, spec := range flagSpecs {
		switch spec.kind {
		case "int":
			fs.Int(spec.name, spec.defInt, spec.usage)
		default:
			fs.String(spec.name, spec.defString, spec.usage)
		}
	}
}

// GetFlagMapping returns the flag-name to config-key mapping used when
// overlaying flag values onto the configuration
func GetFlagMapping() map[string]string {
	mapping := make(map[string]string, len(flagSpecs))
	for _, spec := range flagSpecs {
		mapping[spec.name] = spec.key
	}
	return mapping
}
