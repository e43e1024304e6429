package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Cache    CacheConfig
	FBS      FBSConfig
	Observe  ObserveConfig
	Server   ServerConfig
	Smaug    SmaugConfig
	Userinfo UserinfoConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=3000"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// SmaugConfig locates the token-issuing service. A token is resolved to its
// configuration with GET {URL}?token={token}.
type SmaugConfig struct {
	URL string `env:"SMAUG_URL, required"`
}

// UserinfoConfig locates the user-attribute service, called with the token
// as bearer auth.
type UserinfoConfig struct {
	URL string `env:"USERINFO_URL, required"`
}

type FBSConfig struct {
	// BaseURL is the default FBS CMS API origin, used for agencies whose
	// credential-table row carries no URL of its own.
	BaseURL string `env:"FBS_CMS_API_URL, required"`

	// Credentials is the multi-tenant credential table, one agency per line:
	// agencyid,username,password[,url]
	Credentials string `env:"FBS_CMS_CREDENTIALS, required"`
}

// CacheConfig specifies cache configuration.
type CacheConfig struct {
	// Type selects the cache implementation: "memory" (default) or "valkey"
	Type string `env:"CACHE_TYPE, default=memory"`

	// TTLSeconds expires cache entries cache-side. The default of 0 keeps
	// entries until overwritten: session expiry is detected through backend
	// 401 responses, which is the authoritative signal. Set a TTL to bound
	// cache size, not for correctness.
	TTLSeconds int `env:"CACHE_TTL_SECS, default=0"`

	// MemoryMaxSize bounds the in-memory cache entry count.
	MemoryMaxSize int `env:"CACHE_MEMORY_MAX_SIZE, default=10000"`

	// Valkey holds distributed cache settings.
	Valkey ValkeyConfig
}

// ValkeyConfig specifies distributed cache configuration.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure
	// option is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	// Username for Valkey authentication.
	Username string `env:"VALKEY_USERNAME"`

	// Password for Valkey authentication.
	Password string `env:"VALKEY_PASSWORD"`

	// KeysetFile is the path to a cleartext Tink keyset used to encrypt
	// cached values at rest. Empty disables encryption.
	KeysetFile string `env:"VALKEY_ENCRYPTION_KEYSET_FILE"`
}

type ObserveConfig struct {
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=fbs-cms-adapter"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	switch c.Type {
	case "memory":
	case "valkey":
		if c.Valkey.Address == "" {
			return fmt.Errorf("VALKEY_ADDRESS required when CACHE_TYPE=valkey")
		}
	default:
		return fmt.Errorf("invalid cache type %q: must be either \"memory\" or \"valkey\"", c.Type)
	}

	return nil
}
