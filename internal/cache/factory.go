package cache

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/DBCDK/fbs-cms-adapter/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

// NewFromConfig creates a Cache based on the provided configuration,
// either in-memory or Valkey-backed.
func NewFromConfig(cfg config.CacheConfig) (Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second

	switch cfg.Type {
	case "valkey":
		log.Info().
			Str("address", cfg.Valkey.Address).
			Bool("tls", cfg.Valkey.TLS).
			Msg("configuring valkey cache")

		client, err := newValkeyClient(cfg.Valkey)
		if err != nil {
			return nil, fmt.Errorf("failed to create valkey client: %w", err)
		}

		var sealer Sealer
		if cfg.Valkey.KeysetFile != "" {
			sealer, err = NewAEADSealerFromFile(cfg.Valkey.KeysetFile)
			if err != nil {
				client.Close()
				return nil, fmt.Errorf("failed to configure cache encryption: %w", err)
			}
			log.Info().Msg("valkey cache encryption enabled")
		}

		d, err := NewDistributed(client, ttl, sealer)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create valkey cache: %w", err)
		}

		return NewInstrumented(d, "valkey"), nil
	case "memory":
		log.Info().
			Int("maxSize", cfg.MemoryMaxSize).
			Msg("configuring in-memory cache")

		m, err := NewMemory(ttl, cfg.MemoryMaxSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}

		return NewInstrumented(m, "memory"), nil
	default:
		// unreachable after Validate
		return nil, fmt.Errorf("invalid cache type: %s", cfg.Type)
	}
}

func newValkeyClient(cfg config.ValkeyConfig) (valkey.Client, error) {
	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	if cfg.Username != "" || cfg.Password != "" {
		opts.AuthCredentialsFn = func(valkey.AuthCredentialsContext) (valkey.AuthCredentials, error) {
			return valkey.AuthCredentials{
				Username: cfg.Username,
				Password: cfg.Password,
			}, nil
		}
	}

	return valkey.NewClient(opts)
}
