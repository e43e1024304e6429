package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SMAUG_URL", "http://smaug.test/configuration")
	t.Setenv("USERINFO_URL", "http://login.test/userinfo")
	t.Setenv("FBS_CMS_API_URL", "http://fbs.test")
	t.Setenv("FBS_CMS_CREDENTIALS", "710100,user,pass")
}

func TestLoad_Defaults(t *testing.T) {
	requiredEnv(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 0, cfg.Cache.TTLSeconds)
	assert.Equal(t, "fbs-cms-adapter", cfg.Observe.ServiceName)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("SMAUG_URL", "http://smaug.test/configuration")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestValkeyConfig(t *testing.T) {
	requiredEnv(t)
	t.Setenv("CACHE_TYPE", "valkey")
	t.Setenv("VALKEY_ADDRESS", "localhost:6379")
	t.Setenv("VALKEY_USERNAME", "adapter")
	t.Setenv("VALKEY_PASSWORD", "secret")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	expected := ValkeyConfig{
		Address:  "localhost:6379",
		TLS:      true, // default
		Username: "adapter",
		Password: "secret",
	}
	assert.Equal(t, expected, cfg.Cache.Valkey)
}

func TestValkeyConfig_AddressRequired(t *testing.T) {
	requiredEnv(t)
	t.Setenv("CACHE_TYPE", "valkey")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "VALKEY_ADDRESS")
}

func TestCacheConfig_InvalidType(t *testing.T) {
	requiredEnv(t)
	t.Setenv("CACHE_TYPE", "redis")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "invalid cache type")
}
