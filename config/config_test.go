package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("ENCRYPTION_PASSPHRASE", "test-passphrase")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPListen)
	assert.Equal(t, ":50051", cfg.Server.GRPCListen)
	assert.Empty(t, cfg.Server.TrustedUserHeader, "header identity is opt-in")
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "test-passphrase", cfg.Encryption.Passphrase)
	assert.True(t, cfg.UsesDefaultSessionSecret())

	require.Len(t, cfg.Providers, 4)
	assert.Equal(t, "https://gitlab.com", cfg.Providers["gitlab"].BaseURL)
	assert.Empty(t, cfg.EnabledProviders())
}

func TestSecurityWarnings(t *testing.T) {
	cfg := DefaultConfig()
	warnings := cfg.SecurityWarnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "server.session_secret")

	cfg.Server.SessionSecret = "a-real-secret"
	assert.Empty(t, cfg.SecurityWarnings())

	cfg.Server.TrustedUserHeader = "X-Forwarded-User"
	warnings = cfg.SecurityWarnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "X-Forwarded-User")
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"encryption": {"passphrase": "from-file"},
		"http": {"timeout": "3s"},
		"database": {"type": "postgres", "host": "db", "name": "hub"},
		"providers": {
			"notion": {"enabled": true, "client_id": "n-id", "client_secret": "n-secret", "redirect_uri": "https://app/cb"}
		}
	}`), 0o600))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Encryption.Passphrase)
	assert.Equal(t, 3*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, []string{"notion"}, cfg.EnabledProviders())
	assert.Equal(t, "n-id", cfg.Providers["notion"].ClientID)
}

func TestProviderEnvironmentOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("ENCRYPTION_PASSPHRASE", "test-passphrase")
	t.Setenv("GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("GITHUB_REDIRECT_URI", "https://app.example.com/github/callback")
	t.Setenv("GITLAB_BASE_URL", "https://gitlab.internal")

	cfg, err := Load()
	require.NoError(t, err)

	gh := cfg.Providers["github"]
	assert.True(t, gh.Enabled)
	assert.Equal(t, "gh-id", gh.ClientID)
	assert.Equal(t, "https://app.example.com/github/callback", gh.RedirectURI)
	assert.Equal(t, "https://gitlab.internal", cfg.Providers["gitlab"].BaseURL)
	assert.False(t, cfg.Providers["gitlab"].Enabled)
	assert.Equal(t, []string{"github"}, cfg.EnabledProviders())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing passphrase", func(c *Config) { c.Encryption.Passphrase = "" }},
		{"unknown database", func(c *Config) { c.Database.Type = "mysql" }},
		{"non-positive timeout", func(c *Config) { c.HTTP.Timeout = 0 }},
		{"enabled provider without secret", func(c *Config) {
			c.Providers["slack"] = ProviderConfig{Enabled: true, ClientID: "id", RedirectURI: "https://app/cb"}
		}},
		{"enabled provider without redirect", func(c *Config) {
			c.Providers["slack"] = ProviderConfig{Enabled: true, ClientID: "id", ClientSecret: "s"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Encryption.Passphrase = "p"
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
