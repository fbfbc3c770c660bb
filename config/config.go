package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	LogLevel   string                    `json:"log_level" mapstructure:"log_level"`
	Server     ServerConfig              `json:"server" mapstructure:"server"`
	Database   DatabaseConfig            `json:"database" mapstructure:"database"`
	Encryption EncryptionConfig          `json:"encryption" mapstructure:"encryption"`
	HTTP       HTTPClientConfig          `json:"http" mapstructure:"http"`
	Providers  map[string]ProviderConfig `json:"providers" mapstructure:"providers"`
}

type ServerConfig struct {
	HTTPListen        string   `json:"http_listen" mapstructure:"http_listen"`
	GRPCListen        string   `json:"grpc_listen" mapstructure:"grpc_listen"`
	SessionSecret     string   `json:"session_secret" mapstructure:"session_secret"`
	TrustedUserHeader string   `json:"trusted_user_header" mapstructure:"trusted_user_header"`
	CORSOrigins       []string `json:"cors_origins" mapstructure:"cors_origins"`
	SecureCookies     bool     `json:"secure_cookies" mapstructure:"secure_cookies"`
}

type DatabaseConfig struct {
	Type       string `json:"type" mapstructure:"type"`
	SQLitePath string `json:"sqlite_path" mapstructure:"sqlite_path"`
	Host       string `json:"host" mapstructure:"host"`
	Port       int    `json:"port" mapstructure:"port"`
	Name       string `json:"name" mapstructure:"name"`
	User       string `json:"user" mapstructure:"user"`
	Password   string `json:"password" mapstructure:"password"`
	SSLMode    string `json:"sslmode" mapstructure:"sslmode"`
}

// EncryptionConfig holds the passphrase the credential cipher key is derived from.
type EncryptionConfig struct {
	Passphrase string `json:"passphrase" mapstructure:"passphrase"`
}

// HTTPClientConfig bounds outbound provider calls.
type HTTPClientConfig struct {
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

const defaultSessionSecret = "hubconnect-session-secret-change-me"

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			HTTPListen:        ":8080",
			GRPCListen:        ":50051",
			SessionSecret:     defaultSessionSecret,
		},
		Database: DatabaseConfig{
			Type:       "sqlite",
			SQLitePath: "./hubconnect.db",
			Host:       "localhost",
			Port:       5432,
			Name:       "hubconnect",
			User:       "hubconnect",
			SSLMode:    "disable",
		},
		HTTP: HTTPClientConfig{
			Timeout: 10 * time.Second,
		},
		Providers: DefaultProviders(),
	}
}

// Load reads configuration from the active viper instance: config file,
// HUBCONNECT_* variables and the per-provider variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	setViperDefaults(cfg)
	bindEnvironmentVariables()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadProvidersFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setViperDefaults(cfg *Config) {
	viper.SetDefault("log_level", cfg.LogLevel)

	viper.SetDefault("server.http_listen", cfg.Server.HTTPListen)
	viper.SetDefault("server.grpc_listen", cfg.Server.GRPCListen)
	viper.SetDefault("server.session_secret", cfg.Server.SessionSecret)
	viper.SetDefault("server.trusted_user_header", cfg.Server.TrustedUserHeader)
	viper.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)
	viper.SetDefault("server.secure_cookies", cfg.Server.SecureCookies)

	viper.SetDefault("database.type", cfg.Database.Type)
	viper.SetDefault("database.sqlite_path", cfg.Database.SQLitePath)
	viper.SetDefault("database.host", cfg.Database.Host)
	viper.SetDefault("database.port", cfg.Database.Port)
	viper.SetDefault("database.name", cfg.Database.Name)
	viper.SetDefault("database.user", cfg.Database.User)
	viper.SetDefault("database.password", cfg.Database.Password)
	viper.SetDefault("database.sslmode", cfg.Database.SSLMode)

	viper.SetDefault("encryption.passphrase", cfg.Encryption.Passphrase)
	viper.SetDefault("http.timeout", cfg.HTTP.Timeout)

	setProviderViperDefaults(cfg.Providers)
}

func bindEnvironmentVariables() {
	viper.BindEnv("database.password", "HUBCONNECT_DATABASE_PASSWORD", "DATABASE_PASSWORD")
	viper.BindEnv("encryption.passphrase", "HUBCONNECT_ENCRYPTION_PASSPHRASE", "ENCRYPTION_PASSPHRASE")
	viper.BindEnv("server.session_secret", "HUBCONNECT_SERVER_SESSION_SECRET", "SESSION_SECRET")
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Encryption.Passphrase) == "" {
		return fmt.Errorf("encryption.passphrase is required")
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for sqlite")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}

	if c.Server.SessionSecret == "" {
		return fmt.Errorf("server.session_secret is required")
	}

	for name, provider := range c.Providers {
		if !provider.Enabled {
			continue
		}
		if err := provider.Validate(name); err != nil {
			return fmt.Errorf("provider %s validation failed: %w", name, err)
		}
	}

	return nil
}

// UsesDefaultSessionSecret reports whether the built-in session secret is in use.
func (c *Config) UsesDefaultSessionSecret() bool {
	return c.Server.SessionSecret == defaultSessionSecret
}

// SecurityWarnings lists settings that let a client act as another user.
func (c *Config) SecurityWarnings() []string {
	var warnings []string
	if c.UsesDefaultSessionSecret() {
		warnings = append(warnings, "server.session_secret is the built-in default; session cookies can be forged")
	}
	if c.Server.TrustedUserHeader != "" {
		warnings = append(warnings, fmt.Sprintf("server.trusted_user_header %q is trusted; only expose the server behind a proxy that sets it", c.Server.TrustedUserHeader))
	}
	return warnings
}

// GetConfigDir returns the per-user config directory.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config", "hubconnect")
}
