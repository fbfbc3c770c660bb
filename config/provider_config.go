package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ProviderConfig is the OAuth client registration for one provider. A
// disabled provider still accepts manually entered tokens.
type ProviderConfig struct {
	Enabled      bool     `json:"enabled" mapstructure:"enabled"`
	ClientID     string   `json:"client_id" mapstructure:"client_id"`
	ClientSecret string   `json:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `json:"redirect_uri" mapstructure:"redirect_uri"`
	BaseURL      string   `json:"base_url" mapstructure:"base_url"`
	APIURL       string   `json:"api_url" mapstructure:"api_url"`
	Scopes       []string `json:"scopes" mapstructure:"scopes"`
}

var providerNames = []string{"github", "gitlab", "slack", "notion"}

// DefaultProviders returns every provider, disabled, with its public endpoints.
func DefaultProviders() map[string]ProviderConfig {
	providers := make(map[string]ProviderConfig, len(providerNames))
	for _, name := range providerNames {
		providers[name] = getDefaultProviderConfig(name)
	}
	return providers
}

func getDefaultProviderConfig(provider string) ProviderConfig {
	switch provider {
	case "github":
		return ProviderConfig{
			BaseURL: "https://github.com",
			APIURL:  "https://api.github.com",
			Scopes:  []string{"repo", "user:email", "read:org"},
		}
	case "gitlab":
		return ProviderConfig{
			BaseURL: "https://gitlab.com",
			Scopes:  []string{"read_user", "read_repository", "read_api"},
		}
	case "slack":
		return ProviderConfig{
			BaseURL: "https://slack.com",
			APIURL:  "https://slack.com/api",
			Scopes:  []string{"channels:read", "groups:read", "im:read", "mpim:read", "chat:write", "users:read", "team:read"},
		}
	case "notion":
		return ProviderConfig{
			BaseURL: "https://api.notion.com",
		}
	default:
		return ProviderConfig{}
	}
}

func setProviderViperDefaults(providers map[string]ProviderConfig) {
	for name, p := range providers {
		prefix := "providers." + name
		viper.SetDefault(prefix+".enabled", p.Enabled)
		viper.SetDefault(prefix+".client_id", p.ClientID)
		viper.SetDefault(prefix+".client_secret", p.ClientSecret)
		viper.SetDefault(prefix+".redirect_uri", p.RedirectURI)
		viper.SetDefault(prefix+".base_url", p.BaseURL)
		viper.SetDefault(prefix+".api_url", p.APIURL)
		viper.SetDefault(prefix+".scopes", p.Scopes)
	}
}

// loadProvidersFromEnv applies <PROVIDER>_CLIENT_ID style variables. A
// provider with both client id and secret from the environment is enabled.
func loadProvidersFromEnv(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	for _, name := range providerNames {
		envPrefix := strings.ToUpper(name)
		p, ok := cfg.Providers[name]
		if !ok {
			p = getDefaultProviderConfig(name)
		}

		clientID := os.Getenv(envPrefix + "_CLIENT_ID")
		clientSecret := os.Getenv(envPrefix + "_CLIENT_SECRET")
		if clientID != "" {
			p.ClientID = clientID
		}
		if clientSecret != "" {
			p.ClientSecret = clientSecret
		}
		if clientID != "" && clientSecret != "" {
			p.Enabled = true
		}

		if redirectURI := os.Getenv(envPrefix + "_REDIRECT_URI"); redirectURI != "" {
			p.RedirectURI = redirectURI
		}
		if baseURL := os.Getenv(envPrefix + "_BASE_URL"); baseURL != "" {
			p.BaseURL = baseURL
		}
		if scopes := os.Getenv(envPrefix + "_SCOPES"); scopes != "" {
			p.Scopes = strings.Split(scopes, ",")
		}

		cfg.Providers[name] = p
	}
}

func (p *ProviderConfig) Validate(name string) error {
	if p.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}

	if p.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}

	if p.RedirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}

	known := false
	for _, n := range providerNames {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown provider")
	}

	return nil
}

// EnabledProviders lists the providers with OAuth enabled, in display order.
func (c *Config) EnabledProviders() []string {
	var enabled []string
	for _, name := range providerNames {
		if p, ok := c.Providers[name]; ok && p.Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled
}
