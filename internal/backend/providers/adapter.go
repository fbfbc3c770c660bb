package providers

import (
	"context"
	"net/http"
	"time"

	"hubconnect/internal/backend/models"
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 10 * time.Second

// Adapter speaks one provider's OAuth, identity and revocation protocol.
type Adapter interface {
	Kind() models.ProviderKind

	// AuthorizationURL returns the consent URL. state is echoed back verbatim.
	AuthorizationURL(state string) string

	// ExchangeCode trades an authorization code for a Token. An empty
	// redirectURI falls back to the configured one.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error)

	// ValidateToken performs the cheapest authenticated call the provider
	// offers. Any failure, network errors included, yields false.
	ValidateToken(ctx context.Context, token string) bool

	FetchIdentity(ctx context.Context, token string) (*Identity, error)

	// Revoke asks the provider to invalidate token. Callers treat errors as
	// advisory only.
	Revoke(ctx context.Context, token string) error

	// DefaultSettings is the settings JSON applied to new OAuth connections.
	DefaultSettings() string
}

// Retargetable is implemented by adapters that can serve a self-hosted
// instance, such as GitLab.
type Retargetable interface {
	WithBaseURL(baseURL string) (Adapter, error)
}

// Token is the result of a code exchange.
type Token struct {
	AccessToken string
	TokenType   string
	Scope       string

	// BotToken is Slack's workspace bot token, when granted.
	BotToken string

	// Identity is set when the token response already describes the account
	// (Slack, Notion). Otherwise the caller must use FetchIdentity.
	Identity *Identity
}

// Identity describes the external account behind a token.
type Identity struct {
	// AccountID is the stable external account identifier a connection is
	// keyed on. It may be a composite such as "<team>:<user>".
	AccountID string `json:"accountId"`

	// UserID is the provider's raw user id.
	UserID        string `json:"userId,omitempty"`
	Username      string `json:"username,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	ProfileURL    string `json:"profileUrl,omitempty"`
	Email         string `json:"email,omitempty"`
	WorkspaceID   string `json:"workspaceId,omitempty"`
	WorkspaceName string `json:"workspaceName,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
}

// Config is the static OAuth client configuration of one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// BaseURL hosts the OAuth endpoints. For GitLab it is also the API host.
	BaseURL string
	// APIURL hosts the REST API when it differs from BaseURL.
	APIURL string
	Scopes []string
}

// Option customizes an adapter.
type Option func(*options)

type options struct {
	client *http.Client
}

// WithHTTPClient replaces the default client, which has a DefaultTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

func buildOptions(opts []Option) options {
	o := options{client: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
