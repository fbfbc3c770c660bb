package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"hubconnect/internal/backend/models"
)

const gitlabBaseURL = "https://gitlab.com"

var gitlabScopes = []string{"read_user", "read_repository", "read_api"}

const gitlabDefaultSettings = `{"auto_sync_enabled":true,"sync_commits":true,"sync_merge_requests":true,"sync_issues":true,"sync_releases":false,"sync_pipelines":false,"notification_enabled":true,"webhook_enabled":false}`

// GitLab talks to gitlab.com or a self-hosted instance. The OAuth and REST
// endpoints share BaseURL.
type GitLab struct {
	cfg   Config
	host  string
	oauth *oauth2.Config
	api   *apiClient
}

func NewGitLab(cfg Config, opts ...Option) (*GitLab, error) {
	o := buildOptions(opts)

	cfg.BaseURL = strings.TrimRight(orDefault(cfg.BaseURL, gitlabBaseURL), "/")
	host, err := instanceHost(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	cfg.APIURL = strings.TrimRight(orDefault(cfg.APIURL, cfg.BaseURL+"/api/v4"), "/")
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = gitlabScopes
	}

	endpoint := endpoints.GitLab
	if cfg.BaseURL != gitlabBaseURL {
		endpoint = oauth2.Endpoint{
			AuthURL:   cfg.BaseURL + "/oauth/authorize",
			TokenURL:  cfg.BaseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}

	return &GitLab{
		cfg:  cfg,
		host: host,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		api: newAPIClient(models.ProviderGitLab, o.client),
	}, nil
}

func instanceHost(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid GitLab base URL %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid GitLab base URL %q: must be an absolute http(s) URL", baseURL)
	}
	return u.Host, nil
}

// WithBaseURL returns an adapter for another GitLab instance that shares the
// HTTP client. The API URL follows the new base. The OAuth application is
// registered on the configured instance only, so its client credentials are
// not carried to a different host.
func (g *GitLab) WithBaseURL(baseURL string) (Adapter, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" || baseURL == g.cfg.BaseURL {
		return g, nil
	}

	host, err := instanceHost(baseURL)
	if err != nil {
		return nil, err
	}

	cfg := g.cfg
	cfg.BaseURL = baseURL
	cfg.APIURL = ""
	if host != g.host {
		cfg.ClientID = ""
		cfg.ClientSecret = ""
		cfg.RedirectURI = ""
	}
	return NewGitLab(cfg, WithHTTPClient(g.api.client))
}

// BaseURL is the instance this adapter talks to.
func (g *GitLab) BaseURL() string { return g.cfg.BaseURL }

func (g *GitLab) Kind() models.ProviderKind { return models.ProviderGitLab }

func (g *GitLab) DefaultSettings() string { return gitlabDefaultSettings }

func (g *GitLab) AuthorizationURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

func (g *GitLab) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	token, err := g.api.exchange(ctx, g.oauth, code, redirectURI)
	if err != nil {
		return nil, err
	}

	scope, _ := token.Extra("scope").(string)
	return &Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Scope:       scope,
	}, nil
}

type gitlabUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	WebURL    string `json:"web_url"`
}

func (g *GitLab) currentUser(ctx context.Context, token string) (*gitlabUser, error) {
	req, err := g.api.newRequest(ctx, http.MethodGet, g.cfg.APIURL+"/user", nil)
	if err != nil {
		return nil, err
	}

	var user gitlabUser
	if err := g.api.sendAuthorized(req, bearer(token), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *GitLab) ValidateToken(ctx context.Context, token string) bool {
	user, err := g.currentUser(ctx, token)
	return err == nil && user.ID != 0
}

// FetchIdentity keys the account on "<host>/<user id>" since user ids are
// only unique per instance.
func (g *GitLab) FetchIdentity(ctx context.Context, token string) (*Identity, error) {
	user, err := g.currentUser(ctx, token)
	if err != nil {
		return nil, g.api.identityError(err)
	}
	if user.ID == 0 || user.Username == "" {
		return nil, &IdentityFetchError{Provider: models.ProviderGitLab, Reason: "response missing id or username"}
	}

	id := strconv.FormatInt(user.ID, 10)
	return &Identity{
		AccountID:     g.host + "/" + id,
		UserID:        id,
		Username:      user.Username,
		AvatarURL:     user.AvatarURL,
		ProfileURL:    user.WebURL,
		Email:         user.Email,
		WorkspaceID:   g.host,
		WorkspaceName: g.host,
		DisplayName:   "GitLab - " + user.Username,
	}, nil
}

// Revoke authenticates as the OAuth application when one is configured for
// this instance; otherwise only the token is sent.
func (g *GitLab) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	if g.cfg.ClientID != "" {
		form.Set("client_id", g.cfg.ClientID)
		form.Set("client_secret", g.cfg.ClientSecret)
	}
	req, err := g.api.newFormRequest(ctx, g.cfg.BaseURL+"/oauth/revoke", form)
	if err != nil {
		return err
	}
	return g.api.send(req, nil)
}
