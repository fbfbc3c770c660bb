package providers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"hubconnect/internal/backend/models"
)

const githubAPIURL = "https://api.github.com"

var githubScopes = []string{"repo", "user:email", "read:org"}

const githubDefaultSettings = `{"auto_sync_enabled":true,"sync_commits":true,"sync_pull_requests":true,"sync_issues":true,"sync_releases":false,"notification_enabled":true,"webhook_enabled":false}`

// GitHub talks to github.com or a GitHub-compatible host.
type GitHub struct {
	cfg   Config
	oauth *oauth2.Config
	api   *apiClient
}

func NewGitHub(cfg Config, opts ...Option) *GitHub {
	o := buildOptions(opts)

	endpoint := endpoints.GitHub
	if cfg.BaseURL != "" {
		base := strings.TrimRight(cfg.BaseURL, "/")
		endpoint = oauth2.Endpoint{
			AuthURL:   base + "/login/oauth/authorize",
			TokenURL:  base + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
	cfg.APIURL = strings.TrimRight(orDefault(cfg.APIURL, githubAPIURL), "/")
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = githubScopes
	}

	return &GitHub{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		api: newAPIClient(models.ProviderGitHub, o.client),
	}
}

func (g *GitHub) Kind() models.ProviderKind { return models.ProviderGitHub }

func (g *GitHub) DefaultSettings() string { return githubDefaultSettings }

func (g *GitHub) AuthorizationURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

func (g *GitHub) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
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

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

func (g *GitHub) currentUser(ctx context.Context, token string) (*githubUser, error) {
	req, err := g.api.newRequest(ctx, http.MethodGet, g.cfg.APIURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	var user githubUser
	if err := g.api.sendAuthorized(req, &oauth2.Token{AccessToken: token, TokenType: "token"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *GitHub) ValidateToken(ctx context.Context, token string) bool {
	user, err := g.currentUser(ctx, token)
	return err == nil && user.ID != 0
}

func (g *GitHub) FetchIdentity(ctx context.Context, token string) (*Identity, error) {
	user, err := g.currentUser(ctx, token)
	if err != nil {
		return nil, g.api.identityError(err)
	}
	if user.ID == 0 || user.Login == "" {
		return nil, &IdentityFetchError{Provider: models.ProviderGitHub, Reason: "response missing id or login"}
	}

	id := strconv.FormatInt(user.ID, 10)
	return &Identity{
		AccountID:   id,
		UserID:      id,
		Username:    user.Login,
		AvatarURL:   user.AvatarURL,
		ProfileURL:  user.HTMLURL,
		Email:       user.Email,
		DisplayName: "GitHub - " + user.Login,
	}, nil
}

// Revoke deletes the OAuth grant for token. Without client credentials there
// is no grant to delete, so it is a no-op.
func (g *GitHub) Revoke(ctx context.Context, token string) error {
	if g.cfg.ClientID == "" || g.cfg.ClientSecret == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/applications/%s/grant", g.cfg.APIURL, g.cfg.ClientID)
	req, err := g.api.newJSONRequest(ctx, http.MethodDelete, endpoint, map[string]string{"access_token": token})
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	req.Header.Set("Accept", "application/vnd.github+json")

	return g.api.send(req, nil)
}
