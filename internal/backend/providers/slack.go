package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"hubconnect/internal/backend/models"
)

const (
	slackBaseURL = "https://slack.com"
	slackAPIURL  = "https://slack.com/api"
)

var slackScopes = []string{"channels:read", "groups:read", "im:read", "mpim:read", "chat:write", "users:read", "team:read"}

const slackDefaultSettings = `{"auto_sync_enabled":true,"sync_mentions":true,"sync_direct_messages":true,"sync_threads":true,"sync_channel_messages":false,"notification_enabled":true}`

// Slack uses OAuth v2. Every Web API response is HTTP 200 with an "ok" flag.
type Slack struct {
	cfg   Config
	oauth *oauth2.Config
	api   *apiClient
}

func NewSlack(cfg Config, opts ...Option) *Slack {
	o := buildOptions(opts)

	cfg.BaseURL = strings.TrimRight(orDefault(cfg.BaseURL, slackBaseURL), "/")
	cfg.APIURL = strings.TrimRight(orDefault(cfg.APIURL, slackAPIURL), "/")
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = slackScopes
	}

	return &Slack{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.BaseURL + "/oauth/v2/authorize",
				TokenURL: cfg.APIURL + "/oauth.v2.access",
			},
		},
		api: newAPIClient(models.ProviderSlack, o.client),
	}
}

func (s *Slack) Kind() models.ProviderKind { return models.ProviderSlack }

func (s *Slack) DefaultSettings() string { return slackDefaultSettings }

// AuthorizationURL requests the scopes both for the bot and for the
// installing user; Slack expects them comma separated.
func (s *Slack) AuthorizationURL(state string) string {
	scopes := strings.Join(s.cfg.Scopes, ",")
	return s.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("scope", scopes),
		oauth2.SetAuthURLParam("user_scope", scopes),
	)
}

type slackTeam struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type slackAccessResponse struct {
	OK          bool       `json:"ok"`
	Error       string     `json:"error"`
	AccessToken string     `json:"access_token"`
	Scope       string     `json:"scope"`
	TokenType   string     `json:"token_type"`
	BotUserID   string     `json:"bot_user_id"`
	Team        *slackTeam `json:"team"`
	AuthedUser  struct {
		ID          string `json:"id"`
		Scope       string `json:"scope"`
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	} `json:"authed_user"`
}

// ExchangeCode calls oauth.v2.access. The user token lives under
// authed_user and becomes the primary token; the top-level token is the bot's.
func (s *Slack) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	form := url.Values{
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
		"code":          {code},
		"redirect_uri":  {orDefault(redirectURI, s.cfg.RedirectURI)},
	}
	req, err := s.api.newFormRequest(ctx, s.oauth.Endpoint.TokenURL, form)
	if err != nil {
		return nil, err
	}

	var resp slackAccessResponse
	if err := s.api.send(req, &resp); err != nil {
		return nil, s.api.exchangeError(err)
	}
	if !resp.OK {
		return nil, &ExchangeError{Provider: models.ProviderSlack, Reason: orDefault(resp.Error, "unknown error")}
	}
	if resp.AuthedUser.AccessToken == "" || resp.AuthedUser.ID == "" {
		return nil, &ExchangeError{Provider: models.ProviderSlack, Reason: "response missing authed_user token"}
	}
	if resp.Team == nil || resp.Team.ID == "" {
		return nil, &ExchangeError{Provider: models.ProviderSlack, Reason: "response missing team"}
	}

	identity := s.identity(resp.Team.ID, resp.Team.Name, resp.AuthedUser.ID)
	identity.Username = s.userName(ctx, resp.AuthedUser.AccessToken, resp.AuthedUser.ID)

	return &Token{
		AccessToken: resp.AuthedUser.AccessToken,
		TokenType:   resp.AuthedUser.TokenType,
		Scope:       resp.AuthedUser.Scope,
		BotToken:    resp.AccessToken,
		Identity:    identity,
	}, nil
}

type slackAuthTest struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	URL    string `json:"url"`
	Team   string `json:"team"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
}

func (s *Slack) authTest(ctx context.Context, token string) (*slackAuthTest, error) {
	req, err := s.api.newRequest(ctx, http.MethodPost, s.cfg.APIURL+"/auth.test", nil)
	if err != nil {
		return nil, err
	}

	var result slackAuthTest
	if err := s.api.sendAuthorized(req, bearer(token), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Slack) ValidateToken(ctx context.Context, token string) bool {
	result, err := s.authTest(ctx, token)
	return err == nil && result.OK
}

func (s *Slack) FetchIdentity(ctx context.Context, token string) (*Identity, error) {
	result, err := s.authTest(ctx, token)
	if err != nil {
		return nil, s.api.identityError(err)
	}
	if !result.OK {
		return nil, &IdentityFetchError{Provider: models.ProviderSlack, Reason: orDefault(result.Error, "auth.test failed")}
	}
	if result.UserID == "" || result.TeamID == "" {
		return nil, &IdentityFetchError{Provider: models.ProviderSlack, Reason: "response missing user_id or team_id"}
	}

	identity := s.identity(result.TeamID, result.Team, result.UserID)
	identity.ProfileURL = result.URL
	identity.Username = s.userName(ctx, token, result.UserID)
	if identity.Username == "" {
		identity.Username = result.User
	}
	return identity, nil
}

func (s *Slack) identity(teamID, teamName, userID string) *Identity {
	display := "Slack"
	if teamName != "" {
		display = teamName + " - Slack"
	}
	return &Identity{
		AccountID:     teamID + ":" + userID,
		UserID:        userID,
		Username:      userID,
		WorkspaceID:   teamID,
		WorkspaceName: teamName,
		DisplayName:   display,
	}
}

// userName looks up the real name of userID, falling back to the handle and
// then to the id itself. Failures are not fatal.
func (s *Slack) userName(ctx context.Context, token, userID string) string {
	req, err := s.api.newRequest(ctx, http.MethodGet, s.cfg.APIURL+"/users.info?user="+url.QueryEscape(userID), nil)
	if err != nil {
		return userID
	}

	var result struct {
		OK   bool `json:"ok"`
		User struct {
			Name     string `json:"name"`
			RealName string `json:"real_name"`
		} `json:"user"`
	}
	if err := s.api.sendAuthorized(req, bearer(token), &result); err != nil || !result.OK {
		return userID
	}
	return orDefault(result.User.RealName, orDefault(result.User.Name, userID))
}

func (s *Slack) Revoke(ctx context.Context, token string) error {
	req, err := s.api.newRequest(ctx, http.MethodPost, s.cfg.APIURL+"/auth.revoke", nil)
	if err != nil {
		return err
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := s.api.sendAuthorized(req, bearer(token), &result); err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("slack auth.revoke: %s", orDefault(result.Error, "unknown error"))
	}
	return nil
}
