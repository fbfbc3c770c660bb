package providers

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"hubconnect/internal/backend/models"
)

const (
	notionBaseURL = "https://api.notion.com"
	notionVersion = "2022-06-28"
)

const notionDefaultSettings = `{"auto_sync_enabled":true,"sync_databases":true,"sync_pages":true,"sync_blocks":false,"notification_enabled":true,"bidirectional_sync":false}`

// Notion returns workspace and owner metadata with the token, so OAuth
// connections need no separate identity call.
type Notion struct {
	cfg   Config
	oauth *oauth2.Config
	api   *apiClient
}

func NewNotion(cfg Config, opts ...Option) *Notion {
	o := buildOptions(opts)

	cfg.BaseURL = strings.TrimRight(orDefault(cfg.BaseURL, notionBaseURL), "/")
	cfg.APIURL = strings.TrimRight(orDefault(cfg.APIURL, cfg.BaseURL+"/v1"), "/")

	return &Notion{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.BaseURL + "/v1/oauth/authorize",
				TokenURL: cfg.BaseURL + "/v1/oauth/token",
			},
		},
		api: newAPIClient(models.ProviderNotion, o.client),
	}
}

func (n *Notion) Kind() models.ProviderKind { return models.ProviderNotion }

func (n *Notion) DefaultSettings() string { return notionDefaultSettings }

func (n *Notion) AuthorizationURL(state string) string {
	return n.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("owner", "user"))
}

type notionWorkspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type notionOwnerUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Person    struct {
		Email string `json:"email"`
	} `json:"person"`
}

type notionTokenResponse struct {
	Error            string           `json:"error"`
	ErrorDescription string           `json:"error_description"`
	AccessToken      string           `json:"access_token"`
	TokenType        string           `json:"token_type"`
	BotID            string           `json:"bot_id"`
	WorkspaceID      string           `json:"workspace_id"`
	WorkspaceName    string           `json:"workspace_name"`
	WorkspaceIcon    string           `json:"workspace_icon"`
	Workspace        *notionWorkspace `json:"workspace"`
	Owner            struct {
		Type string           `json:"type"`
		User *notionOwnerUser `json:"user"`
	} `json:"owner"`
}

// workspace accepts both the flat workspace_* fields and a nested object.
func (r *notionTokenResponse) workspace() notionWorkspace {
	ws := notionWorkspace{ID: r.WorkspaceID, Name: r.WorkspaceName, Icon: r.WorkspaceIcon}
	if r.Workspace != nil {
		ws.ID = orDefault(ws.ID, r.Workspace.ID)
		ws.Name = orDefault(ws.Name, r.Workspace.Name)
		ws.Icon = orDefault(ws.Icon, r.Workspace.Icon)
	}
	return ws
}

func (n *Notion) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	payload := map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": orDefault(redirectURI, n.cfg.RedirectURI),
	}
	req, err := n.api.newJSONRequest(ctx, http.MethodPost, n.oauth.Endpoint.TokenURL, payload)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(n.cfg.ClientID, n.cfg.ClientSecret)
	req.Header.Set("Notion-Version", notionVersion)

	var resp notionTokenResponse
	if err := n.api.send(req, &resp); err != nil {
		return nil, n.api.exchangeError(err)
	}
	if resp.Error != "" {
		return nil, &ExchangeError{Provider: models.ProviderNotion, Reason: orDefault(resp.ErrorDescription, resp.Error)}
	}
	if resp.AccessToken == "" {
		return nil, &ExchangeError{Provider: models.ProviderNotion, Reason: "response missing access_token"}
	}

	ws := resp.workspace()
	identity := n.identity(ws.ID, ws.Name, resp.BotID)
	if identity.AccountID == "" {
		return nil, &ExchangeError{Provider: models.ProviderNotion, Reason: "response missing workspace and bot id"}
	}
	identity.AvatarURL = ws.Icon
	if owner := resp.Owner.User; owner != nil {
		identity.UserID = owner.ID
		identity.Username = orDefault(owner.Name, identity.Username)
		identity.Email = owner.Person.Email
		if owner.AvatarURL != "" {
			identity.AvatarURL = owner.AvatarURL
		}
	}

	return &Token{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		Identity:    identity,
	}, nil
}

type notionMe struct {
	Object      string `json:"object"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	Bot         *struct {
		WorkspaceID   string `json:"workspace_id"`
		WorkspaceName string `json:"workspace_name"`
		Owner         struct {
			Type string           `json:"type"`
			User *notionOwnerUser `json:"user"`
		} `json:"owner"`
	} `json:"bot"`
}

func (n *Notion) me(ctx context.Context, token string) (*notionMe, error) {
	req, err := n.api.newRequest(ctx, http.MethodGet, n.cfg.APIURL+"/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Notion-Version", notionVersion)

	var me notionMe
	if err := n.api.sendAuthorized(req, bearer(token), &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (n *Notion) ValidateToken(ctx context.Context, token string) bool {
	me, err := n.me(ctx, token)
	return err == nil && me.ID != ""
}

// FetchIdentity resolves the bot user behind an integration token.
func (n *Notion) FetchIdentity(ctx context.Context, token string) (*Identity, error) {
	me, err := n.me(ctx, token)
	if err != nil {
		return nil, n.api.identityError(err)
	}
	if me.ID == "" {
		return nil, &IdentityFetchError{Provider: models.ProviderNotion, Reason: "response missing id"}
	}

	// The workspace id is read from the bot object, then from the top level.
	// Without either the account is keyed on the bot id.
	workspaceID, workspaceName := me.WorkspaceID, ""
	if me.Bot != nil {
		workspaceID = orDefault(me.Bot.WorkspaceID, workspaceID)
		workspaceName = me.Bot.WorkspaceName
	}

	identity := n.identity(workspaceID, workspaceName, me.ID)
	identity.Username = orDefault(me.Name, me.ID)
	identity.AvatarURL = me.AvatarURL
	if me.Bot != nil && me.Bot.Owner.User != nil {
		identity.UserID = me.Bot.Owner.User.ID
		identity.Email = me.Bot.Owner.User.Person.Email
	}
	return identity, nil
}

// identity keys the account on the workspace, or on the bot when the
// workspace is unknown.
func (n *Notion) identity(workspaceID, workspaceName, botID string) *Identity {
	display := "Notion"
	if workspaceName != "" {
		display = workspaceName + " - Notion"
	}
	return &Identity{
		AccountID:     orDefault(workspaceID, botID),
		UserID:        botID,
		Username:      botID,
		WorkspaceID:   workspaceID,
		WorkspaceName: workspaceName,
		DisplayName:   display,
	}
}

// Revoke is a no-op: Notion tokens are revoked by removing the integration
// from the workspace.
func (n *Notion) Revoke(ctx context.Context, token string) error {
	return nil
}
