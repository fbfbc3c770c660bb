package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hubconnect/internal/backend/database"
	"hubconnect/internal/backend/models"
	"hubconnect/internal/backend/providers"
	"hubconnect/internal/backend/vault"
)

// ConnectionService drives the connection lifecycle: connect, reconnect,
// toggle, revalidate, rotate and disconnect.
type ConnectionService struct {
	adapters AdapterSource
	vault    *vault.Vault
	registry *RegistryService
	store    Store
	users    UserDirectory
	logger   *zap.Logger
	now      func() time.Time

	revokes sync.WaitGroup
}

// ManualSetupRequest carries a pre-obtained token and the account the caller
// claims it belongs to. Empty hints are not checked.
type ManualSetupRequest struct {
	Token    string
	BotToken string

	AccountID   string
	WorkspaceID string
	Username    string
	DisplayName string

	// BaseURL targets a self-hosted instance.
	BaseURL  string
	Settings string
}

// TokenValidation is the result of validating a token without storing it.
type TokenValidation struct {
	Valid    bool                `json:"valid"`
	Identity *providers.Identity `json:"identity,omitempty"`
}

type credentialInput struct {
	token    string
	botToken string

	// settings replaces the stored settings; defaultSettings only seeds a
	// credential that has none.
	settings        string
	defaultSettings string

	scopes      string
	baseURL     string
	displayName string
}

func NewConnectionService(adapters AdapterSource, v *vault.Vault, store Store, users UserDirectory, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{
		adapters: adapters,
		vault:    v,
		registry: NewRegistryService(store, users, logger),
		store:    store,
		users:    users,
		logger:   logger.Named("connections"),
		now:      time.Now,
	}
}

func (s *ConnectionService) Registry() *RegistryService {
	return s.registry
}

// Wait blocks until background token revocations have finished.
func (s *ConnectionService) Wait() {
	s.revokes.Wait()
}

func (s *ConnectionService) BuildAuthorizationURL(kind models.ProviderKind, state string) (string, error) {
	a, err := s.adapter(kind)
	if err != nil {
		return "", err
	}
	return a.AuthorizationURL(state), nil
}

// ConnectViaOAuth exchanges code for a token and creates or reactivates the
// connection of the account it belongs to.
func (s *ConnectionService) ConnectViaOAuth(ctx context.Context, userID string, kind models.ProviderKind, code, redirectURI string) (*ConnectionView, error) {
	if err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	a, err := s.adapter(kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, &ValidationError{Field: "code", Reason: "must not be empty"}
	}

	token, err := a.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		s.record(ctx, userID, kind, "", models.ActionConnect, err, nil)
		return nil, err
	}

	identity := token.Identity
	if identity == nil {
		identity, err = a.FetchIdentity(ctx, token.AccessToken)
		if err != nil {
			s.record(ctx, userID, kind, "", models.ActionConnect, err, nil)
			return nil, err
		}
	}

	conn, created, err := s.upsert(ctx, userID, kind, identity, credentialInput{
		token:           token.AccessToken,
		botToken:        token.BotToken,
		defaultSettings: a.DefaultSettings(),
		scopes:          token.Scope,
		baseURL:         adapterBaseURL(a),
	})
	if err != nil {
		s.record(ctx, userID, kind, "", models.ActionConnect, err, nil)
		return nil, err
	}

	return s.finishConnect(ctx, conn, created, models.ActionConnect, token.AccessToken), nil
}

// ConnectManually accepts a pre-obtained token. The token must validate and
// must belong to the account named by the request hints.
func (s *ConnectionService) ConnectManually(ctx context.Context, userID string, kind models.ProviderKind, req ManualSetupRequest) (*ConnectionView, error) {
	if err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, &ValidationError{Field: "token", Reason: "must not be empty"}
	}

	a, err := s.adapter(kind)
	if err != nil {
		return nil, err
	}
	if a, err = retarget(a, strings.TrimSpace(req.BaseURL)); err != nil {
		return nil, err
	}

	if !a.ValidateToken(ctx, token) {
		err := &InvalidTokenError{Provider: kind}
		s.record(ctx, userID, kind, "", models.ActionManualConnect, err, nil)
		return nil, err
	}

	identity, err := a.FetchIdentity(ctx, token)
	if err != nil {
		s.record(ctx, userID, kind, "", models.ActionManualConnect, err, nil)
		return nil, err
	}
	if err := matchHints(kind, identity, req); err != nil {
		s.record(ctx, userID, kind, "", models.ActionManualConnect, err, nil)
		return nil, err
	}

	conn, created, err := s.upsert(ctx, userID, kind, identity, credentialInput{
		token:           token,
		botToken:        strings.TrimSpace(req.BotToken),
		settings:        req.Settings,
		defaultSettings: a.DefaultSettings(),
		baseURL:         adapterBaseURL(a),
		displayName:     strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		s.record(ctx, userID, kind, "", models.ActionManualConnect, err, nil)
		return nil, err
	}

	return s.finishConnect(ctx, conn, created, models.ActionManualConnect, token), nil
}

// ValidateToken checks a token against the provider without persisting it.
func (s *ConnectionService) ValidateToken(ctx context.Context, userID string, kind models.ProviderKind, token, baseURL string) (*TokenValidation, error) {
	if err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &ValidationError{Field: "token", Reason: "must not be empty"}
	}

	a, err := s.adapter(kind)
	if err != nil {
		return nil, err
	}
	if a, err = retarget(a, strings.TrimSpace(baseURL)); err != nil {
		return nil, err
	}

	if !a.ValidateToken(ctx, token) {
		return &TokenValidation{Valid: false}, nil
	}

	identity, err := a.FetchIdentity(ctx, token)
	if err != nil {
		if providers.IsUnavailable(err) {
			return nil, err
		}
		s.logger.Debug("Token is valid but identity lookup failed",
			zap.String("provider", kind.Slug()),
			zap.Error(err))
		return &TokenValidation{Valid: true}, nil
	}
	return &TokenValidation{Valid: true, Identity: identity}, nil
}

func (s *ConnectionService) List(ctx context.Context, userID string, activeOnly bool) ([]*ConnectionView, error) {
	conns, err := s.registry.ListByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, err
	}

	views := make([]*ConnectionView, 0, len(conns))
	for i := range conns {
		views = append(views, s.view(&conns[i]))
	}
	return views, nil
}

func (s *ConnectionService) Get(ctx context.Context, userID, connectionID string) (*ConnectionView, error) {
	conn, err := s.registry.FindOwned(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	return s.view(conn), nil
}

func (s *ConnectionService) Toggle(ctx context.Context, userID, connectionID string) (*ConnectionView, error) {
	conn, err := s.registry.ToggleActive(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, userID, conn.Provider, conn.ID, models.ActionToggle, nil, map[string]interface{}{
		"active": conn.Active,
	})
	return s.view(conn), nil
}

// Disconnect revokes the token in the background and deletes the connection.
// Revocation failures never fail the disconnect.
func (s *ConnectionService) Disconnect(ctx context.Context, userID, connectionID string) error {
	conn, err := s.registry.FindOwned(ctx, userID, connectionID)
	if err != nil {
		return err
	}

	s.revokeAsync(ctx, conn)

	if err := s.registry.Remove(ctx, userID, connectionID); err != nil {
		s.record(ctx, userID, conn.Provider, conn.ID, models.ActionDisconnect, err, nil)
		return err
	}

	s.record(ctx, userID, conn.Provider, conn.ID, models.ActionDisconnect, nil, map[string]interface{}{
		"external_account_id": conn.ExternalAccountID,
	})
	s.logger.Info("Connection disconnected",
		zap.String("user_id", userID),
		zap.String("connection_id", conn.ID),
		zap.String("provider", conn.Provider.Slug()))
	return nil
}

// Revalidate reports whether the stored token still works. It never changes
// the connection, whatever the outcome.
func (s *ConnectionService) Revalidate(ctx context.Context, userID, connectionID string) (bool, error) {
	conn, err := s.registry.FindOwned(ctx, userID, connectionID)
	if err != nil {
		return false, err
	}

	secrets, err := s.vault.Reveal(conn.Credential)
	if err != nil {
		s.record(ctx, userID, conn.Provider, conn.ID, models.ActionRevalidate, err, nil)
		return false, err
	}

	a, err := s.adapterFor(conn)
	if err != nil {
		return false, err
	}

	valid := a.ValidateToken(ctx, secrets.Token)
	var outcome error
	if !valid {
		outcome = &InvalidTokenError{Provider: conn.Provider}
	}
	s.record(ctx, userID, conn.Provider, conn.ID, models.ActionRevalidate, outcome, map[string]interface{}{
		"valid": valid,
	})
	return valid, nil
}

// UpdateSettings replaces the settings document and keeps the token.
func (s *ConnectionService) UpdateSettings(ctx context.Context, userID, connectionID, settings string) (*ConnectionView, error) {
	if strings.TrimSpace(settings) == "" {
		return nil, &ValidationError{Field: "settings", Reason: "must not be empty"}
	}

	conn, err := s.registry.FindOwned(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Credential == nil {
		return nil, &vault.VaultError{Op: "update settings", Err: errors.New("connection has no credential")}
	}

	if err := s.vault.ReplaceSettings(conn.Credential, settings); err != nil {
		return nil, settingsError(err)
	}
	if err := s.store.UpdateConnection(ctx, conn, conn.Credential); err != nil {
		s.record(ctx, userID, conn.Provider, conn.ID, models.ActionUpdateSettings, err, nil)
		return nil, err
	}

	s.record(ctx, userID, conn.Provider, conn.ID, models.ActionUpdateSettings, nil, nil)
	return s.view(conn), nil
}

// RotateToken swaps in a new token for the same external account.
func (s *ConnectionService) RotateToken(ctx context.Context, userID, connectionID, newToken string) (*ConnectionView, error) {
	newToken = strings.TrimSpace(newToken)
	if newToken == "" {
		return nil, &ValidationError{Field: "token", Reason: "must not be empty"}
	}

	conn, err := s.registry.FindOwned(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	a, err := s.adapterFor(conn)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*ConnectionView, error) {
		s.record(ctx, userID, conn.Provider, conn.ID, models.ActionRotate, err, nil)
		return nil, err
	}

	if !a.ValidateToken(ctx, newToken) {
		return fail(&InvalidTokenError{Provider: conn.Provider})
	}
	identity, err := a.FetchIdentity(ctx, newToken)
	if err != nil {
		return fail(err)
	}
	if identity.AccountID != conn.ExternalAccountID {
		return fail(&IdentityMismatchError{Provider: conn.Provider, Field: "accountId"})
	}

	cred := conn.Credential
	if cred == nil {
		cred = &models.Credential{}
	}
	if err := s.vault.ReplaceToken(cred, newToken); err != nil {
		return fail(err)
	}
	applyIdentity(cred, identity, credentialInput{})

	conn.LastSyncAt = models.TimePtr(s.now().UTC())
	if err := s.store.UpdateConnection(ctx, conn, cred); err != nil {
		return fail(err)
	}

	s.record(ctx, userID, conn.Provider, conn.ID, models.ActionRotate, nil, map[string]interface{}{
		"masked_token": vault.MaskToken(newToken),
	})
	return s.view(conn), nil
}

func (s *ConnectionService) Statistics(ctx context.Context, userID string) (*models.ConnectionStatistics, error) {
	return s.registry.Statistics(ctx, userID)
}

func (s *ConnectionService) Events(ctx context.Context, userID string, limit int) ([]models.ConnectionEvent, error) {
	return s.registry.Events(ctx, userID, limit)
}

// upsert creates the connection keyed on identity, or updates and
// reactivates the existing one. A unique violation on insert means a
// concurrent connect won the race and is retried as an update.
func (s *ConnectionService) upsert(ctx context.Context, userID string, kind models.ProviderKind, identity *providers.Identity, in credentialInput) (*models.Connection, bool, error) {
	if identity == nil || identity.AccountID == "" {
		return nil, false, &providers.IdentityFetchError{Provider: kind, Reason: "identity has no account id"}
	}

	existing, err := s.store.FindConnectionByAccount(ctx, userID, kind, identity.AccountID)
	switch {
	case err == nil:
		conn, err := s.reconnect(ctx, existing, identity, in)
		return conn, false, err
	case !errors.Is(err, database.ErrNotFound):
		return nil, false, err
	}

	settings := in.settings
	if strings.TrimSpace(settings) == "" {
		settings = in.defaultSettings
	}
	cred, err := s.vault.Store(in.token, settings)
	if err != nil {
		return nil, false, settingsError(err)
	}
	if err := s.vault.ReplaceBotToken(cred, in.botToken); err != nil {
		return nil, false, err
	}
	applyIdentity(cred, identity, in)

	conn := &models.Connection{
		UserID:            userID,
		Provider:          kind,
		ExternalAccountID: identity.AccountID,
		DisplayName:       displayName(kind, identity, in),
		WorkspaceName:     identity.WorkspaceName,
		Active:            true,
		ConnectedAt:       s.now().UTC(),
	}

	err = s.store.CreateConnection(ctx, conn, cred)
	if errors.Is(err, database.ErrDuplicate) {
		s.logger.Debug("Concurrent connect detected, updating existing connection",
			zap.String("user_id", userID),
			zap.String("provider", kind.Slug()))

		existing, findErr := s.store.FindConnectionByAccount(ctx, userID, kind, identity.AccountID)
		if findErr != nil {
			return nil, false, findErr
		}
		conn, err := s.reconnect(ctx, existing, identity, in)
		return conn, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return conn, true, nil
}

// reconnect replaces the token of an existing connection and forces it
// active. Settings are kept unless the caller supplied new ones.
func (s *ConnectionService) reconnect(ctx context.Context, conn *models.Connection, identity *providers.Identity, in credentialInput) (*models.Connection, error) {
	cred := conn.Credential
	if cred == nil {
		cred = &models.Credential{}
	}

	if err := s.vault.ReplaceToken(cred, in.token); err != nil {
		return nil, err
	}
	if in.botToken != "" {
		if err := s.vault.ReplaceBotToken(cred, in.botToken); err != nil {
			return nil, err
		}
	}

	switch {
	case strings.TrimSpace(in.settings) != "":
		if err := s.vault.ReplaceSettings(cred, in.settings); err != nil {
			return nil, settingsError(err)
		}
	case cred.Settings == "" && in.defaultSettings != "":
		if err := s.vault.ReplaceSettings(cred, in.defaultSettings); err != nil {
			return nil, err
		}
	}
	applyIdentity(cred, identity, in)

	conn.Active = true
	if name := displayName(conn.Provider, identity, in); name != "" {
		conn.DisplayName = name
	}
	if identity.WorkspaceName != "" {
		conn.WorkspaceName = identity.WorkspaceName
	}

	if err := s.store.UpdateConnection(ctx, conn, cred); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *ConnectionService) finishConnect(ctx context.Context, conn *models.Connection, created bool, action, rawToken string) *ConnectionView {
	if !created {
		action = models.ActionReconnect
	}
	masked := vault.MaskToken(rawToken)

	s.record(ctx, conn.UserID, conn.Provider, conn.ID, action, nil, map[string]interface{}{
		"external_account_id": conn.ExternalAccountID,
		"masked_token":        masked,
	})
	s.logger.Info("Connection established",
		zap.String("user_id", conn.UserID),
		zap.String("connection_id", conn.ID),
		zap.String("provider", conn.Provider.Slug()),
		zap.String("action", action),
		zap.String("token", masked))
	return s.view(conn)
}

func (s *ConnectionService) revokeAsync(ctx context.Context, conn *models.Connection) {
	log := s.logger.With(
		zap.String("user_id", conn.UserID),
		zap.String("connection_id", conn.ID),
		zap.String("provider", conn.Provider.Slug()))

	secrets, err := s.vault.Reveal(conn.Credential)
	if err != nil {
		log.Warn("Skipping token revocation, credential unreadable", zap.Error(err))
		return
	}
	a, err := s.adapterFor(conn)
	if err != nil {
		log.Warn("Skipping token revocation", zap.Error(err))
		return
	}

	tokens := []string{secrets.Token}
	if secrets.BotToken != "" {
		tokens = append(tokens, secrets.BotToken)
	}

	background := context.WithoutCancel(ctx)
	userID, connID, kind := conn.UserID, conn.ID, conn.Provider

	s.revokes.Add(1)
	go func() {
		defer s.revokes.Done()

		ctx, cancel := context.WithTimeout(background, providers.DefaultTimeout)
		defer cancel()

		var revokeErr error
		for _, token := range tokens {
			if err := a.Revoke(ctx, token); err != nil {
				revokeErr = err
				log.Warn("Token revocation failed",
					zap.Bool("retryable", providers.IsUnavailable(err)),
					zap.Error(err))
			}
		}
		s.record(ctx, userID, kind, connID, models.ActionRevoke, revokeErr, nil)
	}()
}

// record appends a connection event. Failures are logged and dropped.
func (s *ConnectionService) record(ctx context.Context, userID string, kind models.ProviderKind, connectionID, action string, opErr error, metadata map[string]interface{}) {
	event := &models.ConnectionEvent{
		UserID:   userID,
		Provider: kind,
		Action:   action,
		Success:  opErr == nil,
	}
	if connectionID != "" {
		event.ConnectionID = models.StringPtr(connectionID)
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}

	if err := s.store.LogConnectionEvent(ctx, event, metadata); err != nil {
		s.logger.Warn("Failed to record connection event",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func (s *ConnectionService) view(conn *models.Connection) *ConnectionView {
	return newConnectionView(s.vault, conn, s.logger)
}

func (s *ConnectionService) adapter(kind models.ProviderKind) (providers.Adapter, error) {
	a, ok := s.adapters.Get(kind)
	if !ok {
		return nil, &ValidationError{Field: "provider", Reason: fmt.Sprintf("%s is not configured", kind.Title())}
	}
	return a, nil
}

// adapterFor returns the adapter serving conn, retargeted at the instance
// its credential was issued by.
func (s *ConnectionService) adapterFor(conn *models.Connection) (providers.Adapter, error) {
	a, err := s.adapter(conn.Provider)
	if err != nil {
		return nil, err
	}
	if conn.Credential == nil {
		return a, nil
	}
	return retarget(a, conn.Credential.BaseURL)
}

func retarget(a providers.Adapter, baseURL string) (providers.Adapter, error) {
	if baseURL == "" {
		return a, nil
	}
	r, ok := a.(providers.Retargetable)
	if !ok {
		return nil, &ValidationError{Field: "baseUrl", Reason: fmt.Sprintf("%s does not support a custom base URL", a.Kind().Title())}
	}

	retargeted, err := r.WithBaseURL(baseURL)
	if err != nil {
		return nil, &ValidationError{Field: "baseUrl", Reason: err.Error()}
	}
	return retargeted, nil
}

func adapterBaseURL(a providers.Adapter) string {
	if b, ok := a.(interface{ BaseURL() string }); ok {
		return b.BaseURL()
	}
	return ""
}

// matchHints rejects a token whose identity contradicts the account the
// caller claimed.
func matchHints(kind models.ProviderKind, identity *providers.Identity, req ManualSetupRequest) error {
	if hint := strings.TrimSpace(req.AccountID); hint != "" {
		if hint != identity.AccountID && hint != identity.UserID && !strings.EqualFold(hint, identity.Username) {
			return &IdentityMismatchError{Provider: kind, Field: "accountId"}
		}
	}
	if hint := strings.TrimSpace(req.WorkspaceID); hint != "" && identity.WorkspaceID != "" {
		if hint != identity.WorkspaceID {
			return &IdentityMismatchError{Provider: kind, Field: "workspaceId"}
		}
	}
	if hint := strings.TrimSpace(req.Username); hint != "" && identity.Username != "" {
		if !strings.EqualFold(hint, identity.Username) {
			return &IdentityMismatchError{Provider: kind, Field: "username"}
		}
	}
	return nil
}

func applyIdentity(cred *models.Credential, identity *providers.Identity, in credentialInput) {
	cred.AccountID = identity.UserID
	if cred.AccountID == "" {
		cred.AccountID = identity.AccountID
	}
	cred.Username = identity.Username
	cred.AvatarURL = identity.AvatarURL
	cred.ProfileURL = identity.ProfileURL
	cred.Email = identity.Email

	if in.baseURL != "" {
		cred.BaseURL = in.baseURL
	}
	if in.scopes != "" {
		cred.Scopes = in.scopes
	}
}

func displayName(kind models.ProviderKind, identity *providers.Identity, in credentialInput) string {
	switch {
	case in.displayName != "":
		return in.displayName
	case identity.DisplayName != "":
		return identity.DisplayName
	case identity.Username != "":
		return kind.Title() + " - " + identity.Username
	default:
		return kind.Title()
	}
}

func settingsError(err error) error {
	if errors.Is(err, vault.ErrInvalidSettings) {
		return &ValidationError{Field: "settings", Reason: "must be a JSON document"}
	}
	return err
}
