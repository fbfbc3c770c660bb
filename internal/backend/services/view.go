package services

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"hubconnect/internal/backend/models"
	"hubconnect/internal/backend/vault"
)

// ConnectionView is the display-safe form of a Connection and its Credential.
type ConnectionView struct {
	ID                string              `json:"id"`
	Provider          models.ProviderKind `json:"provider"`
	ExternalAccountID string              `json:"externalAccountId"`
	DisplayName       string              `json:"displayName"`
	WorkspaceName     string              `json:"workspaceName,omitempty"`
	Active            bool                `json:"active"`
	ConnectedAt       time.Time           `json:"connectedAt"`
	LastSyncAt        *time.Time          `json:"lastSyncAt,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`

	AccountID  string `json:"accountId,omitempty"`
	Username   string `json:"username,omitempty"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
	Email      string `json:"email,omitempty"`
	BaseURL    string `json:"baseUrl,omitempty"`
	Scopes     string `json:"scopes,omitempty"`

	MaskedToken    string          `json:"maskedToken"`
	MaskedBotToken string          `json:"maskedBotToken,omitempty"`
	Settings       json.RawMessage `json:"settings,omitempty"`

	// NeedsReconnect is set when the stored credential cannot be decrypted.
	NeedsReconnect bool `json:"needsReconnect,omitempty"`
}

func newConnectionView(v *vault.Vault, conn *models.Connection, logger *zap.Logger) *ConnectionView {
	view := &ConnectionView{
		ID:                conn.ID,
		Provider:          conn.Provider,
		ExternalAccountID: conn.ExternalAccountID,
		DisplayName:       conn.DisplayName,
		WorkspaceName:     conn.WorkspaceName,
		Active:            conn.Active,
		ConnectedAt:       conn.ConnectedAt,
		LastSyncAt:        conn.LastSyncAt,
		CreatedAt:         conn.CreatedAt,
		UpdatedAt:         conn.UpdatedAt,
	}

	cred := conn.Credential
	if cred != nil {
		view.AccountID = cred.AccountID
		view.Username = cred.Username
		view.AvatarURL = cred.AvatarURL
		view.ProfileURL = cred.ProfileURL
		view.Email = cred.Email
		view.BaseURL = cred.BaseURL
		view.Scopes = cred.Scopes
	}

	masked, err := v.Project(cred)
	if err != nil {
		logger.Warn("Credential cannot be opened, reconnect required",
			zap.String("connection_id", conn.ID),
			zap.String("provider", conn.Provider.Slug()),
			zap.Error(err))
		view.MaskedToken = vault.MaskPlaceholder
		view.NeedsReconnect = true
		return view
	}

	view.MaskedToken = masked.MaskedToken
	view.MaskedBotToken = masked.MaskedBotToken
	view.Settings = masked.Settings
	return view
}
