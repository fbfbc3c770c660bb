package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Connection links a user to one external account of one provider. Active is
// the only activation flag; Credential carries none.
type Connection struct {
	ID                string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID            string       `gorm:"not null;size:36;uniqueIndex:idx_connection_account,priority:1;index" json:"user_id"`
	Provider          ProviderKind `gorm:"not null;size:20;uniqueIndex:idx_connection_account,priority:2" json:"provider"`
	ExternalAccountID string       `gorm:"not null;size:255;uniqueIndex:idx_connection_account,priority:3" json:"external_account_id"`
	DisplayName       string       `gorm:"size:255" json:"display_name"`
	WorkspaceName     string       `gorm:"size:255" json:"workspace_name,omitempty"`
	Active            bool         `gorm:"not null;index" json:"active"`
	ConnectedAt       time.Time    `gorm:"not null" json:"connected_at"`
	LastSyncAt        *time.Time   `json:"last_sync_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`

	Credential *Credential `gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = GenerateID()
	}
	return nil
}

func (Connection) TableName() string { return "connections" }

// Credential holds the encrypted secrets of a Connection. AccessToken,
// BotToken and Settings are cipher output, never plaintext.
type Credential struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConnectionID string    `gorm:"not null;size:36;uniqueIndex" json:"connection_id"`
	AccessToken  string    `gorm:"not null;type:text" json:"-"`
	BotToken     string    `gorm:"type:text" json:"-"`
	Settings     string    `gorm:"type:text" json:"-"`
	AccountID    string    `gorm:"size:255" json:"account_id"`
	Username     string    `gorm:"size:255" json:"username"`
	AvatarURL    string    `gorm:"size:1024" json:"avatar_url,omitempty"`
	ProfileURL   string    `gorm:"size:1024" json:"profile_url,omitempty"`
	Email        string    `gorm:"size:255" json:"email,omitempty"`
	BaseURL      string    `gorm:"size:1024" json:"base_url,omitempty"`
	Scopes       string    `gorm:"type:text" json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = GenerateID()
	}
	return nil
}

func (Credential) TableName() string { return "credentials" }

// Connection event actions.
const (
	ActionConnect        = "connect"
	ActionReconnect      = "reconnect"
	ActionManualConnect  = "manual_connect"
	ActionToggle         = "toggle"
	ActionDisconnect     = "disconnect"
	ActionRevoke         = "revoke"
	ActionRevalidate     = "revalidate"
	ActionRotate         = "rotate"
	ActionUpdateSettings = "update_settings"
)

// ConnectionEvent is an append-only audit record. It is kept after the
// connection it refers to is deleted.
type ConnectionEvent struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string         `gorm:"not null;size:36;index" json:"user_id"`
	ConnectionID *string        `gorm:"size:36;index" json:"connection_id,omitempty"`
	Provider     ProviderKind   `gorm:"not null;size:20;index" json:"provider"`
	Action       string         `gorm:"not null;size:50" json:"action"`
	Success      bool           `gorm:"not null;index" json:"success"`
	Error        string         `gorm:"type:text" json:"error,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
}

func (e *ConnectionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = GenerateID()
	}
	return nil
}

func (ConnectionEvent) TableName() string { return "connection_events" }
