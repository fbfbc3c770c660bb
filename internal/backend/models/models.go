package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is owned by the auth subsystem; connections only reference its ID.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:255" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = GenerateID()
	}
	return nil
}

func (User) TableName() string { return "users" }

// ProviderKind identifies a third-party service a user can connect.
type ProviderKind string

const (
	ProviderGitHub ProviderKind = "GITHUB"
	ProviderGitLab ProviderKind = "GITLAB"
	ProviderSlack  ProviderKind = "SLACK"
	ProviderNotion ProviderKind = "NOTION"
)

// AllProviders lists every supported provider in display order.
var AllProviders = []ProviderKind{ProviderGitHub, ProviderGitLab, ProviderSlack, ProviderNotion}

// ParseProviderKind accepts "github", "GITHUB", "GitHub" and so on.
func ParseProviderKind(s string) (ProviderKind, error) {
	kind := ProviderKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range AllProviders {
		if p == kind {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Slug is the lowercase form used in URLs, config keys and statistics.
func (p ProviderKind) Slug() string {
	return strings.ToLower(string(p))
}

func (p ProviderKind) String() string { return string(p) }

// Title is the human-readable provider name.
func (p ProviderKind) Title() string {
	switch p {
	case ProviderGitHub:
		return "GitHub"
	case ProviderGitLab:
		return "GitLab"
	case ProviderSlack:
		return "Slack"
	case ProviderNotion:
		return "Notion"
	default:
		return string(p)
	}
}

func GenerateID() string {
	return uuid.NewString()
}
