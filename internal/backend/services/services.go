package services

import (
	"context"
	"errors"

	"hubconnect/internal/backend/database"
	"hubconnect/internal/backend/models"
	"hubconnect/internal/backend/providers"
)

// Store is the persistence the connection services need. *database.GormDB
// implements it.
type Store interface {
	CreateConnection(ctx context.Context, conn *models.Connection, cred *models.Credential) error
	UpdateConnection(ctx context.Context, conn *models.Connection, cred *models.Credential) error
	FindConnectionByAccount(ctx context.Context, userID string, provider models.ProviderKind, externalAccountID string) (*models.Connection, error)
	GetConnection(ctx context.Context, userID, connectionID string) (*models.Connection, error)
	ListConnections(ctx context.Context, userID string, activeOnly bool) ([]models.Connection, error)
	ToggleConnectionActive(ctx context.Context, userID, connectionID string) (*models.Connection, error)
	DeleteConnection(ctx context.Context, userID, connectionID string) error
	ConnectionStatistics(ctx context.Context, userID string) (*models.ConnectionStatistics, error)

	LogConnectionEvent(ctx context.Context, event *models.ConnectionEvent, metadata map[string]interface{}) error
	ListConnectionEvents(ctx context.Context, userID string, limit int) ([]models.ConnectionEvent, error)
}

// UserDirectory resolves users owned by the auth subsystem.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// AdapterSource looks up provider adapters. *providers.Registry implements it.
type AdapterSource interface {
	Get(kind models.ProviderKind) (providers.Adapter, bool)
}

var (
	_ Store         = (*database.GormDB)(nil)
	_ UserDirectory = (*database.GormDB)(nil)
	_ AdapterSource = (*providers.Registry)(nil)
)

// requireUser returns ForbiddenError unless userID names a known user.
func requireUser(ctx context.Context, users UserDirectory, userID string) error {
	if userID == "" {
		return &ForbiddenError{Reason: "no authenticated user"}
	}
	if users == nil {
		return nil
	}

	if _, err := users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return &ForbiddenError{Reason: "unknown user"}
		}
		return err
	}
	return nil
}
