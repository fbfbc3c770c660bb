package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"hubconnect/internal/backend/database"
	"hubconnect/internal/backend/models"
)

// RegistryService owns Connection records and enforces that every lookup by
// id is scoped to the acting user.
type RegistryService struct {
	store  Store
	users  UserDirectory
	logger *zap.Logger
}

func NewRegistryService(store Store, users UserDirectory, logger *zap.Logger) *RegistryService {
	return &RegistryService{
		store:  store,
		users:  users,
		logger: logger.Named("registry"),
	}
}

func (r *RegistryService) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]models.Connection, error) {
	if err := requireUser(ctx, r.users, userID); err != nil {
		return nil, err
	}
	return r.store.ListConnections(ctx, userID, activeOnly)
}

// FindOwned returns NotFoundError for connections of other users.
func (r *RegistryService) FindOwned(ctx context.Context, userID, connectionID string) (*models.Connection, error) {
	if err := requireUser(ctx, r.users, userID); err != nil {
		return nil, err
	}

	conn, err := r.store.GetConnection(ctx, userID, connectionID)
	if err != nil {
		return nil, notFound(err, connectionID)
	}
	return conn, nil
}

func (r *RegistryService) ToggleActive(ctx context.Context, userID, connectionID string) (*models.Connection, error) {
	if err := requireUser(ctx, r.users, userID); err != nil {
		return nil, err
	}

	conn, err := r.store.ToggleConnectionActive(ctx, userID, connectionID)
	if err != nil {
		return nil, notFound(err, connectionID)
	}

	r.logger.Debug("Toggled connection",
		zap.String("user_id", userID),
		zap.String("connection_id", connectionID),
		zap.Bool("active", conn.Active))
	return conn, nil
}

// Remove deletes the connection and its credential.
func (r *RegistryService) Remove(ctx context.Context, userID, connectionID string) error {
	if err := requireUser(ctx, r.users, userID); err != nil {
		return err
	}
	if err := r.store.DeleteConnection(ctx, userID, connectionID); err != nil {
		return notFound(err, connectionID)
	}
	return nil
}

func (r *RegistryService) Statistics(ctx context.Context, userID string) (*models.ConnectionStatistics, error) {
	if err := requireUser(ctx, r.users, userID); err != nil {
		return nil, err
	}
	return r.store.ConnectionStatistics(ctx, userID)
}

func (r *RegistryService) Events(ctx context.Context, userID string, limit int) ([]models.ConnectionEvent, error) {
	if err := requireUser(ctx, r.users, userID); err != nil {
		return nil, err
	}
	return r.store.ListConnectionEvents(ctx, userID, limit)
}

func notFound(err error, connectionID string) error {
	if errors.Is(err, database.ErrNotFound) {
		return &NotFoundError{Resource: "connection", ID: connectionID}
	}
	return err
}
