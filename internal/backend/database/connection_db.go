package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"hubconnect/internal/backend/models"
)

// CreateConnection inserts conn and its credential in one transaction. A
// second connection for the same (user, provider, external account) fails
// with ErrDuplicate.
func (gdb *GormDB) CreateConnection(ctx context.Context, conn *models.Connection, cred *models.Credential) error {
	err := gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Credential").Create(conn).Error; err != nil {
			return err
		}
		cred.ConnectionID = conn.ID
		return tx.Create(cred).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", translate(err))
	}

	conn.Credential = cred
	return nil
}

// UpdateConnection saves conn and its credential in one transaction.
func (gdb *GormDB) UpdateConnection(ctx context.Context, conn *models.Connection, cred *models.Credential) error {
	err := gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Credential").Save(conn).Error; err != nil {
			return err
		}
		if cred == nil {
			return nil
		}
		cred.ConnectionID = conn.ID
		return tx.Save(cred).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", translate(err))
	}

	if cred != nil {
		conn.Credential = cred
	}
	return nil
}

// FindConnectionByAccount looks up the connection keyed on an external account.
func (gdb *GormDB) FindConnectionByAccount(ctx context.Context, userID string, provider models.ProviderKind, externalAccountID string) (*models.Connection, error) {
	var conn models.Connection
	err := gdb.db.WithContext(ctx).
		Preload("Credential").
		Where("user_id = ? AND provider = ? AND external_account_id = ?", userID, provider, externalAccountID).
		First(&conn).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conn, nil
}

// GetConnection loads a connection owned by userID. Connections of other
// users are reported as ErrNotFound.
func (gdb *GormDB) GetConnection(ctx context.Context, userID, connectionID string) (*models.Connection, error) {
	var conn models.Connection
	err := gdb.db.WithContext(ctx).
		Preload("Credential").
		Where("id = ? AND user_id = ?", connectionID, userID).
		First(&conn).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conn, nil
}

func (gdb *GormDB) ListConnections(ctx context.Context, userID string, activeOnly bool) ([]models.Connection, error) {
	query := gdb.db.WithContext(ctx).Preload("Credential").Where("user_id = ?", userID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var conns []models.Connection
	if err := query.Order("created_at ASC").Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// ToggleConnectionActive flips the active flag in a single statement.
func (gdb *GormDB) ToggleConnectionActive(ctx context.Context, userID, connectionID string) (*models.Connection, error) {
	result := gdb.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ? AND user_id = ?", connectionID, userID).
		Updates(map[string]interface{}{
			"active":     gorm.Expr("NOT active"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to toggle connection: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	return gdb.GetConnection(ctx, userID, connectionID)
}

// DeleteConnection removes a connection and its credential.
func (gdb *GormDB) DeleteConnection(ctx context.Context, userID, connectionID string) error {
	return gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned int64
		if err := tx.Model(&models.Connection{}).Where("id = ? AND user_id = ?", connectionID, userID).Count(&owned).Error; err != nil {
			return fmt.Errorf("failed to look up connection: %w", err)
		}
		if owned == 0 {
			return ErrNotFound
		}

		if err := tx.Where("connection_id = ?", connectionID).Delete(&models.Credential{}).Error; err != nil {
			return fmt.Errorf("failed to delete credential: %w", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", connectionID, userID).Delete(&models.Connection{}).Error; err != nil {
			return fmt.Errorf("failed to delete connection: %w", err)
		}
		return nil
	})
}

type providerCountRow struct {
	Provider models.ProviderKind
	Total    int64
	Active   int64
}

// ConnectionStatistics counts a user's connections per provider.
func (gdb *GormDB) ConnectionStatistics(ctx context.Context, userID string) (*models.ConnectionStatistics, error) {
	var rows []providerCountRow
	err := gdb.db.WithContext(ctx).
		Model(&models.Connection{}).
		Select("provider, COUNT(*) AS total, SUM(CASE WHEN active THEN 1 ELSE 0 END) AS active").
		Where("user_id = ?", userID).
		Group("provider").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count connections: %w", err)
	}

	stats := models.NewConnectionStatistics()
	for _, row := range rows {
		stats.Total += row.Total
		stats.Active += row.Active
		stats.ByProvider[row.Provider.Slug()] = models.ProviderStatistics{Total: row.Total, Active: row.Active}
	}
	return stats, nil
}
