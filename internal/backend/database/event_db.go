package database

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"hubconnect/internal/backend/models"
)

// LogConnectionEvent appends an audit event. Metadata must not contain secrets.
func (gdb *GormDB) LogConnectionEvent(ctx context.Context, event *models.ConnectionEvent, metadata map[string]interface{}) error {
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode event metadata: %w", err)
		}
		event.Metadata = datatypes.JSON(data)
	}

	if err := gdb.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to log connection event: %w", err)
	}
	return nil
}

// ListConnectionEvents returns a user's most recent events first.
func (gdb *GormDB) ListConnectionEvents(ctx context.Context, userID string, limit int) ([]models.ConnectionEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []models.ConnectionEvent
	err := gdb.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list connection events: %w", err)
	}
	return events, nil
}
