package database

import (
	"context"
	"fmt"
	"strings"

	"hubconnect/internal/backend/models"
)

func (gdb *GormDB) CreateUser(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{Email: strings.ToLower(strings.TrimSpace(email))}

	if err := gdb.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", translate(err))
	}

	return user, nil
}

func (gdb *GormDB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := gdb.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (gdb *GormDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := gdb.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
