package database

import (
	"context"
	"fmt"
)

// HealthCheck pings the database
func (gdb *GormDB) HealthCheck(ctx context.Context) error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
