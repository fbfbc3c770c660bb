package database

import "hubconnect/internal/backend/models"

// RunCustomMigrations runs what AutoMigrate cannot guarantee on databases
// created by older releases: the composite unique index on connections.
func (gdb *GormDB) RunCustomMigrations() error {
	gdb.logger.Info("Running custom migrations")

	migrator := gdb.db.Migrator()
	if !migrator.HasIndex(&models.Connection{}, "idx_connection_account") {
		if err := migrator.CreateIndex(&models.Connection{}, "idx_connection_account"); err != nil {
			return err
		}
	}

	gdb.logger.Info("Custom migrations completed")
	return nil
}
