package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hubconnect/config"
	"hubconnect/internal/backend/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique index.
	ErrDuplicate = errors.New("duplicate record")
)

type GormDB struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormDB creates a new GORM database connection
func NewGormDB(cfg config.DatabaseConfig, log *zap.Logger, debug bool) (*GormDB, error) {
	var db *gorm.DB
	var err error

	gormConfig := &gorm.Config{
		Logger:         newGormLogger(log, debug),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	switch cfg.Type {
	case "sqlite":
		if cfg.SQLitePath == "" {
			cfg.SQLitePath = "./hubconnect.db"
		}
		db, err = gorm.Open(sqlite.Open(sqliteDSN(cfg.SQLitePath)), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
		log.Info("Connected to SQLite", zap.String("path", cfg.SQLitePath))

	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)

		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Info("Connected to PostgreSQL",
			zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.String("database", cfg.Name))

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &GormDB{db: db, logger: log}, nil
}

// sqliteDSN enables foreign keys and waits on locks instead of failing.
// newGormLogger sends gorm output through zap. Misses are reported to callers
// as ErrNotFound and are not logged.
func newGormLogger(log *zap.Logger, debug bool) logger.Interface {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	return logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

// AutoMigrate runs database migrations
func (gdb *GormDB) AutoMigrate() error {
	gdb.logger.Info("Running database migrations")

	err := gdb.db.AutoMigrate(
		&models.User{},
		&models.Connection{},
		&models.Credential{},
		&models.ConnectionEvent{},
	)
	if err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}

	gdb.logger.Info("Database migrations completed")
	return nil
}

// translate maps gorm errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
