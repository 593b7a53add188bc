package infrastructure

import (
	"fmt"
	"time"

	"furniture-store/internal/config"
	"furniture-store/internal/model"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGormConfig returns the gorm settings shared by the PostgreSQL connection
// and the SQLite databases used in tests. SQL statements go to the given logger.
func NewGormConfig(log zerolog.Logger) *gorm.Config {
	gormLog := log.With().Str("component", "gorm").Logger()
	return &gorm.Config{
		Logger: logger.New(
			&gormLog,
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		// unique violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
	}
}

// ConnectDatabase establishes a connection to PostgreSQL database using GORM
func ConnectDatabase(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), NewGormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// MigrateAllSchemas performs all database migrations in the correct order
func MigrateAllSchemas(db *gorm.DB) error {
	// referenced tables first
	tables := []struct {
		name  string
		model any
	}{
		{"User", &model.User{}},
		{"Product", &model.Product{}},
		{"Order", &model.Order{}},
		{"OrderItem", &model.OrderItem{}},
		{"OrderStatusChange", &model.OrderStatusChange{}},
		{"Invoice", &model.Invoice{}},
	}
	for _, table := range tables {
		if err := db.AutoMigrate(table.model); err != nil {
			return fmt.Errorf("failed to migrate %s table: %w", table.name, err)
		}
	}

	if err := createAdditionalIndexes(db); err != nil {
		return fmt.Errorf("failed to create additional indexes: %w", err)
	}
	return nil
}

// createAdditionalIndexes creates composite indexes for the list queries
func createAdditionalIndexes(db *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_orders_user_created
		ON orders(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created
		ON orders(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_order_status_changes_order_changed
		ON order_status_changes(order_id, changed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role_active
		ON users(role, is_active)`,
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
