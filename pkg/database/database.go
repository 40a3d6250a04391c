package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clinicore/labflow/internal/config"
	"github.com/clinicore/labflow/internal/domain"
	"github.com/clinicore/labflow/internal/domain/laborder"
	"github.com/clinicore/labflow/internal/domain/labresult"
	"github.com/clinicore/labflow/internal/domain/labsample"
	"github.com/clinicore/labflow/internal/domain/labtest"
	"github.com/clinicore/labflow/internal/domain/patient"
	"github.com/clinicore/labflow/internal/notify"
	"github.com/clinicore/labflow/internal/sequence"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
		DisableAutomaticPing:                     false,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"lab", "clinical", "auth", "audit"} // logical namespaces
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&patient.Patient{},
		&labtest.LabTest{},
		&laborder.LabOrder{},
		&laborder.LabOrderItem{},
		&labsample.LabSample{},
		&labresult.LabResult{},
		&sequence.Counter{},
		&notify.OutboxEvent{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		// Technician work queue: pending orders, urgent first then oldest.
		{
			name:  "idx_orders_pending_queue",
			query: `CREATE INDEX IF NOT EXISTS idx_orders_pending_queue ON lab.orders (is_urgent DESC, order_date ASC) WHERE deleted_at IS NULL AND status IN ('ordered', 'sample_collected', 'in_progress')`,
		},
		{
			name:  "idx_order_items_by_order",
			query: `CREATE INDEX IF NOT EXISTS idx_order_items_by_order ON lab.order_items (lab_order_id, status)`,
		},
		{
			name:  "idx_results_unverified",
			query: `CREATE INDEX IF NOT EXISTS idx_results_unverified ON lab.results (result_time) WHERE NOT is_verified`,
		},
		{
			name:  "idx_outbox_unpublished",
			query: `CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON lab.outbox_events (created_at) WHERE published_at IS NULL`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}

	return nil
}
