package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	entdomain "github.com/smallbiznis/matchpay/internal/entitlement/domain"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.
	return nil
}

// Migrate prepares the schema. Postgres gets versioned SQL migrations; the
// other dialects are created from the models.
func Migrate(conn *gorm.DB, log *zap.Logger) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	dialect := conn.Dialector.Name()
	if dialect == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("database migrations applied", zap.String("dialect", dialect))
		return nil
	}

	if err := conn.Table("processed_payments").AutoMigrate(&domain.ProcessedPaymentRecord{}); err != nil {
		return fmt.Errorf("migrate processed_payments: %w", err)
	}
	if err := conn.AutoMigrate(&entdomain.Entitlement{}); err != nil {
		return fmt.Errorf("migrate premium_entitlements: %w", err)
	}
	log.Info("database schema synced from models", zap.String("dialect", dialect))
	return nil
}
