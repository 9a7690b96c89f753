// Package db opens the gorm connection backing diagnosis history.
package db

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	diagnosisadapters "wheatleaf_backend/internal/feature/diagnosis/adapters"
	"wheatleaf_backend/internal/platform/config"
)

// retryInterval is the wait between connection attempts.
const retryInterval = 3 * time.Second

// ErrDisabled is returned by Open when no driver is configured.
var ErrDisabled = errors.New("database disabled")

// Opener opens a gorm connection for a DSN.
type Opener func(dsn string) (*gorm.DB, error)

func openPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// BuildDSN builds a PostgreSQL key/value DSN.
// When InstanceName is set the Cloud SQL unix socket directory is used instead of Host/Port.
func BuildDSN(cfg config.DBConfig) string {
	host, port := cfg.Host, cfg.Port
	if cfg.InstanceName != "" {
		host, port = "/cloudsql/"+cfg.InstanceName, ""
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		host, cfg.User, cfg.Password, cfg.Name, sslmode)
	if port != "" {
		dsn += " port=" + port
	}
	return dsn
}

// ConnectWithRetry calls opener until it succeeds or timeout elapses.
func ConnectWithRetry(dsn string, timeout time.Duration, opener Opener) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return nil, fmt.Errorf("db connect failed after %s: %w", timeout, err)
		}
		time.Sleep(retryInterval)
	}
}

// Open connects using the configured driver and runs migrations when enabled.
// It returns ErrDisabled when cfg.Driver is empty.
func Open(cfg config.DBConfig, logger *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "":
		return nil, ErrDisabled
	case config.DriverPostgres:
		db, err = ConnectWithRetry(BuildDSN(cfg), cfg.ConnectTimeout, openPostgres)
	case config.DriverSQLite:
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("database connected", zap.String("driver", cfg.Driver))

	// sqlite has no separate migration step
	if cfg.Migrate || cfg.Driver == config.DriverSQLite {
		if err := migrateOrClose(db, Migrate); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// migrateOrClose runs migrate and closes the connection pool when it fails.
func migrateOrClose(db *gorm.DB, migrate func(*gorm.DB) error) error {
	if err := migrate(db); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	return nil
}

// Migrate creates or updates the history tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&diagnosisadapters.DiagnosisModel{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
