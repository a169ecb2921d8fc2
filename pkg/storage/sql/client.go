// Package sql implements the Storage Protocol against Postgres via
// database/sql and the pgx/v5 stdlib driver, with schema managed by
// golang-migrate against migrations embedded in the binary.
package sql

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/codeready-toolchain/jobrunner/pkg/config"
	"github.com/codeready-toolchain/jobrunner/pkg/storage"
)

//go:embed migrations
var migrationsFS embed.FS

// Store implements storage.Storage against a single *sql.DB.
type Store struct {
	db *stdsql.DB

	persistent *persistentNS
	volatile   *volatileNS
	sets       *setsNS
	blob       *blobNS
}

// New opens a connection to cfg, configures the pool, runs pending
// migrations, and returns a ready Store.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:         db,
		persistent: &persistentNS{db: db},
		volatile:   &volatileNS{db: db},
		sets:       &setsNS{db: db},
		blob:       &blobNS{db: db},
	}, nil
}

func runMigrations(db *stdsql.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Close only the source driver: m.Close() would also close db
	// through the shared postgres.WithInstance driver.
	return sourceDriver.Close()
}

func (s *Store) Persistent() storage.Persistent { return s.persistent }
func (s *Store) Volatile() storage.Volatile     { return s.volatile }
func (s *Store) Sets() storage.Sets             { return s.sets }
func (s *Store) Blob() storage.Blob             { return s.blob }

// DB exposes the underlying *sql.DB for health checks.
func (s *Store) DB() *stdsql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }
