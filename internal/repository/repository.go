// Package repository is the sole owner of persisted state: books,
// chapters, chapter bodies, subscriptions, and delivery methods. It
// exposes the small set of typed queries the ingestion pipeline and
// delivery scheduler need; nothing outside this package issues SQL.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Repository wraps a bounded PostgreSQL connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// Config configures a Repository.
type Config struct {
	URL      string
	PoolSize int32
}

// New creates a Repository with a connection pool bounded to
// cfg.PoolSize connections.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("repository: parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.PoolSize

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("repository: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Close releases the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Migrate runs every pending schema migration against the database. It
// is called once, at supervisor startup, before any loop is spawned.
func (r *Repository) Migrate(cfg Config) error {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return fmt.Errorf("repository: open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("repository: create migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("repository: open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx", driver)
	if err != nil {
		return fmt.Errorf("repository: create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("repository: run migrations: %w", err)
	}
	return nil
}
