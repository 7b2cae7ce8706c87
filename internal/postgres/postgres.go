// Package postgres manages the PostgreSQL connection pool and schema
// migrations for the vector index and the conversation log.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/welldone-ai/assistant/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect opens a connection pool, verifies connectivity and applies
// pending migrations.
func Connect(ctx context.Context, connString string, logger log.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}

	// Migrations run first so the vector extension exists before the
	// pool registers the pgvector types on connect.
	if err := Migrate(connString, logger); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Debug("database connected", "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// Migrate applies all pending schema migrations.
func Migrate(connString string, logger log.Logger) error {
	if logger == nil {
		logger = log.New(log.Config{})
	}

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("failed to close migration connection", "error", cerr)
		}
	}()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}
	logger.Debug("migrations applied", "version", version, "dirty", dirty)
	return nil
}
