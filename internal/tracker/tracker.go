// Package tracker records which source files have already been ingested
// and at what modification time, so repeated directory ingests skip
// unchanged files.
package tracker

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/welldone-ai/assistant/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is the stored state of an ingested file.
type Record struct {
	Source     string
	ModTime    time.Time
	Chunks     int
	IngestedAt time.Time
}

// Tracker is a SQLite-backed ingest ledger.
type Tracker struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens (creating if needed) the tracker database at path and
// applies its migrations. If logger is nil, the default logger is used.
func Open(path string, logger log.Logger) (*Tracker, error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating tracker directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening tracker database: %w", err)
	}

	if err := migrateDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("tracker opened", "path", path)
	return &Tracker{db: db, logger: logger}, nil
}

func migrateDB(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (t *Tracker) Close() error {
	return t.db.Close()
}

// Ingested reports whether source was already ingested at exactly
// modTime. A changed modification time reads as not ingested, so the
// file is processed again.
func (t *Tracker) Ingested(ctx context.Context, source string, modTime time.Time) (bool, error) {
	var stored int64
	err := t.db.QueryRowContext(ctx,
		`SELECT mod_time_unix FROM ingested_files WHERE source = ?`, source).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ingest state for %s: %w", source, err)
	}
	return stored == modTime.Unix(), nil
}

// Mark records that source was ingested at modTime, producing chunks.
func (t *Tracker) Mark(ctx context.Context, source string, modTime time.Time, chunks int) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO ingested_files (source, mod_time_unix, chunks, ingested_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET
			mod_time_unix = excluded.mod_time_unix,
			chunks        = excluded.chunks,
			ingested_at   = excluded.ingested_at`,
		source, modTime.Unix(), chunks, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("marking %s as ingested: %w", source, err)
	}
	t.logger.Debug("file marked as ingested", "source", source, "chunks", chunks)
	return nil
}

// Forget removes the record for source, forcing re-ingestion.
func (t *Tracker) Forget(ctx context.Context, source string) error {
	if _, err := t.db.ExecContext(ctx,
		`DELETE FROM ingested_files WHERE source = ?`, source); err != nil {
		return fmt.Errorf("forgetting %s: %w", source, err)
	}
	return nil
}

// List returns all ingest records, newest first.
func (t *Tracker) List(ctx context.Context) ([]Record, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT source, mod_time_unix, chunks, ingested_at
		FROM ingested_files ORDER BY ingested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing ingest records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var modUnix, ingestedUnix int64
		if err := rows.Scan(&r.Source, &modUnix, &r.Chunks, &ingestedUnix); err != nil {
			return nil, fmt.Errorf("scanning ingest record: %w", err)
		}
		r.ModTime = time.Unix(modUnix, 0)
		r.IngestedAt = time.Unix(ingestedUnix, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading ingest records: %w", err)
	}
	return records, nil
}
