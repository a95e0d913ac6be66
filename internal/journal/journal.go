// Package journal keeps a local history of archive runs in SQLite so an
// operator can answer "when did this mapping last sync, and how did it
// end" without trawling logs.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/dbx"
	"github.com/dsmolkov/vaultsweep/internal/journal/migrations"
)

// Run is one recorded archive run.
type Run struct {
	ID           string
	CleartextDir string
	Remote       string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	ExitCode     sql.NullInt64
	ManifestPath string
}

// Journal persists archive runs. Safe for sequential use by one
// pipeline; it is not a concurrent store.
type Journal struct {
	db *sql.DB
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the journal database at dsn and
// applies migrations.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal db: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun records the beginning of a run and returns its id.
func (j *Journal) StartRun(ctx context.Context, cleartextDir, remote string) (string, error) {
	id := uuid.NewString()
	query := `INSERT INTO runs (id, cleartext_dir, remote, started_at) VALUES (?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, query, id, cleartextDir, remote, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a started run. It expects exactly
// one row to be affected.
func (j *Journal) FinishRun(ctx context.Context, id string, code common.ExitCode, manifestPath string) error {
	return dbx.WithTx(ctx, j.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `UPDATE runs SET finished_at = ?, exit_code = ?, manifest_path = ? WHERE id = ? AND finished_at IS NULL`
		res, err := tx.ExecContext(ctx, query, time.Now().UTC(), int(code), manifestPath, id)
		if err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if ra != 1 {
			return fmt.Errorf("wrong rows affected count: %d", ra)
		}
		return nil
	})
}

// Recent returns the latest runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, cleartext_dir, remote, started_at, finished_at, exit_code, manifest_path
		FROM runs ORDER BY started_at DESC LIMIT ?`
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CleartextDir, &r.Remote, &r.StartedAt, &r.FinishedAt, &r.ExitCode, &r.ManifestPath); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
