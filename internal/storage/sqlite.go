// Package storage persists the dashboard selection and its recomputation
// history in sqlite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	apperrors "bmidash/internal/errors"
	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
)

// DefaultSnapshotLimit applies when ListSnapshots is given a non-positive limit
const DefaultSnapshotLimit = 50

// SQLiteStore implements the dashboard's selection store
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file if needed and migrates it
func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("selection store opened", slog.String("path", dbPath))
	return &SQLiteStore{db: db, logger: logger.With(slog.String("component", "sqlite_store"))}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveSelection stores sel as the single current selection
func (s *SQLiteStore) SaveSelection(ctx context.Context, sel domain.Selection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO selection (id, sex, max_year, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sex = excluded.sex, max_year = excluded.max_year, updated_at = excluded.updated_at`,
		string(sel.Sex), sel.MaxYear, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return apperrors.NewStorageError("save selection", err)
	}

	s.logger.DebugContext(ctx, "selection saved",
		slog.String("sex", string(sel.Sex)),
		slog.Int("max_year", sel.MaxYear))
	return nil
}

// LoadSelection returns the stored selection. ok is false when none was saved.
func (s *SQLiteStore) LoadSelection(ctx context.Context) (domain.Selection, bool, error) {
	var (
		sex     string
		maxYear int
	)
	err := s.db.QueryRowContext(ctx, `SELECT sex, max_year FROM selection WHERE id = 1`).Scan(&sex, &maxYear)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Selection{}, false, nil
	}
	if err != nil {
		return domain.Selection{}, false, apperrors.NewStorageError("load selection", err)
	}
	return domain.Selection{Sex: domain.Sex(sex), MaxYear: maxYear}, true, nil
}

// AppendSnapshots records one recomputation per dataset in a transaction
func (s *SQLiteStore) AppendSnapshots(ctx context.Context, snapshots []api.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (id, dataset, sex, max_year, row_count, computed_at, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx,
			snap.ID, string(snap.Dataset), string(snap.Sex), snap.MaxYear, snap.Rows,
			snap.ComputedAt.UTC().Format(time.RFC3339Nano), snap.TraceID); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("commit snapshots", err).WithContext("count", len(snapshots))
	}
	return nil
}

// ListSnapshots returns up to limit snapshots, newest first
func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]api.Snapshot, error) {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dataset, sex, max_year, row_count, computed_at, trace_id
		FROM snapshots ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("query snapshots", err)
	}
	defer rows.Close()

	out := make([]api.Snapshot, 0, limit)
	for rows.Next() {
		var (
			snap                api.Snapshot
			dataset, sex, stamp string
		)
		if err := rows.Scan(&snap.ID, &dataset, &sex, &snap.MaxYear, &snap.Rows, &stamp, &snap.TraceID); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Dataset = domain.DatasetKind(dataset)
		snap.Sex = domain.Sex(sex)
		if snap.ComputedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return nil, fmt.Errorf("parse snapshot time %q: %w", stamp, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
