package persistence

import (
	"ParaLedger/internal/core"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteSnapshotStore keeps snapshots in a local SQLite file, for
// single-node deployments without Postgres. Only the newest keep
// snapshots are retained.
type SQLiteSnapshotStore struct {
	db   *sql.DB
	keep int
}

// NewSQLiteSnapshotStore opens (or creates) the database at path.
func NewSQLiteSnapshotStore(path string, keep int) (*SQLiteSnapshotStore, error) {
	if path == "" {
		path = "paraledger.db"
	}
	if keep <= 0 {
		keep = 10
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		sequence       INTEGER PRIMARY KEY,
		state_hash     BLOB    NOT NULL,
		format_version INTEGER NOT NULL,
		data           BLOB    NOT NULL,
		created_at     TEXT    NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SQLiteSnapshotStore{db: db, keep: keep}, nil
}

func (s *SQLiteSnapshotStore) Name() string { return "sqlite" }

func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap *core.Snapshot) (retErr error) {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (sequence, state_hash, format_version, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.Sequence, snap.StateHash[:], snapshotFormatVersion, data, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("save snapshot %d: %w", snap.Sequence, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE sequence NOT IN (SELECT sequence FROM snapshots ORDER BY sequence DESC LIMIT ?)`,
		s.keep,
	); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteSnapshotStore) LoadLatest(ctx context.Context) (*core.Snapshot, error) {
	var (
		data    []byte
		version int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, format_version FROM snapshots ORDER BY sequence DESC LIMIT 1`,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(data, version)
}

// Sequences lists the retained snapshot sequences, newest first.
func (s *SQLiteSnapshotStore) Sequences(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sequence FROM snapshots ORDER BY sequence DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}

func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}
