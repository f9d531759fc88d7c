package persistence

import (
	"ParaLedger/internal/core"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// snapshotFormatVersion 1 is the JSON encoding of core.Snapshot.
const snapshotFormatVersion = 1

// SnapshotStore keeps engine snapshots for recovery. LoadLatest returns
// nil, nil when there is none.
type SnapshotStore interface {
	Name() string
	Save(ctx context.Context, snap *core.Snapshot) error
	LoadLatest(ctx context.Context) (*core.Snapshot, error)
}

func encodeSnapshot(snap *core.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte, version int) (*core.Snapshot, error) {
	if version != snapshotFormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format %d", version)
	}
	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// PostgresSnapshotStore keeps snapshots in para.snapshots next to the
// operation log.
type PostgresSnapshotStore struct {
	db *sql.DB
}

func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

func (s *PostgresSnapshotStore) Name() string { return "postgres" }

// Save upserts the snapshot of a sequence.
func (s *PostgresSnapshotStore) Save(ctx context.Context, snap *core.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO para.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, data, snap.StateHash[:], snapshotFormatVersion, len(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save snapshot %d: %w", snap.Sequence, err)
	}
	return nil
}

func (s *PostgresSnapshotStore) LoadLatest(ctx context.Context) (*core.Snapshot, error) {
	var (
		data    []byte
		version int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM para.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(data, version)
}
