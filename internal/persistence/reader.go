package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
)

// OperationReader reads the persisted operation log.
type OperationReader struct {
	db *sql.DB
}

func NewOperationReader(db *sql.DB) *OperationReader {
	return &OperationReader{db: db}
}

// ListOperations returns up to limit operations with sequence >= from.
func (r *OperationReader) ListOperations(ctx context.Context, from int64, limit int) ([]OperationRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence, op_type, COALESCE(idempotency_key, ''), COALESCE(actor, ''),
		       COALESCE(ref, ''), COALESCE(payload::text, ''), state_hash, prev_hash, timestamp
		FROM para.operations
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationRow
	for rows.Next() {
		var (
			o       OperationRow
			payload string
		)
		if err := rows.Scan(
			&o.Sequence, &o.OpType, &o.IdempotencyKey, &o.Actor,
			&o.Ref, &payload, &o.StateHash, &o.PrevHash, &o.Timestamp,
		); err != nil {
			return nil, err
		}
		if payload != "" {
			o.Payload = json.RawMessage(payload)
		}
		ops = append(ops, o)
	}
	return ops, rows.Err()
}

// LatestSequence returns the highest persisted sequence, 0 for an empty log.
func (r *OperationReader) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM para.operations`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// ListJournal returns the newest limit journal entries touching account,
// newest first. An empty account lists all entries.
func (r *OperationReader) ListJournal(ctx context.Context, account string, limit int) ([]JournalRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount, journal_type, timestamp
		FROM para.journal
		WHERE $1 = '' OR debit_account = $1 OR credit_account = $1
		ORDER BY sequence DESC, journal_id
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalRow
	for rows.Next() {
		var j JournalRow
		if err := rows.Scan(
			&j.JournalID, &j.BatchID, &j.EventRef, &j.Sequence,
			&j.DebitAccount, &j.CreditAccount, &j.Amount, &j.JournalType, &j.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// JournalBalances nets every account over the whole journal: debits add,
// credits subtract.
func (r *OperationReader) JournalBalances(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account, SUM(delta) FROM (
			SELECT debit_account AS account, amount AS delta FROM para.journal
			UNION ALL
			SELECT credit_account, -amount FROM para.journal
		) movements
		GROUP BY account
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			account string
			total   int64
		)
		if err := rows.Scan(&account, &total); err != nil {
			return nil, err
		}
		out[account] = total
	}
	return out, rows.Err()
}
