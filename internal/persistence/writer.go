package persistence

import (
	"ParaLedger/internal/core"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// OperationLogWriter writes operations and their journals to Postgres with
// multi-row INSERTs. Writes are idempotent on the primary keys, so a batch
// retried after a lost commit acknowledgement is harmless.
type OperationLogWriter struct{}

// OperationRow is a row in para.operations.
type OperationRow struct {
	Sequence       int64           `json:"sequence"`
	OpType         string          `json:"opType"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Actor          string          `json:"actor,omitempty"`
	Ref            string          `json:"ref,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	StateHash      []byte          `json:"stateHash"`
	PrevHash       []byte          `json:"prevHash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// JournalRow is a row in para.journal.
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   string
	Timestamp     int64
}

// RowsFromOutput flattens one committed operation into table rows.
func RowsFromOutput(out core.Output) (OperationRow, []JournalRow) {
	env := out.Envelope
	op := OperationRow{
		Sequence:       env.Sequence,
		OpType:         env.OpType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Actor:          env.Actor,
		Ref:            env.Ref,
		Payload:        json.RawMessage(env.Payload),
		StateHash:      append([]byte(nil), env.StateHash[:]...),
		PrevHash:       append([]byte(nil), env.PrevHash[:]...),
		Timestamp:      env.Timestamp,
	}
	if out.Batch == nil {
		return op, nil
	}

	journals := make([]JournalRow, 0, len(out.Batch.Journals))
	for _, j := range out.Batch.Journals {
		journals = append(journals, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
			Timestamp:     j.Timestamp,
		})
	}
	return op, journals
}

func NewOperationLogWriter() *OperationLogWriter {
	return &OperationLogWriter{}
}

// WriteOperationBatch inserts operations into para.operations.
func (w *OperationLogWriter) WriteOperationBatch(ctx context.Context, ex Execer, ops []OperationRow) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO para.operations
		(sequence, op_type, idempotency_key, actor, ref, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]interface{}, 0, len(ops)*9)

	for i, o := range ops {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			o.Sequence, o.OpType, nullString(o.IdempotencyKey), nullString(o.Actor), nullString(o.Ref),
			nullString(string(o.Payload)), o.StateHash, o.PrevHash, o.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch inserts journal entries into para.journal.
func (w *OperationLogWriter) WriteJournalBatch(ctx context.Context, ex Execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO para.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, amount, journal_type, timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*9)

	for i, j := range journals {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
