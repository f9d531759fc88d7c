package persistence

import (
	"ParaLedger/internal/core"
	"ParaLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sink stores one batch of operations atomically.
type Sink interface {
	Flush(ctx context.Context, ops []OperationRow, journals []JournalRow) error
}

// PostgresSink writes a batch in a single transaction.
type PostgresSink struct {
	db      *sql.DB
	writer  *OperationLogWriter
	metrics *observability.Metrics
}

func NewPostgresSink(db *sql.DB, metrics *observability.Metrics) *PostgresSink {
	return &PostgresSink{db: db, writer: NewOperationLogWriter(), metrics: metrics}
}

func (s *PostgresSink) Flush(ctx context.Context, ops []OperationRow, journals []JournalRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.fail("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := s.writer.WriteOperationBatch(ctx, tx, ops); err != nil {
		s.fail("write_operations")
		return err
	}
	if err := s.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		s.fail("write_journals")
		return err
	}
	if err := tx.Commit(); err != nil {
		s.fail("tx_commit")
		return err
	}
	return nil
}

func (s *PostgresSink) fail(stage string) {
	if s.metrics != nil {
		s.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}

// PersistenceWorker drains the persist channel and batch-writes the
// operation log. The engine sends on that channel with a blocking send, so
// a slow worker stalls the engine instead of losing operations.
type PersistenceWorker struct {
	sink         Sink
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	maxBackoff   time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewPersistenceWorker(
	sink Sink,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &PersistenceWorker{
		sink:         sink,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		maxBackoff:   30 * time.Second,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run batches incoming outputs and flushes when the batch is full or the
// flush timeout expires. It returns when ctx is cancelled or the channel is
// closed, flushing what it holds first.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	ops := make([]OperationRow, 0, pw.batchSize)
	journals := make([]JournalRow, 0, pw.batchSize*3)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	flush := func(ctx context.Context, reason string) {
		if len(ops) == 0 {
			return
		}
		if err := pw.flushWithRetry(ctx, ops, journals); err != nil {
			pw.logger.Error().Err(err).Str("reason", reason).Int("ops", len(ops)).Msg("flush failed")
		}
		ops = ops[:0]
		journals = journals[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.Background(), "shutdown")
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				flush(context.Background(), "closed")
				return nil
			}

			op, js := RowsFromOutput(out)
			ops = append(ops, op)
			journals = append(journals, js...)

			if len(ops) >= pw.batchSize {
				flush(ctx, "full")
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			flush(ctx, "timeout")
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds.
// On shutdown it makes one last attempt without the cancelled context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, ops []OperationRow, journals []JournalRow) error {
	backoff := 100 * time.Millisecond

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("ops", len(ops)).Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), ops, journals); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > pw.maxBackoff {
				backoff = pw.maxBackoff
			}
		}

		err := pw.flush(ctx, ops, journals)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return nil
		}
		pw.logger.Warn().Err(err).Msg("persistence flush failed")
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, ops []OperationRow, journals []JournalRow) error {
	start := time.Now()
	if err := pw.sink.Flush(ctx, ops, journals); err != nil {
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(ops)))
		pw.metrics.PersistOpsWritten.Add(float64(len(ops)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		pw.metrics.PersistLastSequence.Set(float64(ops[len(ops)-1].Sequence))
	}
	return nil
}
