package persistence

import (
	"ParaLedger/internal/core"
	"ParaLedger/internal/observability"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotSource is the engine as seen by the snapshotter.
type SnapshotSource interface {
	Sequence() int64
	Snapshot() *core.Snapshot
}

// Snapshotter saves an engine snapshot on every tick that saw new
// operations. The shutdown snapshot is the caller's job, once no operation
// can commit any more.
type Snapshotter struct {
	source   SnapshotSource
	store    SnapshotStore
	interval time.Duration
	lastSeq  int64
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewSnapshotter(source SnapshotSource, store SnapshotStore, interval time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *Snapshotter {
	return &Snapshotter{
		source:   source,
		store:    store,
		interval: interval,
		lastSeq:  source.Sequence(),
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.TakeIfChanged(ctx); err != nil {
				s.logger.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// TakeIfChanged saves a snapshot when the engine moved past the last saved
// sequence. It reports whether one was taken.
func (s *Snapshotter) TakeIfChanged(ctx context.Context) (bool, error) {
	if s.source.Sequence() == s.lastSeq {
		return false, nil
	}

	start := time.Now()
	snap := s.source.Snapshot()
	if err := s.store.Save(ctx, snap); err != nil {
		return false, err
	}
	s.lastSeq = snap.Sequence

	if s.metrics != nil {
		s.metrics.SnapshotTaken.WithLabelValues(s.store.Name()).Inc()
		s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		s.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	s.logger.Info().Int64("seq", snap.Sequence).Str("store", s.store.Name()).Msg("snapshot saved")
	return true, nil
}

// Restorer is the engine as seen by recovery.
type Restorer interface {
	Restore(snap *core.Snapshot) error
}

// Recover restores engine from the newest snapshot in store. It returns the
// restored sequence, 0 on a cold start.
func Recover(ctx context.Context, store SnapshotStore, engine Restorer, logger zerolog.Logger) (int64, error) {
	snap, err := store.LoadLatest(ctx)
	if err != nil {
		return 0, fmt.Errorf("load latest snapshot: %w", err)
	}
	if snap == nil {
		logger.Info().Str("store", store.Name()).Msg("no snapshot found, cold start")
		return 0, nil
	}
	if err := engine.Restore(snap); err != nil {
		return 0, fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
	}
	return snap.Sequence, nil
}
