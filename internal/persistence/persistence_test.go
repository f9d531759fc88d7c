package persistence_test

import (
	"ParaLedger/internal/core"
	"ParaLedger/internal/event"
	"ParaLedger/internal/ledger"
	"ParaLedger/internal/persistence"
	"ParaLedger/internal/testutil"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func output(seq int64, key string) core.Output {
	batch := ledger.NewBatch(seq, ts.UnixMicro())
	batch.Append(ledger.JournalTypePremium, "policy-1",
		ledger.NewBundleAccountKey(1), ledger.NewWalletAccountKey("holder"), 95)
	batch.Append(ledger.JournalTypePremiumFee, "policy-1",
		ledger.NewFeeAccountKey(), ledger.NewWalletAccountKey("holder"), 5)
	return core.Output{
		Envelope: &event.Envelope{
			Sequence:       seq,
			IdempotencyKey: key,
			OpType:         event.OpCollectPremium,
			Actor:          "holder",
			Ref:            "policy-1",
			Timestamp:      ts,
			Payload:        []byte(`{"amount":100}`),
			StateHash:      [32]byte{byte(seq)},
			PrevHash:       [32]byte{byte(seq - 1)},
		},
		Batch: batch,
	}
}

// ============================================================================
// Writer
// ============================================================================

func TestRowsFromOutput(t *testing.T) {
	op, journals := persistence.RowsFromOutput(output(7, "k-7"))

	assert.Equal(t, int64(7), op.Sequence)
	assert.Equal(t, "collect_premium", op.OpType)
	assert.Equal(t, "k-7", op.IdempotencyKey)
	assert.Equal(t, "policy-1", op.Ref)
	assert.JSONEq(t, `{"amount":100}`, string(op.Payload))
	assert.Len(t, op.StateHash, 32)
	assert.Equal(t, byte(7), op.StateHash[0])
	assert.Equal(t, byte(6), op.PrevHash[0])

	require.Len(t, journals, 2)
	assert.Equal(t, "bundle:1:balance", journals[0].DebitAccount)
	assert.Equal(t, "wallet:holder", journals[0].CreditAccount)
	assert.Equal(t, "premium", journals[0].JournalType)
	assert.Equal(t, "instance:fees", journals[1].DebitAccount)
	assert.Equal(t, "premium_fee", journals[1].JournalType)
	assert.Equal(t, journals[0].BatchID, journals[1].BatchID)
}

type recordingExecer struct {
	queries []string
	args    [][]interface{}
}

func (r *recordingExecer) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	return nil, nil
}

func TestWriter_MultiRowInsert(t *testing.T) {
	w := persistence.NewOperationLogWriter()
	ex := &recordingExecer{}
	ctx := context.Background()

	op1, j1 := persistence.RowsFromOutput(output(1, ""))
	op2, j2 := persistence.RowsFromOutput(output(2, "k-2"))

	require.NoError(t, w.WriteOperationBatch(ctx, ex, []persistence.OperationRow{op1, op2}))
	require.NoError(t, w.WriteJournalBatch(ctx, ex, append(j1, j2...)))
	require.NoError(t, w.WriteOperationBatch(ctx, ex, nil))

	require.Len(t, ex.queries, 2)
	assert.Contains(t, ex.queries[0], "para.operations")
	assert.Contains(t, ex.queries[0], "($10, $11,")
	assert.True(t, strings.HasSuffix(ex.queries[0], "ON CONFLICT (sequence) DO NOTHING"))
	assert.Len(t, ex.args[0], 18)

	assert.Contains(t, ex.queries[1], "para.journal")
	assert.Len(t, ex.args[1], 36)

	// An empty key is stored as NULL so the partial unique index ignores it.
	key := ex.args[0][2].(sql.NullString)
	assert.False(t, key.Valid)
	key = ex.args[0][11].(sql.NullString)
	assert.Equal(t, sql.NullString{String: "k-2", Valid: true}, key)
}

// ============================================================================
// Worker
// ============================================================================

type fakeSink struct {
	mu      sync.Mutex
	batches [][]int64
	fails   int
}

func (f *fakeSink) Flush(_ context.Context, ops []persistence.OperationRow, _ []persistence.JournalRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("connection reset")
	}
	seqs := make([]int64, 0, len(ops))
	for _, o := range ops {
		seqs = append(seqs, o.Sequence)
	}
	f.batches = append(f.batches, seqs)
	return nil
}

func TestWorker_BatchesBySizeAndFlushesOnClose(t *testing.T) {
	sink := &fakeSink{}
	ch := make(chan core.Output, 8)
	for i := int64(1); i <= 5; i++ {
		ch <- output(i, "")
	}
	close(ch)

	w := persistence.NewPersistenceWorker(sink, ch, 2, time.Hour, nil, zerolog.Nop())
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, sink.batches)
}

func TestWorker_RetriesFailedFlush(t *testing.T) {
	sink := &fakeSink{fails: 2}
	ch := make(chan core.Output, 1)
	ch <- output(1, "")
	close(ch)

	w := persistence.NewPersistenceWorker(sink, ch, 1, time.Hour, nil, zerolog.Nop())
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, [][]int64{{1}}, sink.batches)
	assert.Equal(t, 0, sink.fails)
}

func TestWorker_FlushesOnTimeout(t *testing.T) {
	sink := &fakeSink{}
	ch := make(chan core.Output, 1)
	ch <- output(1, "")

	ctx, cancel := context.WithCancel(context.Background())
	w := persistence.NewPersistenceWorker(sink, ch, 100, 10*time.Millisecond, nil, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.batches) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// ============================================================================
// Snapshot stores
// ============================================================================

func snapshot(seq int64) *core.Snapshot {
	return &core.Snapshot{
		Sequence:        seq,
		StateHash:       [32]byte{0xab, byte(seq)},
		Balances:        map[string]int64{"bundle:1:balance": 1000 + seq, "instance:fees": 42},
		IdempotencyKeys: []string{"fund_bundle:k1"},
	}
}

func TestSQLiteSnapshotStore_SaveLoadPrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.db")
	store, err := persistence.NewSQLiteSnapshotStore(path, 2)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	latest, err := store.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, seq := range []int64{3, 9, 5} {
		require.NoError(t, store.Save(ctx, snapshot(seq)))
	}

	latest, err = store.LoadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(9), latest.Sequence)
	assert.Equal(t, byte(9), latest.StateHash[1])
	assert.Equal(t, int64(1009), latest.Balances["bundle:1:balance"])
	assert.Equal(t, []string{"fund_bundle:k1"}, latest.IdempotencyKeys)

	seqs, err := store.Sequences(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 5}, seqs)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

type memStore struct {
	saved []*core.Snapshot
	err   error
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Save(_ context.Context, snap *core.Snapshot) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memStore) LoadLatest(context.Context) (*core.Snapshot, error) {
	if len(m.saved) == 0 {
		return nil, m.err
	}
	return m.saved[len(m.saved)-1], nil
}

type fakePutter struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, *in.Key)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchivingStore_UploadsAfterPrimary(t *testing.T) {
	primary := &memStore{}
	putter := &fakePutter{}
	store := persistence.NewArchivingStore(primary, putter,
		persistence.S3Config{Bucket: "para-archive", Prefix: "prod"}, nil, zerolog.Nop())

	require.NoError(t, store.Save(context.Background(), snapshot(12)))

	require.Len(t, primary.saved, 1)
	require.Equal(t, []string{"prod/snapshots/00000000000000000012.json"}, putter.keys)
	assert.Contains(t, string(putter.bodies[0]), `"sequence":12`)
	assert.Equal(t, "mem+s3", store.Name())

	latest, err := store.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), latest.Sequence)
}

func TestArchivingStore_UploadFailureDoesNotFailSave(t *testing.T) {
	primary := &memStore{}
	store := persistence.NewArchivingStore(primary, &fakePutter{err: errors.New("access denied")},
		persistence.S3Config{Bucket: "b"}, nil, zerolog.Nop())

	require.NoError(t, store.Save(context.Background(), snapshot(1)))
	assert.Len(t, primary.saved, 1)

	failing := persistence.NewArchivingStore(&memStore{err: errors.New("disk full")}, &fakePutter{},
		persistence.S3Config{Bucket: "b"}, nil, zerolog.Nop())
	assert.Error(t, failing.Save(context.Background(), snapshot(1)))
}

// ============================================================================
// Snapshotter and recovery
// ============================================================================

type fakeEngine struct {
	seq      int64
	restored *core.Snapshot
	err      error
}

func (f *fakeEngine) Sequence() int64          { return f.seq }
func (f *fakeEngine) Snapshot() *core.Snapshot { return snapshot(f.seq) }
func (f *fakeEngine) Restore(s *core.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	f.restored = s
	return nil
}

func TestSnapshotter_TakesOnlyWhenChanged(t *testing.T) {
	eng := &fakeEngine{seq: 4}
	store := &memStore{}
	s := persistence.NewSnapshotter(eng, store, time.Hour, nil, zerolog.Nop())
	ctx := context.Background()

	took, err := s.TakeIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, took)

	eng.seq = 6
	took, err = s.TakeIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, took)

	took, err = s.TakeIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, took)

	require.Len(t, store.saved, 1)
	assert.Equal(t, int64(6), store.saved[0].Sequence)
}

func TestSnapshotter_RunLeavesShutdownSnapshotToCaller(t *testing.T) {
	eng := &fakeEngine{}
	store := &memStore{}
	s := persistence.NewSnapshotter(eng, store, time.Hour, nil, zerolog.Nop())
	eng.seq = 3

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Empty(t, store.saved, "operations may still commit while ingress drains")

	// an operation commits after Run returned
	eng.seq = 4
	took, err := s.TakeIfChanged(context.Background())
	require.NoError(t, err)
	assert.True(t, took)
	require.Len(t, store.saved, 1)
	assert.Equal(t, int64(4), store.saved[0].Sequence)
}

func TestRecover(t *testing.T) {
	ctx := context.Background()

	seq, err := persistence.Recover(ctx, &memStore{}, &fakeEngine{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	eng := &fakeEngine{}
	seq, err = persistence.Recover(ctx, &memStore{saved: []*core.Snapshot{snapshot(8)}}, eng, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, int64(8), seq)
	assert.Equal(t, int64(8), eng.restored.Sequence)

	_, err = persistence.Recover(ctx, &memStore{saved: []*core.Snapshot{snapshot(8)}},
		&fakeEngine{err: errors.New("inconsistent")}, zerolog.Nop())
	assert.Error(t, err)
}

// ============================================================================
// Migrations
// ============================================================================

func TestListMigrations_Ordered(t *testing.T) {
	files := fstest.MapFS{
		"000002_journal.up.sql":         {Data: []byte("--")},
		"000001_operation_log.up.sql":   {Data: []byte("--")},
		"000001_operation_log.down.sql": {Data: []byte("--")},
		"README.md":                     {Data: []byte("--")},
	}
	ups, err := persistence.ListMigrations(files, ".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_operation_log.up.sql", "000002_journal.up.sql"}, ups)
	assert.Equal(t, "000002", persistence.ExtractVersion(ups[1]))
}

func TestMigrationsDir_EveryUpHasDown(t *testing.T) {
	dir := os.DirFS(testutil.MigrationsDir())
	ups, err := persistence.ListMigrations(dir, ".up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	for _, up := range ups {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		_, err := os.Stat(filepath.Join(testutil.MigrationsDir(), down))
		assert.NoError(t, err, "missing %s", down)
	}
}

// ============================================================================
// Postgres (integration)
// ============================================================================

func TestPostgres_OperationLogRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	sink := persistence.NewPostgresSink(db, nil)
	var ops []persistence.OperationRow
	var journals []persistence.JournalRow
	for i := int64(1); i <= 3; i++ {
		op, js := persistence.RowsFromOutput(output(i, "key-"+string(rune('a'+i))))
		ops = append(ops, op)
		journals = append(journals, js...)
	}
	require.NoError(t, sink.Flush(ctx, ops, journals))
	// Replayed batches are absorbed by the conflict clauses.
	require.NoError(t, sink.Flush(ctx, ops, journals))

	reader := persistence.NewOperationReader(db)
	latest, err := reader.LatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)

	got, err := reader.ListOperations(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Sequence)
	assert.JSONEq(t, `{"amount":100}`, string(got[0].Payload))

	checker := persistence.NewPostgresIdempotencyChecker(db)
	dup, err := checker.IsDuplicate("collect_premium", "key-b")
	require.NoError(t, err)
	assert.True(t, dup)
	dup, err = checker.IsDuplicate("fund_bundle", "key-b")
	require.NoError(t, err)
	assert.False(t, dup)

	snaps := persistence.NewPostgresSnapshotStore(db)
	require.NoError(t, snaps.Save(ctx, snapshot(3)))
	snap, err := snaps.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Sequence)
}
