package core

import (
	"ParaLedger/internal/access"
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/event"
	"ParaLedger/internal/ledger"
	"ParaLedger/internal/observability"
	"ParaLedger/internal/policy"
	"ParaLedger/internal/pool"
	"ParaLedger/internal/risk"
	"ParaLedger/internal/token"
	"ParaLedger/internal/treasury"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultIdempotencyCapacity = 100_000

// ErrHalted is returned by every operation once the engine was halted for
// shutdown.
var ErrHalted = errors.New("engine halted")

// Output is what the engine hands to the persistence and publish workers
// for every committed operation.
type Output struct {
	Envelope *event.Envelope
	Batch    *ledger.Batch
}

// Config is the static setup of one product/riskpool instance.
type Config struct {
	ProductID  string
	RiskpoolID string
	// Operator is the spender every payer approves on the token account.
	Operator token.Address
	// CollateralizationLevel in FeeFractionFullUnit; FullUnit locks the
	// full sum insured.
	CollateralizationLevel int64
	// SumOfSumInsuredCap bounds the riskpool's locked capital, 0 = unbounded.
	SumOfSumInsuredCap  int64
	MaxActiveBundles    int
	IdempotencyCapacity int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMatcher sets the bundle filter matcher used during collateralization.
func WithMatcher(m pool.Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithOracle sets the collaborator that receives evaluation requests.
func WithOracle(o OracleRequester) Option {
	return func(e *Engine) { e.oracle = o }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithOutputs wires the persistence channel (blocking send) and the publish
// channel (non-blocking, drops when full). Either may be nil.
func WithOutputs(persist, publish chan<- Output) Option {
	return func(e *Engine) {
		e.persistChan = persist
		e.publishChan = publish
	}
}

// WithDBIdempotency adds the durable second dedup tier.
func WithDBIdempotency(checker DBIdempotencyChecker) Option {
	return func(e *Engine) { e.dbChecker = checker }
}

// Engine is the single writer of the insurance state. Every mutating
// operation runs in a transaction: it works on a clone of the state, its
// token transfers are settled only after the bookkeeping succeeded, and
// the clone replaces the live state on commit.
type Engine struct {
	mu sync.Mutex

	cfg         Config
	state       *State
	sequence    int64
	hasher      *StateHasher
	idempotency *IdempotencyChecker

	matcher   pool.Matcher
	oracle    OracleRequester
	dbChecker DBIdempotencyChecker
	metrics   *observability.Metrics
	logger    zerolog.Logger
	clock     func() time.Time

	persistChan chan<- Output
	publishChan chan<- Output
	halted      bool
}

func New(cfg Config, account token.Account, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		hasher: NewStateHasher(),
		oracle: nopOracle{},
		logger: zerolog.Nop(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	tr := treasury.New(account, cfg.Operator)
	if err := tr.RegisterComponent(cfg.ProductID, treasury.ComponentProduct); err != nil {
		return nil, err
	}
	if err := tr.RegisterComponent(cfg.RiskpoolID, treasury.ComponentRiskpool); err != nil {
		return nil, err
	}
	if err := tr.LinkProduct(cfg.ProductID, cfg.RiskpoolID); err != nil {
		return nil, err
	}

	p, err := pool.New(pool.Config{
		RiskpoolID:             cfg.RiskpoolID,
		CollateralizationLevel: cfg.CollateralizationLevel,
		SumOfSumInsuredCap:     cfg.SumOfSumInsuredCap,
		MaxActiveBundles:       cfg.MaxActiveBundles,
	}, e.matcher)
	if err != nil {
		return nil, err
	}

	capacity := cfg.IdempotencyCapacity
	if capacity <= 0 {
		capacity = defaultIdempotencyCapacity
	}
	e.idempotency = NewIdempotencyChecker(capacity, e.dbChecker)
	e.state = &State{
		Treasury: tr,
		Pool:     p,
		Book:     policy.NewBook(),
		Risks:    risk.NewRegistry(),
		Tracker:  ledger.NewBalanceTracker(),
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Tx is the working context of one operation.
type Tx struct {
	ctx        context.Context
	state      *State
	settlement *treasury.Settlement
	now        time.Time

	ref    string
	result any
	noop   bool

	fees     map[string]int64
	premium  int64
	payouts  int64
	paidOut  int64
	requests int
}

func (tx *Tx) feeCollected(componentID string, fee int64) {
	if fee > 0 {
		tx.fees[componentID] += fee
	}
}

// run executes fn as one atomic operation. Nothing fn does to the cloned
// state is visible unless fn succeeds and the staged transfers settle.
// After funds moved, a broken invariant is unrecoverable and panics.
func (e *Engine) run(ctx context.Context, op event.OpType, fn func(tx *Tx) error) (*Tx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted {
		return nil, ErrHalted
	}

	start := time.Now()
	opName := op.String()

	key := idempotencyKeyFrom(ctx)
	if key != "" {
		if dup, tier := e.idempotency.IsDuplicate(opName, key); dup {
			if e.metrics != nil {
				e.metrics.IdempotencyDuplicates.WithLabelValues(opName, tier).Inc()
			}
			err := apperr.New(apperr.DuplicateOperation, "%s already processed %q", opName, key)
			e.reject(opName, err)
			return nil, err
		}
	}

	now := e.clock()
	seq := e.sequence + 1
	next := e.state.Clone()
	batch := ledger.NewBatch(seq, now.UnixMicro())
	tx := &Tx{
		ctx:        ctx,
		state:      next,
		settlement: treasury.NewSettlement(batch, ledger.NewJournalGenerator(next.Tracker)),
		now:        now,
		fees:       make(map[string]int64),
	}

	if err := fn(tx); err != nil {
		e.reject(opName, err)
		return nil, err
	}
	if tx.noop {
		return tx, nil
	}

	if err := batch.Validate(); err != nil {
		panic(fmt.Sprintf("FATAL: %s produced an invalid batch: %v", opName, err))
	}

	if err := next.Treasury.Settle(ctx, tx.settlement); err != nil {
		e.reject(opName, err)
		e.logger.Error().Err(err).Str("op", opName).Str("ref", tx.ref).Msg("settlement failed, operation rolled back")
		return nil, err
	}

	// Funds have moved; from here on the clone must commit.
	if err := next.Tracker.ApplyBatch(batch); err != nil {
		panic(fmt.Sprintf("FATAL: apply batch for %s seq %d: %v", opName, seq, err))
	}
	if err := next.validate(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated after %s seq %d: %v", opName, seq, err))
	}

	payload, err := json.Marshal(tx.result)
	if err != nil {
		e.logger.Error().Err(err).Str("op", opName).Msg("encode operation payload")
		payload = nil
	}

	hashStart := time.Now()
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(seq, stateDigest(opName, tx.ref, payload, batch, next.Tracker))
	if e.metrics != nil {
		e.metrics.StateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	actor, _ := access.Caller(ctx)
	envelope := &event.Envelope{
		Sequence:       seq,
		IdempotencyKey: key,
		OpType:         op,
		Actor:          string(actor),
		Ref:            tx.ref,
		Timestamp:      now,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	e.state = next
	e.sequence = seq
	if key != "" {
		e.idempotency.MarkProcessed(opName, key)
	}

	e.emit(Output{Envelope: envelope, Batch: batch})
	e.observeCommit(opName, tx, batch, start)

	e.logger.Debug().
		Int64("seq", seq).
		Str("op", opName).
		Str("ref", tx.ref).
		Int("journals", len(batch.Journals)).
		Msg("operation committed")
	return tx, nil
}

// Halt waits for the running operation and rejects all later ones. It
// returns the final sequence; nothing is emitted after it returns.
func (e *Engine) Halt() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted = true
	return e.sequence
}

// emit hands a committed operation to the workers. Persistence applies
// backpressure; the publish side drops when it cannot keep up and
// consumers catch up from the stored log.
func (e *Engine) emit(out Output) {
	if e.persistChan != nil {
		if e.metrics != nil && len(e.persistChan) == cap(e.persistChan) {
			e.metrics.PersistBackpressure.Inc()
		}
		e.persistChan <- out
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

func (e *Engine) reject(opName string, err error) {
	if e.metrics == nil {
		return
	}
	reason := string(apperr.ReasonOf(err))
	e.metrics.OpsRejected.WithLabelValues(opName, reason).Inc()
	if apperr.KindOf(err) == apperr.KindFunds {
		e.metrics.TransfersFailed.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) observeCommit(opName string, tx *Tx, batch *ledger.Batch, start time.Time) {
	if e.metrics == nil {
		return
	}
	m := e.metrics
	m.OpsApplied.WithLabelValues(opName).Inc()
	m.OpDuration.WithLabelValues(opName).Observe(time.Since(start).Seconds())
	m.Sequence.Set(float64(e.sequence))
	for _, j := range batch.Journals {
		m.Journals.WithLabelValues(j.JournalType.String()).Inc()
	}
	for component, fee := range tx.fees {
		m.FeesCollected.WithLabelValues(component).Add(float64(fee))
	}
	if tx.premium > 0 {
		m.PremiumCollected.Add(float64(tx.premium))
	}
	if tx.payouts > 0 {
		m.PayoutsPaid.Add(float64(tx.payouts))
		m.PayoutAmount.Add(float64(tx.paidOut))
	}
	if tx.requests > 0 {
		m.OracleRequests.Add(float64(tx.requests))
	}
	capital, locked, balance := e.state.Pool.Totals()
	m.SetRiskpool(capital, locked, balance, e.state.Pool.ActiveBundles())
	if e.state.Treasury.Suspended() {
		m.TreasurySuspended.Set(1)
	} else {
		m.TreasurySuspended.Set(0)
	}
	m.DedupLRUSize.Set(float64(e.idempotency.lru.Size()))
}

// ============================================================================
// Snapshots
// ============================================================================

// Snapshot captures the committed state together with the hash chain tip.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, pl, book, risks, balances := e.state.export()
	return &Snapshot{
		Sequence:        e.sequence,
		StateHash:       e.hasher.GetPrevHash(),
		Treasury:        tr,
		Pool:            pl,
		Book:            book,
		Risks:           risks,
		Balances:        balances,
		IdempotencyKeys: e.idempotency.lru.Keys(),
	}
}

// Restore replaces the engine state with snap. The restored state must pass
// the same invariants a commit does.
func (e *Engine) Restore(snap *Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	if err := next.restore(snap); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return fmt.Errorf("snapshot at seq %d is inconsistent: %w", snap.Sequence, err)
	}
	e.state = next
	e.sequence = snap.Sequence
	e.hasher.SetPrevHash(snap.StateHash)
	e.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)

	e.logger.Info().
		Int64("seq", snap.Sequence).
		Int("bundles", len(snap.Pool.Bundles)).
		Int("policies", len(snap.Book.Records)).
		Int("risks", len(snap.Risks.Risks)).
		Msg("state restored from snapshot")
	return nil
}
