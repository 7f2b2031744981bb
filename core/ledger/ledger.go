package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"isolend/core/events"
	"isolend/core/state"
	"isolend/native/lending"
	"isolend/observability/metrics"
	lendotel "isolend/observability/otel"
	"isolend/storage"
)

// ErrNilDatabase is returned by New when no storage backend is supplied.
var ErrNilDatabase = errors.New("ledger: database required")

// Receipt describes a committed batch.
type Receipt struct {
	ID     uuid.UUID
	Time   uint64
	Digest [32]byte
	Events []events.Event
}

// Records flattens the receipt events for subscribers that persist or stream
// them.
func (r *Receipt) Records() []*events.Record {
	if r == nil {
		return nil
	}
	out := make([]*events.Record, 0, len(r.Events))
	for _, evt := range r.Events {
		if rec := events.ToRecord(evt); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// Subscriber receives every committed receipt in commit order. Errors are
// logged and counted; they never undo the commit.
type Subscriber interface {
	Name() string
	Publish(ctx context.Context, receipt *Receipt) error
}

// Tx is the handle a batch function operates on. The engine and bank share
// one state overlay that commits or is dropped as a whole.
type Tx struct {
	Engine *lending.Engine
	Bank   *state.Bank
	ID     uuid.UUID
	Time   uint64

	emitter events.Emitter
}

// Mint funds owner out of nothing. It exists for genesis and test funding.
func (tx *Tx) Mint(mint, owner common.Address, amount *uint256.Int) error {
	if err := tx.Bank.Mint(mint, owner, amount); err != nil {
		return err
	}
	tx.emitter.Emit(events.TokenMint{Mint: mint, To: owner, Amount: amount.Clone()})
	return nil
}

// Ledger serialises batches over a storage backend. Each batch runs against a
// private overlay; it commits atomically or leaves no trace.
type Ledger struct {
	mu          sync.Mutex
	db          storage.Database
	cfg         lending.Config
	oracle      lending.PriceOracle
	rates       lending.RateModel
	clock       func() time.Time
	last        uint64
	subscribers []Subscriber
	logger      *slog.Logger
	metrics     *metrics.LendingMetrics
	tracer      trace.Tracer
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock used to stamp batches.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSubscriber registers a receipt subscriber.
func WithSubscriber(sub Subscriber) Option {
	return func(l *Ledger) {
		if sub != nil {
			l.subscribers = append(l.subscribers, sub)
		}
	}
}

// New constructs a ledger over db using the supplied price and rate sources.
func New(db storage.Database, cfg lending.Config, oracle lending.PriceOracle, rates lending.RateModel, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	l := &Ledger{
		db:      db,
		cfg:     cfg,
		oracle:  oracle,
		rates:   rates,
		clock:   time.Now,
		logger:  slog.Default(),
		metrics: metrics.Lending(),
		tracer:  lendotel.Tracer(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Subscribe adds a receipt subscriber after construction.
func (l *Ledger) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, sub)
}

// stamp returns the batch time. It never runs backwards so accrual never
// observes a clock earlier than a committed batch.
func (l *Ledger) stamp() uint64 {
	now := l.clock().Unix()
	if now < 0 {
		now = 0
	}
	ts := uint64(now)
	if ts < l.last {
		ts = l.last
	}
	return ts
}

func (l *Ledger) engine(mgr *state.Manager, ts uint64, emitter events.Emitter) *lending.Engine {
	eng := lending.NewEngine(l.cfg)
	eng.SetState(mgr.Lending())
	eng.SetBank(mgr.Bank())
	eng.SetOracle(l.oracle)
	eng.SetRateModel(l.rates)
	eng.SetEmitter(emitter)
	eng.SetBlockTime(ts)
	return eng
}

// Execute runs fn as one atomic batch. Any error from fn, or a two-step flash
// loan left open, discards every change and every event.
func (l *Ledger) Execute(ctx context.Context, fn func(*Tx) error) (*Receipt, error) {
	if fn == nil {
		return nil, fmt.Errorf("ledger: batch function required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	id := uuid.New()
	ctx, span := l.tracer.Start(ctx, "ledger.execute",
		trace.WithAttributes(attribute.String("batch.id", id.String())))
	defer span.End()

	ts := l.stamp()
	mgr := state.NewManager(l.db)
	buf := new(events.Buffer)
	tx := &Tx{
		Engine:  l.engine(mgr, ts, buf),
		Bank:    mgr.Bank(),
		ID:      id,
		Time:    ts,
		emitter: buf,
	}

	err := fn(tx)
	if err == nil {
		if open := tx.Engine.OpenFlashLoans(); len(open) > 0 {
			err = fmt.Errorf("%w: market %s", lending.ErrFlashLoanOpen, open[0].Hex())
		}
	}
	if err != nil {
		mgr.Discard()
		kind := lending.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.ObserveBatch(kind.String(), time.Since(start))
		l.logger.Warn("ledger: batch rejected",
			slog.String("batch", id.String()),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
		return nil, err
	}

	digest, err := mgr.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.ObserveBatch(lending.KindUnknown.String(), time.Since(start))
		l.logger.Error("ledger: commit failed", slog.String("batch", id.String()), slog.Any("error", err))
		return nil, err
	}
	l.last = ts

	receipt := &Receipt{ID: id, Time: ts, Digest: digest, Events: buf.Events()}
	for _, rec := range receipt.Records() {
		l.metrics.ObserveEvent(rec.Type, rec.Attributes)
	}
	l.metrics.ObserveBatch("", time.Since(start))
	span.SetAttributes(attribute.Int("batch.events", len(receipt.Events)))
	span.SetStatus(codes.Ok, "batch committed")
	l.logger.Info("ledger: batch committed",
		slog.String("batch", id.String()),
		slog.String("digest", fmt.Sprintf("%x", digest)),
		slog.Int("events", len(receipt.Events)))

	for _, sub := range l.subscribers {
		if err := sub.Publish(ctx, receipt); err != nil {
			l.metrics.RecordSubscriberError(sub.Name())
			l.logger.Error("ledger: subscriber failed",
				slog.String("component", sub.Name()),
				slog.String("batch", id.String()),
				slog.Any("error", err))
		}
	}
	return receipt, nil
}

// View runs fn against a read-only engine stamped with the current time.
// Writes made by fn are discarded.
func (l *Ledger) View(ctx context.Context, fn func(*lending.Engine) error) error {
	if fn == nil {
		return fmt.Errorf("ledger: view function required")
	}
	_, span := l.tracer.Start(ctx, "ledger.view")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()
	mgr := state.NewManager(l.db)
	defer mgr.Discard()
	err := fn(l.engine(mgr, l.stamp(), events.NoopEmitter{}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Balance reads a committed token balance.
func (l *Ledger) Balance(mint, owner common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mgr := state.NewManager(l.db)
	defer mgr.Discard()
	return mgr.Bank().Balance(mint, owner)
}
