// Package service hosts pools: it serializes operations per pool, executes
// them against the custody ledger and persists the results.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/custody"
	"cpamm/internal/journal"
	"cpamm/internal/metrics"
	"cpamm/internal/model"
	"cpamm/internal/store"
)

// Operation names used in logs, metrics and the journal.
const (
	OpInitialize = model.KindInitialize
	OpProvide    = model.KindProvide
	OpWithdraw   = model.KindWithdraw
	OpSwap       = model.KindSwap
	OpLock       = model.KindLock
	OpFund       = model.KindFund
)

const maxConflictRetries = 3

// Service executes pool operations. It is safe for concurrent use;
// operations on one pool are linearized, different pools run in parallel.
type Service struct {
	store   store.Store
	ledger  *custody.Ledger
	logger  *zap.Logger
	metrics *metrics.Metrics
	journal journal.Sink
	now     func() time.Time
	wrap    func(amm.Custodian) amm.Custodian
	locks   keyedMutex
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithJournal(sink journal.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.journal = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCustodian wraps the ledger transaction handed to each operation.
func WithCustodian(wrap func(amm.Custodian) amm.Custodian) Option {
	return func(s *Service) { s.wrap = wrap }
}

// New returns a service over st whose balances live in ledger.
func New(st store.Store, ledger *custody.Ledger, opts ...Option) *Service {
	s := &Service{
		store:   st,
		ledger:  ledger,
		logger:  zap.NewNop(),
		journal: journal.Discard{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load seeds a ledger from the balances in st and returns a service over it.
func Load(ctx context.Context, st store.Store, opts ...Option) (*Service, error) {
	balances, err := st.LoadBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	return New(st, custody.NewLedger(balances), opts...), nil
}

// Initialize creates the pool derived from seed.
func (s *Service) Initialize(ctx context.Context, seed uint64, assetX, assetY common.Address, feeBps uint16, authority *common.Address) (pool amm.Pool, err error) {
	start := time.Now()
	defer func() { s.observe(OpInitialize, start, err) }()

	id := amm.DerivePoolID(seed)
	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.store.LoadPool(ctx, id); err == nil {
		return amm.Pool{}, ErrPoolExists.Wrapf("pool %s (seed %d)", id.Hex(), seed)
	} else if !errors.Is(err, store.ErrNotFound) {
		return amm.Pool{}, fmt.Errorf("load pool: %w", err)
	}

	pool, err = amm.Initialize(id, assetX, assetY, feeBps, authority)
	if err != nil {
		return amm.Pool{}, err
	}
	if err := s.ledger.Apply(s.ledger.Begin(), func([]custody.Balance) error {
		return s.store.Commit(ctx, &pool, nil)
	}); err != nil {
		return amm.Pool{}, fmt.Errorf("commit %s: %w", OpInitialize, err)
	}

	var caller common.Address
	if authority != nil {
		caller = *authority
	}
	s.record(pool, caller, model.OperationRecord{Kind: OpInitialize})
	return pool, nil
}

// Provide adds liquidity for caller.
func (s *Service) Provide(ctx context.Context, id common.Hash, caller common.Address, shares, maxX, maxY uint64) (res amm.ProvideResult, pool amm.Pool, err error) {
	pool, err = s.execute(ctx, OpProvide, id, caller, func(p *amm.Pool, c amm.Custodian, _ *custody.Tx) (model.OperationRecord, error) {
		res, err = amm.Provide(ctx, p, caller, shares, maxX, maxY, c)
		return model.OperationRecord{AmountX: res.XSpent, AmountY: res.YSpent, Shares: res.SharesMinted}, err
	})
	if err != nil {
		return amm.ProvideResult{}, amm.Pool{}, err
	}
	return res, pool, nil
}

// Withdraw removes liquidity for caller.
func (s *Service) Withdraw(ctx context.Context, id common.Hash, caller common.Address, shares, minX, minY uint64) (res amm.WithdrawResult, pool amm.Pool, err error) {
	pool, err = s.execute(ctx, OpWithdraw, id, caller, func(p *amm.Pool, c amm.Custodian, _ *custody.Tx) (model.OperationRecord, error) {
		res, err = amm.Withdraw(ctx, p, caller, shares, minX, minY, c)
		return model.OperationRecord{AmountX: res.XReceived, AmountY: res.YReceived, Shares: res.SharesBurned}, err
	})
	if err != nil {
		return amm.WithdrawResult{}, amm.Pool{}, err
	}
	return res, pool, nil
}

// Swap trades amountIn of the side's input asset for the other asset.
func (s *Service) Swap(ctx context.Context, id common.Hash, caller common.Address, side amm.Side, amountIn, minOut uint64) (res amm.SwapReceipt, pool amm.Pool, err error) {
	pool, err = s.execute(ctx, OpSwap, id, caller, func(p *amm.Pool, c amm.Custodian, _ *custody.Tx) (model.OperationRecord, error) {
		res, err = amm.Swap(ctx, p, caller, side, amountIn, minOut, c)
		rec := model.OperationRecord{Side: side.String(), Fee: res.Fee}
		if side == amm.XToY {
			rec.AmountX, rec.AmountY = res.AmountInConsumed, res.AmountOut
		} else {
			rec.AmountX, rec.AmountY = res.AmountOut, res.AmountInConsumed
		}
		return rec, err
	})
	if err != nil {
		return amm.SwapReceipt{}, amm.Pool{}, err
	}
	return res, pool, nil
}

// SetLock sets the pool's lock flag on behalf of its authority.
func (s *Service) SetLock(ctx context.Context, id common.Hash, caller common.Address, locked bool) (amm.Pool, error) {
	return s.execute(ctx, OpLock, id, caller, func(p *amm.Pool, _ amm.Custodian, _ *custody.Tx) (model.OperationRecord, error) {
		return model.OperationRecord{}, amm.SetLock(p, caller, locked)
	})
}

// Fund credits owner with amount of one of the pool's assets and returns
// the new balance.
func (s *Service) Fund(ctx context.Context, id common.Hash, owner common.Address, side amm.Side, amount uint64) (uint64, error) {
	var asset common.Address
	_, err := s.execute(ctx, OpFund, id, owner, func(p *amm.Pool, _ amm.Custodian, tx *custody.Tx) (model.OperationRecord, error) {
		if amount == 0 {
			return model.OperationRecord{}, amm.ErrInvalidAmount.Wrap("fund amount is zero")
		}
		var rec model.OperationRecord
		if side == amm.XToY {
			asset, rec.AmountX = p.AssetX, amount
		} else {
			asset, rec.AmountY = p.AssetY, amount
		}
		if err := tx.Credit(owner, asset, amount); err != nil {
			return model.OperationRecord{}, fmt.Errorf("%w: %w", amm.ErrCustodianFailure, err)
		}
		return rec, nil
	})
	if err != nil {
		return 0, err
	}
	return s.ledger.Balance(owner, asset), nil
}

// Pool returns the committed record of id.
func (s *Service) Pool(ctx context.Context, id common.Hash) (amm.Pool, error) {
	return s.load(ctx, id)
}

// Pools returns every committed pool.
func (s *Service) Pools(ctx context.Context) ([]amm.Pool, error) {
	pools, err := s.store.ListPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return pools, nil
}

// Balance returns the committed amount of asset held by owner.
func (s *Service) Balance(owner, asset common.Address) uint64 {
	return s.ledger.Balance(owner, asset)
}

// Quote prices a swap against the committed pool without executing it.
func (s *Service) Quote(ctx context.Context, id common.Hash, side amm.Side, amountIn, minOut uint64) (amm.SwapReceipt, error) {
	pool, err := s.load(ctx, id)
	if err != nil {
		return amm.SwapReceipt{}, err
	}
	return amm.QuoteSwap(pool, side, amountIn, minOut)
}

// Close closes the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

// operation mutates pool through c. tx is the unwrapped ledger transaction
// behind c.
type operation func(pool *amm.Pool, c amm.Custodian, tx *custody.Tx) (model.OperationRecord, error)

// execute runs fn on a copy of the committed pool inside a ledger
// transaction and publishes pool and balances together. Nothing is
// published unless fn succeeds, the result passes the invariant checks and
// the store accepts the write.
func (s *Service) execute(ctx context.Context, op string, id common.Hash, caller common.Address, fn operation) (pool amm.Pool, err error) {
	start := time.Now()
	defer func() { s.observe(op, start, err) }()

	if err := ctx.Err(); err != nil {
		return amm.Pool{}, err
	}
	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return amm.Pool{}, err
	}

	for attempt := 0; ; attempt++ {
		next := current.Clone()
		tx := s.ledger.Begin()
		var c amm.Custodian = tx
		if s.wrap != nil {
			c = s.wrap(tx)
		}

		rec, err := fn(&next, c, tx)
		if err != nil {
			tx.Discard()
			return amm.Pool{}, err
		}
		if err := verify(op, current, next); err != nil {
			tx.Discard()
			return amm.Pool{}, err
		}

		err = s.ledger.Apply(tx, func(changes []custody.Balance) error {
			return s.store.Commit(ctx, &next, changes)
		})
		if errors.Is(err, custody.ErrConflict) && attempt < maxConflictRetries {
			s.logger.Debug("ledger conflict, retrying", zap.String("op", op), zap.String("pool", id.Hex()), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return amm.Pool{}, fmt.Errorf("commit %s: %w", op, err)
		}

		rec.Kind = op
		s.record(next, caller, rec)
		return next, nil
	}
}

func verify(op string, before, after amm.Pool) error {
	if err := amm.CheckInvariants(after); err != nil {
		return err
	}
	switch op {
	case OpSwap:
		return amm.CheckSwapProduct(before, after)
	case OpProvide, OpWithdraw:
		return amm.CheckShareValue(before, after)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id common.Hash) (amm.Pool, error) {
	pool, err := s.store.LoadPool(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return amm.Pool{}, ErrPoolNotFound.Wrapf("pool %s", id.Hex())
	}
	if err != nil {
		return amm.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	return pool, nil
}

// record completes rec from the committed pool, appends it to the journal
// and logs it. Journal failures do not undo the commit.
func (s *Service) record(pool amm.Pool, caller common.Address, rec model.OperationRecord) {
	now := s.now().UTC()
	rec.PoolID = pool.ID.Hex()
	rec.Caller = caller.Hex()
	rec.FeeBps = pool.FeeBps
	rec.ReserveX = pool.ReserveX
	rec.ReserveY = pool.ReserveY
	rec.ShareSupply = pool.ShareSupply
	rec.Locked = pool.Locked
	rec.Timestamp = uint64(now.Unix())
	rec.CommittedAt = now.Format(time.RFC3339Nano)

	if err := s.journal.Append(rec); err != nil {
		s.logger.Warn("journal append failed", zap.Error(err), zap.String("op", rec.Kind), zap.String("pool", rec.PoolID))
	}
	s.metrics.SetPool(pool)
	s.logger.Info("pool operation committed",
		zap.String("op", rec.Kind),
		zap.String("pool", rec.PoolID),
		zap.String("caller", rec.Caller),
		zap.Uint64("amount_x", rec.AmountX),
		zap.Uint64("amount_y", rec.AmountY),
		zap.Uint64("shares", rec.Shares),
		zap.Uint64("reserve_x", rec.ReserveX),
		zap.Uint64("reserve_y", rec.ReserveY),
		zap.Uint64("share_supply", rec.ShareSupply),
	)
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.Observe(op, start, err)
	if err == nil {
		return
	}
	if kind := KindOf(err); kind != nil && kind != amm.ErrCustodianFailure && kind != amm.ErrCorruptPool {
		s.logger.Debug("pool operation rejected", zap.String("op", op), zap.Error(err))
		return
	}
	s.logger.Warn("pool operation failed", zap.String("op", op), zap.Error(err))
}
