// Package postgres stores pool records, balances and window statistics in
// Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/codec"
	"cpamm/internal/custody"
	"cpamm/internal/model"
	"cpamm/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS amm_pools (
	id TEXT PRIMARY KEY,
	asset_x TEXT NOT NULL,
	asset_y TEXT NOT NULL,
	reserve_x NUMERIC(20,0) NOT NULL,
	reserve_y NUMERIC(20,0) NOT NULL,
	share_supply NUMERIC(20,0) NOT NULL,
	fee_bps INTEGER NOT NULL,
	share_decimals SMALLINT NOT NULL,
	authority TEXT,
	locked BOOLEAN NOT NULL,
	record BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS amm_balances (
	owner TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount NUMERIC(20,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner, asset)
);
CREATE TABLE IF NOT EXISTS amm_pool_window_stats (
	pool_id TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	swap_count BIGINT NOT NULL,
	provide_count BIGINT NOT NULL,
	withdraw_count BIGINT NOT NULL,
	volume_x NUMERIC NOT NULL,
	volume_y NUMERIC NOT NULL,
	fee_x NUMERIC NOT NULL,
	fee_y NUMERIC NOT NULL,
	reserve_x NUMERIC(20,0) NOT NULL,
	reserve_y NUMERIC(20,0) NOT NULL,
	share_supply NUMERIC(20,0) NOT NULL,
	fee_rate_x NUMERIC,
	fee_rate_y NUMERIC,
	apr NUMERIC,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS amm_stats_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Options configures NewStore.
type Options struct {
	DSN          string
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

// NewStore connects to opts.DSN, pinging with exponential backoff until the
// server answers, rejects the session, or MaxRetries is exhausted.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	target := describeTarget(&cfg.ConnConfig.Config)
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	retry := connectRetry{
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.RetryBackoff,
		target:     target,
		logger:     opts.Logger,
	}
	if err := retry.do(ctx, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", target, err)
	}
	return &Store{pool: pool}, nil
}

// describeTarget renders host:port/database, leaving out credentials.
func describeTarget(cfg *pgconn.Config) string {
	return fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
}

// Migrate creates the tables used by the store.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) LoadPool(ctx context.Context, id common.Hash) (amm.Pool, error) {
	var record []byte
	row := s.pool.QueryRow(ctx, `SELECT record FROM amm_pools WHERE id=$1`, id.Hex())
	if err := row.Scan(&record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return amm.Pool{}, fmt.Errorf("pool %s: %w", id.Hex(), store.ErrNotFound)
		}
		return amm.Pool{}, fmt.Errorf("query pool: %w", err)
	}
	p, err := codec.DecodePool(record)
	if err != nil {
		return amm.Pool{}, fmt.Errorf("load pool %s: %w", id.Hex(), err)
	}
	return p, nil
}

func (s *Store) ListPools(ctx context.Context) ([]amm.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM amm_pools ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var pools []amm.Pool
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		p, err := codec.DecodePool(record)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func (s *Store) LoadBalances(ctx context.Context) ([]custody.Balance, error) {
	rows, err := s.pool.Query(ctx, `SELECT owner, asset, amount::text FROM amm_balances ORDER BY owner, asset`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var out []custody.Balance
	for rows.Next() {
		var owner, asset, amount string
		if err := rows.Scan(&owner, &asset, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		value, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse balance %s/%s: %w", owner, asset, err)
		}
		out = append(out, custody.Balance{
			Owner:  common.HexToAddress(owner),
			Asset:  common.HexToAddress(asset),
			Amount: value,
		})
	}
	return out, rows.Err()
}

// Commit writes the pool row and balance rows in one transaction.
func (s *Store) Commit(ctx context.Context, pool *amm.Pool, balances []custody.Balance) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	queued := 0
	if pool != nil {
		record, err := codec.EncodePool(*pool)
		if err != nil {
			return err
		}
		var authority *string
		if pool.Authority != nil {
			a := pool.Authority.Hex()
			authority = &a
		}
		batch.Queue(`
			INSERT INTO amm_pools (
				id, asset_x, asset_y, reserve_x, reserve_y, share_supply, fee_bps, share_decimals,
				authority, locked, record, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
			ON CONFLICT (id)
			DO UPDATE SET
				reserve_x = EXCLUDED.reserve_x,
				reserve_y = EXCLUDED.reserve_y,
				share_supply = EXCLUDED.share_supply,
				locked = EXCLUDED.locked,
				record = EXCLUDED.record,
				updated_at = now()
		`,
			pool.ID.Hex(),
			pool.AssetX.Hex(),
			pool.AssetY.Hex(),
			u64(pool.ReserveX),
			u64(pool.ReserveY),
			u64(pool.ShareSupply),
			int32(pool.FeeBps),
			int16(pool.ShareDecimals),
			authority,
			pool.Locked,
			record,
		)
		queued++
	}
	for _, b := range balances {
		if b.Amount == 0 {
			batch.Queue(`DELETE FROM amm_balances WHERE owner=$1 AND asset=$2`, b.Owner.Hex(), b.Asset.Hex())
		} else {
			batch.Queue(`
				INSERT INTO amm_balances (owner, asset, amount, updated_at)
				VALUES ($1, $2, $3, now())
				ON CONFLICT (owner, asset)
				DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
			`, b.Owner.Hex(), b.Asset.Hex(), u64(b.Amount))
		}
		queued++
	}
	if queued == 0 {
		return nil
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("exec commit batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close commit batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertWindowStats inserts or updates window statistics.
func (s *Store) UpsertWindowStats(ctx context.Context, stats []model.PoolWindowStats) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range stats {
		batch.Queue(`
			INSERT INTO amm_pool_window_stats (
				pool_id, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, provide_count, withdraw_count, volume_x, volume_y, fee_x, fee_y,
				reserve_x, reserve_y, share_supply, fee_rate_x, fee_rate_y, apr, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
			ON CONFLICT (pool_id, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				provide_count = EXCLUDED.provide_count,
				withdraw_count = EXCLUDED.withdraw_count,
				volume_x = EXCLUDED.volume_x,
				volume_y = EXCLUDED.volume_y,
				fee_x = EXCLUDED.fee_x,
				fee_y = EXCLUDED.fee_y,
				reserve_x = EXCLUDED.reserve_x,
				reserve_y = EXCLUDED.reserve_y,
				share_supply = EXCLUDED.share_supply,
				fee_rate_x = EXCLUDED.fee_rate_x,
				fee_rate_y = EXCLUDED.fee_rate_y,
				apr = EXCLUDED.apr,
				updated_at = now()
		`,
			m.PoolID,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.ProvideCount),
			int64(m.WithdrawCount),
			m.VolumeX,
			m.VolumeY,
			m.FeeX,
			m.FeeY,
			u64(m.ReserveX),
			u64(m.ReserveY),
			u64(m.ShareSupply),
			m.FeeRateX,
			m.FeeRateY,
			m.APR,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range stats {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM amm_stats_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO amm_stats_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

// u64 renders v for a NUMERIC column; BIGINT cannot hold the full range.
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
