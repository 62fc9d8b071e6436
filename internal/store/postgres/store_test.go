package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cpamm/internal/amm"
	"cpamm/internal/custody"
	"cpamm/internal/model"
	"cpamm/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AMM_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AMM_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, Options{DSN: dsn, MaxRetries: 2, RetryBackoff: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	_, err = s.pool.Exec(ctx, `TRUNCATE amm_pools, amm_balances, amm_pool_window_stats, amm_stats_state`)
	require.NoError(t, err)
	return s
}

func TestCommitAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := amm.Initialize(amm.DerivePoolID(1),
		common.HexToAddress("0x1000000000000000000000000000000000000001"),
		common.HexToAddress("0x2000000000000000000000000000000000000002"),
		30, nil)
	require.NoError(t, err)
	p.ReserveX, p.ReserveY, p.ShareSupply = ^uint64(0), 4_000_000, 2_000_000

	owner := common.HexToAddress("0x01")
	require.NoError(t, s.Commit(ctx, &p, []custody.Balance{{Owner: owner, Asset: p.AssetX, Amount: ^uint64(0)}}))

	got, err := s.LoadPool(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, p.Equal(got))

	balances, err := s.LoadBalances(ctx)
	require.NoError(t, err)
	require.Equal(t, []custody.Balance{{Owner: owner, Asset: p.AssetX, Amount: ^uint64(0)}}, balances)

	require.NoError(t, s.Commit(ctx, nil, []custody.Balance{{Owner: owner, Asset: p.AssetX, Amount: 0}}))
	balances, err = s.LoadBalances(ctx)
	require.NoError(t, err)
	require.Empty(t, balances)

	pools, err := s.ListPools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 1)

	_, err = s.LoadPool(ctx, amm.DerivePoolID(2))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWindowStatsAndState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rate := "0.000010000000000000"
	start := time.Unix(1_700_000_000, 0).UTC()
	require.NoError(t, s.UpsertWindowStats(ctx, []model.PoolWindowStats{{
		PoolID:         amm.DerivePoolID(1).Hex(),
		WindowSizeSecs: 3600,
		WindowStart:    start,
		WindowEnd:      start.Add(time.Hour),
		SwapCount:      1,
		VolumeX:        "10000",
		VolumeY:        "39486",
		FeeX:           "30",
		FeeY:           "0",
		ReserveX:       1_010_000,
		ReserveY:       3_960_514,
		ShareSupply:    2_000_000,
		FeeRateX:       &rate,
	}}))

	_, ok, err := s.LoadState(ctx, "stats")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.SaveState(ctx, "stats", 1_700_000_100))
	ts, ok, err := s.LoadState(ctx, "stats")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1_700_000_100), ts)
}
