package custody

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cpamm/internal/amm"
)

var (
	tokenA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0x2000000000000000000000000000000000000002")
	alice  = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob    = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
)

func supply(t *testing.T, l *Ledger, asset common.Address) uint64 {
	t.Helper()
	total, err := l.Supply(asset)
	require.NoError(t, err)
	return total
}

func TestMoveStagesUntilApply(t *testing.T) {
	l := NewLedger([]Balance{{Owner: alice, Asset: tokenA, Amount: 100}})
	tx := l.Begin()
	require.NoError(t, tx.Move(context.Background(), tokenA, alice, bob, 40))

	require.Equal(t, uint64(100), l.Balance(alice, tokenA))
	require.Zero(t, l.Balance(bob, tokenA))

	var persisted []Balance
	require.NoError(t, l.Apply(tx, func(b []Balance) error {
		persisted = b
		return nil
	}))
	require.Equal(t, uint64(60), l.Balance(alice, tokenA))
	require.Equal(t, uint64(40), l.Balance(bob, tokenA))
	require.Equal(t, []Balance{
		{Owner: alice, Asset: tokenA, Amount: 60},
		{Owner: bob, Asset: tokenA, Amount: 40},
	}, persisted)
}

func TestInsufficientFunds(t *testing.T) {
	l := NewLedger([]Balance{{Owner: alice, Asset: tokenA, Amount: 10}})
	tx := l.Begin()
	err := tx.Move(context.Background(), tokenA, alice, bob, 11)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	err = tx.Burn(context.Background(), tokenB, alice, 1)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCreditOverflow(t *testing.T) {
	l := NewLedger([]Balance{{Owner: alice, Asset: tokenA, Amount: ^uint64(0)}})
	tx := l.Begin()
	require.ErrorIs(t, tx.Credit(alice, tokenA, 1), ErrBalanceOverflow)
}

func TestPersistFailurePublishesNothing(t *testing.T) {
	l := NewLedger([]Balance{{Owner: alice, Asset: tokenA, Amount: 100}})
	tx := l.Begin()
	require.NoError(t, tx.Mint(context.Background(), tokenB, alice, 5))
	require.NoError(t, tx.Move(context.Background(), tokenA, alice, bob, 30))

	boom := errors.New("disk full")
	err := l.Apply(tx, func([]Balance) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, uint64(100), l.Balance(alice, tokenA))
	require.Zero(t, l.Balance(alice, tokenB))
	require.Zero(t, supply(t, l, tokenB))
}

func TestConflictingApply(t *testing.T) {
	l := NewLedger([]Balance{{Owner: alice, Asset: tokenA, Amount: 100}})
	first := l.Begin()
	second := l.Begin()
	require.NoError(t, first.Move(context.Background(), tokenA, alice, bob, 60))
	require.NoError(t, second.Move(context.Background(), tokenA, alice, bob, 60))

	require.NoError(t, l.Apply(first, nil))
	require.ErrorIs(t, l.Apply(second, nil), ErrConflict)
	require.Equal(t, uint64(40), l.Balance(alice, tokenA))

	require.ErrorIs(t, l.Apply(first, nil), ErrTxDone)
}

func TestMintBurnSupply(t *testing.T) {
	l := NewLedger(nil)
	tx := l.Begin()
	require.NoError(t, tx.Mint(context.Background(), tokenB, alice, 70))
	require.NoError(t, tx.Mint(context.Background(), tokenB, bob, 30))
	require.NoError(t, tx.Burn(context.Background(), tokenB, alice, 20))
	require.NoError(t, l.Apply(tx, nil))

	require.Equal(t, uint64(80), supply(t, l, tokenB))
	require.Equal(t, []Balance{
		{Owner: alice, Asset: tokenB, Amount: 50},
		{Owner: bob, Asset: tokenB, Amount: 30},
	}, l.Snapshot())
}

func TestZeroBalancesAreDropped(t *testing.T) {
	l := NewLedger([]Balance{{Owner: alice, Asset: tokenA, Amount: 5}})
	tx := l.Begin()
	require.NoError(t, tx.Move(context.Background(), tokenA, alice, bob, 5))
	require.NoError(t, l.Apply(tx, nil))
	require.Equal(t, []Balance{{Owner: bob, Asset: tokenA, Amount: 5}}, l.Snapshot())
}

func TestChangesSkipsUntouchedReads(t *testing.T) {
	l := NewLedger([]Balance{{Owner: alice, Asset: tokenA, Amount: 5}})
	tx := l.Begin()
	require.NoError(t, tx.Move(context.Background(), tokenA, alice, alice, 5))
	require.Empty(t, tx.Changes())
}

func TestDiscardedTxRejectsCalls(t *testing.T) {
	l := NewLedger(nil)
	tx := l.Begin()
	tx.Discard()
	require.ErrorIs(t, tx.Credit(alice, tokenA, 1), ErrTxDone)
	require.ErrorIs(t, l.Apply(tx, nil), ErrTxDone)
}

func TestFailingTripsOnce(t *testing.T) {
	l := NewLedger([]Balance{{Owner: alice, Asset: tokenA, Amount: 100}})
	tx := l.Begin()
	f := &Failing{Next: tx, FailAt: 2}
	ctx := context.Background()

	require.NoError(t, f.Move(ctx, tokenA, alice, bob, 10))
	require.ErrorIs(t, f.Move(ctx, tokenA, alice, bob, 10), ErrInjected)
	require.NoError(t, f.Mint(ctx, tokenB, alice, 1))
	require.Equal(t, 3, f.Calls())
}

func TestLedgerBacksPoolOperations(t *testing.T) {
	auth := bob
	p, err := amm.Initialize(amm.DerivePoolID(3), tokenA, tokenB, 30, &auth)
	require.NoError(t, err)
	l := NewLedger([]Balance{
		{Owner: alice, Asset: tokenA, Amount: 2_000_000},
		{Owner: alice, Asset: tokenB, Amount: 8_000_000},
	})
	ctx := context.Background()

	tx := l.Begin()
	_, err = amm.Provide(ctx, &p, alice, 1, 1_000_000, 4_000_000, tx)
	require.NoError(t, err)
	require.NoError(t, l.Apply(tx, nil))
	require.Equal(t, p.ShareSupply, supply(t, l, p.ShareMint()))
	require.Equal(t, p.ReserveX, l.Balance(p.Vault(), tokenA))

	// Withdrawing more shares than alice holds fails in the custodian after
	// planning succeeded; the pool stays as it was.
	tx = l.Begin()
	tx2 := l.Begin()
	require.NoError(t, tx2.Burn(ctx, p.ShareMint(), alice, 1_999_999))
	require.NoError(t, l.Apply(tx2, nil))
	before := p.Clone()
	_, err = amm.Withdraw(ctx, &p, alice, 2, 1, 1, tx)
	require.ErrorIs(t, err, amm.ErrCustodianFailure)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.True(t, before.Equal(p))
}

func TestSupplyOverflow(t *testing.T) {
	l := NewLedger([]Balance{
		{Owner: alice, Asset: tokenA, Amount: math.MaxUint64},
		{Owner: bob, Asset: tokenA, Amount: 1},
		{Owner: bob, Asset: tokenB, Amount: math.MaxUint64},
	})
	_, err := l.Supply(tokenA)
	require.ErrorIs(t, err, ErrBalanceOverflow)
	require.Equal(t, uint64(math.MaxUint64), supply(t, l, tokenB))
}
