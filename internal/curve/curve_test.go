package curve

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"
)

func TestInitialDeposit(t *testing.T) {
	got, err := InitialDeposit(1_000_000, 4_000_000)
	if err != nil {
		t.Fatalf("initial deposit: %v", err)
	}
	want := Deposit{X: 1_000_000, Y: 4_000_000, Shares: 2_000_000}
	if got != want {
		t.Fatalf("initial deposit mismatch: %+v != %+v", got, want)
	}

	if _, err := InitialDeposit(0, 10); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestInitialDepositLargeReserves(t *testing.T) {
	got, err := InitialDeposit(math.MaxUint64, math.MaxUint64)
	if err != nil {
		t.Fatalf("initial deposit: %v", err)
	}
	if got.Shares != math.MaxUint64 {
		t.Fatalf("shares mismatch: %d != %d", got.Shares, uint64(math.MaxUint64))
	}
}

func TestSqrtIsFloorRoot(t *testing.T) {
	cases := []struct {
		x, y uint64
		want uint64
	}{
		{1, 1, 1},
		{2, 1, 1},
		{3, 3, 3},
		{3, 5, 3},
		{4, 4, 4},
		{99, 101, 99},
		{1 << 32, 1 << 32, 1 << 32},
		{math.MaxUint64, 1, math.MaxUint32},
	}
	for _, tc := range cases {
		if got := Sqrt(tc.x, tc.y); got != tc.want {
			t.Fatalf("sqrt(%d*%d) mismatch: %d != %d", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestDepositAmountsRoundUp(t *testing.T) {
	got, err := DepositAmounts(1_000_000, 4_000_000, 2_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	want := Deposit{X: 500_000, Y: 2_000_000, Shares: 1_000_000}
	if got != want {
		t.Fatalf("deposit mismatch: %+v != %+v", got, want)
	}

	// 10*1/3 = 3.33.. and 20*1/3 = 6.66.. both round up.
	got, err = DepositAmounts(10, 20, 3, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got.X != 4 || got.Y != 7 {
		t.Fatalf("ceil mismatch: %+v", got)
	}
}

func TestDepositAmountsOverflow(t *testing.T) {
	_, err := DepositAmounts(math.MaxUint64, 1, 1, 2)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	_, err = DepositAmounts(1, 1, 0, 1)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestWithdrawAmountsRoundDown(t *testing.T) {
	got, err := WithdrawAmounts(1_000_000, 4_000_000, 2_000_000, 500_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	want := Withdrawal{X: 250_000, Y: 1_000_000}
	if got != want {
		t.Fatalf("withdraw mismatch: %+v != %+v", got, want)
	}

	got, err = WithdrawAmounts(10, 20, 3, 1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.X != 3 || got.Y != 6 {
		t.Fatalf("floor mismatch: %+v", got)
	}

	got, err = WithdrawAmounts(5, 5, 1_000, 1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.X != 0 || got.Y != 0 {
		t.Fatalf("dust withdraw should round to zero: %+v", got)
	}
}

func TestWithdrawAmountsRejects(t *testing.T) {
	if _, err := WithdrawAmounts(10, 10, 10, 11); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if _, err := WithdrawAmounts(10, 10, 10, 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := WithdrawAmounts(0, 0, 0, 1); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestSwapWithFee(t *testing.T) {
	got, err := Swap(PairX, 10_000, 1_000_000, 4_000_000, 30)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	// 4_000_000*9_970/1_009_970 = 39_486.2..
	want := SwapResult{Deposit: 10_000, Withdraw: 39_486, Fee: 30}
	if got != want {
		t.Fatalf("swap mismatch: %+v != %+v", got, want)
	}

	before := Invariant(1_000_000, 4_000_000)
	after := Invariant(1_000_000+got.Deposit, 4_000_000-got.Withdraw)
	if after.Lt(before) {
		t.Fatalf("invariant decreased: %s < %s", after.Hex(), before.Hex())
	}
}

func TestSwapReverseDirection(t *testing.T) {
	got, err := Swap(PairY, 40_000, 1_000_000, 4_000_000, 0)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	// 1_000_000*40_000/4_040_000 = 9900.99..
	if got.Withdraw != 9_900 || got.Fee != 0 {
		t.Fatalf("swap mismatch: %+v", got)
	}
}

func TestSwapFullFeeYieldsNothing(t *testing.T) {
	_, err := Swap(PairX, 10_000, 1_000_000, 4_000_000, BasisPoints)
	if !errors.Is(err, ErrZeroOutput) {
		t.Fatalf("expected ErrZeroOutput, got %v", err)
	}
}

func TestSwapRejects(t *testing.T) {
	if _, err := Swap(PairX, 1, 10, 10, BasisPoints+1); !errors.Is(err, ErrFeeOutOfRange) {
		t.Fatalf("expected ErrFeeOutOfRange, got %v", err)
	}
	if _, err := Swap(PairX, 0, 10, 10, 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := Swap(PairX, 1, 0, 0, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
	if _, err := Swap(PairX, 1, 1_000_000, 10, 0); !errors.Is(err, ErrZeroOutput) {
		t.Fatalf("expected ErrZeroOutput, got %v", err)
	}
}

func TestSwapOutputBelowReserve(t *testing.T) {
	got, err := Swap(PairX, math.MaxUint64, 1, math.MaxUint64, 0)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if got.Withdraw >= math.MaxUint64 {
		t.Fatalf("swap drained the reserve: %d", got.Withdraw)
	}
}

func TestSpotPriceX64(t *testing.T) {
	got, err := SpotPriceX64(1_000_000, 4_000_000)
	if err != nil {
		t.Fatalf("spot price: %v", err)
	}
	want := new(uint256.Int).Lsh(uint256.NewInt(4), 64)
	if !got.Eq(want) {
		t.Fatalf("spot price mismatch: %s != %s", got.Hex(), want.Hex())
	}
	if _, err := SpotPriceX64(0, 1); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}
