// Package curve implements constant-product pricing over unsigned 64-bit
// reservoirs. Every intermediate product is computed in 256 bits and narrowed
// back to uint64 with an explicit rounding direction.
package curve

import (
	"errors"

	"github.com/holiman/uint256"
)

// BasisPoints is the fee denominator.
const BasisPoints = 10_000

var (
	ErrZeroAmount         = errors.New("amount must be greater than zero")
	ErrZeroShares         = errors.New("share grant rounds to zero")
	ErrZeroOutput         = errors.New("swap output rounds to zero")
	ErrOverflow           = errors.New("result does not fit in uint64")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrInsufficientShares = errors.New("share amount exceeds supply")
	ErrFeeOutOfRange      = errors.New("fee exceeds 10000 basis points")
)

// Pair selects the reservoir that receives the deposit of a swap.
type Pair uint8

const (
	// PairX deposits X and withdraws Y.
	PairX Pair = iota
	// PairY deposits Y and withdraws X.
	PairY
)

// Deposit is the asset amounts owed to the pool for a share grant.
type Deposit struct {
	X      uint64
	Y      uint64
	Shares uint64
}

// Withdrawal is the asset amounts released for a share burn.
type Withdrawal struct {
	X uint64
	Y uint64
}

// SwapResult describes a priced swap. Fee is the part of Deposit that did not
// take part in pricing and stays in the reserve.
type SwapResult struct {
	Deposit  uint64
	Withdraw uint64
	Fee      uint64
}

// InitialDeposit seeds an empty pool: the full amounts are taken and the
// share grant is the truncated geometric mean isqrt(x*y).
func InitialDeposit(x, y uint64) (Deposit, error) {
	if x == 0 || y == 0 {
		return Deposit{}, ErrZeroAmount
	}
	shares := Sqrt(x, y)
	if shares == 0 {
		return Deposit{}, ErrZeroShares
	}
	return Deposit{X: x, Y: y, Shares: shares}, nil
}

// DepositAmounts prices a share grant against a seeded pool. The caller pays
// the ceiling of its proportional claim on each reserve.
func DepositAmounts(reserveX, reserveY, supply, shares uint64) (Deposit, error) {
	if shares == 0 {
		return Deposit{}, ErrZeroAmount
	}
	x, err := mulDiv(reserveX, shares, supply, true)
	if err != nil {
		return Deposit{}, err
	}
	y, err := mulDiv(reserveY, shares, supply, true)
	if err != nil {
		return Deposit{}, err
	}
	return Deposit{X: x, Y: y, Shares: shares}, nil
}

// WithdrawAmounts prices a share burn. The pool keeps the remainder of each
// division, so either amount may legally be zero.
func WithdrawAmounts(reserveX, reserveY, supply, shares uint64) (Withdrawal, error) {
	if shares == 0 {
		return Withdrawal{}, ErrZeroAmount
	}
	if supply == 0 {
		return Withdrawal{}, ErrDivisionByZero
	}
	if shares > supply {
		return Withdrawal{}, ErrInsufficientShares
	}
	x, err := mulDiv(reserveX, shares, supply, false)
	if err != nil {
		return Withdrawal{}, err
	}
	y, err := mulDiv(reserveY, shares, supply, false)
	if err != nil {
		return Withdrawal{}, err
	}
	return Withdrawal{X: x, Y: y}, nil
}

// Swap prices amountIn against the reserves with a proportional fee:
//
//	in_eff = floor(amountIn * (10000 - feeBps) / 10000)
//	out    = floor(R_out * in_eff / (R_in + in_eff))
//
// The whole amountIn enters the pool.
func Swap(pair Pair, amountIn, reserveX, reserveY uint64, feeBps uint16) (SwapResult, error) {
	if feeBps > BasisPoints {
		return SwapResult{}, ErrFeeOutOfRange
	}
	if amountIn == 0 {
		return SwapResult{}, ErrZeroAmount
	}

	reserveIn, reserveOut := reserveX, reserveY
	if pair == PairY {
		reserveIn, reserveOut = reserveY, reserveX
	}
	if reserveIn == 0 || reserveOut == 0 {
		return SwapResult{}, ErrDivisionByZero
	}

	effective, err := mulDiv(amountIn, uint64(BasisPoints-feeBps), BasisPoints, false)
	if err != nil {
		return SwapResult{}, err
	}

	denominator := new(uint256.Int).AddUint64(uint256.NewInt(reserveIn), effective)
	out := new(uint256.Int).Div(mul(reserveOut, effective), denominator)
	if out.IsZero() {
		return SwapResult{}, ErrZeroOutput
	}
	// out < reserveOut because in_eff / (R_in + in_eff) < 1.
	return SwapResult{
		Deposit:  amountIn,
		Withdraw: out.Uint64(),
		Fee:      amountIn - effective,
	}, nil
}

// Invariant returns the 128-bit product k = x*y.
func Invariant(x, y uint64) *uint256.Int {
	return mul(x, y)
}

// Sqrt returns isqrt(x*y): the unique r with r*r <= x*y < (r+1)*(r+1).
func Sqrt(x, y uint64) uint64 {
	// x*y < 2^128, so the root fits in 64 bits.
	return new(uint256.Int).Sqrt(mul(x, y)).Uint64()
}

// SpotPriceX64 returns reserveY/reserveX as a 64.64 fixed-point number.
func SpotPriceX64(reserveX, reserveY uint64) (*uint256.Int, error) {
	if reserveX == 0 {
		return nil, ErrDivisionByZero
	}
	num := new(uint256.Int).Lsh(uint256.NewInt(reserveY), 64)
	return num.Div(num, uint256.NewInt(reserveX)), nil
}

func mul(a, b uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
}

func mulDiv(a, b, d uint64, roundUp bool) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	q, r := new(uint256.Int).DivMod(mul(a, b), uint256.NewInt(d), new(uint256.Int))
	if roundUp && !r.IsZero() {
		q.AddUint64(q, 1)
	}
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}
