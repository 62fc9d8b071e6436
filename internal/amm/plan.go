package amm

import (
	"math"

	"cpamm/internal/curve"
)

// Plan is a validated state transition produced by one of the Plan* methods.
// Only this package creates plans.
type Plan interface {
	apply(p *Pool)
}

// PlannedProvide is the outcome of PlanProvide.
type PlannedProvide struct {
	DebitX     uint64
	DebitY     uint64
	MintShares uint64
	// Bootstrap is set when the grant came from the geometric mean of the
	// bounds instead of the requested share amount.
	Bootstrap bool
}

// PlannedWithdraw is the outcome of PlanWithdraw.
type PlannedWithdraw struct {
	CreditX    uint64
	CreditY    uint64
	BurnShares uint64
}

// PlannedSwap is the outcome of PlanSwap.
type PlannedSwap struct {
	Side      Side
	DebitIn   uint64
	CreditOut uint64
	Fee       uint64
}

// PlanProvide prices a share grant of shares. On an empty pool the requested
// amount is ignored: maxX and maxY are taken in full and the grant is
// isqrt(maxX*maxY).
func (p Pool) PlanProvide(shares, maxX, maxY uint64) (PlannedProvide, error) {
	if p.Locked {
		return PlannedProvide{}, ErrPoolLocked.Wrap("provide")
	}
	if shares == 0 {
		return PlannedProvide{}, ErrInvalidAmount.Wrap("provide: share amount is zero")
	}
	if err := CheckInvariants(p); err != nil {
		return PlannedProvide{}, err
	}

	var plan PlannedProvide
	if p.Empty() {
		if maxX == 0 || maxY == 0 {
			return PlannedProvide{}, ErrInvalidAmount.Wrapf("provide: bootstrap bounds must be positive (x=%d y=%d)", maxX, maxY)
		}
		d, err := curve.InitialDeposit(maxX, maxY)
		if err != nil {
			return PlannedProvide{}, curveError("provide", err)
		}
		plan = PlannedProvide{DebitX: d.X, DebitY: d.Y, MintShares: d.Shares, Bootstrap: true}
	} else {
		d, err := curve.DepositAmounts(p.ReserveX, p.ReserveY, p.ShareSupply, shares)
		if err != nil {
			return PlannedProvide{}, curveError("provide", err)
		}
		if d.X > maxX || d.Y > maxY {
			return PlannedProvide{}, ErrSlippage.Wrapf("provide: need x=%d y=%d, bounds x=%d y=%d", d.X, d.Y, maxX, maxY)
		}
		plan = PlannedProvide{DebitX: d.X, DebitY: d.Y, MintShares: d.Shares}
	}

	if addOverflows(p.ReserveX, plan.DebitX) || addOverflows(p.ReserveY, plan.DebitY) || addOverflows(p.ShareSupply, plan.MintShares) {
		return PlannedProvide{}, ErrArithmeticOverflow.Wrap("provide: reserve or supply exceeds uint64")
	}
	return plan, nil
}

// PlanWithdraw prices a burn of shares. Both minimums must be positive.
func (p Pool) PlanWithdraw(shares, minX, minY uint64) (PlannedWithdraw, error) {
	if p.Locked {
		return PlannedWithdraw{}, ErrPoolLocked.Wrap("withdraw")
	}
	if shares == 0 {
		return PlannedWithdraw{}, ErrInvalidAmount.Wrap("withdraw: share amount is zero")
	}
	if minX == 0 || minY == 0 {
		return PlannedWithdraw{}, ErrInvalidAmount.Wrapf("withdraw: minimums must be positive (x=%d y=%d)", minX, minY)
	}
	if err := CheckInvariants(p); err != nil {
		return PlannedWithdraw{}, err
	}

	w, err := curve.WithdrawAmounts(p.ReserveX, p.ReserveY, p.ShareSupply, shares)
	if err != nil {
		if p.Empty() {
			return PlannedWithdraw{}, curveError("withdraw", curve.ErrInsufficientShares)
		}
		return PlannedWithdraw{}, curveError("withdraw", err)
	}
	if w.X < minX || w.Y < minY {
		return PlannedWithdraw{}, ErrSlippage.Wrapf("withdraw: got x=%d y=%d, minimums x=%d y=%d", w.X, w.Y, minX, minY)
	}
	return PlannedWithdraw{CreditX: w.X, CreditY: w.Y, BurnShares: shares}, nil
}

// PlanSwap prices amountIn against the pool.
func (p Pool) PlanSwap(side Side, amountIn, minOut uint64) (PlannedSwap, error) {
	if p.Locked {
		return PlannedSwap{}, ErrPoolLocked.Wrap("swap")
	}
	if side != XToY && side != YToX {
		return PlannedSwap{}, ErrInvalidAmount.Wrapf("swap: unknown side %d", uint8(side))
	}
	if amountIn == 0 {
		return PlannedSwap{}, ErrInvalidAmount.Wrap("swap: amount in is zero")
	}
	if err := CheckInvariants(p); err != nil {
		return PlannedSwap{}, err
	}
	if p.Empty() {
		return PlannedSwap{}, curveError("swap", errNoLiquidity)
	}

	r, err := curve.Swap(side.pair(), amountIn, p.ReserveX, p.ReserveY, p.FeeBps)
	if err != nil {
		return PlannedSwap{}, curveError("swap", err)
	}
	if r.Deposit == 0 || r.Withdraw == 0 {
		return PlannedSwap{}, ErrInvalidAmount.Wrap("swap: zero movement")
	}
	if r.Withdraw < minOut {
		return PlannedSwap{}, ErrSlippage.Wrapf("swap: out %d below minimum %d", r.Withdraw, minOut)
	}

	reserveIn := p.ReserveX
	if side == YToX {
		reserveIn = p.ReserveY
	}
	if addOverflows(reserveIn, r.Deposit) {
		return PlannedSwap{}, ErrArithmeticOverflow.Wrap("swap: input reserve exceeds uint64")
	}
	return PlannedSwap{Side: side, DebitIn: r.Deposit, CreditOut: r.Withdraw, Fee: r.Fee}, nil
}

// Commit applies plan to the reserves and share supply. It performs no
// validation; plans are checked when they are built.
func (p *Pool) Commit(plan Plan) {
	plan.apply(p)
}

func (m PlannedProvide) apply(p *Pool) {
	p.ReserveX += m.DebitX
	p.ReserveY += m.DebitY
	p.ShareSupply += m.MintShares
}

func (m PlannedWithdraw) apply(p *Pool) {
	p.ReserveX -= m.CreditX
	p.ReserveY -= m.CreditY
	p.ShareSupply -= m.BurnShares
}

func (m PlannedSwap) apply(p *Pool) {
	if m.Side == YToX {
		p.ReserveY += m.DebitIn
		p.ReserveX -= m.CreditOut
		return
	}
	p.ReserveX += m.DebitIn
	p.ReserveY -= m.CreditOut
}

func addOverflows(a, b uint64) bool {
	return a > math.MaxUint64-b
}
