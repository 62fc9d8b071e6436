package amm_test

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"cpamm/internal/amm"
	"cpamm/internal/curve"
)

func drawSeededPool(t *rapid.T) amm.Pool {
	fee := rapid.Uint16Range(0, 1_000).Draw(t, "fee_bps")
	p, err := amm.Initialize(amm.DerivePoolID(1), assetX, assetY, fee, nil)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	x := rapid.Uint64Range(1_000, 1_000_000_000_000).Draw(t, "seed_x")
	y := rapid.Uint64Range(1_000, 1_000_000_000_000).Draw(t, "seed_y")
	if _, err := amm.Provide(context.Background(), &p, alice, 1, x, y, &recorder{}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return p
}

// Every committed operation in a random sequence keeps the counters coupled
// and the fee bounded.
func TestPropertyInvariantsHoldAcrossSequences(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawSeededPool(t)
		ctx := context.Background()
		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			before := p.Clone()
			var err error
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				shares := rapid.Uint64Range(1, p.ShareSupply+1).Draw(t, "provide_shares")
				_, err = amm.Provide(ctx, &p, alice, shares, 1<<62, 1<<62, &recorder{})
				if err == nil {
					if cerr := amm.CheckShareValue(before, p); cerr != nil {
						t.Fatalf("provide: %v", cerr)
					}
				}
			case 1:
				if p.Empty() {
					continue
				}
				shares := rapid.Uint64Range(1, p.ShareSupply).Draw(t, "withdraw_shares")
				_, err = amm.Withdraw(ctx, &p, alice, shares, 1, 1, &recorder{})
				if err == nil {
					if cerr := amm.CheckShareValue(before, p); cerr != nil {
						t.Fatalf("withdraw: %v", cerr)
					}
				}
			case 2:
				side := amm.Side(rapid.IntRange(0, 1).Draw(t, "side"))
				in := rapid.Uint64Range(1, 1_000_000_000_000).Draw(t, "amount_in")
				_, err = amm.Swap(ctx, &p, alice, side, in, 0, &recorder{})
				if err == nil {
					if cerr := amm.CheckSwapProduct(before, p); cerr != nil {
						t.Fatalf("swap: %v", cerr)
					}
				}
			}
			if err != nil && !before.Equal(p) {
				t.Fatalf("failed operation mutated the pool: %v", err)
			}
			if err := amm.CheckInvariants(p); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
	})
}

func TestPropertySwapProductMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawSeededPool(t)
		before := p.Clone()
		side := amm.Side(rapid.IntRange(0, 1).Draw(t, "side"))
		in := rapid.Uint64Range(1, 1_000_000_000_000).Draw(t, "amount_in")

		if _, err := amm.Swap(context.Background(), &p, alice, side, in, 0, &recorder{}); err != nil {
			return
		}
		k0 := curve.Invariant(before.ReserveX, before.ReserveY)
		k1 := curve.Invariant(p.ReserveX, p.ReserveY)
		if p.FeeBps > 0 && !k1.Gt(k0) {
			t.Fatalf("product did not grow with fee %d: %s -> %s", p.FeeBps, k0.ToBig(), k1.ToBig())
		}
		if k1.Lt(k0) {
			t.Fatalf("product fell: %s -> %s", k0.ToBig(), k1.ToBig())
		}
	})
}

func TestPropertyRoundTripNeverProfits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawSeededPool(t)
		shares := rapid.Uint64Range(1, p.ShareSupply).Draw(t, "shares")
		ctx := context.Background()

		in, err := amm.Provide(ctx, &p, alice, shares, 1<<62, 1<<62, &recorder{})
		if err != nil {
			t.Fatalf("provide: %v", err)
		}
		plan, err := p.PlanWithdraw(shares, 1, 1)
		if err != nil {
			// Dust withdrawals are rejected by the positive minimums.
			return
		}
		if plan.CreditX > in.XSpent || plan.CreditY > in.YSpent {
			t.Fatalf("round trip profit: paid (%d, %d), got (%d, %d)", in.XSpent, in.YSpent, plan.CreditX, plan.CreditY)
		}
	})
}

func TestPropertySwapBackLosesValue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawSeededPool(t)
		in := rapid.Uint64Range(1, 1_000_000_000).Draw(t, "amount_in")
		ctx := context.Background()

		first, err := amm.Swap(ctx, &p, alice, amm.XToY, in, 0, &recorder{})
		if err != nil {
			return
		}
		var back uint64
		second, err := amm.Swap(ctx, &p, alice, amm.YToX, first.AmountOut, 0, &recorder{})
		if err == nil {
			back = second.AmountOut
		}
		if p.FeeBps > 0 && back >= in {
			t.Fatalf("self-arbitrage with fee %d: %d -> %d", p.FeeBps, in, back)
		}
		if back > in {
			t.Fatalf("self-arbitrage: %d -> %d", in, back)
		}
	})
}

func TestPropertyRejectionLeavesPoolIntact(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawSeededPool(t)
		p.Locked = rapid.Bool().Draw(t, "locked")
		before := p.Clone()
		ctx := context.Background()

		shares := rapid.Uint64Range(0, p.ShareSupply*2).Draw(t, "shares")
		bound := rapid.Uint64Range(0, 1_000).Draw(t, "bound")
		in := rapid.Uint64Range(0, 1_000).Draw(t, "amount_in")

		rec := &recorder{}
		if _, err := amm.Provide(ctx, &p, alice, shares, bound, bound, rec); err != nil && !before.Equal(p) {
			t.Fatalf("provide mutated pool: %v", err)
		}
		p = before.Clone()
		if _, err := amm.Withdraw(ctx, &p, alice, shares, bound, bound, rec); err != nil && !before.Equal(p) {
			t.Fatalf("withdraw mutated pool: %v", err)
		}
		p = before.Clone()
		if _, err := amm.Swap(ctx, &p, alice, amm.XToY, in, bound*1_000, rec); err != nil && !before.Equal(p) {
			t.Fatalf("swap mutated pool: %v", err)
		}
	})
}
