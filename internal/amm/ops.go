package amm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ProvideResult reports what a provide moved.
type ProvideResult struct {
	SharesMinted uint64 `json:"shares_minted"`
	XSpent       uint64 `json:"x_spent"`
	YSpent       uint64 `json:"y_spent"`
}

// WithdrawResult reports what a withdraw moved.
type WithdrawResult struct {
	SharesBurned uint64 `json:"shares_burned"`
	XReceived    uint64 `json:"x_received"`
	YReceived    uint64 `json:"y_received"`
}

// SwapReceipt reports what a swap moved. Fee is the part of the input that
// was retained without pricing.
type SwapReceipt struct {
	Side             Side   `json:"side"`
	AmountInConsumed uint64 `json:"amount_in_consumed"`
	AmountOut        uint64 `json:"amount_out"`
	Fee              uint64 `json:"fee"`
}

// Provide debits X then Y from caller into the vault, mints shares to
// caller, and commits. pool is left untouched on any error.
func Provide(ctx context.Context, pool *Pool, caller common.Address, shares, maxX, maxY uint64, c Custodian) (ProvideResult, error) {
	plan, err := pool.PlanProvide(shares, maxX, maxY)
	if err != nil {
		return ProvideResult{}, err
	}
	vault := pool.Vault()
	if err := c.Move(ctx, pool.AssetX, caller, vault, plan.DebitX); err != nil {
		return ProvideResult{}, fmt.Errorf("%w: debit x: %w", ErrCustodianFailure, err)
	}
	if err := c.Move(ctx, pool.AssetY, caller, vault, plan.DebitY); err != nil {
		return ProvideResult{}, fmt.Errorf("%w: debit y: %w", ErrCustodianFailure, err)
	}
	if err := c.Mint(ctx, pool.ShareMint(), caller, plan.MintShares); err != nil {
		return ProvideResult{}, fmt.Errorf("%w: mint shares: %w", ErrCustodianFailure, err)
	}
	pool.Commit(plan)
	return ProvideResult{SharesMinted: plan.MintShares, XSpent: plan.DebitX, YSpent: plan.DebitY}, nil
}

// Withdraw burns shares from caller's share account, credits X then Y from
// the vault, and commits.
func Withdraw(ctx context.Context, pool *Pool, caller common.Address, shares, minX, minY uint64, c Custodian) (WithdrawResult, error) {
	plan, err := pool.PlanWithdraw(shares, minX, minY)
	if err != nil {
		return WithdrawResult{}, err
	}
	vault := pool.Vault()
	if err := c.Burn(ctx, pool.ShareMint(), caller, plan.BurnShares); err != nil {
		return WithdrawResult{}, fmt.Errorf("%w: burn shares: %w", ErrCustodianFailure, err)
	}
	if err := c.Move(ctx, pool.AssetX, vault, caller, plan.CreditX); err != nil {
		return WithdrawResult{}, fmt.Errorf("%w: credit x: %w", ErrCustodianFailure, err)
	}
	if err := c.Move(ctx, pool.AssetY, vault, caller, plan.CreditY); err != nil {
		return WithdrawResult{}, fmt.Errorf("%w: credit y: %w", ErrCustodianFailure, err)
	}
	pool.Commit(plan)
	return WithdrawResult{SharesBurned: plan.BurnShares, XReceived: plan.CreditX, YReceived: plan.CreditY}, nil
}

// Swap debits the input asset from caller, credits the output asset from the
// vault, and commits.
func Swap(ctx context.Context, pool *Pool, caller common.Address, side Side, amountIn, minOut uint64, c Custodian) (SwapReceipt, error) {
	plan, err := pool.PlanSwap(side, amountIn, minOut)
	if err != nil {
		return SwapReceipt{}, err
	}
	in, out := pool.assetIn(side)
	vault := pool.Vault()
	if err := c.Move(ctx, in, caller, vault, plan.DebitIn); err != nil {
		return SwapReceipt{}, fmt.Errorf("%w: debit input: %w", ErrCustodianFailure, err)
	}
	if err := c.Move(ctx, out, vault, caller, plan.CreditOut); err != nil {
		return SwapReceipt{}, fmt.Errorf("%w: credit output: %w", ErrCustodianFailure, err)
	}
	pool.Commit(plan)
	return SwapReceipt{Side: side, AmountInConsumed: plan.DebitIn, AmountOut: plan.CreditOut, Fee: plan.Fee}, nil
}

// QuoteSwap prices a swap without moving anything.
func QuoteSwap(pool Pool, side Side, amountIn, minOut uint64) (SwapReceipt, error) {
	plan, err := pool.PlanSwap(side, amountIn, minOut)
	if err != nil {
		return SwapReceipt{}, err
	}
	return SwapReceipt{Side: side, AmountInConsumed: plan.DebitIn, AmountOut: plan.CreditOut, Fee: plan.Fee}, nil
}

// SetLock toggles the lock flag. Only the pool's authority may call it; a
// pool created without one can never be locked.
func SetLock(pool *Pool, caller common.Address, locked bool) error {
	if pool.Authority == nil {
		return ErrUnauthorized.Wrapf("pool %s has no authority", pool.ID.Hex())
	}
	if *pool.Authority != caller {
		return ErrUnauthorized.Wrapf("%s is not the authority of pool %s", caller.Hex(), pool.ID.Hex())
	}
	pool.Locked = locked
	return nil
}
