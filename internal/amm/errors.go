package amm

import (
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"

	"cpamm/internal/curve"
)

// Codespace namespaces the registered pool error codes.
const Codespace = "amm"

var (
	ErrInvalidAmount         = errorsmod.Register(Codespace, 1, "invalid amount")
	ErrPoolLocked            = errorsmod.Register(Codespace, 2, "pool is locked")
	ErrSlippage              = errorsmod.Register(Codespace, 3, "slippage bound exceeded")
	ErrInsufficientLiquidity = errorsmod.Register(Codespace, 4, "insufficient liquidity")
	ErrArithmeticOverflow    = errorsmod.Register(Codespace, 5, "arithmetic overflow")
	ErrUnauthorized          = errorsmod.Register(Codespace, 6, "unauthorized")
	ErrCustodianFailure      = errorsmod.Register(Codespace, 7, "custodian failure")
	ErrInvalidPoolConfig     = errorsmod.Register(Codespace, 8, "invalid pool configuration")
	ErrCorruptPool           = errorsmod.Register(Codespace, 9, "pool record violates invariants")
)

var kinds = []*errorsmod.Error{
	ErrPoolLocked,
	ErrSlippage,
	ErrInsufficientLiquidity,
	ErrInvalidAmount,
	ErrArithmeticOverflow,
	ErrUnauthorized,
	ErrCustodianFailure,
	ErrInvalidPoolConfig,
	ErrCorruptPool,
}

// KindOf returns the registered kind err belongs to, or nil when err was not
// produced by this package. Errors that match two kinds report the more
// specific one.
func KindOf(err error) *errorsmod.Error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

var errNoLiquidity = errors.New("pool has no liquidity")

// curveError maps a curve failure onto the pool taxonomy.
func curveError(op string, err error) error {
	switch {
	case errors.Is(err, curve.ErrOverflow):
		return fmt.Errorf("%w: %s: %w", ErrArithmeticOverflow, op, err)
	case errors.Is(err, curve.ErrDivisionByZero):
		return fmt.Errorf("%w: %s: %w", ErrCorruptPool, op, err)
	case errors.Is(err, curve.ErrInsufficientShares), errors.Is(err, errNoLiquidity):
		return fmt.Errorf("%w: %w: %s: %w", ErrInsufficientLiquidity, ErrInvalidAmount, op, err)
	case errors.Is(err, curve.ErrFeeOutOfRange):
		return fmt.Errorf("%w: %s: %w", ErrInvalidPoolConfig, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrInvalidAmount, op, err)
	}
}
