package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"cpamm/internal/amm"
	"cpamm/internal/model"
)

type operationOutput struct {
	Result any            `json:"result"`
	Pool   model.PoolView `json:"pool"`
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("pool", "", "pool id (0x-prefixed 32-byte hex)")
	cmd.Flags().Uint64("seed", 0, "derive the pool id from this seed instead of --pool")
}

// poolID resolves --pool or --seed.
func poolID(cmd *cobra.Command) (common.Hash, error) {
	raw, _ := cmd.Flags().GetString("pool")
	if raw != "" {
		b, err := hexutil.Decode(raw)
		if err != nil || len(b) != common.HashLength {
			return common.Hash{}, fmt.Errorf("invalid pool id %q", raw)
		}
		return common.BytesToHash(b), nil
	}
	if !cmd.Flags().Changed("seed") {
		return common.Hash{}, fmt.Errorf("--pool or --seed is required")
	}
	seed, _ := cmd.Flags().GetUint64("seed")
	return amm.DerivePoolID(seed), nil
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return common.Address{}, fmt.Errorf("--%s is required", name)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid --%s address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func sideFlag(cmd *cobra.Command) (amm.Side, error) {
	raw, _ := cmd.Flags().GetString("side")
	return amm.ParseSide(strings.TrimSpace(raw))
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, _ := cmd.Flags().GetUint64("seed")
			assetX, err := addressFlag(cmd, "asset-x")
			if err != nil {
				return err
			}
			assetY, err := addressFlag(cmd, "asset-y")
			if err != nil {
				return err
			}
			fee, _ := cmd.Flags().GetUint("fee-bps")
			if fee > math.MaxUint16 {
				return amm.ErrInvalidPoolConfig.Wrapf("fee %d bps", fee)
			}
			var authority *common.Address
			if raw, _ := cmd.Flags().GetString("authority"); raw != "" {
				a, err := addressFlag(cmd, "authority")
				if err != nil {
					return err
				}
				authority = &a
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			pool, err := a.svc.Initialize(a.ctx, seed, assetX, assetY, uint16(fee), authority)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model.NewPoolView(pool))
		},
	}
	cmd.Flags().Uint64("seed", 0, "pool seed")
	cmd.Flags().String("asset-x", "", "first asset (must sort below asset-y)")
	cmd.Flags().String("asset-y", "", "second asset")
	cmd.Flags().Uint("fee-bps", 30, "swap fee in basis points")
	cmd.Flags().String("authority", "", "address allowed to lock the pool")
	return cmd
}

func newProvideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provide",
		Short: "Deposit both assets for pool shares",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := poolID(cmd)
			if err != nil {
				return err
			}
			caller, err := addressFlag(cmd, "caller")
			if err != nil {
				return err
			}
			shares, _ := cmd.Flags().GetUint64("shares")
			maxX, _ := cmd.Flags().GetUint64("max-x")
			maxY, _ := cmd.Flags().GetUint64("max-y")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, pool, err := a.svc.Provide(a.ctx, id, caller, shares, maxX, maxY)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), operationOutput{Result: res, Pool: model.NewPoolView(pool)})
		},
	}
	addPoolFlags(cmd)
	cmd.Flags().String("caller", "", "depositor address")
	cmd.Flags().Uint64("shares", 0, "shares to mint (any nonzero value on the first deposit)")
	cmd.Flags().Uint64("max-x", 0, "maximum X to spend")
	cmd.Flags().Uint64("max-y", 0, "maximum Y to spend")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn pool shares for both assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := poolID(cmd)
			if err != nil {
				return err
			}
			caller, err := addressFlag(cmd, "caller")
			if err != nil {
				return err
			}
			shares, _ := cmd.Flags().GetUint64("shares")
			minX, _ := cmd.Flags().GetUint64("min-x")
			minY, _ := cmd.Flags().GetUint64("min-y")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, pool, err := a.svc.Withdraw(a.ctx, id, caller, shares, minX, minY)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), operationOutput{Result: res, Pool: model.NewPoolView(pool)})
		},
	}
	addPoolFlags(cmd)
	cmd.Flags().String("caller", "", "share holder address")
	cmd.Flags().Uint64("shares", 0, "shares to burn")
	cmd.Flags().Uint64("min-x", 1, "minimum X to receive")
	cmd.Flags().Uint64("min-y", 1, "minimum Y to receive")
	return cmd
}

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Trade one asset for the other",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := poolID(cmd)
			if err != nil {
				return err
			}
			caller, err := addressFlag(cmd, "caller")
			if err != nil {
				return err
			}
			side, err := sideFlag(cmd)
			if err != nil {
				return err
			}
			amountIn, _ := cmd.Flags().GetUint64("amount-in")
			minOut, _ := cmd.Flags().GetUint64("min-out")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, pool, err := a.svc.Swap(a.ctx, id, caller, side, amountIn, minOut)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), operationOutput{Result: res, Pool: model.NewPoolView(pool)})
		},
	}
	addPoolFlags(cmd)
	cmd.Flags().String("caller", "", "trader address")
	cmd.Flags().String("side", "x_to_y", "direction (x_to_y or y_to_x)")
	cmd.Flags().Uint64("amount-in", 0, "input amount")
	cmd.Flags().Uint64("min-out", 0, "minimum output")
	return cmd
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap without executing it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := poolID(cmd)
			if err != nil {
				return err
			}
			side, err := sideFlag(cmd)
			if err != nil {
				return err
			}
			amountIn, _ := cmd.Flags().GetUint64("amount-in")
			minOut, _ := cmd.Flags().GetUint64("min-out")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			receipt, err := a.svc.Quote(a.ctx, id, side, amountIn, minOut)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
	addPoolFlags(cmd)
	cmd.Flags().String("side", "x_to_y", "direction (x_to_y or y_to_x)")
	cmd.Flags().Uint64("amount-in", 0, "input amount")
	cmd.Flags().Uint64("min-out", 0, "minimum output")
	return cmd
}

func newLockCmd(use string, locked bool) *cobra.Command {
	short := "Lock a pool against all operations"
	if !locked {
		short = "Unlock a pool"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := poolID(cmd)
			if err != nil {
				return err
			}
			caller, err := addressFlag(cmd, "caller")
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			pool, err := a.svc.SetLock(a.ctx, id, caller, locked)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model.NewPoolView(pool))
		},
	}
	addPoolFlags(cmd)
	cmd.Flags().String("caller", "", "pool authority address")
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one pool, or every pool when none is given",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			raw, _ := cmd.Flags().GetString("pool")
			if raw == "" && !cmd.Flags().Changed("seed") {
				pools, err := a.svc.Pools(a.ctx)
				if err != nil {
					return err
				}
				views := make([]model.PoolView, 0, len(pools))
				for _, p := range pools {
					views = append(views, model.NewPoolView(p))
				}
				return printJSON(cmd.OutOrStdout(), views)
			}

			id, err := poolID(cmd)
			if err != nil {
				return err
			}
			pool, err := a.svc.Pool(a.ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model.NewPoolView(pool))
		},
	}
	addPoolFlags(cmd)
	return cmd
}
