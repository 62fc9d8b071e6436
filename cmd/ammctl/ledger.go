package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"cpamm/internal/amm"
	"cpamm/internal/model"
)

func newFundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Credit an owner with one of a pool's assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := poolID(cmd)
			if err != nil {
				return err
			}
			owner, err := addressFlag(cmd, "owner")
			if err != nil {
				return err
			}
			side, err := sideFlag(cmd)
			if err != nil {
				return err
			}
			amount, _ := cmd.Flags().GetUint64("amount")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			balance, err := a.svc.Fund(a.ctx, id, owner, side, amount)
			if err != nil {
				return err
			}
			pool, err := a.svc.Pool(a.ctx, id)
			if err != nil {
				return err
			}
			asset := pool.AssetX
			if side == amm.YToX {
				asset = pool.AssetY
			}
			return printJSON(cmd.OutOrStdout(), model.BalanceView{Owner: owner.Hex(), Asset: asset.Hex(), Amount: balance})
		},
	}
	addPoolFlags(cmd)
	cmd.Flags().String("owner", "", "address to credit")
	cmd.Flags().String("side", "x", "asset to credit (x or y)")
	cmd.Flags().Uint64("amount", 0, "amount to credit")
	return cmd
}

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print an owner's balances",
		Long:  "Print the owner's balance of --asset, or of a pool's two assets and its share token.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := addressFlag(cmd, "owner")
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var assets []common.Address
			if raw, _ := cmd.Flags().GetString("asset"); raw != "" {
				asset, err := addressFlag(cmd, "asset")
				if err != nil {
					return err
				}
				assets = append(assets, asset)
			} else {
				id, err := poolID(cmd)
				if err != nil {
					return fmt.Errorf("--asset or a pool is required: %w", err)
				}
				pool, err := a.svc.Pool(a.ctx, id)
				if err != nil {
					return err
				}
				assets = append(assets, pool.AssetX, pool.AssetY, pool.ShareMint())
			}

			views := make([]model.BalanceView, 0, len(assets))
			for _, asset := range assets {
				views = append(views, model.BalanceView{
					Owner:  owner.Hex(),
					Asset:  asset.Hex(),
					Amount: a.svc.Balance(owner, asset),
				})
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}
	addPoolFlags(cmd)
	cmd.Flags().String("owner", "", "balance owner")
	cmd.Flags().String("asset", "", "asset address")
	return cmd
}
