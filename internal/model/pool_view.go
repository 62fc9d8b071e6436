package model

import (
	"math/big"

	"cpamm/internal/amm"
)

// PoolView is the JSON rendering of a pool record for display.
type PoolView struct {
	ID            string  `json:"id"`
	AssetX        string  `json:"asset_x"`
	AssetY        string  `json:"asset_y"`
	ShareMint     string  `json:"share_mint"`
	Vault         string  `json:"vault"`
	ReserveX      uint64  `json:"reserve_x"`
	ReserveY      uint64  `json:"reserve_y"`
	ShareSupply   uint64  `json:"share_supply"`
	ShareDisplay  string  `json:"share_supply_display"`
	FeeBps        uint16  `json:"fee_bps"`
	ShareDecimals uint8   `json:"share_decimals"`
	Authority     *string `json:"authority,omitempty"`
	Locked        bool    `json:"locked"`
	Price         *string `json:"price_y_per_x,omitempty"`
}

// NewPoolView renders p. The price is omitted for an empty pool.
func NewPoolView(p amm.Pool) PoolView {
	v := PoolView{
		ID:            p.ID.Hex(),
		AssetX:        p.AssetX.Hex(),
		AssetY:        p.AssetY.Hex(),
		ShareMint:     p.ShareMint().Hex(),
		Vault:         p.Vault().Hex(),
		ReserveX:      p.ReserveX,
		ReserveY:      p.ReserveY,
		ShareSupply:   p.ShareSupply,
		ShareDisplay:  FormatAmount(new(big.Int).SetUint64(p.ShareSupply), p.ShareDecimals),
		FeeBps:        p.FeeBps,
		ShareDecimals: p.ShareDecimals,
		Locked:        p.Locked,
	}
	if p.Authority != nil {
		a := p.Authority.Hex()
		v.Authority = &a
	}
	if p.ReserveX > 0 {
		price := new(big.Rat).SetFrac(new(big.Int).SetUint64(p.ReserveY), new(big.Int).SetUint64(p.ReserveX)).FloatString(RatioScale)
		v.Price = &price
	}
	return v
}

// BalanceView is the JSON rendering of one ledger balance.
type BalanceView struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}
