package model

import "time"

// PoolWindowStats stores aggregated activity for one pool over one window.
// Amounts are base units; rates are decimals with RatioScale digits.
type PoolWindowStats struct {
	PoolID         string    `json:"pool_id"`
	WindowSizeSecs int64     `json:"window_size_seconds"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	SwapCount      uint64    `json:"swap_count"`
	ProvideCount   uint64    `json:"provide_count"`
	WithdrawCount  uint64    `json:"withdraw_count"`
	VolumeX        string    `json:"volume_x"`
	VolumeY        string    `json:"volume_y"`
	FeeX           string    `json:"fee_x"`
	FeeY           string    `json:"fee_y"`
	ReserveX       uint64    `json:"reserve_x"`
	ReserveY       uint64    `json:"reserve_y"`
	ShareSupply    uint64    `json:"share_supply"`
	FeeRateX       *string   `json:"fee_rate_x,omitempty"`
	FeeRateY       *string   `json:"fee_rate_y,omitempty"`
	APR            *string   `json:"apr,omitempty"`
}
