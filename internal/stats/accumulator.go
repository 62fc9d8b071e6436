package stats

import (
	"fmt"

	"github.com/holiman/uint256"

	"cpamm/internal/amm"
	"cpamm/internal/model"
)

// Accumulator holds aggregate values for one pool window.
type Accumulator struct {
	PoolID        string
	WindowStart   uint64
	WindowEnd     uint64
	SwapCount     uint64
	ProvideCount  uint64
	WithdrawCount uint64
	VolumeX       *uint256.Int
	VolumeY       *uint256.Int
	FeeX          *uint256.Int
	FeeY          *uint256.Int
	ReserveX      uint64
	ReserveY      uint64
	ShareSupply   uint64
	LastTS        uint64
}

func NewAccumulator(record model.OperationRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolID:      record.PoolID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeX:     new(uint256.Int),
		VolumeY:     new(uint256.Int),
		FeeX:        new(uint256.Int),
		FeeY:        new(uint256.Int),
		ReserveX:    record.ReserveX,
		ReserveY:    record.ReserveY,
		ShareSupply: record.ShareSupply,
		LastTS:      record.Timestamp,
	}
}

// AddRecord folds one journal record into the window. The closing reserves
// follow the latest record seen.
func (a *Accumulator) AddRecord(record model.OperationRecord) error {
	if err := checkRecord(record); err != nil {
		return err
	}
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.ReserveX = record.ReserveX
		a.ReserveY = record.ReserveY
		a.ShareSupply = record.ShareSupply
	}

	switch record.Kind {
	case model.KindSwap:
		return a.applySwap(record)
	case model.KindProvide:
		a.ProvideCount++
	case model.KindWithdraw:
		a.WithdrawCount++
	}
	return nil
}

// checkRecord rejects records that cannot be folded, before any field of a
// window is touched.
func checkRecord(record model.OperationRecord) error {
	if record.Kind != model.KindSwap {
		return nil
	}
	if _, err := amm.ParseSide(record.Side); err != nil {
		return fmt.Errorf("decode swap: %w", err)
	}
	return nil
}

func (a *Accumulator) applySwap(record model.OperationRecord) error {
	side, err := amm.ParseSide(record.Side)
	if err != nil {
		return fmt.Errorf("decode swap: %w", err)
	}
	a.VolumeX.AddUint64(a.VolumeX, record.AmountX)
	a.VolumeY.AddUint64(a.VolumeY, record.AmountY)
	if side == amm.XToY {
		a.FeeX.AddUint64(a.FeeX, record.Fee)
	} else {
		a.FeeY.AddUint64(a.FeeY, record.Fee)
	}
	a.SwapCount++
	return nil
}
