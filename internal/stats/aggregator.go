// Package stats folds the operation journal into per-pool window
// statistics.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"cpamm/internal/journal"
	"cpamm/internal/model"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Sink receives finished windows.
type Sink interface {
	UpsertWindowStats(ctx context.Context, stats []model.PoolWindowStats) error
}

// Summary reports what a run processed.
type Summary struct {
	Total   int
	Windows int
	Skipped int
	Failed  int
}

// Aggregator aggregates journal records into pool window statistics.
type Aggregator struct {
	cfg          Config
	sink         Sink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run aggregates the journal at inputPath.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Summary, error) {
	if a.sink == nil {
		return Summary{}, fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return Summary{}, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return Summary{}, err
	}

	batch := make([]model.PoolWindowStats, 0, a.cfg.BatchSize)
	maxTs := startTs
	var summary Summary

	err = journal.Scan(inputPath, func(record model.OperationRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.Total++
		if record.Timestamp <= startTs {
			summary.Skipped++
			return nil
		}

		if err := checkRecord(record); err != nil {
			summary.Failed++
			a.logger.Warn("aggregate record", zap.Error(err), zap.String("pool", record.PoolID), zap.String("kind", record.Kind))
			return nil
		}

		ws := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		acc := a.accumulators[record.PoolID]
		if acc == nil {
			acc = NewAccumulator(record, ws, ws+a.cfg.WindowSeconds)
			a.accumulators[record.PoolID] = acc
		} else if acc.WindowStart != ws {
			batch = append(batch, a.flushAccumulator(acc))
			summary.Windows++
			acc = NewAccumulator(record, ws, ws+a.cfg.WindowSeconds)
			a.accumulators[record.PoolID] = acc
		}

		if err := acc.AddRecord(record); err != nil {
			summary.Failed++
			a.logger.Warn("aggregate record", zap.Error(err), zap.String("pool", record.PoolID), zap.String("kind", record.Kind))
			return nil
		}
		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.sink.UpsertWindowStats(ctx, batch); err != nil {
				return fmt.Errorf("write window stats: %w", err)
			}
			batch = batch[:0]
			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	}, func(line int, err error) {
		summary.Failed++
		a.logger.Warn("decode journal record", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return summary, err
	}

	ids := make([]string, 0, len(a.accumulators))
	for id := range a.accumulators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		batch = append(batch, a.flushAccumulator(a.accumulators[id]))
		summary.Windows++
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := a.sink.UpsertWindowStats(ctx, batch); err != nil {
			return summary, fmt.Errorf("write window stats: %w", err)
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return summary, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", summary.Total),
		zap.Int("windows", summary.Windows),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the newest timestamp that no open window can still
// need: one before the earliest open window.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) model.PoolWindowStats {
	feeRateX, feeRateY := computeFeeRates(acc.FeeX, acc.FeeY, acc.ReserveX, acc.ReserveY)
	return model.PoolWindowStats{
		PoolID:         acc.PoolID,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		ProvideCount:   acc.ProvideCount,
		WithdrawCount:  acc.WithdrawCount,
		VolumeX:        acc.VolumeX.ToBig().String(),
		VolumeY:        acc.VolumeY.ToBig().String(),
		FeeX:           acc.FeeX.ToBig().String(),
		FeeY:           acc.FeeY.ToBig().String(),
		ReserveX:       acc.ReserveX,
		ReserveY:       acc.ReserveY,
		ShareSupply:    acc.ShareSupply,
		FeeRateX:       feeRateX,
		FeeRateY:       feeRateY,
		APR:            computeAPR(acc.FeeX, acc.FeeY, acc.ReserveX, acc.ReserveY, a.cfg.WindowSeconds),
	}
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
