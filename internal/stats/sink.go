package stats

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"cpamm/internal/model"
)

// JSONSink writes each window as one JSON line.
type JSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

func (s *JSONSink) UpsertWindowStats(ctx context.Context, stats []model.PoolWindowStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	writer := bufio.NewWriter(s.w)
	for _, m := range stats {
		line, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal window stats: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write window stats: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}
	return writer.Flush()
}

// Collector keeps windows in memory, replacing earlier versions of the same
// window.
type Collector struct {
	mu    sync.Mutex
	Stats []model.PoolWindowStats
}

func (c *Collector) UpsertWindowStats(ctx context.Context, stats []model.PoolWindowStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range stats {
		replaced := false
		for i, cur := range c.Stats {
			if cur.PoolID == m.PoolID && cur.WindowSizeSecs == m.WindowSizeSecs && cur.WindowStart.Equal(m.WindowStart) {
				c.Stats[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			c.Stats = append(c.Stats, m)
		}
	}
	return nil
}
