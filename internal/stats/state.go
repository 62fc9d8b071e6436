package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateStore persists the last processed journal timestamp of one run.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// StateBackend holds named stats cursors. The postgres store implements it
// over amm_stats_state; StateFile implements it over a local JSON file.
type StateBackend interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// CursorName is the cursor a run with the given window size reads and
// advances. Window sizes do not share progress.
func CursorName(windowSeconds uint64) string {
	return fmt.Sprintf("stats:%d", windowSeconds)
}

// Cursor is the StateStore for one named cursor of a backend.
type Cursor struct {
	Backend StateBackend
	Name    string
}

func (c *Cursor) Load(ctx context.Context) (uint64, bool, error) {
	if c == nil || c.Backend == nil {
		return 0, false, nil
	}
	return c.Backend.LoadState(ctx, c.Name)
}

func (c *Cursor) Save(ctx context.Context, ts uint64) error {
	if c == nil || c.Backend == nil {
		return nil
	}
	return c.Backend.SaveState(ctx, c.Name, ts)
}

// StateFile keeps every cursor in one JSON document, rewritten through a
// temporary file on each save.
type StateFile struct {
	Path string
	mu   sync.Mutex
}

type cursorRecord struct {
	LastProcessed uint64 `json:"last_processed_ts"`
	UpdatedAt     string `json:"updated_at"`
}

func (f *StateFile) LoadState(_ context.Context, name string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cursors, err := f.read()
	if err != nil {
		return 0, false, err
	}
	rec, ok := cursors[name]
	return rec.LastProcessed, ok, nil
}

func (f *StateFile) SaveState(_ context.Context, name string, ts uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cursors, err := f.read()
	if err != nil {
		return err
	}
	cursors[name] = cursorRecord{LastProcessed: ts, UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano)}

	data, err := json.MarshalIndent(cursors, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats cursors: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write stats cursors: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish stats cursors: %w", err)
	}
	return nil
}

func (f *StateFile) read() (map[string]cursorRecord, error) {
	cursors := map[string]cursorRecord{}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return cursors, nil
		}
		return nil, fmt.Errorf("read stats cursors: %w", err)
	}
	if err := json.Unmarshal(data, &cursors); err != nil {
		return nil, fmt.Errorf("parse stats cursors %s: %w", f.Path, err)
	}
	return cursors, nil
}
