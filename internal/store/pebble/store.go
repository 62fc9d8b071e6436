// Package pebble stores pool records and balances in a Pebble database.
// Pool records use the borsh layout of internal/codec under pool/<id>; the
// balance sheet is a single borsh-encoded list under ledger.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/near/borsh-go"

	"cpamm/internal/amm"
	"cpamm/internal/codec"
	"cpamm/internal/custody"
	"cpamm/internal/store"
)

var (
	poolPrefix   = []byte("pool/")
	ledgerKey    = []byte("ledger")
	poolIndexKey = []byte("pools")
)

type balanceRecord struct {
	Owner  [20]byte
	Asset  [20]byte
	Amount uint64
}

// Store is a Pebble-backed store. Each Commit is one synced batch.
type Store struct {
	db *pebble.DB
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// NewStore opens (or creates) the database in dir. opts may be nil.
func NewStore(dir string, opts *pebble.Options) (*Store, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) LoadPool(_ context.Context, id common.Hash) (amm.Pool, error) {
	data, err := s.get(poolKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return amm.Pool{}, fmt.Errorf("pool %s: %w", id.Hex(), err)
		}
		return amm.Pool{}, err
	}
	p, err := codec.DecodePool(data)
	if err != nil {
		return amm.Pool{}, fmt.Errorf("load pool %s: %w", id.Hex(), err)
	}
	return p, nil
}

func (s *Store) ListPools(ctx context.Context) ([]amm.Pool, error) {
	ids, err := s.poolIndex()
	if err != nil {
		return nil, err
	}
	pools := make([]amm.Pool, 0, len(ids))
	for _, id := range ids {
		p, err := s.LoadPool(ctx, common.Hash(id))
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

func (s *Store) LoadBalances(_ context.Context) ([]custody.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLedger()
}

func (s *Store) Commit(_ context.Context, pool *amm.Pool, balances []custody.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	if pool != nil {
		data, err := codec.EncodePool(*pool)
		if err != nil {
			return err
		}
		if err := b.Set(poolKey(pool.ID), data, nil); err != nil {
			return fmt.Errorf("stage pool: %w", err)
		}
		ids, err := s.poolIndex()
		if err != nil {
			return err
		}
		if next, added := addID(ids, pool.ID); added {
			encoded, err := borsh.Serialize(next)
			if err != nil {
				return fmt.Errorf("encode pool index: %w", err)
			}
			if err := b.Set(poolIndexKey, encoded, nil); err != nil {
				return fmt.Errorf("stage pool index: %w", err)
			}
		}
	}

	if len(balances) > 0 {
		current, err := s.readLedger()
		if err != nil {
			return err
		}
		merged := store.MergeBalances(current, balances)
		records := make([]balanceRecord, 0, len(merged))
		for _, bal := range merged {
			records = append(records, balanceRecord{Owner: bal.Owner, Asset: bal.Asset, Amount: bal.Amount})
		}
		encoded, err := borsh.Serialize(records)
		if err != nil {
			return fmt.Errorf("encode ledger: %w", err)
		}
		if err := b.Set(ledgerKey, encoded, nil); err != nil {
			return fmt.Errorf("stage ledger: %w", err)
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) readLedger() ([]custody.Balance, error) {
	data, err := s.get(ledgerKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var records []balanceRecord
	if err := borsh.Deserialize(&records, data); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	out := make([]custody.Balance, 0, len(records))
	for _, r := range records {
		out = append(out, custody.Balance{Owner: r.Owner, Asset: r.Asset, Amount: r.Amount})
	}
	return out, nil
}

func (s *Store) poolIndex() ([][32]byte, error) {
	data, err := s.get(poolIndexKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids [][32]byte
	if err := borsh.Deserialize(&ids, data); err != nil {
		return nil, fmt.Errorf("decode pool index: %w", err)
	}
	return ids, nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	defer closer.Close()
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func poolKey(id common.Hash) []byte {
	return append(append([]byte{}, poolPrefix...), id.Bytes()...)
}

func addID(ids [][32]byte, id common.Hash) ([][32]byte, bool) {
	i := sort.Search(len(ids), func(i int) bool {
		return common.Hash(ids[i]).Cmp(id) >= 0
	})
	if i < len(ids) && ids[i] == id {
		return ids, false
	}
	ids = append(ids, [32]byte{})
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids, true
}
