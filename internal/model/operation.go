package model

import (
	"encoding/json"
	"time"
)

// Operation kinds recorded in the journal.
const (
	KindInitialize = "initialize"
	KindProvide    = "provide"
	KindWithdraw   = "withdraw"
	KindSwap       = "swap"
	KindLock       = "lock"
	KindFund       = "fund"
)

// OperationRecord is one committed pool operation together with the pool
// state it produced.
type OperationRecord struct {
	PoolID      string `json:"pool_id"`
	Kind        string `json:"kind"`
	Caller      string `json:"caller"`
	Side        string `json:"side,omitempty"`
	AmountX     uint64 `json:"amount_x"`
	AmountY     uint64 `json:"amount_y"`
	Shares      uint64 `json:"shares"`
	Fee         uint64 `json:"fee"`
	FeeBps      uint16 `json:"fee_bps"`
	ReserveX    uint64 `json:"reserve_x"`
	ReserveY    uint64 `json:"reserve_y"`
	ShareSupply uint64 `json:"share_supply"`
	Locked      bool   `json:"locked"`
	Timestamp   uint64 `json:"timestamp"`
	CommittedAt string `json:"committed_at"`
}

// MarshalJSON ensures OperationRecord is encoded with stable field names.
func (r OperationRecord) MarshalJSON() ([]byte, error) {
	type Alias OperationRecord
	return json.Marshal(Alias(r))
}

// UnmarshalJSON decodes an OperationRecord from JSON.
func (r *OperationRecord) UnmarshalJSON(data []byte) error {
	type Alias OperationRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = OperationRecord(a)
	return nil
}

// Time returns the record timestamp as UTC.
func (r OperationRecord) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC()
}
