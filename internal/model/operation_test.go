package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestOperationRecordJSONRoundTrip(t *testing.T) {
	original := OperationRecord{
		PoolID:      "0x7c5ea36004851c764c44143b1dcb59679b11c9a68e5f41497f6cf3d480715331",
		Kind:        KindSwap,
		Caller:      "0x1111111111111111111111111111111111111111",
		Side:        "x_to_y",
		AmountX:     10_000,
		AmountY:     39_486,
		Fee:         30,
		FeeBps:      30,
		ReserveX:    1_010_000,
		ReserveY:    3_960_514,
		ShareSupply: 2_000_000,
		Timestamp:   1700000000,
		CommittedAt: "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded OperationRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestOperationRecordOmitsEmptySide(t *testing.T) {
	b, err := json.Marshal(OperationRecord{Kind: KindProvide})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := raw["side"]; ok {
		t.Fatalf("side should be omitted: %s", b)
	}
}
