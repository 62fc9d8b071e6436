// Package codec encodes the pool record in borsh: little-endian integers in
// fixed field order with no version prefix.
package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/near/borsh-go"

	"cpamm/internal/amm"
)

const (
	// PoolSize is the encoded length of a record without an authority.
	PoolSize = 32 + 20 + 20 + 8 + 8 + 8 + 2 + 1 + 1 + 1
	// PoolSizeWithAuthority is the encoded length of a record with one.
	PoolSizeWithAuthority = PoolSize + 20
)

type poolRecord struct {
	ID            [32]byte
	AssetX        [20]byte
	AssetY        [20]byte
	ReserveX      uint64
	ReserveY      uint64
	ShareSupply   uint64
	FeeBps        uint16
	ShareDecimals uint8
	Authority     *[20]byte
	Locked        bool
}

// EncodePool serializes p.
func EncodePool(p amm.Pool) ([]byte, error) {
	rec := poolRecord{
		ID:            p.ID,
		AssetX:        p.AssetX,
		AssetY:        p.AssetY,
		ReserveX:      p.ReserveX,
		ReserveY:      p.ReserveY,
		ShareSupply:   p.ShareSupply,
		FeeBps:        p.FeeBps,
		ShareDecimals: p.ShareDecimals,
		Locked:        p.Locked,
	}
	if p.Authority != nil {
		a := [20]byte(*p.Authority)
		rec.Authority = &a
	}
	data, err := borsh.Serialize(rec)
	if err != nil {
		return nil, fmt.Errorf("encode pool %s: %w", p.ID.Hex(), err)
	}
	return data, nil
}

// DecodePool parses a record produced by EncodePool. Input with trailing
// bytes or counters that violate the pool invariants is rejected.
func DecodePool(data []byte) (amm.Pool, error) {
	if len(data) != PoolSize && len(data) != PoolSizeWithAuthority {
		return amm.Pool{}, fmt.Errorf("decode pool: unexpected length %d", len(data))
	}
	var rec poolRecord
	if err := borsh.Deserialize(&rec, data); err != nil {
		return amm.Pool{}, fmt.Errorf("decode pool: %w", err)
	}
	want := PoolSize
	if rec.Authority != nil {
		want = PoolSizeWithAuthority
	}
	if len(data) != want {
		return amm.Pool{}, fmt.Errorf("decode pool: %d trailing bytes", len(data)-want)
	}

	p := amm.Pool{
		ID:            common.Hash(rec.ID),
		AssetX:        common.Address(rec.AssetX),
		AssetY:        common.Address(rec.AssetY),
		ReserveX:      rec.ReserveX,
		ReserveY:      rec.ReserveY,
		ShareSupply:   rec.ShareSupply,
		FeeBps:        rec.FeeBps,
		ShareDecimals: rec.ShareDecimals,
		Locked:        rec.Locked,
	}
	if rec.Authority != nil {
		a := common.Address(*rec.Authority)
		p.Authority = &a
	}
	if err := amm.CheckInvariants(p); err != nil {
		return amm.Pool{}, fmt.Errorf("decode pool: %w", err)
	}
	return p, nil
}
