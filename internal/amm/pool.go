// Package amm holds the constant-product pool record, plans state
// transitions against it, and enacts them through a Custodian.
package amm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"cpamm/internal/curve"
)

// ShareDecimals is the implied precision of every pool's share token.
const ShareDecimals uint8 = 6

const (
	poolSeedPrefix  = "config"
	shareMintPrefix = "lp"
	vaultPrefix     = "vault"
)

// Side names the direction of a swap.
type Side uint8

const (
	// XToY deposits asset X and withdraws asset Y.
	XToY Side = iota
	// YToX deposits asset Y and withdraws asset X.
	YToX
)

func (s Side) String() string {
	switch s {
	case XToY:
		return "x_to_y"
	case YToX:
		return "y_to_x"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != XToY && s != YToX {
		return nil, fmt.Errorf("invalid side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSide accepts "x_to_y"/"y_to_x" and the short forms "x"/"y", naming
// the asset that is deposited.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "x_to_y", "x2y", "x":
		return XToY, nil
	case "y_to_x", "y2x", "y":
		return YToX, nil
	default:
		return 0, fmt.Errorf("unknown swap side %q", raw)
	}
}

func (s Side) pair() curve.Pair {
	if s == YToX {
		return curve.PairY
	}
	return curve.PairX
}

// Pool is the persistent record of one trading pair.
type Pool struct {
	ID            common.Hash     `json:"id"`
	AssetX        common.Address  `json:"asset_x"`
	AssetY        common.Address  `json:"asset_y"`
	ReserveX      uint64          `json:"reserve_x"`
	ReserveY      uint64          `json:"reserve_y"`
	ShareSupply   uint64          `json:"share_supply"`
	FeeBps        uint16          `json:"fee_bps"`
	ShareDecimals uint8           `json:"share_decimals"`
	Authority     *common.Address `json:"authority,omitempty"`
	Locked        bool            `json:"locked"`
}

// DerivePoolID returns keccak256("config" || seed) with the seed encoded
// little-endian.
func DerivePoolID(seed uint64) common.Hash {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], seed)
	return crypto.Keccak256Hash([]byte(poolSeedPrefix), le[:])
}

// Initialize returns the empty pool for the given pair. The assets must be
// distinct and supplied in ascending order.
func Initialize(id common.Hash, assetX, assetY common.Address, feeBps uint16, authority *common.Address) (Pool, error) {
	switch cmp := bytes.Compare(assetX.Bytes(), assetY.Bytes()); {
	case cmp == 0:
		return Pool{}, ErrInvalidPoolConfig.Wrapf("asset x and asset y are both %s", assetX.Hex())
	case cmp > 0:
		return Pool{}, ErrInvalidPoolConfig.Wrapf("asset x %s must sort before asset y %s", assetX.Hex(), assetY.Hex())
	}
	if feeBps > curve.BasisPoints {
		return Pool{}, ErrInvalidPoolConfig.Wrapf("fee %d bps exceeds %d", feeBps, curve.BasisPoints)
	}
	var auth *common.Address
	if authority != nil {
		a := *authority
		auth = &a
	}
	return Pool{
		ID:            id,
		AssetX:        assetX,
		AssetY:        assetY,
		FeeBps:        feeBps,
		ShareDecimals: ShareDecimals,
		Authority:     auth,
	}, nil
}

// ShareMint is the asset identifier of the pool's share token.
func (p Pool) ShareMint() common.Address {
	return deriveAccount(shareMintPrefix, p.ID)
}

// Vault is the pool-owned account that holds both reserves.
func (p Pool) Vault() common.Address {
	return deriveAccount(vaultPrefix, p.ID)
}

// Empty reports whether the pool holds no liquidity.
func (p Pool) Empty() bool {
	return p.ShareSupply == 0
}

// Clone returns a deep copy of p.
func (p Pool) Clone() Pool {
	out := p
	if p.Authority != nil {
		a := *p.Authority
		out.Authority = &a
	}
	return out
}

// Equal reports whether two records are field-for-field identical.
func (p Pool) Equal(o Pool) bool {
	if (p.Authority == nil) != (o.Authority == nil) {
		return false
	}
	if p.Authority != nil && *p.Authority != *o.Authority {
		return false
	}
	a, b := p, o
	a.Authority, b.Authority = nil, nil
	return a == b
}

func (p Pool) assetIn(side Side) (in, out common.Address) {
	if side == YToX {
		return p.AssetY, p.AssetX
	}
	return p.AssetX, p.AssetY
}

func deriveAccount(prefix string, id common.Hash) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(prefix), id.Bytes()))
}
