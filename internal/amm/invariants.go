package amm

import (
	"cpamm/internal/curve"
)

// CheckInvariants verifies the empty/non-empty coupling of the counters and
// the fee bound of a stored record.
func CheckInvariants(p Pool) error {
	emptyX, emptyY, emptyL := p.ReserveX == 0, p.ReserveY == 0, p.ShareSupply == 0
	if emptyX != emptyY || emptyY != emptyL {
		return ErrCorruptPool.Wrapf("pool %s: reserve_x=%d reserve_y=%d share_supply=%d",
			p.ID.Hex(), p.ReserveX, p.ReserveY, p.ShareSupply)
	}
	if p.FeeBps > curve.BasisPoints {
		return ErrCorruptPool.Wrapf("pool %s: fee %d bps exceeds %d", p.ID.Hex(), p.FeeBps, curve.BasisPoints)
	}
	if p.ShareDecimals != ShareDecimals {
		return ErrCorruptPool.Wrapf("pool %s: share decimals %d", p.ID.Hex(), p.ShareDecimals)
	}
	return nil
}

// CheckSwapProduct verifies that a swap did not decrease x*y.
func CheckSwapProduct(before, after Pool) error {
	k0 := curve.Invariant(before.ReserveX, before.ReserveY)
	k1 := curve.Invariant(after.ReserveX, after.ReserveY)
	if k1.Lt(k0) {
		return ErrCorruptPool.Wrapf("pool %s: product fell from %s to %s", after.ID.Hex(), k0.ToBig(), k1.ToBig())
	}
	return nil
}

// CheckShareValue verifies that a liquidity change did not dilute the
// per-share claim of the remaining holders. Pools that start or end empty
// are skipped.
func CheckShareValue(before, after Pool) error {
	if before.Empty() || after.Empty() {
		return nil
	}
	// new_i * L_old >= old_i * L_new for each reserve.
	if curve.Invariant(after.ReserveX, before.ShareSupply).Lt(curve.Invariant(before.ReserveX, after.ShareSupply)) ||
		curve.Invariant(after.ReserveY, before.ShareSupply).Lt(curve.Invariant(before.ReserveY, after.ShareSupply)) {
		return ErrCorruptPool.Wrapf("pool %s: per-share claim decreased", after.ID.Hex())
	}
	return nil
}
