package stats

import (
	"math/big"

	"github.com/holiman/uint256"

	"cpamm/internal/model"
)

func computeFeeRates(feeX, feeY *uint256.Int, reserveX, reserveY uint64) (*string, *string) {
	var feeRateX *string
	var feeRateY *string

	if rate := model.Rate(feeX.ToBig(), new(big.Int).SetUint64(reserveX)); rate != "" {
		feeRateX = &rate
	}
	if rate := model.Rate(feeY.ToBig(), new(big.Int).SetUint64(reserveY)); rate != "" {
		feeRateY = &rate
	}
	return feeRateX, feeRateY
}

// computeAPR values both fee sides in X at the closing price and divides by
// the pool value in X, which is twice the X reserve on a constant-product
// curve.
func computeAPR(feeX, feeY *uint256.Int, reserveX, reserveY, windowSeconds uint64) *string {
	if windowSeconds == 0 || reserveX == 0 || reserveY == 0 {
		return nil
	}
	if feeX.IsZero() && feeY.IsZero() {
		return nil
	}
	rx := new(big.Int).SetUint64(reserveX)
	ry := new(big.Int).SetUint64(reserveY)

	value := new(big.Rat).SetInt(feeX.ToBig())
	value.Add(value, new(big.Rat).SetFrac(new(big.Int).Mul(feeY.ToBig(), rx), ry))
	tvl := new(big.Rat).SetInt(new(big.Int).Lsh(rx, 1))
	rate := new(big.Rat).Quo(value, tvl).FloatString(model.RatioScale)

	apr := model.Annualize(rate, windowSeconds)
	if apr == "" {
		return nil
	}
	return &apr
}
