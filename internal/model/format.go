package model

import (
	"math/big"
	"time"
)

// RatioScale is the number of decimal places used for rates and prices.
const RatioScale = 18

// FormatAmount renders value as a decimal with the given precision.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// Rate returns num/den with RatioScale digits, or "" when either side is zero.
func Rate(num, den *big.Int) string {
	if num == nil || num.Sign() == 0 || den == nil || den.Sign() == 0 {
		return ""
	}
	return new(big.Rat).SetFrac(num, den).FloatString(RatioScale)
}

// Annualize scales a per-window rate to a year.
func Annualize(rate string, windowSeconds uint64) string {
	if rate == "" || windowSeconds == 0 {
		return ""
	}
	rat, ok := new(big.Rat).SetString(rate)
	if !ok {
		return ""
	}
	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds), 1)
	apr := new(big.Rat).Mul(rat, yearSeconds)
	apr.Quo(apr, window)
	return apr.FloatString(RatioScale)
}
