package analysis

import (
	"math"
	"math/big"
)

// PctPrecision is the fixed number of fractional digits kept by ratio math.
const PctPrecision = 4

// RatioPct computes num/den as a percentage with PctPrecision fractional
// digits using integer arithmetic: (num * 100 * 10^p) / den. The float
// conversion happens after the integer division, so the result is exact to
// the fixed precision even for 10^36-scale inputs. Returns false when den
// is zero or either operand is nil or negative.
func RatioPct(num, den *big.Int) (float64, bool) {
	if num == nil || den == nil || den.Sign() == 0 {
		return 0, false
	}
	if num.Sign() < 0 || den.Sign() < 0 {
		return 0, false
	}

	mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(PctPrecision), nil)
	mul.Mul(mul, big.NewInt(100))

	scaled := new(big.Int).Mul(num, mul)
	scaled.Div(scaled, den)

	f, _ := new(big.Float).SetInt(scaled).Float64()
	return f / math.Pow10(PctPrecision), true
}
