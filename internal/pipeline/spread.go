package pipeline

import "math/big"

// BipsDenominator is 100% in basis points.
const BipsDenominator = 10000

var bipsDenominator = big.NewInt(BipsDenominator)

// ApplySpread returns amount × (10000 − bips) / 10000, rounded down so the
// remainder always stays with the maker.
func ApplySpread(amount *big.Int, bips int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(BipsDenominator-bips)))
	return out.Quo(out, bipsDenominator)
}

// gasHaircut is the fallback gas deduction when the cost cannot be priced in
// the output token: one basis point of the quoted amount.
func gasHaircut(amount *big.Int) *big.Int {
	return new(big.Int).Quo(amount, bipsDenominator)
}
