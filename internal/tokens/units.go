package tokens

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount into the token's smallest unit,
// truncating anything below one base unit.
func (t Token) ToBaseUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(t.Decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts a base-unit integer into a human amount.
func (t Token) FromBaseUnits(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -t.Decimals)
}

// ParseBaseUnits parses a base-10 base-unit string such as an aggregator's
// "toAmount" field.
func (t Token) ParseBaseUnits(s string) (decimal.Decimal, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid base-unit amount %q", s)
	}
	return t.FromBaseUnits(v), nil
}
