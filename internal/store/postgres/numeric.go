package postgres

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Balances and reserves are unsigned 64-bit and live in NUMERIC(20,0)
// columns; decimal carries them across the driver boundary losslessly.

func numeric(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func toUint64(d decimal.Decimal, column string) (uint64, error) {
	if d.IsNegative() || !d.IsInteger() {
		return 0, fmt.Errorf("postgres: %s: %s is not an unsigned integer", column, d.String())
	}
	b := d.BigInt()
	if !b.IsUint64() {
		return 0, fmt.Errorf("postgres: %s: %s overflows uint64", column, d.String())
	}
	return b.Uint64(), nil
}
