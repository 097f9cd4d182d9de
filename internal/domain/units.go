package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// SOL converts a lamport amount to an exact decimal SOL value.
func SOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// FormatSOL renders lamports as a SOL amount, e.g. "0.0025 SOL".
func FormatSOL(lamports uint64) string {
	return SOL(lamports).String() + " SOL"
}
