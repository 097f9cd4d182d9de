// Package crypto derives the deterministic addresses used by the market core:
// market escrow accounts, claim-token mints and associated token accounts.
// Every address is keccak256 over a program namespace and its seeds, so any
// node can recompute it from public inputs.
package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

const (
	// MarketSeed prefixes market escrow addresses.
	MarketSeed = "market"
	// GlobalSeed prefixes the singleton configuration address.
	GlobalSeed = "global"
	// MintSeed prefixes claim-token mint addresses.
	MintSeed = "mint"
	// TokenAccountSeed prefixes associated token account addresses.
	TokenAccountSeed = "token-account"

	// CanonicalBump is the bump stored on every derived record.
	CanonicalBump uint8 = 255

	// MaxSeedLen is the longest single seed accepted (market ids included).
	MaxSeedLen = 32
)

// programID namespaces every derived address.
var programID = ethcrypto.Keccak256([]byte("binarymarket.prediction.v1"))

// DeriveAddress hashes the program namespace, every seed and the bump.
func DeriveAddress(bump uint8, seeds ...[]byte) domain.Pubkey {
	parts := make([][]byte, 0, len(seeds)+2)
	parts = append(parts, programID)
	parts = append(parts, seeds...)
	parts = append(parts, []byte{bump})
	return ethcrypto.Keccak256Hash(parts...)
}

// MarketAddress returns the escrow address and bump for a market id.
func MarketAddress(marketID string) (domain.Pubkey, uint8) {
	return DeriveAddress(CanonicalBump, []byte(MarketSeed), []byte(marketID)), CanonicalBump
}

// GlobalAddress returns the address of the singleton configuration record.
func GlobalAddress(bump uint8) domain.Pubkey {
	return DeriveAddress(bump, []byte(GlobalSeed))
}

// MintAddress returns the YES (isYes) or NO mint of a market.
func MintAddress(market domain.Pubkey, isYes bool) domain.Pubkey {
	side := []byte("no")
	if isYes {
		side = []byte("yes")
	}
	return DeriveAddress(CanonicalBump, []byte(MintSeed), market.Bytes(), side)
}

// TokenAccountAddress returns the associated token account of owner for mint.
func TokenAccountAddress(mint, owner domain.Pubkey) domain.Pubkey {
	return DeriveAddress(CanonicalBump, []byte(TokenAccountSeed), mint.Bytes(), owner.Bytes())
}

// PubkeyFromString hashes an arbitrary label into an identity. Used for
// human-friendly fixtures and CLI flags; it is not an address derivation.
func PubkeyFromString(label string) domain.Pubkey {
	return common.BytesToHash(ethcrypto.Keccak256([]byte(label)))
}
