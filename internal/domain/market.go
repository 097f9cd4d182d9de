package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Pubkey is a 32-byte identity: accounts, claim-token mints, price feeds and
// market escrow addresses all share it. Text form is 0x-prefixed hex.
type Pubkey = common.Hash

// ParsePubkey decodes a 0x-prefixed 64 hex character identity. Unlike
// common.HexToHash it rejects short, long or malformed input.
func ParsePubkey(s string) (Pubkey, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("%w: pubkey %q: %v", ErrInvalidInput, s, err)
	}
	if len(b) != common.HashLength {
		return Pubkey{}, fmt.Errorf("%w: pubkey %q: want %d bytes, got %d", ErrInvalidInput, s, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// MarketStatus represents the lifecycle state of a market. It only moves
// forward: Prepare -> Active -> Resolved.
type MarketStatus uint8

const (
	MarketStatusPrepare MarketStatus = iota
	MarketStatusActive
	MarketStatusResolved
)

var marketStatusNames = [...]string{"prepare", "active", "resolved"}

func (s MarketStatus) String() string {
	if int(s) < len(marketStatusNames) {
		return marketStatusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s MarketStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(marketStatusNames) {
		return nil, fmt.Errorf("domain: unknown market status %d", uint8(s))
	}
	return []byte(marketStatusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MarketStatus) UnmarshalText(text []byte) error {
	for i, name := range marketStatusNames {
		if name == string(text) {
			*s = MarketStatus(i)
			return nil
		}
	}
	return fmt.Errorf("domain: unknown market status %q", string(text))
}

// Valid reports whether s is one of the defined states.
func (s MarketStatus) Valid() bool {
	return s <= MarketStatusResolved
}

// TokenMetadata describes one claim-token mint. It is informational only.
type TokenMetadata struct {
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// MarketRecord is the durable state of one binary market.
//
// TokenA is the YES mint, TokenB the NO mint. TokenAAmount/TokenBAmount are
// the pool reserves whose product drives pricing; TokenPriceA/TokenPriceB are
// the display prices stepped on every bet. Result is only meaningful once
// Status is MarketStatusResolved (true = YES won).
type MarketRecord struct {
	ID             string       `json:"id"`
	Address        Pubkey       `json:"address"`
	Bump           uint8        `json:"bump"`
	Creator        Pubkey       `json:"creator"`
	Value          float64      `json:"value"`
	Range          uint8        `json:"range"`
	Result         bool         `json:"result"`
	Status         MarketStatus `json:"status"`
	ResolutionDate int64        `json:"resolution_date"`

	TokenA       Pubkey `json:"token_a"`
	TokenB       Pubkey `json:"token_b"`
	TokenAAmount uint64 `json:"token_a_amount"`
	TokenBAmount uint64 `json:"token_b_amount"`
	TokenPriceA  uint64 `json:"token_price_a"`
	TokenPriceB  uint64 `json:"token_price_b"`

	YesAmount    uint64 `json:"yes_amount"`
	NoAmount     uint64 `json:"no_amount"`
	TotalReserve uint64 `json:"total_reserve"`

	Feed Pubkey `json:"feed"`

	MetadataA TokenMetadata `json:"metadata_a"`
	MetadataB TokenMetadata `json:"metadata_b"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resolution returns the resolution date as a time.Time.
func (m MarketRecord) Resolution() time.Time {
	return time.Unix(m.ResolutionDate, 0).UTC()
}

// WinningMint returns the mint of the side named by Result.
func (m MarketRecord) WinningMint() Pubkey {
	if m.Result {
		return m.TokenA
	}
	return m.TokenB
}

// WinningReserve returns the pool reserve of the side named by Result. It is
// used as the total outstanding supply of winning tokens during settlement.
func (m MarketRecord) WinningReserve() uint64 {
	if m.Result {
		return m.TokenAAmount
	}
	return m.TokenBAmount
}

// MintFor returns the YES (true) or NO (false) mint.
func (m MarketRecord) MintFor(isYes bool) Pubkey {
	if isYes {
		return m.TokenA
	}
	return m.TokenB
}

// MarketParams configures a market while it is still in Prepare.
type MarketParams struct {
	MarketID    string         `json:"market_id"`
	Value       float64        `json:"value"`
	Range       uint8          `json:"range"`
	TokenAmount uint64         `json:"token_amount"`
	TokenPrice  uint64         `json:"token_price"`
	Date        int64          `json:"date"`
	Feed        Pubkey         `json:"feed"`
	MetadataA   *TokenMetadata `json:"metadata_a,omitempty"`
	MetadataB   *TokenMetadata `json:"metadata_b,omitempty"`
}

// GlobalConfig is the singleton authority configuration. It is read-only to
// the market core and passed explicitly into every authorization check.
type GlobalConfig struct {
	Admin Pubkey
	Bump  uint8
}

// IsAdmin reports whether caller is the designated administrator.
func (g GlobalConfig) IsAdmin(caller Pubkey) bool {
	return g.Admin != (Pubkey{}) && caller == g.Admin
}

// TokenAccount is one holder's balance of one claim-token mint.
type TokenAccount struct {
	Address Pubkey `json:"address"`
	Mint    Pubkey `json:"mint"`
	Owner   Pubkey `json:"owner"`
	Amount  uint64 `json:"amount"`
}

// Account is a read model of an owner's native balance and token holdings.
type Account struct {
	Owner    Pubkey         `json:"owner"`
	Lamports uint64         `json:"lamports"`
	Tokens   []TokenAccount `json:"tokens"`
}
