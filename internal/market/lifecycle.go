// Package market holds the pure market rules: lifecycle gates, the
// constant-product pricing step, pro-rata settlement and the binary record
// layout. Nothing here performs I/O; every function takes a MarketRecord
// value and returns the next one or an error.
package market

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// BettingCutoff is how long before the resolution date betting closes.
const BettingCutoff = 48 * time.Hour

// MaxMarketIDLen bounds caller-supplied market ids.
const MaxMarketIDLen = 32

// Mints identifies the two claim-token mints of a market.
type Mints struct {
	Yes domain.Pubkey
	No  domain.Pubkey
}

// ValidateID checks a caller-supplied market id.
func ValidateID(id string) error {
	if id == "" || len(id) > MaxMarketIDLen {
		return fmt.Errorf("%w: market id must be 1..%d bytes, got %d", domain.ErrInvalidMarket, MaxMarketIDLen, len(id))
	}
	return nil
}

// Configure applies params to a market still in Prepare. Reserves are seeded
// symmetrically from TokenAmount and prices from TokenPrice; counters, the
// reserve tracker and the result are reset. Status stays Prepare.
func Configure(m domain.MarketRecord, params domain.MarketParams, creator domain.Pubkey, mints Mints) (domain.MarketRecord, error) {
	if m.Status != domain.MarketStatusPrepare {
		return m, fmt.Errorf("configure %s: %w (status %s)", m.ID, domain.ErrNotPreparing, m.Status)
	}
	if params.TokenAmount == 0 {
		return m, fmt.Errorf("configure %s: %w: token_amount must be positive", m.ID, domain.ErrInvalidFundAmount)
	}

	m.Creator = creator
	m.Value = params.Value
	m.Range = params.Range
	m.ResolutionDate = params.Date
	m.Feed = params.Feed
	m.TokenA = mints.Yes
	m.TokenB = mints.No
	m.TokenAAmount = params.TokenAmount
	m.TokenBAmount = params.TokenAmount
	m.TokenPriceA = params.TokenPrice
	m.TokenPriceB = params.TokenPrice
	m.YesAmount = 0
	m.NoAmount = 0
	m.TotalReserve = 0
	m.Result = false
	if params.MetadataA != nil {
		m.MetadataA = *params.MetadataA
	}
	if params.MetadataB != nil {
		m.MetadataB = *params.MetadataB
	}
	return m, nil
}

// Activate moves a market from Prepare to Active.
func Activate(m domain.MarketRecord) (domain.MarketRecord, error) {
	if m.Status != domain.MarketStatusPrepare {
		return m, fmt.Errorf("activate %s: %w (status %s)", m.ID, domain.ErrNotPreparing, m.Status)
	}
	m.Status = domain.MarketStatusActive
	return m, nil
}

// CheckBet is the acceptance gate run before pricing. The market must be
// Active and now must be strictly earlier than ResolutionDate - cutoff; a bet
// landing exactly on the boundary is rejected.
func CheckBet(m domain.MarketRecord, now time.Time, cutoff time.Duration) error {
	if m.Status != domain.MarketStatusActive {
		return fmt.Errorf("bet %s: %w (status %s)", m.ID, domain.ErrMarketNotActive, m.Status)
	}
	closes := m.Resolution().Add(-cutoff)
	if !now.Before(closes) {
		return fmt.Errorf("bet %s: %w (closed at %s)", m.ID, domain.ErrBettingDeadlineExceeded, closes.Format(time.RFC3339))
	}
	return nil
}

// Resolve records the outcome and marks the market Resolved. Without strict
// the call is accepted from any state and a repeat overwrites the previous
// outcome. With strict the market must be Active.
func Resolve(m domain.MarketRecord, outcome, strict bool) (domain.MarketRecord, error) {
	if strict && m.Status != domain.MarketStatusActive {
		return m, fmt.Errorf("resolve %s: %w (status %s)", m.ID, domain.ErrMarketNotActive, m.Status)
	}
	m.Result = outcome
	m.Status = domain.MarketStatusResolved
	return m, nil
}

// CheckLiquidity gates adding funds: accepted in Prepare and Active, refused
// once the market is Resolved.
func CheckLiquidity(m domain.MarketRecord) error {
	if m.Status == domain.MarketStatusResolved {
		return fmt.Errorf("liquidity %s: %w (status %s)", m.ID, domain.ErrMarketNotActive, m.Status)
	}
	return nil
}
