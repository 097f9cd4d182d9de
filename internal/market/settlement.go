package market

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// Claim is the computed payout for one claimant.
type Claim struct {
	Share        uint64
	Withdrawable uint64
	TotalWinning uint64
	Balance      uint64
}

// ComputeShare works out a claimant's pro-rata payout from a resolved market.
//
// escrow is the market's native balance and floor the reserve that must stay
// behind. The winning side's pool reserve stands in for total winning supply.
// The product balance*withdrawable is formed in 256 bits before dividing.
func ComputeShare(m domain.MarketRecord, escrow, floor uint64, holding domain.TokenAccount) (Claim, error) {
	if m.Status != domain.MarketStatusResolved {
		return Claim{}, fmt.Errorf("withdraw %s: %w (status %s)", m.ID, domain.ErrMarketNotResolved, m.Status)
	}
	if holding.Mint != m.WinningMint() {
		return Claim{}, fmt.Errorf("withdraw %s: %w: mint %s", m.ID, domain.ErrNotWinningToken, holding.Mint.Hex())
	}
	if holding.Amount == 0 {
		return Claim{}, fmt.Errorf("withdraw %s: %w", m.ID, domain.ErrNoWinningTokens)
	}
	if escrow < floor {
		return Claim{}, fmt.Errorf("withdraw %s: %w: escrow %d below floor %d", m.ID, domain.ErrInsufficientFunds, escrow, floor)
	}
	withdrawable := escrow - floor

	total := m.WinningReserve()
	if total == 0 {
		return Claim{}, fmt.Errorf("withdraw %s: %w: winning reserve is zero", m.ID, domain.ErrArithmetic)
	}

	num := new(uint256.Int).Mul(uint256.NewInt(holding.Amount), uint256.NewInt(withdrawable))
	share := num.Div(num, uint256.NewInt(total))
	if !share.IsUint64() {
		return Claim{}, fmt.Errorf("withdraw %s: %w: share overflows", m.ID, domain.ErrArithmetic)
	}
	if share.IsZero() {
		return Claim{}, fmt.Errorf("withdraw %s: %w: share rounds to zero", m.ID, domain.ErrInsufficientFunds)
	}
	// A balance above the recorded reserve would otherwise dig into the floor.
	if share.Uint64() > withdrawable {
		return Claim{}, fmt.Errorf("withdraw %s: %w: share %d exceeds withdrawable %d", m.ID, domain.ErrInsufficientFunds, share.Uint64(), withdrawable)
	}

	return Claim{
		Share:        share.Uint64(),
		Withdrawable: withdrawable,
		TotalWinning: total,
		Balance:      holding.Amount,
	}, nil
}
