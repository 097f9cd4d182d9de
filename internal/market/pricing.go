package market

import (
	"fmt"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// Price steps applied after every bet, in percent.
const (
	BoughtPriceStep = 110
	OtherPriceStep  = 95
)

// Quote is the outcome of one pricing step.
type Quote struct {
	// Stake is amount times the bought side's price before the step.
	Stake uint64
	// PriceBefore is the bought side's price before the step.
	PriceBefore uint64
}

// ApplyBet runs the constant-product step for buying amount units of the
// YES (isYes) or NO side. The bought reserve shrinks by amount and the other
// reserve is back-solved as k / new reserve; prices then step by
// BoughtPriceStep and OtherPriceStep percent with truncating division.
// On any error the input record is returned unchanged.
func ApplyBet(m domain.MarketRecord, amount uint64, isYes bool) (domain.MarketRecord, Quote, error) {
	k, err := checkedMul(m.TokenAAmount, m.TokenBAmount)
	if err != nil {
		return m, Quote{}, fmt.Errorf("price %s: k: %w", m.ID, err)
	}

	bought := m.TokenAAmount
	boughtPrice, otherPrice := m.TokenPriceA, m.TokenPriceB
	if !isYes {
		bought = m.TokenBAmount
		boughtPrice, otherPrice = otherPrice, boughtPrice
	}

	// Reserves never reach zero: amount must be strictly below the reserve.
	if amount >= bought {
		return m, Quote{}, fmt.Errorf("price %s: %w: amount %d exhausts reserve %d", m.ID, domain.ErrArithmetic, amount, bought)
	}
	newBought, err := checkedSub(bought, amount)
	if err != nil {
		return m, Quote{}, fmt.Errorf("price %s: %w", m.ID, err)
	}
	newOther, err := checkedDiv(k, newBought)
	if err != nil {
		return m, Quote{}, fmt.Errorf("price %s: %w", m.ID, err)
	}
	newBoughtPrice, err := scale(boughtPrice, BoughtPriceStep, 100)
	if err != nil {
		return m, Quote{}, fmt.Errorf("price %s: %w", m.ID, err)
	}
	newOtherPrice, err := scale(otherPrice, OtherPriceStep, 100)
	if err != nil {
		return m, Quote{}, fmt.Errorf("price %s: %w", m.ID, err)
	}
	stake, err := checkedMul(amount, boughtPrice)
	if err != nil {
		return m, Quote{}, fmt.Errorf("price %s: stake: %w", m.ID, err)
	}

	if isYes {
		m.TokenAAmount, m.TokenBAmount = newBought, newOther
		m.TokenPriceA, m.TokenPriceB = newBoughtPrice, newOtherPrice
	} else {
		m.TokenBAmount, m.TokenAAmount = newBought, newOther
		m.TokenPriceB, m.TokenPriceA = newBoughtPrice, newOtherPrice
	}
	return m, Quote{Stake: stake, PriceBefore: boughtPrice}, nil
}

// RecordBet bumps the per-side bet counter and adds stake to TotalReserve.
func RecordBet(m domain.MarketRecord, isYes bool, stake uint64) (domain.MarketRecord, error) {
	var err error
	if isYes {
		m.YesAmount, err = checkedAdd(m.YesAmount, 1)
	} else {
		m.NoAmount, err = checkedAdd(m.NoAmount, 1)
	}
	if err != nil {
		return m, fmt.Errorf("bet %s: counter: %w", m.ID, err)
	}
	if m.TotalReserve, err = checkedAdd(m.TotalReserve, stake); err != nil {
		return m, fmt.Errorf("bet %s: total reserve: %w", m.ID, err)
	}
	return m, nil
}

// AddReserve adds lamports to TotalReserve.
func AddReserve(m domain.MarketRecord, lamports uint64) (domain.MarketRecord, error) {
	var err error
	if m.TotalReserve, err = checkedAdd(m.TotalReserve, lamports); err != nil {
		return m, fmt.Errorf("liquidity %s: %w", m.ID, err)
	}
	return m, nil
}
