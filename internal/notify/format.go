package notify

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// FormatEvent renders a market event as a notification title and body.
func FormatEvent(ev domain.Event) (title, message string, err error) {
	switch ev.Kind {
	case domain.EventMarketConfigured:
		var p domain.ConfiguredEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", decodeErr(ev, err)
		}
		return "Market configured: " + ev.MarketID,
			fmt.Sprintf("Creator %s\nPool %d tokens per side at %d\nResolves %s",
				short(p.Creator), p.TokenAmount, p.TokenPrice, resolutionTime(p.ResolutionDate)), nil

	case domain.EventMarketActivated:
		return "Market active: " + ev.MarketID, "Betting is open.", nil

	case domain.EventBetPlaced:
		var p domain.BetEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", decodeErr(ev, err)
		}
		return "Bet on " + ev.MarketID,
			fmt.Sprintf("%s bought %d %s for %s\nPrices YES %d / NO %d",
				short(p.User), p.Amount, side(p.IsYes), domain.FormatSOL(p.Stake), p.TokenPriceA, p.TokenPriceB), nil

	case domain.EventLiquidityAdded:
		var p domain.LiquidityEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", decodeErr(ev, err)
		}
		return "Liquidity added: " + ev.MarketID,
			fmt.Sprintf("%s added %s", short(p.Provider), domain.FormatSOL(p.Lamports)), nil

	case domain.EventMarketResolved:
		var p domain.ResolutionEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", decodeErr(ev, err)
		}
		return "Market resolved: " + ev.MarketID,
			fmt.Sprintf("Outcome %s, set by %s", side(p.Outcome), short(p.Admin)), nil

	case domain.EventWithdrawal:
		var p domain.WithdrawEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", decodeErr(ev, err)
		}
		return "Payout on " + ev.MarketID,
			fmt.Sprintf("%s claimed %s for %d winning tokens",
				short(p.User), domain.FormatSOL(p.Amount), p.TokenBalance), nil
	}
	return "", "", fmt.Errorf("notify: unknown event kind %q", ev.Kind)
}

func decodeErr(ev domain.Event, err error) error {
	return fmt.Errorf("notify: decode %s payload: %w", ev.Kind, err)
}

func side(isYes bool) string {
	if isYes {
		return "YES"
	}
	return "NO"
}

// short abbreviates a pubkey to 0x1234…abcd for chat output.
func short(p domain.Pubkey) string {
	s := p.Hex()
	return s[:6] + "…" + s[len(s)-4:]
}

func resolutionTime(unix int64) string {
	return domain.MarketRecord{ResolutionDate: unix}.Resolution().Format("2006-01-02 15:04 UTC")
}
