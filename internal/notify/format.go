package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// FormatTrade renders a trade as an alert title and body.
func FormatTrade(t domain.TradeRecord) (string, string) {
	mode := "LIVE"
	if t.Simulated {
		mode = "PAPER"
	}

	var title string
	switch t.Kind {
	case domain.TradeKindBuy:
		title = fmt.Sprintf("[%s] Opened %s", mode, t.Instrument)
	case domain.TradeKindTier1, domain.TradeKindTier2:
		title = fmt.Sprintf("[%s] Take profit %s", mode, t.Instrument)
	default:
		if t.IsWin() {
			title = fmt.Sprintf("[%s] Closed %s in profit", mode, t.Instrument)
		} else {
			title = fmt.Sprintf("[%s] Closed %s at a loss", mode, t.Instrument)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s @ $%s\n", t.Kind, t.Quantity.String(), t.Price.String())
	fmt.Fprintf(&b, "Value: $%s", t.Value.StringFixed(2))
	if t.PnLUSD != nil {
		fmt.Fprintf(&b, "\nPnL: $%s", t.PnLUSD.StringFixed(2))
		if t.PnLPct != nil {
			fmt.Fprintf(&b, " (%s%%)", t.PnLPct.StringFixed(2))
		}
	}
	if t.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", t.Reason)
	}
	if t.OrderID != "" {
		fmt.Fprintf(&b, "\nOrder: %s", t.OrderID)
	}
	return title, b.String()
}
