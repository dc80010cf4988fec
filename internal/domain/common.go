package domain

import "strings"

// Action is the trade direction recommended for a cycle.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// IsDirectional reports whether the action leads to an order.
func (a Action) IsDirectional() bool {
	return a == ActionBuy || a == ActionSell
}

// ParseAction converts a string into an Action. Unknown values map to HOLD.
func ParseAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return ActionBuy
	case "SELL":
		return ActionSell
	default:
		return ActionHold
	}
}

// Trend is the direction derived from short vs long moving average.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// MACDCross is the crossover state between MACD and its signal line on the latest candle.
type MACDCross string

const (
	CrossNone    MACDCross = "none"
	CrossBullish MACDCross = "bullish"
	CrossBearish MACDCross = "bearish"
)
