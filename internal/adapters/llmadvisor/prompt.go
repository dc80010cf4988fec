package llmadvisor

import (
	"fmt"
	"strings"

	"cryptoSignalBot/internal/domain"
)

const analysisSystemPrompt = "You are a cryptocurrency market analyst. Analyse the technical data you are given " +
	"and finish with exactly one recommendation word: BUY, SELL or HOLD, followed by your confidence as a percentage " +
	"(for example \"confidence 75%\"). Always remind the reader about the risk of trading."

const chatSystemPrompt = "You are a cryptocurrency trading assistant. Answer briefly and always mention trading risk."

// BuildAnalysisPrompt renders the indicator snapshot as the user prompt.
func BuildAnalysisPrompt(snap domain.IndicatorSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Symbol: %s\n", snap.Symbol)
	fmt.Fprintf(&sb, "Current price: %.2f\n", snap.CurrentPrice)
	fmt.Fprintf(&sb, "Moving average: %.2f (long: %.2f)\n", snap.MA, snap.LongMA)
	fmt.Fprintf(&sb, "RSI: %.2f\n", snap.RSI)
	fmt.Fprintf(&sb, "ATR: %.2f\n", snap.ATR)
	fmt.Fprintf(&sb, "MACD: %.4f signal %.4f histogram %.4f cross %s\n",
		snap.MACDValue, snap.MACDSignalLine, snap.MACDHistogram, snap.MACDCross)
	if len(snap.FibLevels) > 0 {
		fmt.Fprintf(&sb, "Fibonacci range: high %.2f low %.2f\n", snap.FibHigh, snap.FibLow)
		for _, r := range domain.FibRatios {
			if p, ok := snap.FibLevel(r); ok {
				fmt.Fprintf(&sb, "  %.3f: %.2f\n", r, p)
			}
		}
	}
	sb.WriteString("\nDescribe the trend, what RSI and MA suggest about support and resistance, ")
	sb.WriteString("and how volatile the market is according to ATR. Keep it to 3-4 sentences.")
	return sb.String()
}
