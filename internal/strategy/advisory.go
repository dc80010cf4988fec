package strategy

import (
	"regexp"
	"strconv"
	"strings"

	"cryptoSignalBot/internal/domain"
)

var confidencePattern = regexp.MustCompile(`(\d+)%`)

// ExtractConfidence returns the first percentage literal in text clipped to [0,100],
// or def when the text contains none.
func ExtractConfidence(text string, def float64) float64 {
	m := confidencePattern.FindStringSubmatch(text)
	if m == nil {
		return def
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return def
	}
	if v > 100 {
		return 100
	}
	return v
}

// ParseKeywordAction scans advisory text for action keywords (English and Vietnamese).
// BUY keywords are checked first.
func ParseKeywordAction(text string) domain.Action {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "BUY") || strings.Contains(upper, "MUA"):
		return domain.ActionBuy
	case strings.Contains(upper, "SELL") || strings.Contains(upper, "BÁN"):
		return domain.ActionSell
	default:
		return domain.ActionHold
	}
}
