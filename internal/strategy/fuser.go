package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Precedence decides how the numeric fusion and the advisory keyword channel are reconciled.
type Precedence string

const (
	// PrecedenceIndicators keeps the indicator fusion authoritative; the advisory only supplies confidence and rationale.
	PrecedenceIndicators Precedence = "indicators"
	// PrecedenceAdvisory lets the advisory keyword decide the action when an advisory is present.
	PrecedenceAdvisory Precedence = "advisory"
	// PrecedenceConsensus requires both channels to agree, otherwise HOLD.
	PrecedenceConsensus Precedence = "consensus"
)

// ParsePrecedence validates a precedence string.
func ParsePrecedence(s string) (Precedence, error) {
	switch p := Precedence(strings.ToLower(strings.TrimSpace(s))); p {
	case PrecedenceIndicators, PrecedenceAdvisory, PrecedenceConsensus:
		return p, nil
	default:
		return "", fmt.Errorf("unknown signal precedence %q: %w", s, ports.ErrInvalidInput)
	}
}

// Config holds parameters for signal fusion.
type Config struct {
	FibTolerance        float64    // relative distance to a level that counts as a hit, e.g. 0.005
	FibHitRatios        []float64  // levels checked for a hit, in order
	StopRatio           float64    // fib level used as the suggested stop
	FallbackStopPercent float64    // stop distance in percent when the stop level is missing
	DefaultConfidence   float64    // used when no advisory percentage is available
	Precedence          Precedence // reconciliation of the two channels
}

// DefaultConfig returns the standard fusion parameters.
func DefaultConfig() Config {
	return Config{
		FibTolerance:        0.005,
		FibHitRatios:        []float64{0.382, 0.5, 0.618},
		StopRatio:           0.618,
		FallbackStopPercent: 2.0,
		DefaultConfidence:   70,
		Precedence:          PrecedenceIndicators,
	}
}

// Fuser combines an indicator snapshot and an optional advisory into a Recommendation.
type Fuser struct {
	cfg    Config
	logger ports.Logger
}

// New creates a new Fuser instance.
func New(cfg Config, logger ports.Logger) (*Fuser, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for signal fuser")
	}
	if cfg.FibTolerance <= 0 {
		return nil, fmt.Errorf("fib tolerance must be positive")
	}
	if len(cfg.FibHitRatios) == 0 {
		return nil, fmt.Errorf("at least one fib hit ratio is required")
	}
	if cfg.DefaultConfidence < 0 || cfg.DefaultConfidence > 100 {
		return nil, fmt.Errorf("default confidence must be within [0,100]")
	}
	if cfg.FallbackStopPercent <= 0 {
		return nil, fmt.Errorf("fallback stop percent must be positive")
	}
	if cfg.Precedence == "" {
		cfg.Precedence = PrecedenceIndicators
	}
	if _, err := ParsePrecedence(string(cfg.Precedence)); err != nil {
		return nil, err
	}
	return &Fuser{cfg: cfg, logger: logger}, nil
}

// DetermineTrend compares the short and long moving averages.
func DetermineTrend(shortMA, longMA float64) domain.Trend {
	switch {
	case shortMA > longMA:
		return domain.TrendUp
	case shortMA < longMA:
		return domain.TrendDown
	default:
		return domain.TrendFlat
	}
}

// PriceNearLevel reports whether price is within tol (fraction of the level) of level.
func PriceNearLevel(price, level, tol float64) bool {
	return math.Abs(price-level)/math.Max(level, 1e-8) <= tol
}

// NearFibonacci returns the first configured ratio whose level the price is near.
func (f *Fuser) NearFibonacci(snap domain.IndicatorSnapshot) (ratio, price float64, hit bool) {
	for _, r := range f.cfg.FibHitRatios {
		lvl, ok := snap.FibLevel(r)
		if !ok {
			continue
		}
		if PriceNearLevel(snap.CurrentPrice, lvl, f.cfg.FibTolerance) {
			return r, lvl, true
		}
	}
	return 0, 0, false
}

// IndicatorAction applies the conjunctive BUY/SELL rules. A flat trend always yields HOLD.
func IndicatorAction(trend domain.Trend, fibHit bool, cross domain.MACDCross) domain.Action {
	switch {
	case trend == domain.TrendUp && fibHit && cross == domain.CrossBullish:
		return domain.ActionBuy
	case trend == domain.TrendDown && fibHit && cross == domain.CrossBearish:
		return domain.ActionSell
	default:
		return domain.ActionHold
	}
}

// Fuse produces the recommendation for one cycle. advisory may be nil.
func (f *Fuser) Fuse(ctx context.Context, snap domain.IndicatorSnapshot, advisory *domain.Advisory) domain.Recommendation {
	trend := DetermineTrend(snap.MA, snap.LongMA)
	ratio, level, hit := f.NearFibonacci(snap)
	numeric := IndicatorAction(trend, hit, snap.MACDCross)

	confidence := f.cfg.DefaultConfidence
	action := numeric
	var keyword domain.Action
	if advisory != nil {
		confidence = ExtractConfidence(advisory.Text, f.cfg.DefaultConfidence)
		keyword = ParseKeywordAction(advisory.Text)
		action = f.reconcile(numeric, keyword)
	}

	rec := domain.Recommendation{
		Action:      action,
		Confidence:  confidence,
		Trend:       trend,
		FibHit:      hit,
		FibHitRatio: ratio,
		FibHitPrice: level,
	}
	if action.IsDirectional() {
		rec.SuggestedEntry = snap.CurrentPrice
		rec.SuggestedStop = f.suggestedStop(snap, action)
	}
	rec.Rationale = f.rationale(snap, rec, numeric, keyword, advisory)

	f.logger.Debug(ctx, "Signal fused", map[string]interface{}{
		"symbol":        snap.Symbol,
		"trend":         trend,
		"fibHit":        hit,
		"fibRatio":      ratio,
		"macdCross":     snap.MACDCross,
		"numericAction": numeric,
		"keywordAction": keyword,
		"action":        action,
		"confidence":    confidence,
		"precedence":    f.cfg.Precedence,
	})
	return rec
}

func (f *Fuser) reconcile(numeric, keyword domain.Action) domain.Action {
	switch f.cfg.Precedence {
	case PrecedenceAdvisory:
		return keyword
	case PrecedenceConsensus:
		if numeric == keyword {
			return numeric
		}
		return domain.ActionHold
	default:
		return numeric
	}
}

// suggestedStop uses the configured fib level, falling back to a fixed percentage away from price.
func (f *Fuser) suggestedStop(snap domain.IndicatorSnapshot, action domain.Action) float64 {
	if lvl, ok := snap.FibLevel(f.cfg.StopRatio); ok {
		return lvl
	}
	pct := f.cfg.FallbackStopPercent / 100
	if action == domain.ActionSell {
		return snap.CurrentPrice * (1 + pct)
	}
	return snap.CurrentPrice * (1 - pct)
}

func (f *Fuser) rationale(snap domain.IndicatorSnapshot, rec domain.Recommendation, numeric, keyword domain.Action, advisory *domain.Advisory) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "trend %s (MA %.2f vs long MA %.2f), MACD cross %s", rec.Trend, snap.MA, snap.LongMA, snap.MACDCross)
	if rec.FibHit {
		fmt.Fprintf(&sb, ", price near fib %.3f at %.2f", rec.FibHitRatio, rec.FibHitPrice)
	} else {
		sb.WriteString(", no fib level hit")
	}
	fmt.Fprintf(&sb, "; indicators say %s", numeric)
	if advisory != nil {
		fmt.Fprintf(&sb, ", %s advisory says %s (%s precedence)", advisory.Provider, keyword, f.cfg.Precedence)
	}
	return sb.String()
}
