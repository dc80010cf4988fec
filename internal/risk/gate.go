package risk

import (
	"fmt"

	"cryptoSignalBot/internal/domain"
)

// Rule identifiers reported in RiskDecision.Rule.
const (
	RuleRSIOverbought  = "rsi_overbought"
	RuleRSIOversold    = "rsi_oversold"
	RuleLowConfidence  = "low_confidence"
	RuleHighVolatility = "high_volatility"
)

// GateConfig holds the thresholds checked before any sizing.
type GateConfig struct {
	RSIOverbought float64 // reject when rsi is strictly above
	RSIOversold   float64 // reject when rsi is strictly below
	MinConfidence float64 // reject when confidence is strictly below
	MaxATRRatio   float64 // reject when atr/price is strictly above
}

// DefaultGateConfig returns the standard thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		RSIOverbought: 75,
		RSIOversold:   25,
		MinConfidence: 60,
		MaxATRRatio:   0.05,
	}
}

// Gate validates a recommendation against momentum, confidence and volatility limits.
// It is stateless and safe for concurrent use.
type Gate struct {
	cfg GateConfig
}

// NewGate creates a new risk gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.RSIOversold < 0 || cfg.RSIOverbought > 100 || cfg.RSIOversold >= cfg.RSIOverbought {
		return nil, fmt.Errorf("invalid RSI thresholds (overbought must be > oversold, between 0-100)")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		return nil, fmt.Errorf("min confidence must be within [0,100]")
	}
	if cfg.MaxATRRatio <= 0 {
		return nil, fmt.Errorf("max ATR ratio must be positive")
	}
	return &Gate{cfg: cfg}, nil
}

// Evaluate applies the rules in order; the first failing rule rejects.
// An approval may carry an informational note about price vs MA.
func (g *Gate) Evaluate(snap domain.IndicatorSnapshot, rec domain.Recommendation) domain.RiskDecision {
	if snap.RSI > g.cfg.RSIOverbought {
		return reject(RuleRSIOverbought, fmt.Sprintf("RSI overbought (%.2f > %.2f)", snap.RSI, g.cfg.RSIOverbought))
	}
	if snap.RSI < g.cfg.RSIOversold {
		return reject(RuleRSIOversold, fmt.Sprintf("RSI oversold (%.2f < %.2f)", snap.RSI, g.cfg.RSIOversold))
	}
	if rec.Confidence < g.cfg.MinConfidence {
		return reject(RuleLowConfidence, fmt.Sprintf("confidence too low (%.0f%% < %.0f%%)", rec.Confidence, g.cfg.MinConfidence))
	}
	if snap.CurrentPrice > 0 {
		if ratio := snap.ATR / snap.CurrentPrice; ratio > g.cfg.MaxATRRatio {
			return reject(RuleHighVolatility, fmt.Sprintf("volatility too high (ATR/price %.4f > %.4f)", ratio, g.cfg.MaxATRRatio))
		}
	}

	reason := "risk checks passed"
	switch {
	case rec.Action == domain.ActionBuy && snap.CurrentPrice < snap.MA:
		reason += "; price below MA, favourable for BUY"
	case rec.Action == domain.ActionSell && snap.CurrentPrice > snap.MA:
		reason += "; price above MA, favourable for SELL"
	}
	return domain.RiskDecision{Approved: true, Reason: reason}
}

func reject(rule, reason string) domain.RiskDecision {
	return domain.RiskDecision{Approved: false, Reason: reason, Rule: rule}
}
