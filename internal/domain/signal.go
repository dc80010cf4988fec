package domain

// Recommendation is the fused trade recommendation for one cycle.
type Recommendation struct {
	Action     Action
	Confidence float64 // in [0,100]
	Rationale  string
	Trend      Trend

	FibHit      bool
	FibHitRatio float64 // matched ratio when FibHit
	FibHitPrice float64

	// Entry plan suggested directly by the fuser (zero for HOLD).
	SuggestedEntry float64
	SuggestedStop  float64
}

// Advisory is free-text commentary from an external advisor.
type Advisory struct {
	Provider string
	Text     string
}

// RiskDecision is the outcome of the risk gate.
type RiskDecision struct {
	Approved bool
	Reason   string
	Rule     string // identifier of the rule that rejected, empty when approved
}
