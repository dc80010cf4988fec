package domain

import "time"

// CycleResult captures everything a single analysis cycle produced.
// Plan and Fill are nil when no order was sized or placed.
type CycleResult struct {
	Symbol         string
	StartedAt      time.Time
	Snapshot       IndicatorSnapshot
	Advisory       *Advisory
	Recommendation Recommendation
	Decision       RiskDecision
	Plan           *PositionPlan
	Fill           *Fill
}
