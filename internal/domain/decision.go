package domain

import (
	"autotrader/pkg/quant"
)

// Action requested by the strategy for one instrument.
type Action string

const (
	ActionOpen   Action = "OPEN"
	ActionClose  Action = "CLOSE"
	ActionAdjust Action = "ADJUST"
)

// ExecutionDecision is the inbound record from the strategy producer.
// At most one decision per instrument per tick; the engine does not
// deduplicate.
type ExecutionDecision struct {
	ID     string
	Action Action
	Symbol string

	// Exactly one of TargetQtySats / TargetNotionalMicros should be set
	// for OPEN and ADJUST. CLOSE ignores both.
	TargetQtySats        quant.QtySats
	TargetNotionalMicros int64

	ConfidenceBps int64 // 0..10000
}
