package store

import "context"

// DecisionLog is an append-only record of one orchestration decision.
// It is written for offline analysis only and never read back by the core.
type DecisionLog struct {
	ID            int32
	OwnerID       int32
	Intent        string
	PriorityScore int32
	ReasonCodes   []string
	Context       map[string]any
	CreatedTs     int64
}

// CreateDecisionLog appends a decision log entry.
func (s *Store) CreateDecisionLog(ctx context.Context, create *DecisionLog) (*DecisionLog, error) {
	return s.driver.CreateDecisionLog(ctx, create)
}
