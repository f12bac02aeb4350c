package matching

import "context"

// Detector classifies a pair after one side's decision has been written.
type Detector struct {
	decisions DecisionStore
}

// NewDetector creates a Detector reading reverse decisions from decisions.
func NewDetector(decisions DecisionStore) *Detector {
	return &Detector{decisions: decisions}
}

// Classify returns MutualPositive iff decision is positive and the reverse
// decision exists and is positive. A dislike never needs the reverse read.
func (d *Detector) Classify(ctx context.Context, decision SwipeDecision) (Reciprocity, error) {
	if !decision.Disposition.Positive() {
		return NotMutual, nil
	}

	reverse, ok, err := d.decisions.Get(ctx, decision.TargetID, decision.ActorID)
	if err != nil {
		return NotMutual, err
	}
	if ok && reverse.Disposition.Positive() {
		return MutualPositive, nil
	}
	return NotMutual, nil
}
