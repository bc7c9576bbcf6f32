package logrule

import (
	"time"

	"github.com/c360/contextrules/contextstore"
	"github.com/c360/contextrules/types"
)

// EvalInput is one observation paired with its resolved rule and the current
// bookkeeping metadata read from the store.
type EvalInput struct {
	Value      float64
	ObservedAt time.Time
	Rule       types.LogRule
	Metadata   types.PropertyMetadata
}

// Decision is the outcome of evaluating one observation. Write reports
// whether a store patch is needed; Forward whether the single-property event
// goes downstream.
type Decision struct {
	InRange bool
	Faulty  bool
	Counter int
	Status  string
	Write   bool
	Forward bool
}

// Evaluate classifies a reading against the rule bounds and derives the new
// counter and status.
//
// Bound comparisons are strict on both sides: a value exactly equal to Low
// or exactly equal to High is out-of-range. The strictness is load-bearing
// for behavioral compatibility and pinned in tests; do not loosen either
// bound to inclusive.
func Evaluate(in EvalInput) Decision {
	aboveLow := in.Rule.Low == nil || in.Value > *in.Rule.Low
	belowHigh := in.Rule.High == nil || in.Value < *in.Rule.High

	if aboveLow && belowHigh {
		return Decision{
			InRange: true,
			Counter: 0,
			Status:  types.StatusOperational,
			// A reset write is only needed when recovering from faulty;
			// repeating an in-range observation is a no-op.
			Write:   in.Metadata.StatusLabel() == types.StatusFaulty,
			Forward: true,
		}
	}

	counter := in.Metadata.ConsecutiveHit + 1
	faulty := counter >= in.Rule.ConsecutiveHit

	status := types.StatusOperational
	if faulty {
		status = types.StatusFaulty
	}

	return Decision{
		Counter: counter,
		Faulty:  faulty,
		Status:  status,
		Write:   true,
		// A faulty classification suppresses the single-property forward;
		// still-counting observations flow downstream like in-range ones.
		Forward: !faulty,
	}
}

// Reset is the decision for a disabled rule: treated as in-range for counter
// purposes, clearing any accumulated violation state.
func Reset(md types.PropertyMetadata) Decision {
	return Decision{
		InRange: true,
		Counter: 0,
		Status:  types.StatusOperational,
		Write:   md.ConsecutiveHit != 0 || md.StatusLabel() == types.StatusFaulty,
		Forward: true,
	}
}

// Patch builds the merge-patch persisting this decision, targeting exactly
// one metadata sub-property's counter and status fields. The status carries
// the same observation timestamp as the counter update.
func (d Decision) Patch(metadataKey string, observed time.Time) contextstore.Patch {
	return contextstore.Patch{
		metadataKey: {
			"logRuleConsecutiveHit": d.Counter,
			"status": map[string]any{
				"value":      d.Status,
				"observedAt": observed.UTC().Format(time.RFC3339),
			},
		},
	}
}
