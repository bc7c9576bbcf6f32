package logrule

import (
	"github.com/c360/contextrules/errors"
	"github.com/c360/contextrules/types"
)

// RejectReason identifies why a message or a single property was rejected.
// Message-level reasons terminate processing (log + ack); property-level
// reasons skip one property and continue with its siblings.
type RejectReason int

const (
	// RejectNone means validation passed
	RejectNone RejectReason = iota

	// Message-level rejections
	RejectBadEnvelope
	RejectAlarmCycle
	RejectSubscriptionNotFound
	RejectEntityNotFound

	// Property-level rejections
	RejectBadMetadata
	RejectRuleRefMissing
	RejectValueMissing
	RejectObservedAtMissing
	RejectRuleNotFound
	RejectRuleInvalid
	RejectRuleDisabled
)

// String returns the metrics/log label for a rejection reason
func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectBadEnvelope:
		return "bad_envelope"
	case RejectAlarmCycle:
		return "alarm_cycle"
	case RejectSubscriptionNotFound:
		return "subscription_not_found"
	case RejectEntityNotFound:
		return "entity_not_found"
	case RejectBadMetadata:
		return "bad_metadata"
	case RejectRuleRefMissing:
		return "rule_ref_missing"
	case RejectValueMissing:
		return "value_missing"
	case RejectObservedAtMissing:
		return "observed_at_missing"
	case RejectRuleNotFound:
		return "rule_not_found"
	case RejectRuleInvalid:
		return "rule_invalid"
	case RejectRuleDisabled:
		return "rule_disabled"
	default:
		return "unknown"
	}
}

// Err returns the classification sentinel for reasons that name a missing
// referent, nil for the rest. Used as the structured-log error value so
// skip paths stay matchable with errors.Is.
func (r RejectReason) Err() error {
	switch r {
	case RejectSubscriptionNotFound:
		return errors.ErrSubscriptionNotFound
	case RejectEntityNotFound:
		return errors.ErrEntityNotFound
	case RejectRuleNotFound:
		return errors.ErrRuleNotFound
	default:
		return nil
	}
}

// validatedProperty carries the decoded views of one evaluable property
type validatedProperty struct {
	value    *types.ValueProperty
	metadata *types.PropertyMetadata
}

// validateProperty decodes and checks one property/metadata pair. Returns
// RejectNone with the decoded views on success, or the first failing check.
func validateProperty(entity *types.Entity, key string) (*validatedProperty, RejectReason) {
	md, err := entity.Metadata(types.MetadataKey(key))
	if err != nil {
		return nil, RejectBadMetadata
	}

	if !md.HasRule() || md.RuleID() == "" {
		return nil, RejectRuleRefMissing
	}

	vp, err := entity.ValueProperty(key)
	if err != nil {
		return nil, RejectValueMissing
	}
	if vp.Value == nil {
		return nil, RejectValueMissing
	}
	if vp.ObservedAt == nil {
		return nil, RejectObservedAtMissing
	}

	return &validatedProperty{value: vp, metadata: md}, RejectNone
}

// validateRule checks a resolved rule: present, well-formed, and enabled.
// A disabled rule is its own reason since it triggers a counter reset.
func validateRule(rule *types.LogRule) RejectReason {
	if rule == nil {
		return RejectRuleNotFound
	}
	if err := rule.Validate(); err != nil {
		return RejectRuleInvalid
	}
	if !rule.Enabled {
		return RejectRuleDisabled
	}
	return RejectNone
}
