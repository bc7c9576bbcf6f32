package types

import (
	"encoding/json"

	"github.com/c360/contextrules/errors"
)

// LogRule defines threshold bounds and the consecutive-violation threshold
// for one watched property. Rules are edited externally and read-only here.
// An absent Low or High bound means no limit on that side.
type LogRule struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Low            *float64 `json:"low,omitempty"`
	High           *float64 `json:"high,omitempty"`
	ConsecutiveHit int      `json:"consecutiveHit,omitempty"`
	Enabled        bool     `json:"enabled"`
}

// logRuleWire mirrors the store representation, where scalar fields may be
// wrapped as {"value": x} property sub-documents.
type logRuleWire struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Low            json.RawMessage `json:"low,omitempty"`
	High           json.RawMessage `json:"high,omitempty"`
	ConsecutiveHit json.RawMessage `json:"consecutiveHit,omitempty"`
	Enabled        json.RawMessage `json:"enabled,omitempty"`
}

// UnmarshalJSON decodes both the flat form and the store's wrapped form.
func (r *LogRule) UnmarshalJSON(data []byte) error {
	var wire logRuleWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.WrapInvalid(err, "LogRule", "UnmarshalJSON", "decode rule")
	}

	r.ID = wire.ID
	r.Type = wire.Type
	r.Low = nil
	r.High = nil
	r.ConsecutiveHit = 0
	r.Enabled = false

	if raw := unwrapValue(wire.Low); raw != nil {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return errors.WrapInvalid(err, "LogRule", "UnmarshalJSON", "decode low bound")
		}
		r.Low = &v
	}
	if raw := unwrapValue(wire.High); raw != nil {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return errors.WrapInvalid(err, "LogRule", "UnmarshalJSON", "decode high bound")
		}
		r.High = &v
	}
	if raw := unwrapValue(wire.ConsecutiveHit); raw != nil {
		if err := json.Unmarshal(raw, &r.ConsecutiveHit); err != nil {
			return errors.WrapInvalid(err, "LogRule", "UnmarshalJSON", "decode consecutiveHit")
		}
	}
	if raw := unwrapValue(wire.Enabled); raw != nil {
		if err := json.Unmarshal(raw, &r.Enabled); err != nil {
			return errors.WrapInvalid(err, "LogRule", "UnmarshalJSON", "decode enabled")
		}
	}

	return nil
}

// Validate checks the rule shape: non-empty id and the LogRule type tag.
// Enabled is a runtime condition, not a shape error, and is checked by the
// pipeline's rule validation step.
func (r *LogRule) Validate() error {
	if r.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "LogRule", "Validate", "rule id is empty")
	}
	if r.Type != EntityTypeLogRule {
		return errors.WrapInvalid(errors.ErrInvalidData, "LogRule", "Validate",
			"unexpected rule type "+r.Type)
	}
	return nil
}

// unwrapValue peels a {"value": x} wrapper off a raw field, returning the
// inner raw value, or the input unchanged when not wrapped. Returns nil for
// absent or null fields.
func unwrapValue(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var wrapper struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Value != nil {
		return wrapper.Value
	}
	return raw
}
