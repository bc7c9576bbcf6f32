// Package types defines the entity, rule and event models shared by the
// rule-evaluation pipeline. Entities mirror the context store's wire format:
// a stable id, a type tag, and a bag of named property sub-documents.
package types

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/c360/contextrules/errors"
)

// Well-known entity type tags
const (
	EntityTypeLogRule = "LogRule"
	EntityTypeAlarm   = "Alarm"
)

// Status labels persisted in property metadata
const (
	StatusOperational = "operational"
	StatusFaulty      = "faulty"
)

// MetadataPrefix marks the bookkeeping sibling of an evaluable value property.
const MetadataPrefix = "metadata_"

// MetadataKey returns the metadata sibling name for a value property.
func MetadataKey(property string) string {
	return MetadataPrefix + property
}

// IsMetadataKey reports whether a property name is a metadata sub-property.
func IsMetadataKey(property string) bool {
	return strings.HasPrefix(property, MetadataPrefix)
}

// Entity is a context entity as delivered by notifications and store reads.
// Properties hold the raw sub-documents; typed views are decoded on demand.
type Entity struct {
	ID         string                     `json:"id"`
	Type       string                     `json:"type"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
}

// Property returns the raw sub-document for a property key.
func (e *Entity) Property(key string) (json.RawMessage, bool) {
	raw, ok := e.Properties[key]
	return raw, ok
}

// HasProperty reports whether the entity carries the named property.
func (e *Entity) HasProperty(key string) bool {
	_, ok := e.Properties[key]
	return ok
}

// ValueProperty decodes a property sub-document as a numeric observation.
func (e *Entity) ValueProperty(key string) (*ValueProperty, error) {
	raw, ok := e.Properties[key]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Entity", "ValueProperty",
			"property "+key+" not present")
	}
	var vp ValueProperty
	if err := json.Unmarshal(raw, &vp); err != nil {
		return nil, errors.WrapInvalid(err, "Entity", "ValueProperty", "decode property "+key)
	}
	return &vp, nil
}

// Metadata decodes a metadata sub-property.
func (e *Entity) Metadata(key string) (*PropertyMetadata, error) {
	raw, ok := e.Properties[key]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Entity", "Metadata",
			"metadata "+key+" not present")
	}
	var md PropertyMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, errors.WrapInvalid(err, "Entity", "Metadata", "decode metadata "+key)
	}
	return &md, nil
}

// EvaluableProperties returns the property keys that are paired with a
// metadata_ sibling and, when a watched list is non-empty, appear in it.
// Keys are sorted for deterministic iteration; property evaluation order
// carries no semantics.
func (e *Entity) EvaluableProperties(watched []string) []string {
	watchSet := make(map[string]struct{}, len(watched))
	for _, w := range watched {
		watchSet[w] = struct{}{}
	}

	var keys []string
	for key := range e.Properties {
		if IsMetadataKey(key) {
			continue
		}
		if !e.HasProperty(MetadataKey(key)) {
			continue
		}
		if len(watchSet) > 0 {
			if _, ok := watchSet[key]; !ok {
				continue
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ValueProperty is the typed view of a numeric observation property.
type ValueProperty struct {
	Value      *float64   `json:"value,omitempty"`
	Unit       *string    `json:"unit,omitempty"`
	ObservedAt *time.Time `json:"observedAt,omitempty"`
}

// StatusValue is a status label with its observation timestamp.
type StatusValue struct {
	Value      string     `json:"value"`
	ObservedAt *time.Time `json:"observedAt,omitempty"`
}

// PropertyMetadata is the typed view of a metadata_ sub-property. The
// consecutive-hit counter defaults to zero when absent on the wire.
type PropertyMetadata struct {
	LogRule        Relationship `json:"logRule,omitempty"`
	ConsecutiveHit int          `json:"logRuleConsecutiveHit,omitempty"`
	Status         *StatusValue `json:"status,omitempty"`
}

// StatusLabel returns the current status label, or empty when unset.
// An unset status is treated as operational by the evaluation engine.
func (m *PropertyMetadata) StatusLabel() string {
	if m.Status == nil {
		return ""
	}
	return m.Status.Value
}

// HasRule reports whether a log rule relationship is attached.
func (m *PropertyMetadata) HasRule() bool {
	return len(m.LogRule.Objects) > 0
}

// RuleID returns the first referenced rule id.
func (m *PropertyMetadata) RuleID() string {
	if len(m.LogRule.Objects) == 0 {
		return ""
	}
	return m.LogRule.Objects[0]
}

// Relationship is a reference to other entities. The store serializes it
// either as {"object": "urn"} or {"object": ["urn", ...]}; bare strings and
// arrays are accepted too.
type Relationship struct {
	Objects []string
}

// MarshalJSON writes the canonical {"object": [...]} form.
func (r Relationship) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"object": r.Objects})
}

// UnmarshalJSON accepts the object wrapper, a bare string, or a string list.
func (r *Relationship) UnmarshalJSON(data []byte) error {
	r.Objects = nil

	var wrapper struct {
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Object != nil {
		data = wrapper.Object
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			r.Objects = []string{single}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		r.Objects = many
		return nil
	}

	return errors.WrapInvalid(errors.ErrInvalidData, "Relationship", "UnmarshalJSON",
		"relationship object is neither string nor string list")
}
