package types

import (
	"encoding/json"

	"github.com/c360/contextrules/errors"
)

// Subscription describes which properties of an entity type are watched.
// An empty WatchedAttributes list means every property is eligible.
type Subscription struct {
	ID                string   `json:"id"`
	Type              string   `json:"type,omitempty"`
	WatchedAttributes []string `json:"watchedAttributes,omitempty"`
}

// Tenant is the scope identifier partitioning store and messaging operations.
type Tenant struct {
	Tenant string `json:"tenant"`
}

// SubscriptionEvent is the inbound change-notification envelope, and also
// the shape of the narrowed single-property event forwarded downstream.
type SubscriptionEvent struct {
	SubscriptionID string   `json:"subscriptionId"`
	Tenant         *Tenant  `json:"tenant,omitempty"`
	Data           []Entity `json:"data"`
}

// ParseSubscriptionEvent decodes and structurally validates an inbound
// notification payload.
func ParseSubscriptionEvent(data []byte) (*SubscriptionEvent, error) {
	var ev SubscriptionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, errors.WrapInvalid(errors.Join(errors.ErrParsingFailed, err),
			"SubscriptionEvent", "Parse", "decode envelope")
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Validate enforces the envelope invariants: a subscription id, non-empty
// data with non-empty entity ids, and no Alarm entities. Alarms are
// downstream artifacts; re-processing them would create a cycle.
func (ev *SubscriptionEvent) Validate() error {
	if ev.SubscriptionID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "SubscriptionEvent", "Validate",
			"subscriptionId is empty")
	}
	if len(ev.Data) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "SubscriptionEvent", "Validate",
			"data is empty")
	}
	for i := range ev.Data {
		if ev.Data[i].ID == "" {
			return errors.WrapInvalid(errors.ErrInvalidData, "SubscriptionEvent", "Validate",
				"entity id is empty")
		}
		if ev.Data[i].Type == EntityTypeAlarm {
			return errors.WrapInvalid(errors.ErrInvalidData, "SubscriptionEvent", "Validate",
				"alarm entities are not processed")
		}
	}
	return nil
}

// TenantName returns the tenant scope, or empty for the default tenant.
func (ev *SubscriptionEvent) TenantName() string {
	if ev.Tenant == nil {
		return ""
	}
	return ev.Tenant.Tenant
}

// Narrow builds the forwarded copy of the envelope containing only the given
// entity with one property and its metadata sibling, keeping the original
// subscription id and tenant context.
func (ev *SubscriptionEvent) Narrow(entity *Entity, propertyKey, metadataKey string) *SubscriptionEvent {
	props := make(map[string]json.RawMessage, 2)
	if raw, ok := entity.Property(propertyKey); ok {
		props[propertyKey] = raw
	}
	if raw, ok := entity.Property(metadataKey); ok {
		props[metadataKey] = raw
	}

	return &SubscriptionEvent{
		SubscriptionID: ev.SubscriptionID,
		Tenant:         ev.Tenant,
		Data: []Entity{{
			ID:         entity.ID,
			Type:       entity.Type,
			Properties: props,
		}},
	}
}
