package types

import "time"

// LogEntry is the history-log event published for every evaluated in-range
// or resolved observation. It is an append-only audit record independent of
// the rule outcome.
type LogEntry struct {
	ID          string    `json:"id"`
	Tenant      string    `json:"tenant,omitempty"`
	SensorID    string    `json:"sensorId"`
	PropertyKey string    `json:"propertyKey"`
	MetadataKey string    `json:"metadataKey"`
	ObservedAt  time.Time `json:"observedAt"`
	Value       *float64  `json:"value"`
	Unit        *string   `json:"unit"`
}
