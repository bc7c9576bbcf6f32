package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRule_UnmarshalFlat(t *testing.T) {
	payload := []byte(`{
		"id": "urn:ngsi-ld:LogRule:1",
		"type": "LogRule",
		"low": 10,
		"high": 40,
		"consecutiveHit": 3,
		"enabled": true
	}`)

	var r LogRule
	require.NoError(t, json.Unmarshal(payload, &r))

	assert.Equal(t, "urn:ngsi-ld:LogRule:1", r.ID)
	require.NotNil(t, r.Low)
	assert.Equal(t, 10.0, *r.Low)
	require.NotNil(t, r.High)
	assert.Equal(t, 40.0, *r.High)
	assert.Equal(t, 3, r.ConsecutiveHit)
	assert.True(t, r.Enabled)
	assert.NoError(t, r.Validate())
}

func TestLogRule_UnmarshalWrapped(t *testing.T) {
	// Store representation wraps scalars as property sub-documents
	payload := []byte(`{
		"id": "urn:ngsi-ld:LogRule:2",
		"type": "LogRule",
		"low": {"value": -5.5},
		"consecutiveHit": {"value": 2},
		"enabled": {"value": false}
	}`)

	var r LogRule
	require.NoError(t, json.Unmarshal(payload, &r))

	require.NotNil(t, r.Low)
	assert.Equal(t, -5.5, *r.Low)
	assert.Nil(t, r.High) // absent bound means no limit
	assert.Equal(t, 2, r.ConsecutiveHit)
	assert.False(t, r.Enabled)
}

func TestLogRule_UnmarshalNullBounds(t *testing.T) {
	payload := []byte(`{"id": "urn:ngsi-ld:LogRule:3", "type": "LogRule", "low": null, "high": null, "enabled": true}`)

	var r LogRule
	require.NoError(t, json.Unmarshal(payload, &r))
	assert.Nil(t, r.Low)
	assert.Nil(t, r.High)
}

func TestLogRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    LogRule
		wantErr bool
	}{
		{"valid", LogRule{ID: "urn:ngsi-ld:LogRule:1", Type: EntityTypeLogRule}, false},
		{"empty id", LogRule{Type: EntityTypeLogRule}, true},
		{"wrong type", LogRule{ID: "urn:x", Type: "Sensor"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
