package contextstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/contextrules/errors"
	"github.com/c360/contextrules/pkg/retry"
)

func noRetry() retry.Config {
	return retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond * 2}
}

func newTestStore(t *testing.T, handler http.Handler, retryCfg retry.Config) (*HTTPStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := NewHTTPStore(Config{
		BaseURL:      srv.URL,
		TenantHeader: DefaultTenantHeader,
		Timeout:      5,
		Retry:        retryCfg,
	})
	require.NoError(t, err)
	return store, srv
}

func TestHTTPStore_GetEntity(t *testing.T) {
	var gotTenant atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant.Store(r.Header.Get(DefaultTenantHeader))
		assert.Equal(t, "/entities/urn:ngsi-ld:Sensor:1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "urn:ngsi-ld:Sensor:1", "type": "Sensor",
			"properties": {"T0": {"value": 42}}}`))
	})

	store, _ := newTestStore(t, handler, noRetry())
	session := store.Session("acme")

	entity, err := session.GetEntity(context.Background(), "urn:ngsi-ld:Sensor:1")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "urn:ngsi-ld:Sensor:1", entity.ID)
	assert.Equal(t, "Sensor", entity.Type)
	assert.Equal(t, "acme", gotTenant.Load())
}

func TestHTTPStore_GetEntity_NotFoundIsNil(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	store, _ := newTestStore(t, handler, noRetry())
	entity, err := store.Session("").GetEntity(context.Background(), "urn:missing")

	// Absence is a skip condition, not an error
	assert.NoError(t, err)
	assert.Nil(t, entity)
}

func TestHTTPStore_GetLogRule(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "urn:ngsi-ld:LogRule:1", "type": "LogRule",
			"low": {"value": 10}, "high": {"value": 40}, "consecutiveHit": 3, "enabled": true}`))
	})

	store, _ := newTestStore(t, handler, noRetry())
	rule, err := store.Session("acme").GetLogRule(context.Background(), "urn:ngsi-ld:LogRule:1")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 10.0, *rule.Low)
	assert.Equal(t, 40.0, *rule.High)
	assert.Equal(t, 3, rule.ConsecutiveHit)
	assert.True(t, rule.Enabled)
}

func TestHTTPStore_GetSubscription(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions/urn:ngsi-ld:Subscription:1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "urn:ngsi-ld:Subscription:1", "watchedAttributes": ["T0"]}`))
	})

	store, _ := newTestStore(t, handler, noRetry())
	sub, err := store.Session("").GetSubscription(context.Background(), "urn:ngsi-ld:Subscription:1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, []string{"T0"}, sub.WatchedAttributes)
}

func TestHTTPStore_PatchEntity_Body(t *testing.T) {
	var gotBody atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/entities/urn:ngsi-ld:Sensor:1/attrs", r.URL.Path)
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotBody.Store(body)
		w.WriteHeader(http.StatusNoContent)
	})

	store, _ := newTestStore(t, handler, noRetry())
	patch := Patch{"metadata_T0": {"logRuleConsecutiveHit": 3, "status": map[string]any{"value": "faulty"}}}
	err := store.Session("acme").PatchEntity(context.Background(), "urn:ngsi-ld:Sensor:1", patch)
	require.NoError(t, err)

	body := gotBody.Load().(map[string]map[string]any)
	require.Contains(t, body, "metadata_T0")
	assert.Equal(t, float64(3), body["metadata_T0"]["logRuleConsecutiveHit"])
}

func TestHTTPStore_PatchEntity_EmptyPatchRejected(t *testing.T) {
	store, _ := newTestStore(t, http.NotFoundHandler(), noRetry())
	err := store.Session("").PatchEntity(context.Background(), "urn:x", Patch{})
	assert.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestHTTPStore_PatchEntity_GoneEntity(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	store, _ := newTestStore(t, handler, noRetry())
	err := store.Session("").PatchEntity(context.Background(), "urn:gone", Patch{"m": {"k": 1}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEntityNotFound))
	assert.False(t, errors.IsTransient(err))
}

func TestHTTPStore_TransientRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id": "urn:ngsi-ld:Sensor:1", "type": "Sensor"}`))
	})

	retryCfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}
	store, _ := newTestStore(t, handler, retryCfg)

	entity, err := store.Session("").GetEntity(context.Background(), "urn:ngsi-ld:Sensor:1")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPStore_SemanticRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	retryCfg := retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}
	store, _ := newTestStore(t, handler, retryCfg)

	_, err := store.Session("").GetEntity(context.Background(), "urn:bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreRejected))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPStore_ServerErrorIsTransient(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	store, _ := newTestStore(t, handler, noRetry())
	_, err := store.Session("").GetEntity(context.Background(), "urn:x")

	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.BaseURL = ""
	assert.Error(t, cfg.Validate())
}
