package contextstore

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/c360/contextrules/errors"
	"github.com/c360/contextrules/pkg/retry"
	"github.com/c360/contextrules/types"
)

// DefaultTenantHeader is the header carrying the tenant scope to the store.
const DefaultTenantHeader = "NGSILD-Tenant"

// Config holds configuration for the HTTP context store client
type Config struct {
	// BaseURL is the store API root, e.g. "http://orion:1026/ngsi-ld/v1"
	BaseURL string `json:"base_url"`

	// TenantHeader names the header carrying the tenant scope
	TenantHeader string `json:"tenant_header,omitempty"`

	// Timeout bounds a single HTTP request in seconds
	Timeout int `json:"timeout,omitempty"`

	// Retry bounds transient-failure retries per store call
	Retry retry.Config `json:"retry,omitempty"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid base_url")
	}
	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 300 seconds")
	}
	return nil
}

// DefaultConfig returns default configuration for the store client
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:1026/ngsi-ld/v1",
		TenantHeader: DefaultTenantHeader,
		Timeout:      10,
		Retry:        retry.DefaultConfig(),
	}
}

// HTTPStore talks to the context store over its REST API.
type HTTPStore struct {
	baseURL      string
	tenantHeader string
	retryCfg     retry.Config
	httpClient   *http.Client
}

// NewHTTPStore creates a store client from configuration.
func NewHTTPStore(cfg Config) (*HTTPStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	tenantHeader := cfg.TenantHeader
	if tenantHeader == "" {
		tenantHeader = DefaultTenantHeader
	}

	return &HTTPStore{
		baseURL:      cfg.BaseURL,
		tenantHeader: tenantHeader,
		retryCfg:     cfg.Retry,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Session returns a tenant-bound session. Sessions are cheap and stateless;
// the tenant travels as a header on every request.
func (s *HTTPStore) Session(tenant string) Session {
	return &httpSession{store: s, tenant: tenant}
}

type httpSession struct {
	store  *HTTPStore
	tenant string
}

func (s *httpSession) Tenant() string {
	return s.tenant
}

func (s *httpSession) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	body, err := s.get(ctx, "/entities/"+url.PathEscape(id))
	if err != nil || body == nil {
		return nil, err
	}

	var e types.Entity
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, errors.WrapInvalid(err, "HTTPStore", "GetEntity", "decode entity "+id)
	}
	return &e, nil
}

func (s *httpSession) GetLogRule(ctx context.Context, id string) (*types.LogRule, error) {
	body, err := s.get(ctx, "/entities/"+url.PathEscape(id))
	if err != nil || body == nil {
		return nil, err
	}

	var r types.LogRule
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.WrapInvalid(err, "HTTPStore", "GetLogRule", "decode rule "+id)
	}
	return &r, nil
}

func (s *httpSession) GetSubscription(ctx context.Context, id string) (*types.Subscription, error) {
	body, err := s.get(ctx, "/subscriptions/"+url.PathEscape(id))
	if err != nil || body == nil {
		return nil, err
	}

	var sub types.Subscription
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, errors.WrapInvalid(err, "HTTPStore", "GetSubscription", "decode subscription "+id)
	}
	return &sub, nil
}

func (s *httpSession) PatchEntity(ctx context.Context, id string, patch Patch) error {
	if len(patch) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "HTTPStore", "PatchEntity", "empty patch")
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return errors.WrapInvalid(err, "HTTPStore", "PatchEntity", "marshal patch")
	}

	path := "/entities/" + url.PathEscape(id) + "/attrs"
	err = retry.Do(ctx, s.store.retryCfg, func() error {
		status, _, reqErr := s.do(ctx, http.MethodPatch, path, body)
		if reqErr != nil {
			return reqErr
		}
		switch {
		case status >= 200 && status < 300:
			return nil
		case status == http.StatusNotFound:
			// Entity disappeared between fetch and patch
			return retry.NonRetryable(errors.WrapInvalid(errors.ErrEntityNotFound,
				"HTTPStore", "PatchEntity", "patch "+id))
		case status >= 400 && status < 500:
			return retry.NonRetryable(errors.WrapInvalid(errors.ErrStoreRejected,
				"HTTPStore", "PatchEntity", fmt.Sprintf("patch %s (HTTP %d)", id, status)))
		default:
			return errors.WrapTransient(errors.ErrStoreUnavailable,
				"HTTPStore", "PatchEntity", fmt.Sprintf("patch %s (HTTP %d)", id, status))
		}
	})
	return unwrapNonRetryable(err)
}

// get performs a GET with retry on transient failures. Returns (nil, nil)
// when the record does not exist.
func (s *httpSession) get(ctx context.Context, path string) ([]byte, error) {
	body, err := retry.DoWithResult(ctx, s.store.retryCfg, func() ([]byte, error) {
		status, respBody, reqErr := s.do(ctx, http.MethodGet, path, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		switch {
		case status >= 200 && status < 300:
			return respBody, nil
		case status == http.StatusNotFound:
			return nil, nil
		case status >= 400 && status < 500:
			return nil, retry.NonRetryable(errors.WrapInvalid(errors.ErrStoreRejected,
				"HTTPStore", "get", fmt.Sprintf("GET %s (HTTP %d)", path, status)))
		default:
			return nil, errors.WrapTransient(errors.ErrStoreUnavailable,
				"HTTPStore", "get", fmt.Sprintf("GET %s (HTTP %d)", path, status))
		}
	})
	return body, unwrapNonRetryable(err)
}

// do issues a single request with the tenant header applied.
func (s *httpSession) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.store.baseURL+path, reader)
	if err != nil {
		return 0, nil, retry.NonRetryable(errors.WrapInvalid(err, "HTTPStore", "do", "build request"))
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.tenant != "" {
		req.Header.Set(s.store.tenantHeader, s.tenant)
	}

	resp, err := s.store.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.WrapTransient(err, "HTTPStore", "do", method+" "+path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.WrapTransient(err, "HTTPStore", "do", "read response body")
	}

	return resp.StatusCode, respBody, nil
}

// unwrapNonRetryable strips the retry marker so callers see the classified
// store error directly.
func unwrapNonRetryable(err error) error {
	var nre *retry.NonRetryableError
	if stderrors.As(err, &nre) {
		return nre.Err
	}
	return err
}
