// Package gateway talks to the remote order backend. It fetches pending
// orders for the configured tenant and acknowledges prints back. Every call
// is recorded on the debug log and the metrics registry so an operator can
// diagnose connectivity without server access.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/metrics"
	"odelivery/terminal/internal/telemetry"
	"odelivery/terminal/internal/transform"
)

const requestTimeout = 15 * time.Second

// Client is safe for concurrent use. Configure swaps the whole settings
// value under the lock, so a fetch in flight either sees the old settings or
// the new ones, never a mix.
type Client struct {
	mu       sync.RWMutex
	settings *domain.APISettings

	deviceID string
	http     *http.Client
	debug    *telemetry.Log
	metrics  *metrics.Metrics
}

func New(deviceID string, debug *telemetry.Log, m *metrics.Metrics) *Client {
	return &Client{
		deviceID: deviceID,
		http:     &http.Client{Timeout: requestTimeout},
		debug:    debug,
		metrics:  m,
	}
}

// Configure installs new backend settings. Invalid settings are rejected so
// the client never ends up half configured.
func (c *Client) Configure(settings domain.APISettings) error {
	if !settings.Valid() {
		return fmt.Errorf("gateway: incomplete settings")
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	c.mu.Lock()
	c.settings = &settings
	c.mu.Unlock()
	return nil
}

func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings != nil
}

func (c *Client) current() (domain.APISettings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.settings == nil {
		return domain.APISettings{}, false
	}
	return *c.settings, true
}

// TenantID returns the tenant the client operates for. When settings carry no
// explicit tenant it falls back to the tenant_id claim of the access token.
// The token is decoded without signature verification; the backend remains
// the authority, this value only scopes requests.
func (c *Client) TenantID() string {
	settings, ok := c.current()
	if !ok {
		return ""
	}
	if settings.TenantID != "" {
		return settings.TenantID
	}
	return tenantFromToken(settings.AccessToken)
}

func tenantFromToken(token string) string {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	if id, ok := claims["tenant_id"].(string); ok {
		return id
	}
	return ""
}

type ordersResponse struct {
	Orders []transform.WireOrder `json:"orders"`
}

// FetchOrders retrieves the pending orders for the configured tenant.
func (c *Client) FetchOrders(ctx context.Context) ([]transform.WireOrder, error) {
	settings, ok := c.current()
	if !ok {
		return nil, ErrNotConfigured
	}

	var resp ordersResponse
	err := c.call(ctx, settings, http.MethodGet, "/api/v1/orders/pending", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// MarkPrinted tells the backend an order's receipt left the printer. The
// backend treats the call as idempotent, so a repeated acknowledgement after
// a lost response is harmless.
func (c *Client) MarkPrinted(ctx context.Context, orderID string) error {
	settings, ok := c.current()
	if !ok {
		return ErrNotConfigured
	}

	body := map[string]any{"printed": true, "device_id": c.deviceID}
	endpoint := "/api/v1/orders/" + url.PathEscape(orderID) + "/printed"
	return c.call(ctx, settings, http.MethodPatch, endpoint, body, nil)
}

func (c *Client) call(ctx context.Context, settings domain.APISettings, method, endpoint string, body any, out any) error {
	op := method + " " + endpoint
	start := time.Now()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, settings.BaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+settings.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Device-ID", c.deviceID)
	if tenant := c.TenantID(); tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		callErr := &TransportError{Op: op, Err: err}
		c.record(method, endpoint, 0, callErr, time.Since(start))
		return callErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		callErr := &ServerError{Op: op, StatusCode: resp.StatusCode}
		c.record(method, endpoint, resp.StatusCode, callErr, time.Since(start))
		return callErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			callErr := &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
			c.record(method, endpoint, resp.StatusCode, callErr, time.Since(start))
			return callErr
		}
	}

	c.record(method, endpoint, resp.StatusCode, nil, time.Since(start))
	return nil
}

func (c *Client) record(method, endpoint string, status int, callErr error, elapsed time.Duration) {
	if c.debug != nil {
		c.debug.Record(method, endpoint, status, callErr, elapsed)
	}
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if callErr != nil {
		outcome = "error"
	}
	if strings.HasSuffix(endpoint, "/printed") {
		c.metrics.AcksTotal.WithLabelValues(outcome).Inc()
		return
	}
	c.metrics.FetchDuration.Observe(elapsed.Seconds())
	c.metrics.FetchTotal.WithLabelValues(outcome).Inc()
}
