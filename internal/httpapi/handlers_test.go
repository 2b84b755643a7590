package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/gateway"
	"odelivery/terminal/internal/service"
	"odelivery/terminal/internal/store/memory"
	"odelivery/terminal/internal/telemetry"
	"odelivery/terminal/internal/transform"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *service.Service) {
	t.Helper()

	repo := memory.NewSeeded()
	gw := gateway.New("device-test", telemetry.NewLog(20), nil)
	print := func(_ context.Context, _ domain.PrintJob, _ []byte) error { return nil }
	svc := service.New(repo, gw, nil, nil, telemetry.NewLog(20), domain.DeviceIdentity{ID: "device-test"}, print, time.Minute)
	t.Cleanup(svc.StopPolling)
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*", nil), svc
}

func login(t *testing.T, handler http.Handler, username string) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": "operator123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("no access token in login response")
	}
	return token
}

func csrfToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token: expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf body: %v", err)
	}
	token, _ := body["csrf_token"].(string)
	return token
}

func ingestSample(svc *service.Service) {
	svc.Ingest([]transform.WireOrder{{
		ID:            "4021",
		OrderNumber:   float64(147),
		Status:        "confirmed",
		Total:         "45,00",
		Subtotal:      "45,00",
		PaymentMethod: "pix",
		Items: []transform.WireItem{
			{ProductName: "X-Burger", Quantity: float64(1), UnitPrice: "45,00"},
		},
		CreatedAt: "2026-03-14T19:30:00Z",
	}})
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"username": "operator", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJobsRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestListJobsAfterSync(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "operator")

	ingestSample(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Jobs []struct {
			OrderID      string `json:"order_id"`
			Status       string `json:"status"`
			TotalDisplay string `json:"total_display"`
		} `json:"jobs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(body.Jobs))
	}
	if body.Jobs[0].OrderID != "4021" || body.Jobs[0].TotalDisplay != "R$ 45,00" {
		t.Fatalf("unexpected job payload %+v", body.Jobs[0])
	}
}

func TestPrintJobFlow(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "operator")
	csrf := csrfToken(t, handler)

	ingestSample(svc)

	printReq := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/4021/print", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := printReq()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Job struct {
			Status string `json:"status"`
		} `json:"job"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Job.Status != "printed" {
		t.Fatalf("expected printed job, got %q", body.Job.Status)
	}

	if rec := printReq(); rec.Code != http.StatusConflict {
		t.Fatalf("second print should conflict, got %d", rec.Code)
	}
}

func TestJobPreview(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "operator")

	ingestSample(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/4021/preview", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	preview, _ := body["preview"].(string)
	if preview == "" {
		t.Fatalf("empty preview")
	}
}

func TestUnknownJobIs404(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "operator")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStyleUpdate(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "operator")
	csrf := csrfToken(t, handler)

	payload, _ := json.Marshal(map[string]any{"copies": 2})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings/style", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Style domain.StyleConfig `json:"style"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Style.Copies != 2 {
		t.Fatalf("style update lost: %+v", body.Style)
	}
}

func TestAPISettingsNeedManagerRoleAndPIN(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"orders": []any{}})
	}))
	defer backend.Close()

	api, _ := newTestAPI(t)
	handler := api.Handler()
	operatorToken := login(t, handler, "operator")
	managerToken := login(t, handler, "manager")
	csrf := csrfToken(t, handler)

	payload, _ := json.Marshal(map[string]string{
		"base_url":     backend.URL,
		"access_token": "remote-token",
	})

	put := func(token, pin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/settings/api", bytes.NewReader(payload))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		req.Header.Set("Content-Type", "application/json")
		if pin != "" {
			req.Header.Set("X-Manager-PIN", pin)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := put(operatorToken, "123456"); rec.Code != http.StatusForbidden {
		t.Fatalf("operator role should be rejected, got %d", rec.Code)
	}
	if rec := put(managerToken, "000000"); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong PIN should be rejected, got %d", rec.Code)
	}
	if rec := put(managerToken, "123456"); rec.Code != http.StatusOK {
		t.Fatalf("manager with PIN should pass, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Token must come back redacted.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings/api", nil)
	req.Header.Set("Authorization", "Bearer "+managerToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings read: expected 200, got %d", rec.Code)
	}
	var body struct {
		Settings domain.APISettings `json:"settings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Settings.AccessToken == "remote-token" {
		t.Fatalf("access token must be redacted in reads")
	}
}

func TestUnackedAndReconcile(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "operator")
	csrf := csrfToken(t, handler)

	ingestSample(svc)
	// Gateway unconfigured: the print succeeds but the remote ack cannot.
	if _, err := svc.PrintOrder(context.Background(), "4021"); err != nil {
		t.Fatalf("PrintOrder: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prints/unacked", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unacked: expected 200, got %d", rec.Code)
	}
	var body struct {
		Unacked []domain.PrintRecord `json:"unacked"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Unacked) != 1 || body.Unacked[0].OrderID != "4021" {
		t.Fatalf("expected one unacked print for 4021, got %+v", body.Unacked)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/prints/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "operator")

	ingestSample(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status domain.SyncStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.PendingJobs != 1 || status.DeviceID != "device-test" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestOperatorManagement(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	managerToken := login(t, handler, "manager")
	csrf := csrfToken(t, handler)

	payload, _ := json.Marshal(map[string]string{"username": "carla", "password": "secret99"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operators", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+managerToken)
	req.Header.Set("X-CSRF-Token", csrf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/operators", nil)
	req.Header.Set("Authorization", "Bearer "+managerToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Operators []domain.OperatorView `json:"operators"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	found := false
	for _, op := range body.Operators {
		if op.Username == "carla" {
			found = true
		}
	}
	if !found {
		t.Fatalf("created operator missing from list: %+v", body.Operators)
	}
}

func TestReprintBeforePrintConflicts(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "operator")
	csrf := csrfToken(t, handler)

	ingestSample(svc)

	do := func(action string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/4021/"+action, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("reprint"); rec.Code != http.StatusConflict {
		t.Fatalf("reprint of a never-printed job should conflict, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	if rec := do("print"); rec.Code != http.StatusOK {
		t.Fatalf("print: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec := do("reprint"); rec.Code != http.StatusOK {
		t.Fatalf("reprint after print: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
