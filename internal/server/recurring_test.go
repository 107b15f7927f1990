package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicely/internal/schedule/service"
	gt "github.com/smallbiznis/invoicely/internal/testutil/generationtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	env    *gt.Env
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := gt.New(t, time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{
		DB:              env.DB,
		Log:             zap.NewNop(),
		GenID:           env.Node,
		Clock:           env.Clock,
		SchedulerConfig: env.Config,
		Repo:            env.Schedules,
		Logs:            env.Logs,
		Directory:       env.Directory,
		Generator:       env.Orchestrator,
	})
	engine := NewEngine(true)
	NewServer(ServerParams{Gin: engine, Schedules: svc})
	return &testServer{env: env, engine: engine}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOrg, gt.OrgID.String())
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func scheduleBody() map[string]any {
	return map[string]any{
		"name":         "Monthly retainer",
		"client_id":    gt.ClientID.String(),
		"invoice_type": "tax",
		"frequency":    "monthly",
		"day_of_month": 5,
		"start_date":   "2024-01-05",
		"items": []map[string]any{
			{"description": "Retainer", "gst_rate": "18", "taxable_amount": "1000"},
		},
	}
}

func (ts *testServer) create(t *testing.T) string {
	t.Helper()
	code, body := ts.do(t, http.MethodPost, "/api/recurring-invoices", scheduleBody())
	require.Equal(t, http.StatusCreated, code, body)
	return body["data"].(map[string]any)["id"].(string)
}

func errorOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error payload: %v", body)
	return payload
}

func TestRequestsWithoutOrganizationAreRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/recurring-invoices", nil)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_organization")
}

func TestCreateGetAndList(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	code, body := ts.do(t, http.MethodGet, "/api/recurring-invoices/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, "2024-01-05", data["next_generation_date"])

	code, body = ts.do(t, http.MethodGet, "/api/recurring-invoices?status=active&search=retainer", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	code, body = ts.do(t, http.MethodGet, "/api/recurring-invoices?status=paused", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["data"])

	code, body = ts.do(t, http.MethodGet, "/api/recurring-invoices/stats", nil)
	require.Equal(t, http.StatusOK, code)
	stats := body["data"].(map[string]any)
	assert.Equal(t, float64(1), stats["total"])
	assert.Equal(t, float64(1), stats["active"])
}

func TestCreateReportsFieldErrors(t *testing.T) {
	ts := newTestServer(t)
	payload := scheduleBody()
	payload["day_of_month"] = 31

	code, body := ts.do(t, http.MethodPost, "/api/recurring-invoices", payload)
	require.Equal(t, http.StatusBadRequest, code)
	apiErr := errorOf(t, body)
	assert.Equal(t, "validation_error", apiErr["type"])
	fields := map[string]string{}
	for _, raw := range apiErr["errors"].([]any) {
		fe := raw.(map[string]any)
		fields[fe["field"].(string)] = fe["code"].(string)
	}
	assert.Equal(t, "out_of_range", fields["day_of_month"])

	code, body = ts.do(t, http.MethodGet, "/api/recurring-invoices", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["data"])
}

func TestMalformedBodyIsInvalidRequest(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/recurring-invoices", bytes.NewBufferString("{"))
	req.Header.Set(HeaderOrg, gt.OrgID.String())
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestIllegalTransitionReportsCurrentStatus(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	code, body := ts.do(t, http.MethodPost, "/api/recurring-invoices/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paused", body["data"].(map[string]any)["status"])

	code, body = ts.do(t, http.MethodPost, "/api/recurring-invoices/"+id+"/pause", nil)
	require.Equal(t, http.StatusConflict, code)
	apiErr := errorOf(t, body)
	assert.Equal(t, "illegal_state_transition", apiErr["type"])
	assert.Equal(t, "paused", apiErr["current_status"])

	code, _ = ts.do(t, http.MethodDelete, "/api/recurring-invoices/"+id, nil)
	require.Equal(t, http.StatusConflict, code)

	code, _ = ts.do(t, http.MethodPost, "/api/recurring-invoices/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, http.MethodDelete, "/api/recurring-invoices/"+id, nil)
	require.Equal(t, http.StatusNoContent, code)

	code, _ = ts.do(t, http.MethodGet, "/api/recurring-invoices/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGenerateNowAndLogs(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	code, body := ts.do(t, http.MethodPost, "/api/recurring-invoices/"+id+"/generate", nil)
	require.Equal(t, http.StatusCreated, code, body)
	data := body["data"].(map[string]any)
	entry := data["log"].(map[string]any)
	assert.Equal(t, "success", entry["status"])
	assert.Equal(t, "manual", entry["trigger"])
	assert.Equal(t, "TAX-2024-00001", entry["invoice_number"])
	assert.Equal(t, "2024-01-05", data["schedule"].(map[string]any)["next_generation_date"])

	code, body = ts.do(t, http.MethodPost, "/api/recurring-invoices/"+id+"/generate", nil)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", errorOf(t, body)["type"])

	code, body = ts.do(t, http.MethodGet, "/api/recurring-invoices/"+id+"/logs?page_size=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, false, body["page_info"].(map[string]any)["has_more"])
}

func TestGenerateNowFailureReturnsFailedEntry(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	ts.env.Invoices.FailNext(1)

	code, body := ts.do(t, http.MethodPost, "/api/recurring-invoices/"+id+"/generate", nil)
	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "generation_failed", errorOf(t, body)["type"])
	entry := body["log"].(map[string]any)
	assert.Equal(t, "failed", entry["status"])
	assert.NotEmpty(t, entry["error_message"])
}

func TestUnknownAndMalformedIDs(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodGet, "/api/recurring-invoices/12345", nil)
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", errorOf(t, body)["type"])

	code, body = ts.do(t, http.MethodPost, "/api/recurring-invoices/not-an-id/resume", nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errorOf(t, body)["errors"], map[string]any{
		"field": "id", "code": "invalid_id", "message": "invalid value",
	})
}

func TestHealthAndMetricsAreServed(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		ts.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
