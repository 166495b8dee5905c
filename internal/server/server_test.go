package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	billingrepo "github.com/smallbiznis/slotmeter/internal/billing/repository"
	billingservice "github.com/smallbiznis/slotmeter/internal/billing/service"
	"github.com/smallbiznis/slotmeter/internal/clock"
	"github.com/smallbiznis/slotmeter/internal/migration"
	"github.com/smallbiznis/slotmeter/internal/observability"
	obsmetrics "github.com/smallbiznis/slotmeter/internal/observability/metrics"
	resourcerepo "github.com/smallbiznis/slotmeter/internal/resource/repository"
	resourceservice "github.com/smallbiznis/slotmeter/internal/resource/service"
	sessionrepo "github.com/smallbiznis/slotmeter/internal/session/repository"
	sessionservice "github.com/smallbiznis/slotmeter/internal/session/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testServer struct {
	engine *gin.Engine
	clock  *clock.FakeClock
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Type    string            `json:"type"`
		Message string            `json:"message"`
		Errors  []ValidationError `json:"errors"`
		Details map[string]any    `json:"details"`
	} `json:"error"`
}

type resourceBody struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Capacity       int     `json:"capacity"`
	PricePerMinute float64 `json:"price_per_minute"`
}

type sessionBody struct {
	ID              string   `json:"id"`
	ResourceID      string   `json:"resource_id"`
	UserID          string   `json:"user_id"`
	IsActive        bool     `json:"is_active"`
	DurationMinutes *float64 `json:"duration_minutes"`
	Cost            *float64 `json:"cost"`
}

type billingBody struct {
	UsageSessionID  string  `json:"usage_session_id"`
	DurationMinutes float64 `json:"duration_minutes"`
	PricePerMinute  float64 `json:"price_per_minute"`
	TotalCost       float64 `json:"total_cost"`
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUsageFlow(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/resources", map[string]any{
		"name":             "desk-1",
		"capacity":         1,
		"price_per_minute": 2.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resource resourceBody
	decodeData(t, rec, &resource)
	assert.Equal(t, "desk-1", resource.Name)
	assert.Equal(t, 2.0, resource.PricePerMinute)

	rec = ts.do(t, http.MethodPost, "/api/usage-sessions/start", map[string]any{
		"resource_id": resource.ID,
		"user_id":     "alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var alice sessionBody
	decodeData(t, rec, &alice)
	assert.True(t, alice.IsActive)
	assert.Nil(t, alice.Cost)

	rec = ts.do(t, http.MethodPost, "/api/usage-sessions/start", map[string]any{
		"resource_id": resource.ID,
		"user_id":     "bob",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "capacity_exceeded", env.Error.Type)
	assert.Equal(t, resource.ID, env.Error.Details["resource_id"])
	assert.Equal(t, float64(1), env.Error.Details["active_sessions"])
	assert.Equal(t, float64(1), env.Error.Details["capacity"])

	rec = ts.do(t, http.MethodDelete, "/api/resources/"+resource.ID, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeEnvelope(t, rec).Error.Type)

	ts.clock.Advance(5 * time.Minute)
	rec = ts.do(t, http.MethodPost, "/api/usage-sessions/stop", map[string]any{"session_id": alice.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closed sessionBody
	decodeData(t, rec, &closed)
	assert.False(t, closed.IsActive)
	require.NotNil(t, closed.DurationMinutes)
	require.NotNil(t, closed.Cost)
	assert.Equal(t, 5.0, *closed.DurationMinutes)
	assert.Equal(t, 10.0, *closed.Cost)

	rec = ts.do(t, http.MethodPost, "/api/usage-sessions/stop", map[string]any{"session_id": alice.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/billing/session/"+alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var record billingBody
	decodeData(t, rec, &record)
	assert.Equal(t, alice.ID, record.UsageSessionID)
	assert.Equal(t, 5.0, record.DurationMinutes)
	assert.Equal(t, 2.0, record.PricePerMinute)
	assert.Equal(t, 10.0, record.TotalCost)

	rec = ts.do(t, http.MethodGet, "/api/billing/user/alice/total", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"user_id":"alice","total_spent":10}}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/usage-sessions/start", map[string]any{
		"resource_id": resource.ID,
		"user_id":     "bob",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/usage-sessions/resource/"+resource.ID+"?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []sessionBody
	decodeData(t, rec, &active)
	require.Len(t, active, 1)
	assert.Equal(t, "bob", active[0].UserID)

	rec = ts.do(t, http.MethodGet, "/api/usage-sessions/user/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var aliceSessions []sessionBody
	decodeData(t, rec, &aliceSessions)
	require.Len(t, aliceSessions, 1)
	assert.False(t, aliceSessions[0].IsActive)

	rec = ts.do(t, http.MethodGet, "/api/billing/resource/"+resource.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []billingBody
	decodeData(t, rec, &records)
	assert.Len(t, records, 1)
}

func TestUpdateResource(t *testing.T) {
	ts := setupTestServer(t)
	resource := ts.createResource(t, "room-a", 2, 1.5)

	rec := ts.do(t, http.MethodPatch, "/api/resources/"+resource.ID, map[string]any{"capacity": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated resourceBody
	decodeData(t, rec, &updated)
	assert.Equal(t, 4, updated.Capacity)
	assert.Equal(t, "room-a", updated.Name)
	assert.Equal(t, 1.5, updated.PricePerMinute)

	rec = ts.do(t, http.MethodDelete, "/api/resources/"+resource.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/resources/"+resource.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorResponses(t *testing.T) {
	ts := setupTestServer(t)
	resource := ts.createResource(t, "lab-1", 1, 1)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantType   string
		wantField  string
	}{
		{"zero capacity", http.MethodPost, "/api/resources", map[string]any{"name": "x", "capacity": 0, "price_per_minute": 1}, http.StatusBadRequest, "validation_error", "capacity"},
		{"negative price", http.MethodPost, "/api/resources", map[string]any{"name": "x", "capacity": 1, "price_per_minute": -1}, http.StatusBadRequest, "validation_error", "price_per_minute"},
		{"duplicate name", http.MethodPost, "/api/resources", map[string]any{"name": "lab-1", "capacity": 1, "price_per_minute": 1}, http.StatusConflict, "conflict", ""},
		{"malformed body", http.MethodPost, "/api/resources", "{", http.StatusBadRequest, "validation_error", "request"},
		{"unknown resource", http.MethodGet, "/api/resources/42", nil, http.StatusNotFound, "not_found", ""},
		{"invalid resource id", http.MethodGet, "/api/resources/abc", nil, http.StatusBadRequest, "validation_error", "id"},
		{"start on unknown resource", http.MethodPost, "/api/usage-sessions/start", map[string]any{"resource_id": "42", "user_id": "alice"}, http.StatusNotFound, "not_found", ""},
		{"start without user", http.MethodPost, "/api/usage-sessions/start", map[string]any{"resource_id": resource.ID, "user_id": " "}, http.StatusBadRequest, "validation_error", "user_id"},
		{"stop unknown session", http.MethodPost, "/api/usage-sessions/stop", map[string]any{"session_id": "42"}, http.StatusNotFound, "not_found", ""},
		{"bad active filter", http.MethodGet, "/api/usage-sessions?active=maybe", nil, http.StatusBadRequest, "validation_error", "active"},
		{"missing billing record", http.MethodGet, "/api/billing/session/42", nil, http.StatusNotFound, "not_found", ""},
		{"unknown route", http.MethodGet, "/api/nope", nil, http.StatusNotFound, "not_found", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			env := decodeEnvelope(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantType, env.Error.Type)
			if tt.wantField != "" {
				require.NotEmpty(t, env.Error.Errors)
				assert.Equal(t, tt.wantField, env.Error.Errors[0].Field)
			}
		})
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(fmt.Errorf("wrapped: %w", ErrNotFound))
	assert.Equal(t, "not_found", errType)
	assert.Equal(t, "not_found", code)

	errType, code = classifyErrorForLog(invalidRequestError())
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_request", code)

	errType, code = classifyErrorForLog(fmt.Errorf("boom"))
	assert.Equal(t, "internal_error", errType)
	assert.Equal(t, "internal_error", code)
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	httpMetrics, err := obsmetrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	resourceRepo := resourcerepo.Provide()
	billing := billingservice.New(billingservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  billingrepo.Provide(),
	})

	srv := NewServer(ServerParams{
		Gin: NewEngine(observability.Config{}, httpMetrics),
		ResourceSvc: resourceservice.New(resourceservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Clock: fake,
			Repo:  resourceRepo,
		}),
		SessionSvc: sessionservice.New(sessionservice.Params{
			DB:        db,
			Log:       log,
			GenID:     node,
			Clock:     fake,
			Repo:      sessionrepo.Provide(),
			Resources: resourceRepo,
			Billing:   billing,
		}),
		BillingSvc: billing,
	})

	return &testServer{engine: srv.Engine(), clock: fake}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	switch v := body.(type) {
	case nil:
	case string:
		payload = []byte(v)
	default:
		var err error
		payload, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createResource(t *testing.T, name string, capacity int, price float64) resourceBody {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/resources", map[string]any{
		"name":             name,
		"capacity":         capacity,
		"price_per_minute": price,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out resourceBody
	decodeData(t, rec, &out)
	return out
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Data)
	require.NoError(t, json.Unmarshal(env.Data, out))
}
