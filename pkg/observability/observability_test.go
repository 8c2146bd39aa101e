package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/policies/POL-2024-HO-001/query", "/policies/{id}/query"},
		{"/policies?search=ho&page=2&page_size=20", "/policies"},
		{"/policies/upload-batch", "/policies/upload-batch"},
		{"/history/staff/3f2a9c1e-77aa-4b57-9f1f-0b0c1d2e3f40", "/history/staff/{id}"},
		{"/auth/test-setup", "/auth/test-setup"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RouteLabel(tt.path), tt.path)
	}
}

func TestRecordGatewayRequest(t *testing.T) {
	before := testutil.ToFloat64(gatewayRequestsTotal.WithLabelValues("POST", "/policies/{id}/query", "200"))
	RecordGatewayRequest("POST", "/policies/POL-1/query", 200, 10*time.Millisecond)
	after := testutil.ToFloat64(gatewayRequestsTotal.WithLabelValues("POST", "/policies/{id}/query", "200"))
	assert.Equal(t, before+1, after)

	RecordGatewayRequest("GET", "/policies", 0, time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(gatewayRequestsTotal.WithLabelValues("GET", "/policies", "error")), 1.0)
}

func TestRecordBatchUpload(t *testing.T) {
	indexed := gatewayCounter(t, "policy", "indexed")
	failed := gatewayCounter(t, "policy", "failed")

	RecordBatchUpload("policy", "partial", 2, 1)

	assert.Equal(t, indexed+2, gatewayCounter(t, "policy", "indexed"))
	assert.Equal(t, failed+1, gatewayCounter(t, "policy", "failed"))
}

func gatewayCounter(t *testing.T, kind, status string) float64 {
	t.Helper()
	return testutil.ToFloat64(batchFilesTotal.WithLabelValues(kind, status))
}

func TestInitMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InitMetrics()
		InitMetrics()
	})
}

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck(&HealthCheck{Name: "ok", CheckFunc: func(context.Context) error { return nil }})
	hc.RegisterCheck(&HealthCheck{Name: "soft", CheckFunc: func(context.Context) error { return errors.New("slow") }})

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, resp.Status)
	assert.Equal(t, HealthStatusHealthy, resp.Checks["ok"].Status)
	assert.Equal(t, "slow", resp.Checks["soft"].Message)

	hc.RegisterCheck(&HealthCheck{Name: "hard", Critical: true, CheckFunc: func(context.Context) error { return errors.New("down") }})
	assert.Equal(t, HealthStatusUnhealthy, hc.Check(context.Background()).Status)
}

func TestHealthChecker_Timeout(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck(&HealthCheck{
		Name:     "hang",
		Critical: true,
		Timeout:  20 * time.Millisecond,
		CheckFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
}

func TestServerHandler(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Status)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestNewLogger(t *testing.T) {
	nop := NewLogger(LogConfig{})
	require.NotNil(t, nop)

	path := filepath.Join(t.TempDir(), "client.log")
	l := NewLogger(LogConfig{File: path})
	l.Info("hello")
	_ = l.Sync()
	assert.FileExists(t, path)
}
