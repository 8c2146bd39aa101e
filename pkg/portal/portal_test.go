package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/gateway"
	"github.com/policyassist/policyassist/pkg/session"
	"github.com/policyassist/policyassist/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	return session.NewManager(context.Background(), store.NewMemoryBackend())
}

func staffManager(t *testing.T) *session.Manager {
	t.Helper()
	m := newManager(t)
	require.NoError(t, m.Login(context.Background(),
		session.StaffIdentity("staff-token", "tenant-1", session.RoleAdmin, StaffEmail)))
	return m
}

func policyholderManager(t *testing.T) *session.Manager {
	t.Helper()
	m := newManager(t)
	require.NoError(t, m.Login(context.Background(),
		session.PolicyholderIdentity("ph-token", "tenant-1", "POL-2024-HO-001")))
	return m
}

// newClient points an API client at h, authenticated by mgr.
func newClient(t *testing.T, h http.Handler, mgr *session.Manager) *api.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return api.New(gateway.New(gateway.WithBaseURL(srv.URL), gateway.WithTokenSource(mgr)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intPtr(i int) *int { return &i }

func TestPortalBuildsViews(t *testing.T) {
	mgr := staffManager(t)
	client := newClient(t, http.NewServeMux(), mgr)
	p := New(client, mgr, nil)

	assert.NotNil(t, p.Logger)
	assert.NotNil(t, p.Auth())
	assert.NotNil(t, p.Policies().Batch())
	assert.Equal(t, api.CommLetter, p.Communications().BatchType())
	assert.Equal(t, HistoryPageSize, p.StaffHistory().List().PageSize)
	assert.Equal(t, HistoryPageSize, p.PolicyholderHistory().List().PageSize)
	assert.NotNil(t, p.StaffChat())
	assert.Len(t, p.PolicyholderChat().Suggestions(), 6)
}

func TestUserError(t *testing.T) {
	cause := &gateway.APIError{Status: 404, Message: "Policy not found"}
	err := userError(cause)

	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Policy not found", err.Error())
	assert.ErrorIs(t, err, cause)

	plain := context.Canceled
	assert.Equal(t, plain, userError(plain))
	assert.NoError(t, userError(nil))
}
