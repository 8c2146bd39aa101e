package portal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/batch"
	"github.com/policyassist/policyassist/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// policyServer fakes the policy endpoints. Policies in indexed are
// available; numbers in broken fail the availability check.
type policyServer struct {
	mu      sync.Mutex
	indexed map[string]int
	broken  map[string]bool
	batch   []api.BatchResult

	checks  atomic.Int32
	deletes atomic.Int32
}

func newPolicyServer() *policyServer {
	return &policyServer{
		indexed: map[string]int{"POL-2024-HO-001": 42},
		broken:  map[string]bool{"POL-2024-AU-002": true},
	}
}

func (s *policyServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /policies/{number}/available", func(w http.ResponseWriter, r *http.Request) {
		s.checks.Add(1)
		n := r.PathValue("number")
		s.mu.Lock()
		chunks, ok := s.indexed[n]
		broken := s.broken[n]
		s.mu.Unlock()
		if broken {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "vector store unavailable"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, api.Availability{Available: false})
			return
		}
		at := "2024-06-01T12:00:00Z"
		writeJSON(w, http.StatusOK, api.Availability{Available: true, ChunkCount: intPtr(chunks), IndexedAt: &at})
	})
	mux.HandleFunc("POST /policies/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		n := r.FormValue("policy_number")
		s.mu.Lock()
		s.indexed[n] = 7
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, api.UploadResult{Status: "indexed", JobID: "job-1"})
	})
	mux.HandleFunc("POST /policies/upload-batch", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		numbers := strings.Split(r.FormValue("policy_numbers"), ",")
		s.mu.Lock()
		results := s.batch
		for _, res := range results {
			if res.Status.Indexed() {
				s.indexed[res.PolicyNumber] = 3
			}
		}
		s.mu.Unlock()
		ok := 0
		for _, res := range results {
			if res.Status.Indexed() {
				ok++
			}
		}
		if len(numbers) != len(r.MultipartForm.File["files"]) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "count mismatch"})
			return
		}
		writeJSON(w, http.StatusOK, api.BatchResponse{Results: results, Succeeded: ok, Failed: len(results) - ok})
	})
	mux.HandleFunc("GET /policies/upload/job-1", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.indexed["POL-JOB-1"] = 9
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, api.UploadStatus{JobID: "job-1", PolicyNumber: "POL-JOB-1", Status: "indexed", ChunkCount: intPtr(9)})
	})
	mux.HandleFunc("GET /policies/upload/job-2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Job not found"})
	})
	mux.HandleFunc("DELETE /policies/{number}", func(w http.ResponseWriter, r *http.Request) {
		s.deletes.Add(1)
		n := r.PathValue("number")
		s.mu.Lock()
		_, ok := s.indexed[n]
		delete(s.indexed, n)
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Policy not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func pdf(name string) api.Document {
	return api.Document{Name: name, ContentType: "application/pdf", Data: []byte("%PDF-1.4 " + name)}
}

func TestPoliciesProbe(t *testing.T) {
	srv := newPolicyServer()
	mgr := staffManager(t)
	p := NewPolicies(newClient(t, srv.handler(), mgr), mgr, nil)

	infos, err := p.Probe(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, "POL-2024-HO-001", infos[0].Number)
	assert.True(t, infos[0].Available)
	require.NotNil(t, infos[0].ChunkCount)
	assert.Equal(t, 42, *infos[0].ChunkCount)

	assert.Equal(t, PolicyInfo{Number: "POL-2024-AU-002"}, infos[1])
	assert.Equal(t, PolicyInfo{Number: "POL-2024-CGL-003"}, infos[2])

	assert.Equal(t, infos, p.List())
	assert.EqualValues(t, 3, srv.checks.Load())
}

func TestPoliciesRequireStaff(t *testing.T) {
	srv := newPolicyServer()
	mgr := policyholderManager(t)
	p := NewPolicies(newClient(t, srv.handler(), mgr), mgr, nil)

	_, err := p.Probe(context.Background())
	assert.ErrorIs(t, err, session.ErrForbidden)
	_, err = p.Upload(context.Background(), pdf("a.pdf"), "POL-X")
	assert.ErrorIs(t, err, session.ErrForbidden)
	_, err = p.Delete(context.Background(), "POL-2024-HO-001")
	assert.ErrorIs(t, err, session.ErrForbidden)
	_, err = p.SubmitBatch(context.Background())
	assert.ErrorIs(t, err, session.ErrForbidden)
	_, err = p.JobStatus(context.Background(), "job-1")
	assert.ErrorIs(t, err, session.ErrForbidden)
	assert.Zero(t, srv.checks.Load())
}

func TestPoliciesJobStatus(t *testing.T) {
	srv := newPolicyServer()
	mgr := staffManager(t)
	p := NewPolicies(newClient(t, srv.handler(), mgr), mgr, nil)

	_, err := p.JobStatus(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrJobIDRequired)

	st, err := p.JobStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "POL-JOB-1", st.PolicyNumber)
	assert.Equal(t, "indexed", st.Status)

	list := p.List()
	require.Len(t, list, 1)
	assert.Equal(t, "POL-JOB-1", list[0].Number)
	assert.True(t, list[0].Available)

	_, err = p.JobStatus(context.Background(), "job-2")
	var ue *UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Job not found", ue.Error())
}

func TestPoliciesUpload(t *testing.T) {
	srv := newPolicyServer()
	mgr := staffManager(t)
	p := NewPolicies(newClient(t, srv.handler(), mgr), mgr, nil)

	msg, err := p.Upload(context.Background(), pdf("home.pdf"), " POL-NEW-1 ")
	require.NoError(t, err)
	assert.Equal(t, "Policy POL-NEW-1 uploaded and indexed (indexed)", msg)

	list := p.List()
	require.Len(t, list, 1)
	assert.Equal(t, "POL-NEW-1", list[0].Number)
	assert.True(t, list[0].Available)
	assert.Equal(t, 7, *list[0].ChunkCount)

	// A second upload of the same number updates the row in place.
	_, err = p.Upload(context.Background(), pdf("home-v2.pdf"), "POL-NEW-1")
	require.NoError(t, err)
	assert.Len(t, p.List(), 1)
}

func TestPoliciesUploadValidation(t *testing.T) {
	srv := newPolicyServer()
	mgr := staffManager(t)
	p := NewPolicies(newClient(t, srv.handler(), mgr), mgr, nil)

	_, err := p.Upload(context.Background(), api.Document{}, "POL-1")
	assert.ErrorIs(t, err, ErrFileRequired)
	_, err = p.Upload(context.Background(), pdf("a.pdf"), "   ")
	assert.ErrorIs(t, err, ErrPolicyNumberRequired)
	assert.Zero(t, srv.checks.Load())
}

func TestPoliciesSubmitBatch(t *testing.T) {
	srv := newPolicyServer()
	failure := "unreadable PDF"
	srv.batch = []api.BatchResult{
		{PolicyNumber: "POL-B-1", Filename: "one.pdf", Status: api.StatusIndexed, ChunkCount: intPtr(3)},
		{PolicyNumber: "POL-B-2", Filename: "two.pdf", Status: api.StatusFailed, Error: &failure},
	}
	mgr := staffManager(t)
	p := NewPolicies(newClient(t, srv.handler(), mgr), mgr, nil)

	require.NoError(t, p.Batch().Add(pdf("one.pdf"), pdf("two.pdf")))
	require.NoError(t, p.Batch().SetMetadata(0, batch.KeyPolicyNumber, "POL-B-1"))
	require.NoError(t, p.Batch().SetMetadata(1, batch.KeyPolicyNumber, "POL-B-2"))

	out, err := p.SubmitBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Batch complete: 1 succeeded, 1 failed", out.Message())
	assert.False(t, out.Cleared)
	assert.Equal(t, 2, p.Batch().Len())

	list := p.List()
	require.Len(t, list, 1)
	assert.Equal(t, "POL-B-1", list[0].Number)
	assert.True(t, list[0].Available)
	assert.EqualValues(t, 1, srv.checks.Load())
}

func TestPoliciesSubmitBatchIncomplete(t *testing.T) {
	srv := newPolicyServer()
	mgr := staffManager(t)
	p := NewPolicies(newClient(t, srv.handler(), mgr), mgr, nil)

	require.NoError(t, p.Batch().Add(pdf("one.pdf"), pdf("two.pdf")))
	require.NoError(t, p.Batch().SetMetadata(0, batch.KeyPolicyNumber, "POL-B-1"))

	_, err := p.SubmitBatch(context.Background())
	var incomplete *batch.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []int{1}, incomplete.Indices())
}

func TestPoliciesDelete(t *testing.T) {
	srv := newPolicyServer()
	mgr := staffManager(t)
	p := NewPolicies(newClient(t, srv.handler(), mgr), mgr, nil)

	_, err := p.Probe(context.Background())
	require.NoError(t, err)

	msg, err := p.Delete(context.Background(), "POL-2024-HO-001")
	require.NoError(t, err)
	assert.Equal(t, "Policy POL-2024-HO-001 deleted", msg)

	for _, info := range p.List() {
		assert.NotEqual(t, "POL-2024-HO-001", info.Number)
	}
	assert.Len(t, p.List(), 2)

	_, err = p.Delete(context.Background(), "POL-2024-HO-001")
	require.Error(t, err)
	assert.Equal(t, "Policy not found", err.Error())
	assert.Len(t, p.List(), 2)
}
