package batch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommunicationUploader_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/communications/upload-batch", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "agent_note", r.FormValue("communication_type"))
		assert.Equal(t, "Call with insured,note2.pdf", r.FormValue("titles"))

		_, _ = io.WriteString(w, `{"results":[
			{"doc_id":"d1","filename":"note1.pdf","status":"indexed","communication_type":"agent_note"},
			{"doc_id":"d2","filename":"note2.pdf","status":"failed","error":"empty document"}
		],"succeeded":1,"failed":1}`)
	}))
	defer server.Close()

	client := api.New(gateway.New(gateway.WithBaseURL(server.URL)))
	c := New(CommunicationUploader{API: client, Type: api.CommAgentNote})

	require.NoError(t, c.Add(api.Document{Name: "note1.pdf"}, api.Document{Name: "note2.pdf"}))
	require.NoError(t, c.SetMetadata(0, KeyTitle, "Call with insured"))

	out, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Batch complete: 1 succeeded, 1 failed", out.Message())
	assert.Equal(t, "d1", out.Items[0].Result.Identifier)
	assert.Equal(t, "empty document", out.Items[1].Result.ErrorText())
	assert.Equal(t, 2, c.Len())
}

func TestCommunicationUploader_InvalidType(t *testing.T) {
	c := New(CommunicationUploader{Type: "fax"})
	require.NoError(t, c.Add(api.Document{Name: "x.pdf"}))

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown communication type")
}

func TestCommunicationUploader_RejectsCommaInTitle(t *testing.T) {
	c := New(CommunicationUploader{Type: api.CommMemo})
	require.NoError(t, c.Add(api.Document{Name: "a.pdf"}, api.Document{Name: "b.pdf"}))
	require.NoError(t, c.SetMetadata(1, KeyTitle, "Renewal, final"))

	_, err := c.Submit(context.Background())
	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []int{1}, incomplete.Indices())
	assert.Equal(t, "1 file(s) with a comma in the title: file 2 (b.pdf)", err.Error())
}

func TestPolicyUploader_EndToEnd(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "POL-2024-HO-001,POL-2024-AU-002", r.FormValue("policy_numbers"))
		_, _ = io.WriteString(w, `{"results":[
			{"policy_number":"POL-2024-HO-001","filename":"a.pdf","status":"indexed","page_count":10,"chunk_count":40},
			{"policy_number":"POL-2024-AU-002","filename":"b.pdf","status":"indexed","page_count":6,"chunk_count":22}
		],"succeeded":2,"failed":0}`)
	}))
	defer server.Close()

	client := api.New(gateway.New(gateway.WithBaseURL(server.URL)))
	c := New(PolicyUploader{API: client})
	require.NoError(t, c.Add(api.Document{Name: "a.pdf"}, api.Document{Name: "b.pdf"}))
	require.NoError(t, c.SetMetadata(0, KeyPolicyNumber, "POL-2024-HO-001"))
	require.NoError(t, c.SetMetadata(1, KeyPolicyNumber, "POL-2024-AU-002"))

	out, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.True(t, out.Cleared)
	require.NotNil(t, out.Items[1].Result.ChunkCount)
	assert.Equal(t, 22, *out.Items[1].Result.ChunkCount)
}
