package api

import (
	"fmt"
	"strings"
)

// Citation is a retrieved excerpt backing an answer. Citations arrive
// relevance-descending and are kept in that order.
type Citation struct {
	Page            *int    `json:"page"`
	Section         string  `json:"section"`
	Text            string  `json:"text"`
	SimilarityScore float64 `json:"similarity_score"`
}

// PageLabel renders the page for display ("p. 4", or "" when unknown).
func (c Citation) PageLabel() string {
	if c.Page == nil {
		return ""
	}
	return fmt.Sprintf("p. %d", *c.Page)
}

// QueryResult is an answered question.
type QueryResult struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	LatencyMs  int        `json:"latency_ms"`
	QueryID    string     `json:"query_id"`
}

// SetupResult is the development identity issued by /auth/test-setup.
type SetupResult struct {
	TenantID   string `json:"tenant_id"`
	StaffToken string `json:"staff_token"`
}

// VerifyRequest identifies a policyholder by last name or company name.
type VerifyRequest struct {
	TenantID     string `json:"tenant_id"`
	PolicyNumber string `json:"policy_number"`
	LastName     string `json:"last_name,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
}

// VerifyResult reports whether the policyholder matched.
type VerifyResult struct {
	Verified bool   `json:"verified"`
	Token    string `json:"token,omitempty"`
}

// Document is a file to upload.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult is returned by single uploads.
type UploadResult struct {
	Status string `json:"status"`
	JobID  string `json:"job_id,omitempty"`
	DocID  string `json:"doc_id,omitempty"`
}

// UploadStatus is the state of an asynchronous policy upload job.
type UploadStatus struct {
	JobID        string  `json:"job_id"`
	PolicyNumber string  `json:"policy_number"`
	Status       string  `json:"status"`
	PageCount    *int    `json:"page_count"`
	ChunkCount   *int    `json:"chunk_count"`
	Error        *string `json:"error"`
}

// IndexStatus is the per-file outcome of a batch upload.
type IndexStatus string

const (
	StatusIndexed IndexStatus = "indexed"
	StatusFailed  IndexStatus = "failed"
)

// Indexed reports whether the file was indexed. Any status other than
// "indexed" counts as a failure.
func (s IndexStatus) Indexed() bool {
	return strings.EqualFold(string(s), string(StatusIndexed))
}

// BatchResult is one file's outcome. Identifier is the policy number for
// policy batches and the document id for communication batches.
type BatchResult struct {
	Identifier        string            `json:"-"`
	PolicyNumber      string            `json:"policy_number,omitempty"`
	DocID             string            `json:"doc_id,omitempty"`
	Filename          string            `json:"filename"`
	Status            IndexStatus       `json:"status"`
	CommunicationType CommunicationType `json:"communication_type,omitempty"`
	PageCount         *int              `json:"page_count"`
	ChunkCount        *int              `json:"chunk_count"`
	Error             *string           `json:"error"`
}

// ErrorText returns the per-file error, or "".
func (r BatchResult) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// BatchResponse is the body of both batch endpoints. Results are in
// submission order.
type BatchResponse struct {
	Results   []BatchResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

func (b *BatchResponse) fillIdentifiers() {
	for i := range b.Results {
		r := &b.Results[i]
		if r.PolicyNumber != "" {
			r.Identifier = r.PolicyNumber
		} else {
			r.Identifier = r.DocID
		}
	}
}

// Availability reports whether a policy is indexed and queryable.
type Availability struct {
	Available  bool    `json:"available"`
	ChunkCount *int    `json:"chunk_count"`
	IndexedAt  *string `json:"indexed_at"`
}

// PolicySummary is one row of the policy listing.
type PolicySummary struct {
	PolicyNumber string  `json:"policy_number"`
	Filename     string  `json:"filename,omitempty"`
	Status       string  `json:"status,omitempty"`
	PageCount    *int    `json:"page_count"`
	ChunkCount   *int    `json:"chunk_count"`
	IndexedAt    *string `json:"indexed_at"`
}

// PolicyPage is a page of the policy listing.
type PolicyPage struct {
	Policies []PolicySummary `json:"policies"`
	Total    int             `json:"total"`
}

// Communication is one indexed agency document.
type Communication struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	CommunicationType CommunicationType `json:"communication_type"`
	Status            string            `json:"status"`
	Filename          string            `json:"filename"`
	ChunkCount        *int              `json:"chunk_count"`
	CreatedAt         string            `json:"created_at"`
}

// CommunicationPage is a page of the communications listing.
type CommunicationPage struct {
	Communications []Communication `json:"communications"`
	Total          int             `json:"total"`
}

// HistoryItem is one row of a query log listing. The policyholder listing
// leaves the user and document fields empty.
type HistoryItem struct {
	ID             string       `json:"id"`
	UserType       UserType     `json:"user_type,omitempty"`
	UserIdentifier string       `json:"user_identifier,omitempty"`
	PolicyNumber   *string      `json:"policy_number"`
	DocumentType   DocumentType `json:"document_type,omitempty"`
	Question       string       `json:"question"`
	AnswerPreview  string       `json:"answer_preview"`
	Confidence     *float64     `json:"confidence"`
	LatencyMs      *int         `json:"latency_ms"`
	CitationCount  int          `json:"citation_count"`
	QueriedAt      string       `json:"queried_at"`
}

// HistoryPage is a page of the query log.
type HistoryPage struct {
	Queries []HistoryItem `json:"queries"`
	Total   int           `json:"total"`
}

// HistoryDetail is one logged query with its full answer.
type HistoryDetail struct {
	ID             string       `json:"id"`
	Question       string       `json:"question"`
	Answer         string       `json:"answer"`
	Citations      []Citation   `json:"citations"`
	Confidence     float64      `json:"confidence"`
	LatencyMs      int          `json:"latency_ms"`
	UserType       UserType     `json:"user_type"`
	UserIdentifier string       `json:"user_identifier"`
	PolicyNumber   *string      `json:"policy_number"`
	DocumentType   DocumentType `json:"document_type,omitempty"`
	QueriedAt      string       `json:"queried_at"`
}

// HistoryStats aggregates the staff query log.
type HistoryStats struct {
	TotalQueries int `json:"total_queries"`
	ByUserType   struct {
		Staff        int `json:"staff"`
		Policyholder int `json:"policyholder"`
	} `json:"by_user_type"`
	ByDocumentType struct {
		Policy        int `json:"policy"`
		Communication int `json:"communication"`
	} `json:"by_document_type"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// HistoryFilter narrows the staff query log. Zero values are omitted.
type HistoryFilter struct {
	UserType     UserType
	DocumentType DocumentType
	PolicyNumber string
	Search       string
}

// IsZero reports whether no filter is set.
func (f HistoryFilter) IsZero() bool {
	return f == HistoryFilter{}
}
