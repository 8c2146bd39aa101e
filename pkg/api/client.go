// Package api holds typed calls for the document API's REST surface. Every
// call goes through a Caller, normally a *gateway.Client.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/policyassist/policyassist/pkg/gateway"
)

// ErrCommaInList rejects a batch value that would break its comma-separated
// form field.
var ErrCommaInList = errors.New("value contains a comma")

// Caller issues one API call. *gateway.Client implements it.
type Caller interface {
	Call(ctx context.Context, method, path string, body, out any) error
}

// Client wraps a Caller with typed endpoints.
type Client struct {
	caller Caller
}

// New creates a Client.
func New(caller Caller) *Client {
	return &Client{caller: caller}
}

// Auth

// TestSetup issues a development tenant and staff token.
func (c *Client) TestSetup(ctx context.Context) (*SetupResult, error) {
	var out SetupResult
	if err := c.caller.Call(ctx, http.MethodPost, "/auth/test-setup", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPolicyholder checks a policyholder's identity against a policy.
func (c *Client) VerifyPolicyholder(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.caller.Call(ctx, http.MethodPost, "/auth/verify-policyholder", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Policies

// UploadPolicy uploads a single policy document.
func (c *Client) UploadPolicy(ctx context.Context, doc Document, policyNumber string) (*UploadResult, error) {
	form := (&gateway.Multipart{}).
		AddFile(fileFor("file", doc)).
		AddField("policy_number", policyNumber)

	var out UploadResult
	if err := c.caller.Call(ctx, http.MethodPost, "/policies/upload", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PolicyUploadStatus polls an upload job.
func (c *Client) PolicyUploadStatus(ctx context.Context, jobID string) (*UploadStatus, error) {
	var out UploadStatus
	if err := c.caller.Call(ctx, http.MethodGet, "/policies/upload/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadPoliciesBatch uploads docs in one request; policyNumbers[i] belongs
// to docs[i].
func (c *Client) UploadPoliciesBatch(ctx context.Context, docs []Document, policyNumbers []string) (*BatchResponse, error) {
	if len(docs) != len(policyNumbers) {
		return nil, fmt.Errorf("batch has %d files but %d policy numbers", len(docs), len(policyNumbers))
	}
	form := &gateway.Multipart{}
	for _, d := range docs {
		form.AddFile(fileFor("files", d))
	}
	joined, err := joinList("policy_numbers", policyNumbers)
	if err != nil {
		return nil, err
	}
	form.AddField("policy_numbers", joined)

	var out BatchResponse
	if err := c.caller.Call(ctx, http.MethodPost, "/policies/upload-batch", form, &out); err != nil {
		return nil, err
	}
	out.fillIdentifiers()
	return &out, nil
}

// joinList encodes values as one comma-separated form field.
func joinList(field string, values []string) (string, error) {
	for i, v := range values {
		if strings.Contains(v, ",") {
			return "", fmt.Errorf("%s[%d] %q: %w", field, i, v, ErrCommaInList)
		}
	}
	return strings.Join(values, ","), nil
}

// CheckPolicyAvailable reports whether a policy is indexed.
func (c *Client) CheckPolicyAvailable(ctx context.Context, policyNumber string) (*Availability, error) {
	var out Availability
	if err := c.caller.Call(ctx, http.MethodGet, policyPath(policyNumber)+"/available", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryPolicy asks a question against one policy.
func (c *Client) QueryPolicy(ctx context.Context, policyNumber, question string) (*QueryResult, error) {
	body := map[string]string{"question": question}
	var out QueryResult
	if err := c.caller.Call(ctx, http.MethodPost, policyPath(policyNumber)+"/query", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePolicy removes a policy and its indexed data.
func (c *Client) DeletePolicy(ctx context.Context, policyNumber string) error {
	return c.caller.Call(ctx, http.MethodDelete, policyPath(policyNumber), nil, nil)
}

// ListPolicies returns a page of policy metadata matching search.
func (c *Client) ListPolicies(ctx context.Context, search string, page, pageSize int) (*PolicyPage, error) {
	q := url.Values{}
	q.Set("search", search)
	setPaging(q, page, pageSize)

	var out PolicyPage
	if err := c.caller.Call(ctx, http.MethodGet, "/policies?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Communications

// UploadCommunication uploads one agency document. An empty title is omitted.
func (c *Client) UploadCommunication(ctx context.Context, doc Document, t CommunicationType, title string) (*UploadResult, error) {
	form := (&gateway.Multipart{}).
		AddFile(fileFor("file", doc)).
		AddField("communication_type", string(t))
	if title != "" {
		form.AddField("title", title)
	}

	var out UploadResult
	if err := c.caller.Call(ctx, http.MethodPost, "/communications/upload", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadCommunicationsBatch uploads docs of one type in a single request.
// titles may be empty; otherwise titles[i] belongs to docs[i] and a blank
// title defaults to the file name.
func (c *Client) UploadCommunicationsBatch(ctx context.Context, docs []Document, t CommunicationType, titles []string) (*BatchResponse, error) {
	if len(titles) > 0 && len(titles) != len(docs) {
		return nil, fmt.Errorf("batch has %d files but %d titles", len(docs), len(titles))
	}
	form := &gateway.Multipart{}
	for _, d := range docs {
		form.AddFile(fileFor("files", d))
	}
	form.AddField("communication_type", string(t))
	if len(titles) > 0 {
		resolved := make([]string, len(titles))
		for i, title := range titles {
			resolved[i] = strings.TrimSpace(title)
			if resolved[i] == "" {
				resolved[i] = strings.ReplaceAll(docs[i].Name, ",", " ")
			}
		}
		joined, err := joinList("titles", resolved)
		if err != nil {
			return nil, err
		}
		form.AddField("titles", joined)
	}

	var out BatchResponse
	if err := c.caller.Call(ctx, http.MethodPost, "/communications/upload-batch", form, &out); err != nil {
		return nil, err
	}
	out.fillIdentifiers()
	return &out, nil
}

// CommunicationQuery narrows ListCommunications. Zero values are omitted.
type CommunicationQuery struct {
	Type   CommunicationType
	Search string
}

// ListCommunications returns a page of communications.
func (c *Client) ListCommunications(ctx context.Context, page, pageSize int, filter CommunicationQuery) (*CommunicationPage, error) {
	q := url.Values{}
	setPaging(q, page, pageSize)
	if filter.Type != "" {
		q.Set("communication_type", string(filter.Type))
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}

	var out CommunicationPage
	if err := c.caller.Call(ctx, http.MethodGet, "/communications?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryCommunications asks a question across communications, optionally
// restricted to one type.
func (c *Client) QueryCommunications(ctx context.Context, question string, t CommunicationType) (*QueryResult, error) {
	body := struct {
		Question          string            `json:"question"`
		CommunicationType CommunicationType `json:"communication_type,omitempty"`
	}{question, t}

	var out QueryResult
	if err := c.caller.Call(ctx, http.MethodPost, "/communications/query", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCommunication removes one communication.
func (c *Client) DeleteCommunication(ctx context.Context, docID string) error {
	return c.caller.Call(ctx, http.MethodDelete, "/communications/"+url.PathEscape(docID), nil, nil)
}

// History

// StaffHistory returns a page of the tenant's query log.
func (c *Client) StaffHistory(ctx context.Context, page, pageSize int, f HistoryFilter) (*HistoryPage, error) {
	q := url.Values{}
	setPaging(q, page, pageSize)
	if f.UserType != "" {
		q.Set("user_type", string(f.UserType))
	}
	if f.DocumentType != "" {
		q.Set("document_type", string(f.DocumentType))
	}
	if f.PolicyNumber != "" {
		q.Set("policy_number", f.PolicyNumber)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}

	path := "/history/staff"
	if qs := q.Encode(); qs != "" {
		path += "?" + qs
	}

	var out HistoryPage
	if err := c.caller.Call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StaffStats returns aggregate query log statistics.
func (c *Client) StaffStats(ctx context.Context) (*HistoryStats, error) {
	var out HistoryStats
	if err := c.caller.Call(ctx, http.MethodGet, "/history/staff/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryDetail returns one logged query in full.
func (c *Client) QueryDetail(ctx context.Context, queryID string) (*HistoryDetail, error) {
	var out HistoryDetail
	if err := c.caller.Call(ctx, http.MethodGet, "/history/staff/"+url.PathEscape(queryID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PolicyholderHistory returns a page of the signed-in policyholder's queries.
func (c *Client) PolicyholderHistory(ctx context.Context, page, pageSize int) (*HistoryPage, error) {
	q := url.Values{}
	setPaging(q, page, pageSize)

	var out HistoryPage
	if err := c.caller.Call(ctx, http.MethodGet, "/history/policyholder?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func policyPath(policyNumber string) string {
	return "/policies/" + url.PathEscape(policyNumber)
}

func setPaging(q url.Values, page, pageSize int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
}

func fileFor(field string, d Document) gateway.File {
	return gateway.File{Field: field, Name: d.Name, ContentType: d.ContentType, Data: d.Data}
}
