package batch

import (
	"context"
	"strings"

	"github.com/policyassist/policyassist/pkg/api"
)

// Metadata keys.
const (
	KeyPolicyNumber = "policy_number"
	KeyTitle        = "title"
)

// PolicyAPI is the slice of *api.Client used for policy batches.
type PolicyAPI interface {
	UploadPoliciesBatch(ctx context.Context, docs []api.Document, policyNumbers []string) (*api.BatchResponse, error)
}

// CommunicationAPI is the slice of *api.Client used for communication batches.
type CommunicationAPI interface {
	UploadCommunicationsBatch(ctx context.Context, docs []api.Document, t api.CommunicationType, titles []string) (*api.BatchResponse, error)
}

// PolicyUploader uploads policies; every entry needs a policy number.
type PolicyUploader struct {
	API PolicyAPI
}

func (PolicyUploader) Kind() string { return "policy" }

func (PolicyUploader) Required() []Field {
	return []Field{{Key: KeyPolicyNumber, Label: "policy number"}}
}

func (PolicyUploader) Validate() error { return nil }

func (PolicyUploader) Joined() []Field {
	return []Field{{Key: KeyPolicyNumber, Label: "policy number"}}
}

func (u PolicyUploader) Upload(ctx context.Context, entries []Entry) (*api.BatchResponse, error) {
	docs := make([]api.Document, len(entries))
	numbers := make([]string, len(entries))
	for i, e := range entries {
		docs[i] = e.File
		numbers[i] = e.Value(KeyPolicyNumber)
	}
	return u.API.UploadPoliciesBatch(ctx, docs, numbers)
}

// CommunicationUploader uploads communications of one type. Titles are
// optional and default to the file name, with commas replaced by spaces.
type CommunicationUploader struct {
	API  CommunicationAPI
	Type api.CommunicationType
}

func (CommunicationUploader) Kind() string { return "communication" }

func (CommunicationUploader) Required() []Field { return nil }

func (u CommunicationUploader) Validate() error {
	_, err := api.ParseCommunicationType(string(u.Type))
	return err
}

func (CommunicationUploader) Joined() []Field {
	return []Field{{Key: KeyTitle, Label: "title"}}
}

func (u CommunicationUploader) Upload(ctx context.Context, entries []Entry) (*api.BatchResponse, error) {
	docs := make([]api.Document, len(entries))
	titles := make([]string, len(entries))
	for i, e := range entries {
		docs[i] = e.File
		titles[i] = e.Value(KeyTitle)
		if titles[i] == "" {
			titles[i] = strings.ReplaceAll(e.File.Name, ",", " ")
		}
	}
	return u.API.UploadCommunicationsBatch(ctx, docs, u.Type, titles)
}
