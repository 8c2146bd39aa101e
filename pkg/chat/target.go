package chat

import (
	"context"
	"strings"

	"github.com/policyassist/policyassist/pkg/api"
)

// Kind is the document class a question runs against.
type Kind int

const (
	KindPolicy Kind = iota
	KindCommunications
)

// Target binds a question to a policy or to the communications corpus.
type Target struct {
	Kind         Kind
	PolicyNumber string
	// CommunicationType optionally narrows a communications question.
	CommunicationType api.CommunicationType
}

// PolicyTarget asks against one policy.
func PolicyTarget(policyNumber string) Target {
	return Target{Kind: KindPolicy, PolicyNumber: policyNumber}
}

// CommunicationsTarget asks across communications; t may be empty.
func CommunicationsTarget(t api.CommunicationType) Target {
	return Target{Kind: KindCommunications, CommunicationType: t}
}

func (t Target) label() string {
	if t.Kind == KindCommunications {
		return "communications"
	}
	return "policy"
}

func (t Target) validate() error {
	if t.Kind == KindPolicy && strings.TrimSpace(t.PolicyNumber) == "" {
		return ErrNoPolicy
	}
	return nil
}

func (t Target) ask(ctx context.Context, q Querier, question string) (*api.QueryResult, error) {
	if t.Kind == KindCommunications {
		return q.QueryCommunications(ctx, question, t.CommunicationType)
	}
	return q.QueryPolicy(ctx, strings.TrimSpace(t.PolicyNumber), question)
}
