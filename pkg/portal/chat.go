package portal

import (
	"context"

	"github.com/policyassist/policyassist/pkg/chat"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
)

// SuggestedQuestions are offered to policyholders on an empty thread.
var SuggestedQuestions = []string{
	"What are my coverage limits?",
	"What is my deductible?",
	"What perils are covered?",
	"Is flood damage covered?",
	"How do I file a claim?",
	"What is my liability coverage?",
}

// StaffChat is a staff thread that may ask about any policy or the
// communications corpus.
type StaffChat struct {
	*chat.Controller
}

// NewStaffChat creates a StaffChat.
func NewStaffChat(q chat.Querier, mgr *session.Manager, logger *zap.Logger, opts ...chat.Option) *StaffChat {
	base := []chat.Option{
		chat.WithGate(mgr, session.ViewStaffQuery),
		chat.WithErrorFormatter(chat.StaffErrorText),
		chat.WithLogger(logger),
	}
	return &StaffChat{Controller: chat.New(q, append(base, opts...)...)}
}

// PolicyholderChat is a thread bound to the signed-in policyholder's policy.
type PolicyholderChat struct {
	*chat.Controller
	session *session.Manager
}

// NewPolicyholderChat creates a PolicyholderChat.
func NewPolicyholderChat(q chat.Querier, mgr *session.Manager, logger *zap.Logger, opts ...chat.Option) *PolicyholderChat {
	base := []chat.Option{
		chat.WithGate(mgr, session.ViewPolicyholderChat),
		chat.WithErrorFormatter(chat.PolicyholderErrorText),
		chat.WithLogger(logger),
	}
	return &PolicyholderChat{Controller: chat.New(q, append(base, opts...)...), session: mgr}
}

// Ask submits question about the session's policy.
func (c *PolicyholderChat) Ask(ctx context.Context, question string) (chat.Message, error) {
	return c.Submit(ctx, question, chat.PolicyTarget(c.session.Current().PolicyNumber))
}

// Suggestions returns the suggested questions while the thread is empty.
func (c *PolicyholderChat) Suggestions() []string {
	if len(c.Messages()) > 0 {
		return nil
	}
	return append([]string(nil), SuggestedQuestions...)
}
