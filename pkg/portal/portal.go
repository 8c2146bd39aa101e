// Package portal assembles the client's feature views from the controller
// packages: sign-in, policy and communication management, query history,
// document pickers, and the chat threads.
package portal

import (
	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
)

// UserError is an error whose text is shown to the user verbatim.
type UserError struct {
	Text string
	Err  error
}

func (e *UserError) Error() string { return e.Text }

func (e *UserError) Unwrap() error { return e.Err }

// Portal holds the shared collaborators every view needs.
type Portal struct {
	API     *api.Client
	Session *session.Manager
	Logger  *zap.Logger
}

// New creates a Portal. A nil logger is replaced with a no-op logger.
func New(client *api.Client, mgr *session.Manager, logger *zap.Logger) *Portal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Portal{API: client, Session: mgr, Logger: logger}
}

// Auth returns the sign-in flows.
func (p *Portal) Auth() *Auth {
	return NewAuth(p.API, p.Session, p.Logger)
}

// Policies returns the staff policy view.
func (p *Portal) Policies() *Policies {
	return NewPolicies(p.API, p.Session, p.Logger)
}

// Communications returns the staff communications view.
func (p *Portal) Communications() *Communications {
	return NewCommunications(p.API, p.Session, p.Logger)
}

// StaffHistory returns the tenant-wide query log view.
func (p *Portal) StaffHistory() *StaffHistory {
	return NewStaffHistory(p.API, p.Session, p.Logger)
}

// PolicyholderHistory returns the signed-in policyholder's query log view.
func (p *Portal) PolicyholderHistory() *PolicyholderHistory {
	return NewPolicyholderHistory(p.API, p.Session, p.Logger)
}

// StaffChat returns a staff chat thread.
func (p *Portal) StaffChat() *StaffChat {
	return NewStaffChat(p.API, p.Session, p.Logger)
}

// PolicyholderChat returns a chat thread bound to the signed-in policy.
func (p *Portal) PolicyholderChat() *PolicyholderChat {
	return NewPolicyholderChat(p.API, p.Session, p.Logger)
}
