package portal

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/gateway"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
)

// StaffEmail is the identity recorded for development staff sign-in.
const StaffEmail = "admin@sunshine.test"

// ErrVerificationFailed is returned when the server does not verify the
// policyholder.
var ErrVerificationFailed = &UserError{Text: "Verification failed. Check your details and try again."}

// Field validation errors.
var (
	ErrPolicyNumberRequired = errors.New("policy number is required")
	ErrLastNameRequired     = errors.New("last name is required")
	ErrCompanyNameRequired  = errors.New("company name is required")
)

// AuthAPI is the slice of *api.Client used for sign-in.
type AuthAPI interface {
	TestSetup(ctx context.Context) (*api.SetupResult, error)
	VerifyPolicyholder(ctx context.Context, req api.VerifyRequest) (*api.VerifyResult, error)
}

// VerifyBy selects how a policyholder identifies themselves.
type VerifyBy int

const (
	ByLastName VerifyBy = iota
	ByCompanyName
)

// Credentials identify a policyholder.
type Credentials struct {
	PolicyNumber string
	By           VerifyBy
	LastName     string
	CompanyName  string
}

// Validate checks the fields the chosen method needs.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.PolicyNumber) == "" {
		return ErrPolicyNumberRequired
	}
	switch c.By {
	case ByCompanyName:
		if strings.TrimSpace(c.CompanyName) == "" {
			return ErrCompanyNameRequired
		}
	default:
		if strings.TrimSpace(c.LastName) == "" {
			return ErrLastNameRequired
		}
	}
	return nil
}

// Auth runs the sign-in flows. It keeps the tenant issued by the first
// test-setup call for later verifications.
type Auth struct {
	api     AuthAPI
	session *session.Manager
	logger  *zap.Logger

	mu       sync.Mutex
	tenantID string
}

// NewAuth creates an Auth.
func NewAuth(a AuthAPI, mgr *session.Manager, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{api: a, session: mgr, logger: logger}
}

// StaffLogin obtains a development staff identity and signs in as admin.
func (a *Auth) StaffLogin(ctx context.Context) error {
	setup, err := a.api.TestSetup(ctx)
	if err != nil {
		return &UserError{Text: gateway.Message(err), Err: err}
	}
	a.setTenant(setup.TenantID)

	id := session.StaffIdentity(setup.StaffToken, setup.TenantID, session.RoleAdmin, StaffEmail)
	if err := a.session.Login(ctx, id); err != nil {
		return err
	}
	a.logger.Info("staff signed in", zap.String("tenant", setup.TenantID))
	return nil
}

// VerifyPolicyholder verifies creds and signs the policyholder in.
func (a *Auth) VerifyPolicyholder(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	tenant := a.tenant()
	if tenant == "" {
		setup, err := a.api.TestSetup(ctx)
		if err != nil {
			return &UserError{Text: "Could not connect to server: " + gateway.Message(err), Err: err}
		}
		tenant = setup.TenantID
		a.setTenant(tenant)
	}

	policyNumber := strings.TrimSpace(creds.PolicyNumber)
	req := api.VerifyRequest{TenantID: tenant, PolicyNumber: policyNumber}
	if creds.By == ByCompanyName {
		req.CompanyName = strings.TrimSpace(creds.CompanyName)
	} else {
		req.LastName = strings.TrimSpace(creds.LastName)
	}

	res, err := a.api.VerifyPolicyholder(ctx, req)
	if err != nil {
		return &UserError{Text: gateway.Message(err), Err: err}
	}
	if !res.Verified || res.Token == "" {
		a.logger.Info("policyholder verification rejected", zap.String("policy", policyNumber))
		return ErrVerificationFailed
	}

	if err := a.session.Login(ctx, session.PolicyholderIdentity(res.Token, tenant, policyNumber)); err != nil {
		return err
	}
	a.logger.Info("policyholder signed in", zap.String("policy", policyNumber))
	return nil
}

// Logout clears the session.
func (a *Auth) Logout(ctx context.Context) {
	a.session.Logout(ctx)
}

// TenantID returns the cached tenant, or "".
func (a *Auth) TenantID() string {
	return a.tenant()
}

func (a *Auth) tenant() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tenantID
}

func (a *Auth) setTenant(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tenantID = id
}
