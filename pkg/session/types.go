// Package session owns the signed-in identity of the client.
// A Session is an immutable value; the Manager replaces it wholesale on login and
// logout so no consumer can observe a half-authenticated state.
package session

import (
	"errors"
	"fmt"
)

// Role is the closed set of user roles.
type Role string

const (
	// RoleNone is the role of an unauthenticated session.
	RoleNone Role = ""
	// RoleAdmin is an agency administrator.
	RoleAdmin Role = "admin"
	// RoleStaff is an agency employee.
	RoleStaff Role = "staff"
	// RolePolicyholder is a customer verified against one policy.
	RolePolicyholder Role = "policyholder"
)

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleStaff, RolePolicyholder:
		return Role(s), nil
	default:
		return RoleNone, fmt.Errorf("unknown role %q", s)
	}
}

// IsStaff reports whether the role belongs to agency staff.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff
}

// ErrInvalidIdentity is returned when a session violates the identity rules.
var ErrInvalidIdentity = errors.New("invalid identity")

// Session is the identity attached to every request.
// Empty strings stand for absent values.
type Session struct {
	Token        string
	TenantID     string
	Role         Role
	PolicyNumber string
	Email        string
}

// StaffIdentity builds the session of a staff member.
func StaffIdentity(token, tenantID string, role Role, email string) Session {
	return Session{Token: token, TenantID: tenantID, Role: role, Email: email}
}

// PolicyholderIdentity builds the session of a verified policyholder.
func PolicyholderIdentity(token, tenantID, policyNumber string) Session {
	return Session{Token: token, TenantID: tenantID, Role: RolePolicyholder, PolicyNumber: policyNumber}
}

// IsAuthenticated reports whether a bearer token is present.
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// IsStaff reports whether the session belongs to an admin or staff member.
func (s Session) IsStaff() bool {
	return s.Role.IsStaff()
}

// IsPolicyholder reports whether the session belongs to a policyholder.
func (s Session) IsPolicyholder() bool {
	return s.Role == RolePolicyholder
}

// IsEmpty reports whether every field is absent.
func (s Session) IsEmpty() bool {
	return s == Session{}
}

// Validate checks the identity rules:
// a token implies a tenant and a role, policyholders carry only a policy number,
// staff carry only an email.
func (s Session) Validate() error {
	if s.IsEmpty() {
		return nil
	}
	if s.Token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidIdentity)
	}
	if s.TenantID == "" {
		return fmt.Errorf("%w: missing tenant", ErrInvalidIdentity)
	}

	switch s.Role {
	case RolePolicyholder:
		if s.PolicyNumber == "" || s.Email != "" {
			return fmt.Errorf("%w: policyholder requires a policy number and no email", ErrInvalidIdentity)
		}
	case RoleAdmin, RoleStaff:
		if s.Email == "" || s.PolicyNumber != "" {
			return fmt.Errorf("%w: staff requires an email and no policy number", ErrInvalidIdentity)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidIdentity, s.Role)
	}
	return nil
}

// Snapshot is a session together with the version stamped on it.
type Snapshot struct {
	Session Session
	Version uint64
}

// record is the persisted shape; absent values are stored as null.
type record struct {
	Token        *string `json:"token"`
	TenantID     *string `json:"tenantId"`
	Role         *string `json:"role"`
	PolicyNumber *string `json:"policyNumber"`
	Email        *string `json:"email"`
}

func toRecord(s Session) record {
	return record{
		Token:        nullable(s.Token),
		TenantID:     nullable(s.TenantID),
		Role:         nullable(string(s.Role)),
		PolicyNumber: nullable(s.PolicyNumber),
		Email:        nullable(s.Email),
	}
}

func (r record) session() (Session, error) {
	s := Session{
		Token:        deref(r.Token),
		TenantID:     deref(r.TenantID),
		PolicyNumber: deref(r.PolicyNumber),
		Email:        deref(r.Email),
	}
	if role := deref(r.Role); role != "" {
		parsed, err := ParseRole(role)
		if err != nil {
			return Session{}, err
		}
		s.Role = parsed
	}
	if err := s.Validate(); err != nil {
		return Session{}, err
	}
	return s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
