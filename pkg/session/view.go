package session

import "errors"

// View is the closed set of screens a user may reach.
type View int

const (
	ViewAuth View = iota
	ViewStaffQuery
	ViewStaffPolicies
	ViewStaffCommunications
	ViewStaffHistory
	ViewPolicyholderChat
	ViewPolicyholderHistory
)

// Access errors returned by Require.
var (
	ErrUnauthenticated = errors.New("sign in required")
	ErrForbidden       = errors.New("not permitted for this role")
)

// String returns the route of the view.
func (v View) String() string {
	switch v {
	case ViewAuth:
		return "/auth"
	case ViewStaffQuery:
		return "/staff/query"
	case ViewStaffPolicies:
		return "/staff/policies"
	case ViewStaffCommunications:
		return "/staff/communications"
	case ViewStaffHistory:
		return "/staff/history"
	case ViewPolicyholderChat:
		return "/policyholder"
	case ViewPolicyholderHistory:
		return "/policyholder/history"
	}
	return "unknown"
}

// staffOnly reports whether the view belongs to the staff area.
func (v View) staffOnly() bool {
	switch v {
	case ViewStaffQuery, ViewStaffPolicies, ViewStaffCommunications, ViewStaffHistory:
		return true
	}
	return false
}

func (v View) policyholderOnly() bool {
	return v == ViewPolicyholderChat || v == ViewPolicyholderHistory
}

// Require returns nil when s may reach v.
func (s Session) Require(v View) error {
	if v == ViewAuth {
		return nil
	}
	if !s.IsAuthenticated() {
		return ErrUnauthenticated
	}
	switch {
	case v.staffOnly() && !s.IsStaff():
		return ErrForbidden
	case v.policyholderOnly() && !s.IsPolicyholder():
		return ErrForbidden
	}
	return nil
}

// Home returns the landing view for s.
func (s Session) Home() View {
	switch {
	case !s.IsAuthenticated():
		return ViewAuth
	case s.IsStaff():
		return ViewStaffQuery
	default:
		return ViewPolicyholderChat
	}
}

// Require checks the current session against v.
func (m *Manager) Require(v View) error {
	return m.Current().Require(v)
}

// CanAccess reports whether the current session may reach v.
func (m *Manager) CanAccess(v View) bool {
	return m.Require(v) == nil
}

// Home returns the landing view for the current session.
func (m *Manager) Home() View {
	return m.Current().Home()
}
