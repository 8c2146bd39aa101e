package portal

import (
	"context"
	"sync"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/paging"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
)

// HistoryPageSize is the page size of both query logs.
const HistoryPageSize = 25

// StaffHistoryAPI is the slice of *api.Client used by the staff query log.
type StaffHistoryAPI interface {
	StaffHistory(ctx context.Context, page, pageSize int, f api.HistoryFilter) (*api.HistoryPage, error)
	StaffStats(ctx context.Context) (*api.HistoryStats, error)
	QueryDetail(ctx context.Context, queryID string) (*api.HistoryDetail, error)
}

// StaffHistory is the tenant-wide query log. Load failures leave the
// previous state in place and are not reported.
type StaffHistory struct {
	api     StaffHistoryAPI
	gate    *session.Manager
	list    *paging.Controller[api.HistoryItem, api.HistoryFilter]
	details *paging.Details[*api.HistoryDetail]
	logger  *zap.Logger

	mu    sync.Mutex
	stats *api.HistoryStats
}

// NewStaffHistory creates a StaffHistory.
func NewStaffHistory(a StaffHistoryAPI, mgr *session.Manager, logger *zap.Logger) *StaffHistory {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &StaffHistory{api: a, gate: mgr, logger: logger.With(zap.String("view", "staff_history"))}
	h.list = paging.New(h.fetch, HistoryPageSize,
		paging.WithName[api.HistoryItem, api.HistoryFilter]("staff_history"),
		paging.WithLogger[api.HistoryItem, api.HistoryFilter](logger))
	h.details = paging.NewDetails(h.detail, logger)
	return h
}

func (h *StaffHistory) fetch(ctx context.Context, page, size int, f api.HistoryFilter) (paging.Page[api.HistoryItem], error) {
	if err := h.gate.Require(session.ViewStaffHistory); err != nil {
		return paging.Page[api.HistoryItem]{}, err
	}
	res, err := h.api.StaffHistory(ctx, page, size, f)
	if err != nil {
		return paging.Page[api.HistoryItem]{}, err
	}
	return paging.Page[api.HistoryItem]{Items: res.Queries, Total: res.Total}, nil
}

func (h *StaffHistory) detail(ctx context.Context, id string) (*api.HistoryDetail, error) {
	if err := h.gate.Require(session.ViewStaffHistory); err != nil {
		return nil, err
	}
	return h.api.QueryDetail(ctx, id)
}

// Load fetches the first page and the summary statistics.
func (h *StaffHistory) Load(ctx context.Context) {
	h.quiet(h.list.Reload(ctx))
	h.LoadStats(ctx)
}

// LoadStats refreshes the summary statistics. A failure keeps the previous
// values.
func (h *StaffHistory) LoadStats(ctx context.Context) {
	if err := h.gate.Require(session.ViewStaffHistory); err != nil {
		h.quiet(err)
		return
	}
	stats, err := h.api.StaffStats(ctx)
	if err != nil {
		h.quiet(err)
		return
	}
	h.mu.Lock()
	h.stats = stats
	h.mu.Unlock()
}

// Stats returns the last loaded statistics, or nil.
func (h *StaffHistory) Stats() *api.HistoryStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Filter applies f and returns to the first page.
func (h *StaffHistory) Filter(ctx context.Context, f api.HistoryFilter) {
	h.quiet(h.list.Refresh(ctx, f))
}

// ClearFilters removes every filter and returns to the first page.
func (h *StaffHistory) ClearFilters(ctx context.Context) {
	h.quiet(h.list.Refresh(ctx, api.HistoryFilter{}))
}

// SetPage moves to page n.
func (h *StaffHistory) SetPage(ctx context.Context, n int) {
	h.quiet(h.list.SetPage(ctx, n))
}

// List returns the table state.
func (h *StaffHistory) List() paging.Cursor[api.HistoryItem, api.HistoryFilter] {
	return h.list.Current()
}

// Toggle expands the row id, collapsing any other, or collapses it when it
// is already expanded. The detail is nil when collapsed or unavailable.
func (h *StaffHistory) Toggle(ctx context.Context, id string) *api.HistoryDetail {
	d, ok := h.details.Toggle(ctx, id)
	if !ok {
		return nil
	}
	return d
}

// Expanded returns the id of the expanded row, or "".
func (h *StaffHistory) Expanded() string {
	return h.details.Expanded()
}

func (h *StaffHistory) quiet(err error) {
	if err != nil {
		h.logger.Debug("history load failed", zap.Error(err))
	}
}

// PolicyholderHistoryAPI is the slice of *api.Client used by the
// policyholder query log.
type PolicyholderHistoryAPI interface {
	PolicyholderHistory(ctx context.Context, page, pageSize int) (*api.HistoryPage, error)
}

// PolicyholderHistory is the signed-in policyholder's query log. Rows expand
// locally from the listing.
type PolicyholderHistory struct {
	api    PolicyholderHistoryAPI
	gate   *session.Manager
	list   *paging.Controller[api.HistoryItem, struct{}]
	logger *zap.Logger

	mu       sync.Mutex
	expanded string
}

// NewPolicyholderHistory creates a PolicyholderHistory.
func NewPolicyholderHistory(a PolicyholderHistoryAPI, mgr *session.Manager, logger *zap.Logger) *PolicyholderHistory {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &PolicyholderHistory{api: a, gate: mgr, logger: logger.With(zap.String("view", "policyholder_history"))}
	h.list = paging.New(h.fetch, HistoryPageSize,
		paging.WithName[api.HistoryItem, struct{}]("policyholder_history"),
		paging.WithLogger[api.HistoryItem, struct{}](logger))
	return h
}

func (h *PolicyholderHistory) fetch(ctx context.Context, page, size int, _ struct{}) (paging.Page[api.HistoryItem], error) {
	if err := h.gate.Require(session.ViewPolicyholderHistory); err != nil {
		return paging.Page[api.HistoryItem]{}, err
	}
	res, err := h.api.PolicyholderHistory(ctx, page, size)
	if err != nil {
		return paging.Page[api.HistoryItem]{}, err
	}
	return paging.Page[api.HistoryItem]{Items: res.Queries, Total: res.Total}, nil
}

// Load fetches the current page.
func (h *PolicyholderHistory) Load(ctx context.Context) {
	if err := h.list.Reload(ctx); err != nil {
		h.logger.Debug("history load failed", zap.Error(err))
	}
}

// SetPage moves to page n.
func (h *PolicyholderHistory) SetPage(ctx context.Context, n int) {
	if err := h.list.SetPage(ctx, n); err != nil {
		h.logger.Debug("history load failed", zap.Error(err))
	}
}

// List returns the table state.
func (h *PolicyholderHistory) List() paging.Cursor[api.HistoryItem, struct{}] {
	return h.list.Current()
}

// Toggle expands row id or collapses it when already expanded. It reports
// whether id is now expanded.
func (h *PolicyholderHistory) Toggle(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.expanded == id {
		h.expanded = ""
		return false
	}
	h.expanded = id
	return true
}

// Expanded returns the id of the expanded row, or "".
func (h *PolicyholderHistory) Expanded() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expanded
}
