package portal

import (
	"context"
	"errors"
	"sync"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/debounce"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
)

// pickerLimit is the number of options fetched per search.
const pickerLimit = 50

// ErrUnknownOption is returned when selecting a key not currently offered.
var ErrUnknownOption = errors.New("option is not in the current results")

// SelectableOption is one entry of a picker.
type SelectableOption struct {
	Key   string
	Label string
}

// PolicySearchAPI is the slice of *api.Client used by the policy selector.
type PolicySearchAPI interface {
	ListPolicies(ctx context.Context, search string, page, pageSize int) (*api.PolicyPage, error)
}

// DocumentSearchAPI is the slice of *api.Client used by document search.
type DocumentSearchAPI interface {
	ListCommunications(ctx context.Context, page, pageSize int, filter api.CommunicationQuery) (*api.CommunicationPage, error)
}

// Picker offers options from a debounced server search. The selection
// survives searches that no longer return it.
type Picker struct {
	db *debounce.Debouncer[[]SelectableOption]

	mu       sync.Mutex
	selected *SelectableOption
}

// NewPolicySelector creates a Picker over policy numbers.
func NewPolicySelector(a PolicySearchAPI, mgr *session.Manager, logger *zap.Logger, opts ...debounce.Option[[]SelectableOption]) *Picker {
	lookup := func(ctx context.Context, q string) ([]SelectableOption, error) {
		if err := mgr.Require(session.ViewStaffQuery); err != nil {
			return nil, err
		}
		res, err := a.ListPolicies(ctx, q, 1, pickerLimit)
		if err != nil {
			return nil, err
		}
		out := make([]SelectableOption, 0, len(res.Policies))
		for _, p := range res.Policies {
			label := p.PolicyNumber
			if p.Filename != "" {
				label += " (" + p.Filename + ")"
			}
			out = append(out, SelectableOption{Key: p.PolicyNumber, Label: label})
		}
		return out, nil
	}
	return newPicker(lookup, "policy_selector", logger, opts)
}

// NewDocumentSearch creates a Picker over communications.
func NewDocumentSearch(a DocumentSearchAPI, mgr *session.Manager, logger *zap.Logger, opts ...debounce.Option[[]SelectableOption]) *Picker {
	lookup := func(ctx context.Context, q string) ([]SelectableOption, error) {
		if err := mgr.Require(session.ViewStaffCommunications); err != nil {
			return nil, err
		}
		res, err := a.ListCommunications(ctx, 1, pickerLimit, api.CommunicationQuery{Search: q})
		if err != nil {
			return nil, err
		}
		out := make([]SelectableOption, 0, len(res.Communications))
		for _, c := range res.Communications {
			label := c.Title
			if label == "" {
				label = c.Filename
			}
			out = append(out, SelectableOption{Key: c.ID, Label: label + " (" + c.CommunicationType.Label() + ")"})
		}
		return out, nil
	}
	return newPicker(lookup, "document_search", logger, opts)
}

func newPicker(lookup debounce.Lookup[[]SelectableOption], name string, logger *zap.Logger, opts []debounce.Option[[]SelectableOption]) *Picker {
	base := []debounce.Option[[]SelectableOption]{
		debounce.WithName[[]SelectableOption](name),
		debounce.WithLogger[[]SelectableOption](logger),
	}
	return &Picker{db: debounce.New(lookup, append(base, opts...)...)}
}

// Search records new search text. An empty query loads the full set at once.
func (p *Picker) Search(q string) {
	p.db.Input(q)
}

// Load fetches q without waiting for the quiet period.
func (p *Picker) Load(q string) {
	p.db.Flush(q)
}

// Options returns the latest results. A selection missing from them is
// listed first.
func (p *Picker) Options() []SelectableOption {
	res := p.db.Current()
	out := make([]SelectableOption, 0, len(res.Value)+1)

	p.mu.Lock()
	sel := p.selected
	p.mu.Unlock()

	if sel != nil && !contains(res.Value, sel.Key) {
		out = append(out, *sel)
	}
	return append(out, res.Value...)
}

// Result returns the underlying search state.
func (p *Picker) Result() debounce.Result[[]SelectableOption] {
	return p.db.Current()
}

// Select marks key as selected. The key must be among Options.
func (p *Picker) Select(key string) error {
	for _, o := range p.Options() {
		if o.Key == key {
			p.mu.Lock()
			p.selected = &o
			p.mu.Unlock()
			return nil
		}
	}
	return ErrUnknownOption
}

// Selected returns the selection, if any.
func (p *Picker) Selected() (SelectableOption, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return SelectableOption{}, false
	}
	return *p.selected, true
}

// ClearSelection removes the selection.
func (p *Picker) ClearSelection() {
	p.mu.Lock()
	p.selected = nil
	p.mu.Unlock()
}

// Close stops pending searches.
func (p *Picker) Close() {
	p.db.Close()
}

func contains(opts []SelectableOption, key string) bool {
	for _, o := range opts {
		if o.Key == key {
			return true
		}
	}
	return false
}
