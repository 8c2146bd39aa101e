package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/batch"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KnownPolicies are the sample policies probed when the view opens.
var KnownPolicies = []string{"POL-2024-HO-001", "POL-2024-AU-002", "POL-2024-CGL-003"}

var (
	// ErrFileRequired is returned when an upload has no file.
	ErrFileRequired = errors.New("a file is required")
	// ErrJobIDRequired is returned when a job lookup has no id.
	ErrJobIDRequired = errors.New("an upload job id is required")
)

// probeLimit caps concurrent availability checks.
const probeLimit = 4

// PolicyAPI is the slice of *api.Client used by the policy view.
type PolicyAPI interface {
	batch.PolicyAPI
	UploadPolicy(ctx context.Context, doc api.Document, policyNumber string) (*api.UploadResult, error)
	PolicyUploadStatus(ctx context.Context, jobID string) (*api.UploadStatus, error)
	CheckPolicyAvailable(ctx context.Context, policyNumber string) (*api.Availability, error)
	DeletePolicy(ctx context.Context, policyNumber string) error
}

// PolicyInfo is one row of the policy table.
type PolicyInfo struct {
	Number     string
	Available  bool
	ChunkCount *int
	IndexedAt  *string
}

// Policies manages the staff policy table and uploads.
type Policies struct {
	api    PolicyAPI
	gate   *session.Manager
	batch  *batch.Controller
	logger *zap.Logger

	mu       sync.Mutex
	policies []PolicyInfo
}

// NewPolicies creates a Policies view.
func NewPolicies(a PolicyAPI, mgr *session.Manager, logger *zap.Logger, opts ...batch.Option) *Policies {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]batch.Option{
		batch.WithGate(mgr, session.ViewStaffPolicies),
		batch.WithLogger(logger),
	}, opts...)
	return &Policies{
		api:    a,
		gate:   mgr,
		batch:  batch.New(batch.PolicyUploader{API: a}, opts...),
		logger: logger.With(zap.String("view", "policies")),
	}
}

// Batch returns the pending batch.
func (p *Policies) Batch() *batch.Controller {
	return p.batch
}

// List returns a copy of the policy table.
func (p *Policies) List() []PolicyInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PolicyInfo(nil), p.policies...)
}

// Probe checks numbers concurrently, replacing the table. A failed check
// marks the policy unavailable.
func (p *Policies) Probe(ctx context.Context, numbers ...string) ([]PolicyInfo, error) {
	if err := p.gate.Require(session.ViewStaffPolicies); err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		numbers = KnownPolicies
	}
	infos := p.check(ctx, numbers)

	p.mu.Lock()
	p.policies = infos
	p.mu.Unlock()
	return append([]PolicyInfo(nil), infos...), nil
}

func (p *Policies) check(ctx context.Context, numbers []string) []PolicyInfo {
	infos := make([]PolicyInfo, len(numbers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeLimit)
	for i, n := range numbers {
		g.Go(func() error {
			infos[i] = p.availability(gctx, n)
			return nil
		})
	}
	_ = g.Wait()
	return infos
}

func (p *Policies) availability(ctx context.Context, number string) PolicyInfo {
	av, err := p.api.CheckPolicyAvailable(ctx, number)
	if err != nil {
		p.logger.Debug("availability check failed", zap.String("policy", number), zap.Error(err))
		return PolicyInfo{Number: number}
	}
	return PolicyInfo{Number: number, Available: av.Available, ChunkCount: av.ChunkCount, IndexedAt: av.IndexedAt}
}

// Upload indexes one policy document and refreshes its row. It returns the
// confirmation shown to the user.
func (p *Policies) Upload(ctx context.Context, doc api.Document, policyNumber string) (string, error) {
	if err := p.gate.Require(session.ViewStaffPolicies); err != nil {
		return "", err
	}
	policyNumber = strings.TrimSpace(policyNumber)
	if doc.Name == "" && len(doc.Data) == 0 {
		return "", ErrFileRequired
	}
	if policyNumber == "" {
		return "", ErrPolicyNumberRequired
	}

	res, err := p.api.UploadPolicy(ctx, doc, policyNumber)
	if err != nil {
		return "", userError(err)
	}
	av, err := p.api.CheckPolicyAvailable(ctx, policyNumber)
	if err != nil {
		return "", userError(err)
	}
	p.upsert(PolicyInfo{Number: policyNumber, Available: av.Available, ChunkCount: av.ChunkCount, IndexedAt: av.IndexedAt})

	p.logger.Info("policy uploaded", zap.String("policy", policyNumber), zap.String("status", res.Status))
	return fmt.Sprintf("Policy %s uploaded and indexed (%s)", policyNumber, res.Status), nil
}

// JobStatus reports the state of an upload job. A job that finished
// indexing refreshes its policy's row.
func (p *Policies) JobStatus(ctx context.Context, jobID string) (*api.UploadStatus, error) {
	if err := p.gate.Require(session.ViewStaffPolicies); err != nil {
		return nil, err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, ErrJobIDRequired
	}
	st, err := p.api.PolicyUploadStatus(ctx, jobID)
	if err != nil {
		return nil, userError(err)
	}
	if api.IndexStatus(st.Status).Indexed() && st.PolicyNumber != "" {
		p.upsert(p.availability(ctx, st.PolicyNumber))
	}
	return st, nil
}

// SubmitBatch uploads the pending batch and refreshes the rows of every
// indexed policy.
func (p *Policies) SubmitBatch(ctx context.Context) (*batch.Outcome, error) {
	out, err := p.batch.Submit(ctx)
	if err != nil {
		return nil, err
	}

	var numbers []string
	for _, r := range out.Indexed() {
		if r.PolicyNumber != "" {
			numbers = append(numbers, r.PolicyNumber)
		}
	}
	for _, info := range p.check(ctx, numbers) {
		p.upsert(info)
	}
	return out, nil
}

// Delete removes a policy and its row.
func (p *Policies) Delete(ctx context.Context, policyNumber string) (string, error) {
	if err := p.gate.Require(session.ViewStaffPolicies); err != nil {
		return "", err
	}
	if err := p.api.DeletePolicy(ctx, policyNumber); err != nil {
		return "", userError(err)
	}

	p.mu.Lock()
	kept := p.policies[:0]
	for _, info := range p.policies {
		if info.Number != policyNumber {
			kept = append(kept, info)
		}
	}
	p.policies = kept
	p.mu.Unlock()

	p.logger.Info("policy deleted", zap.String("policy", policyNumber))
	return fmt.Sprintf("Policy %s deleted", policyNumber), nil
}

func (p *Policies) upsert(info PolicyInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.policies {
		if p.policies[i].Number == info.Number {
			p.policies[i] = info
			return
		}
	}
	p.policies = append(p.policies, info)
}
