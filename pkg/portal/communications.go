package portal

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/batch"
	"github.com/policyassist/policyassist/pkg/gateway"
	"github.com/policyassist/policyassist/pkg/paging"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
)

// CommunicationsPageSize is the page size of the communications table.
const CommunicationsPageSize = 50

// CommunicationAPI is the slice of *api.Client used by the communications view.
type CommunicationAPI interface {
	batch.CommunicationAPI
	UploadCommunication(ctx context.Context, doc api.Document, t api.CommunicationType, title string) (*api.UploadResult, error)
	ListCommunications(ctx context.Context, page, pageSize int, filter api.CommunicationQuery) (*api.CommunicationPage, error)
	DeleteCommunication(ctx context.Context, docID string) error
}

// typedUploader uploads a batch under a type chosen before submission.
type typedUploader struct {
	api CommunicationAPI

	mu sync.Mutex
	t  api.CommunicationType
}

func (u *typedUploader) current() batch.CommunicationUploader {
	u.mu.Lock()
	defer u.mu.Unlock()
	return batch.CommunicationUploader{API: u.api, Type: u.t}
}

func (u *typedUploader) Kind() string { return u.current().Kind() }
func (u *typedUploader) Required() []batch.Field { return u.current().Required() }
func (u *typedUploader) Validate() error { return u.current().Validate() }
func (u *typedUploader) Joined() []batch.Field { return u.current().Joined() }

func (u *typedUploader) Upload(ctx context.Context, entries []batch.Entry) (*api.BatchResponse, error) {
	return u.current().Upload(ctx, entries)
}

// Communications manages the staff communications table and uploads.
type Communications struct {
	api      CommunicationAPI
	gate     *session.Manager
	list     *paging.Controller[api.Communication, api.CommunicationType]
	uploader *typedUploader
	batch    *batch.Controller
	logger   *zap.Logger
}

// NewCommunications creates a Communications view. The batch type starts
// as letter.
func NewCommunications(a CommunicationAPI, mgr *session.Manager, logger *zap.Logger, opts ...batch.Option) *Communications {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Communications{
		api:      a,
		gate:     mgr,
		uploader: &typedUploader{api: a, t: api.CommLetter},
		logger:   logger.With(zap.String("view", "communications")),
	}
	c.list = paging.New(c.fetch, CommunicationsPageSize,
		paging.WithName[api.Communication, api.CommunicationType]("communications"),
		paging.WithLogger[api.Communication, api.CommunicationType](logger))
	opts = append([]batch.Option{
		batch.WithGate(mgr, session.ViewStaffCommunications),
		batch.WithLogger(logger),
	}, opts...)
	c.batch = batch.New(c.uploader, opts...)
	return c
}

func (c *Communications) fetch(ctx context.Context, page, size int, t api.CommunicationType) (paging.Page[api.Communication], error) {
	if err := c.gate.Require(session.ViewStaffCommunications); err != nil {
		return paging.Page[api.Communication]{}, err
	}
	res, err := c.api.ListCommunications(ctx, page, size, api.CommunicationQuery{Type: t})
	if err != nil {
		return paging.Page[api.Communication]{}, err
	}
	return paging.Page[api.Communication]{Items: res.Communications, Total: res.Total}, nil
}

// List returns the table state.
func (c *Communications) List() paging.Cursor[api.Communication, api.CommunicationType] {
	return c.list.Current()
}

// Load fetches the first page. An empty type lists every type.
func (c *Communications) Load(ctx context.Context, t api.CommunicationType) error {
	if err := c.list.Refresh(ctx, t); err != nil {
		return userError(err)
	}
	return nil
}

// SetPage moves the table to page n.
func (c *Communications) SetPage(ctx context.Context, n int) error {
	if err := c.list.SetPage(ctx, n); err != nil {
		return userError(err)
	}
	return nil
}

// Batch returns the pending batch.
func (c *Communications) Batch() *batch.Controller {
	return c.batch
}

// SetBatchType sets the type applied to every file of the next batch.
func (c *Communications) SetBatchType(t api.CommunicationType) error {
	if c.batch.Busy() {
		return batch.ErrBusy
	}
	if _, err := api.ParseCommunicationType(string(t)); err != nil {
		return err
	}
	c.uploader.mu.Lock()
	c.uploader.t = t
	c.uploader.mu.Unlock()
	return nil
}

// BatchType returns the type of the next batch.
func (c *Communications) BatchType() api.CommunicationType {
	return c.uploader.current().Type
}

// Upload indexes one communication and reloads the table. A blank title is
// left for the server to default.
func (c *Communications) Upload(ctx context.Context, doc api.Document, t api.CommunicationType, title string) (string, error) {
	if err := c.gate.Require(session.ViewStaffCommunications); err != nil {
		return "", err
	}
	if doc.Name == "" && len(doc.Data) == 0 {
		return "", ErrFileRequired
	}
	if _, err := api.ParseCommunicationType(string(t)); err != nil {
		return "", err
	}

	if _, err := c.api.UploadCommunication(ctx, doc, t, strings.TrimSpace(title)); err != nil {
		return "", userError(err)
	}
	c.reload(ctx)
	c.logger.Info("communication uploaded", zap.String("file", doc.Name), zap.String("type", string(t)))
	return "Communication uploaded and indexed", nil
}

// SubmitBatch uploads the pending batch and reloads the table.
func (c *Communications) SubmitBatch(ctx context.Context) (*batch.Outcome, error) {
	out, err := c.batch.Submit(ctx)
	if err != nil {
		return nil, err
	}
	c.reload(ctx)
	return out, nil
}

// Delete removes a communication and reloads the table.
func (c *Communications) Delete(ctx context.Context, docID string) (string, error) {
	if err := c.gate.Require(session.ViewStaffCommunications); err != nil {
		return "", err
	}
	if err := c.api.DeleteCommunication(ctx, docID); err != nil {
		return "", userError(err)
	}
	c.reload(ctx)
	return "Document deleted", nil
}

// reload refreshes the table after a mutation. A failure stays in the
// cursor.
func (c *Communications) reload(ctx context.Context) {
	if err := c.list.Reload(ctx); err != nil {
		c.logger.Debug("reload failed", zap.Error(err))
	}
}

// userError wraps transport and API failures so their text is the message
// shown to the user. Other errors pass through.
func userError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *gateway.APIError
	var tErr *gateway.TransportError
	if errors.As(err, &apiErr) || errors.As(err, &tErr) {
		return &UserError{Text: gateway.Message(err), Err: err}
	}
	return err
}
