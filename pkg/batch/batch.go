// Package batch drives multi-file uploads with per-file metadata.
//
// Entries are validated before any request is made, submitted in one request,
// and reconciled with the server's results by position. Entries are cleared
// only when every file was indexed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tracing "github.com/policyassist/policyassist/internal/observability"
	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/gateway"
	"github.com/policyassist/policyassist/pkg/observability"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
)

// DefaultMaxSize is the largest batch accepted.
const DefaultMaxSize = 20

var (
	ErrEmpty         = errors.New("no files to upload")
	ErrBusy          = errors.New("a batch upload is in progress")
	ErrTooMany       = errors.New("batch size limit exceeded")
	ErrNoSuchEntry   = errors.New("no such batch entry")
	ErrCountMismatch = errors.New("server returned a different number of results than files submitted")
)

// Entry is one pending upload.
type Entry struct {
	File     api.Document
	Metadata map[string]string
}

// Value returns the trimmed metadata value for key.
func (e Entry) Value(key string) string {
	return strings.TrimSpace(e.Metadata[key])
}

func (e Entry) clone() Entry {
	md := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	return Entry{File: e.File, Metadata: md}
}

// Field is a metadata field an Uploader requires.
type Field struct {
	Key   string
	Label string
}

// Uploader sends a validated batch in a single request.
type Uploader interface {
	// Kind labels metrics and logs, e.g. "policy".
	Kind() string
	// Required lists metadata fields every entry must fill.
	Required() []Field
	// Validate checks batch-wide settings before any request.
	Validate() error
	Upload(ctx context.Context, entries []Entry) (*api.BatchResponse, error)
}

// JoinedFields is implemented by Uploaders that send a field of every entry
// as one comma-separated value. Such values may not contain a comma.
type JoinedFields interface {
	Joined() []Field
}

// Missing names an entry lacking a required field, or with a joined field
// containing a comma when Comma is set. Index is zero-based.
type Missing struct {
	Index    int
	Filename string
	Field    Field
	Comma    bool
}

// IncompleteError rejects a batch with blank or unsendable metadata.
type IncompleteError struct {
	Missing []Missing
}

func (e *IncompleteError) Error() string {
	files := map[int]bool{}
	var names []string
	for _, m := range e.Missing {
		if files[m.Index] {
			continue
		}
		files[m.Index] = true
		names = append(names, fmt.Sprintf("file %d (%s)", m.Index+1, m.Filename))
	}
	label := "required field"
	if len(e.Missing) > 0 {
		label = e.Missing[0].Field.Label
		if e.Missing[0].Comma {
			return fmt.Sprintf("%d file(s) with a comma in the %s: %s", len(files), label, strings.Join(names, ", "))
		}
	}
	return fmt.Sprintf("%d file(s) missing a %s: %s", len(files), label, strings.Join(names, ", "))
}

// Indices returns the zero-based positions of incomplete entries.
func (e *IncompleteError) Indices() []int {
	var out []int
	seen := map[int]bool{}
	for _, m := range e.Missing {
		if !seen[m.Index] {
			seen[m.Index] = true
			out = append(out, m.Index)
		}
	}
	return out
}

// UploadError is a failure of the whole request; no per-file result exists.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return "batch upload failed: " + gateway.Message(e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Item pairs a submitted entry with its result.
type Item struct {
	Entry  Entry
	Result api.BatchResult
}

// Outcome is a reconciled batch response.
type Outcome struct {
	Items     []Item
	Succeeded int
	Failed    int
	// Cleared is true when the pending list was emptied.
	Cleared bool
}

// Message is the summary shown after a batch.
func (o *Outcome) Message() string {
	return fmt.Sprintf("Batch complete: %d succeeded, %d failed", o.Succeeded, o.Failed)
}

// Indexed returns the results that were indexed, in submission order.
func (o *Outcome) Indexed() []api.BatchResult {
	var out []api.BatchResult
	for _, it := range o.Items {
		if it.Result.Status.Indexed() {
			out = append(out, it.Result)
		}
	}
	return out
}

// Controller is safe for concurrent use.
type Controller struct {
	uploader Uploader
	maxSize  int
	gate     Gate
	view     session.View
	logger   *zap.Logger

	mu         sync.Mutex
	entries    []Entry
	submitting bool
	last       *Outcome
}

// Gate authorizes access to a view. *session.Manager implements it.
type Gate interface {
	Require(v session.View) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithGate requires v to be accessible before every submission.
func WithGate(g Gate, v session.View) Option {
	return func(c *Controller) {
		c.gate = g
		c.view = v
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Controller for uploader.
func New(uploader Uploader, opts ...Option) *Controller {
	c := &Controller{
		uploader: uploader,
		maxSize:  DefaultMaxSize,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxSize returns the batch size limit.
func (c *Controller) MaxSize() int {
	return c.maxSize
}

// Add appends one entry per document with empty metadata. Either all
// documents are added or none.
func (c *Controller) Add(docs ...api.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return ErrBusy
	}
	if len(c.entries)+len(docs) > c.maxSize {
		return fmt.Errorf("%w: %d files, limit %d", ErrTooMany, len(c.entries)+len(docs), c.maxSize)
	}
	for _, d := range docs {
		c.entries = append(c.entries, Entry{File: d, Metadata: map[string]string{}})
	}
	return nil
}

// SetMetadata sets field key of entry i.
func (c *Controller) SetMetadata(i int, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return ErrBusy
	}
	if i < 0 || i >= len(c.entries) {
		return ErrNoSuchEntry
	}
	c.entries[i].Metadata[key] = value
	return nil
}

// Remove deletes entry i.
func (c *Controller) Remove(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return ErrBusy
	}
	if i < 0 || i >= len(c.entries) {
		return ErrNoSuchEntry
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	return nil
}

// Reset drops every pending entry.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return ErrBusy
	}
	c.entries = nil
	return nil
}

// Entries returns a copy of the pending entries.
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of pending entries.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Busy reports whether a submission is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Last returns the most recent outcome, or nil.
func (c *Controller) Last() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Validate reports incomplete entries without submitting.
func (c *Controller) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Controller) validateLocked() error {
	if len(c.entries) == 0 {
		return ErrEmpty
	}
	if err := c.uploader.Validate(); err != nil {
		return err
	}
	var missing []Missing
	for i, e := range c.entries {
		for _, f := range c.uploader.Required() {
			if e.Value(f.Key) == "" {
				missing = append(missing, Missing{Index: i, Filename: e.File.Name, Field: f})
			}
		}
	}
	if len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}

	if j, ok := c.uploader.(JoinedFields); ok {
		for i, e := range c.entries {
			for _, f := range j.Joined() {
				if strings.Contains(e.Value(f.Key), ",") {
					missing = append(missing, Missing{Index: i, Filename: e.File.Name, Field: f, Comma: true})
				}
			}
		}
	}
	if len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}
	return nil
}

// Submit validates and uploads the pending entries. Validation failures
// return before any request. A failed request returns *UploadError and keeps
// every entry. Otherwise the outcome reports per-file results.
func (c *Controller) Submit(ctx context.Context) (*Outcome, error) {
	kind := c.uploader.Kind()

	if c.gate != nil {
		if err := c.gate.Require(c.view); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if err := c.validateLocked(); err != nil {
		c.mu.Unlock()
		observability.RecordBatchUpload(kind, "rejected", 0, 0)
		return nil, err
	}
	submitted := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		submitted[i] = e.clone()
	}
	c.submitting = true
	c.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "batch.submit", map[string]any{"kind": kind, "files": len(submitted)})
	defer span.End()

	resp, err := c.uploader.Upload(ctx, submitted)
	if err == nil && (resp == nil || len(resp.Results) != len(submitted)) {
		got := 0
		if resp != nil {
			got = len(resp.Results)
		}
		err = fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(submitted), got)
	}
	if err != nil {
		span.SetError(err)
		c.logger.Warn("batch upload failed", zap.String("kind", kind), zap.Int("files", len(submitted)), zap.Error(err))
		observability.RecordBatchUpload(kind, "error", 0, 0)
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
		return nil, &UploadError{Err: err}
	}

	out := &Outcome{Items: make([]Item, len(submitted))}
	for i, e := range submitted {
		r := resp.Results[i]
		out.Items[i] = Item{Entry: e, Result: r}
		if r.Status.Indexed() {
			out.Succeeded++
		}
	}
	out.Failed = len(submitted) - out.Succeeded

	c.mu.Lock()
	if out.Failed == 0 {
		c.entries = nil
		out.Cleared = true
	}
	c.submitting = false
	c.last = out
	c.mu.Unlock()

	result := "complete"
	if out.Failed > 0 {
		result = "partial"
	}
	observability.RecordBatchUpload(kind, result, out.Succeeded, out.Failed)
	c.logger.Info("batch upload finished",
		zap.String("kind", kind),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed))
	return out, nil
}
