// Package chat drives the question/answer loop for one chat thread.
//
// A Controller accepts at most one submission at a time. The user's message
// is appended before the request is issued and the assistant's reply (answer
// or error text) after it settles, so replies always follow their questions.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	tracing "github.com/policyassist/policyassist/internal/observability"
	"github.com/policyassist/policyassist/pkg/api"
	"github.com/policyassist/policyassist/pkg/gateway"
	"github.com/policyassist/policyassist/pkg/observability"
	"github.com/policyassist/policyassist/pkg/session"
	"go.uber.org/zap"
)

// MaxDisplayedCitations is how many citations a reply shows.
const MaxDisplayedCitations = 3

var (
	// ErrEmptyQuestion rejects blank or whitespace-only input.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrBusy rejects a submission while another is in flight.
	ErrBusy = errors.New("a question is already being answered")
	// ErrNoPolicy rejects a policy question without a policy number.
	ErrNoPolicy = errors.New("policy number is required")

	errEmptyAnswer = errors.New("empty response from server")
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat entry. Messages are never modified once appended.
type Message struct {
	ID     string
	Role   Role
	Text   string
	Result *api.QueryResult
}

// Citations returns up to MaxDisplayedCitations citations in server order.
func (m Message) Citations() []api.Citation {
	if m.Result == nil {
		return nil
	}
	c := m.Result.Citations
	if len(c) > MaxDisplayedCitations {
		c = c[:MaxDisplayedCitations]
	}
	return c
}

// Failed reports whether this is an assistant reply carrying an error.
func (m Message) Failed() bool {
	return m.Role == RoleAssistant && m.Result == nil
}

// State is the controller's submission state.
type State int

const (
	Idle State = iota
	Submitting
)

func (s State) String() string {
	if s == Submitting {
		return "submitting"
	}
	return "idle"
}

// Snapshot is a consistent view of the thread.
type Snapshot struct {
	State    State
	Messages []Message
}

// Querier answers questions. *api.Client implements it.
type Querier interface {
	QueryPolicy(ctx context.Context, policyNumber, question string) (*api.QueryResult, error)
	QueryCommunications(ctx context.Context, question string, t api.CommunicationType) (*api.QueryResult, error)
}

// Gate authorizes access to a view. *session.Manager implements it.
type Gate interface {
	Require(v session.View) error
}

// ErrorFormatter turns a failure message into assistant text.
type ErrorFormatter func(msg string) string

// StaffErrorText is the reply text for a failed staff question.
func StaffErrorText(msg string) string {
	return "Error: " + msg
}

// PolicyholderErrorText is the reply text for a failed policyholder question.
func PolicyholderErrorText(msg string) string {
	return "I'm sorry, I encountered an error: " + msg + ". Please try again."
}

// Controller is safe for concurrent use.
type Controller struct {
	querier   Querier
	gate      Gate
	view      session.View
	formatErr ErrorFormatter
	newID     func() string
	logger    *zap.Logger
	onChange  func(Snapshot)

	mu       sync.Mutex
	state    State
	messages []Message
}

// Option configures a Controller.
type Option func(*Controller)

// WithGate requires v to be accessible before every submission.
func WithGate(g Gate, v session.View) Option {
	return func(c *Controller) {
		c.gate = g
		c.view = v
	}
}

// WithErrorFormatter overrides StaffErrorText.
func WithErrorFormatter(f ErrorFormatter) Option {
	return func(c *Controller) {
		if f != nil {
			c.formatErr = f
		}
	}
}

// WithIDGenerator overrides uuid message ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
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

// WithOnChange registers fn to receive every state change. fn runs outside
// the controller's lock.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// New creates a Controller.
func New(q Querier, opts ...Option) *Controller {
	c := &Controller{
		querier:   q,
		formatErr: StaffErrorText,
		newID:     uuid.NewString,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit asks question against target and blocks until the reply has been
// appended. It returns an error only when the submission is rejected; a
// failed request becomes the returned assistant message.
func (c *Controller) Submit(ctx context.Context, question string, target Target) (Message, error) {
	if strings.TrimSpace(question) == "" {
		observability.RecordChatSubmission(target.label(), "rejected")
		return Message{}, ErrEmptyQuestion
	}
	if err := target.validate(); err != nil {
		observability.RecordChatSubmission(target.label(), "rejected")
		return Message{}, err
	}
	if c.gate != nil {
		if err := c.gate.Require(c.view); err != nil {
			observability.RecordChatSubmission(target.label(), "rejected")
			return Message{}, err
		}
	}

	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		observability.RecordChatSubmission(target.label(), "rejected")
		return Message{}, ErrBusy
	}
	c.messages = append(c.messages, Message{ID: c.newID(), Role: RoleUser, Text: question})
	c.state = Submitting
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	ctx, span := tracing.StartSpan(ctx, "chat.submit", map[string]any{"target": target.label()})
	defer span.End()

	result, err := target.ask(ctx, c.querier, question)
	if err == nil && result == nil {
		err = errEmptyAnswer
	}

	reply := Message{ID: c.newID(), Role: RoleAssistant}
	if err != nil {
		span.SetError(err)
		c.logger.Warn("question failed", zap.String("target", target.label()), zap.Error(err))
		observability.RecordChatSubmission(target.label(), "failed")
		reply.Text = c.formatErr(gateway.Message(err))
	} else {
		observability.RecordChatSubmission(target.label(), "answered")
		observability.RecordAnswerConfidence(target.label(), result.Confidence)
		reply.Text = result.Answer
		reply.Result = result
	}

	c.mu.Lock()
	c.messages = append(c.messages, reply)
	c.state = Idle
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	return reply, nil
}

// State returns the submission state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a submission is in flight. Front ends disable input
// while it is true.
func (c *Controller) Busy() bool {
	return c.State() == Submitting
}

// Messages returns a copy of the thread.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Snapshot returns state and messages together.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{State: c.state, Messages: append([]Message(nil), c.messages...)}
}

func (c *Controller) emit(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}
