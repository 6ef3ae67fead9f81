// Package submission runs the single in-flight delivery of a finished record
// and tracks its Idle/Pending/Failed lifecycle.
//
// The coordinator splits a submission into three steps so that state only
// changes on the caller's goroutine: Begin moves to Pending, Deliver performs
// the (possibly slow) transport call anywhere, and Settle applies the outcome.
package submission

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/telemetry"
)

// FailureMessage is the banner shown after any transport failure.
const FailureMessage = "Failed to submit. Please check your connection and try again."

const referenceLength = 9

// ErrInFlight is returned by Begin while another submission is pending.
var ErrInFlight = errors.New("submission: already in flight")

// Transport delivers a payload. A nil error means the record was accepted.
type Transport interface {
	Submit(ctx context.Context, payload form.Payload) error
}

// Status is the coarse lifecycle of the review screen's submit action.
type Status int

const (
	Idle Status = iota
	Pending
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is the observable submission state. Message is set only when Failed.
type State struct {
	Status  Status
	Message string
}

// Pending reports whether a delivery is outstanding.
func (s State) Pending() bool { return s.Status == Pending }

// Failed reports whether the last delivery failed.
func (s State) Failed() bool { return s.Status == Failed }

// Ticket identifies one accepted submit request.
type Ticket struct {
	ID        uint64
	Payload   form.Payload
	StartedAt time.Time
}

// Result is the outcome of delivering a Ticket.
type Result struct {
	Ticket    Ticket
	Err       error
	Reference string
	Elapsed   time.Duration
}

// OK reports whether the transport accepted the record.
func (r Result) OK() bool { return r.Err == nil }

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock injects a clock for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithReferenceFunc replaces reference token minting.
func WithReferenceFunc(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.reference = fn
		}
	}
}

// Coordinator owns SubmissionState. Begin, Settle and Reset must be called
// from a single goroutine; Deliver may run on any goroutine.
type Coordinator struct {
	transport Transport
	logger    *zap.Logger
	clock     func() time.Time
	reference func() string

	state    State
	seq      uint64
	inflight uint64
}

// New wires a coordinator to a transport.
func New(transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport: transport,
		logger:    zap.NewNop(),
		clock:     time.Now,
		reference: NewReference,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// State returns the current submission state.
func (c *Coordinator) State() State {
	return c.state
}

// Begin moves Idle or Failed to Pending and returns the ticket to deliver.
func (c *Coordinator) Begin(payload form.Payload) (Ticket, error) {
	if c.state.Pending() {
		return Ticket{}, ErrInFlight
	}
	c.seq++
	c.inflight = c.seq
	c.state = State{Status: Pending}
	ticket := Ticket{ID: c.seq, Payload: payload, StartedAt: c.clock()}
	c.logger.Info("submission started",
		zap.Uint64("ticket", ticket.ID),
		zap.String("language", payload.Language),
		zap.Int("attachments", len(payload.Images)))
	return ticket, nil
}

// Deliver hands the ticket's payload to the transport. It touches no
// coordinator state, so it is safe to run as a background command.
func (c *Coordinator) Deliver(ctx context.Context, ticket Ticket) Result {
	ctx, span := telemetry.Start(ctx, "submission.deliver",
		attribute.Int64("submission.ticket", int64(ticket.ID)),
		attribute.Int("submission.attachments", len(ticket.Payload.Images)))
	res := Result{Ticket: ticket}
	if c.transport == nil {
		res.Err = errors.New("submission: no transport configured")
	} else if err := c.transport.Submit(ctx, ticket.Payload); err != nil {
		res.Err = fmt.Errorf("submission: deliver ticket %d: %w", ticket.ID, err)
	}
	res.Elapsed = c.clock().Sub(ticket.StartedAt)
	telemetry.End(span, res.Err)
	return res
}

// Settle applies a delivery outcome. Success mints a reference token and
// returns to Idle; failure records FailureMessage and permits a retry.
// Results for tickets that are no longer in flight are ignored.
func (c *Coordinator) Settle(res Result) Result {
	if !c.state.Pending() || res.Ticket.ID != c.inflight {
		c.logger.Debug("ignoring stale submission result", zap.Uint64("ticket", res.Ticket.ID))
		return res
	}
	c.inflight = 0
	if res.Err != nil {
		c.state = State{Status: Failed, Message: FailureMessage}
		c.logger.Warn("submission failed",
			zap.Uint64("ticket", res.Ticket.ID),
			zap.Duration("elapsed", res.Elapsed),
			zap.Error(res.Err))
		return res
	}
	res.Reference = c.reference()
	c.state = State{Status: Idle}
	c.logger.Info("submission accepted",
		zap.Uint64("ticket", res.Ticket.ID),
		zap.String("reference", res.Reference),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

// Reset returns to Idle and forgets any outstanding ticket.
func (c *Coordinator) Reset() {
	c.state = State{Status: Idle}
	c.inflight = 0
}

// NewReference mints a short human-presentable token: nine upper-case
// base-36 characters taken from a random uuid.
func NewReference() string {
	id := uuid.New()
	text := strings.ToUpper(new(big.Int).SetBytes(id[:]).Text(36))
	if len(text) < referenceLength {
		text = strings.Repeat("0", referenceLength-len(text)) + text
	}
	return text[len(text)-referenceLength:]
}
