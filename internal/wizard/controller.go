// Package wizard owns the feedback record and drives the five-screen flow.
//
// A Controller is the single writer for the aggregate and the submission
// state. It is not safe for concurrent use: decodes and deliveries run
// elsewhere and hand their results back to ApplyDecoded and SettleSubmit on
// the controller's goroutine.
package wizard

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/media"
	"github.com/kingrea/feedback-desk/internal/submission"
)

var (
	// ErrNotOnReview is returned when a submit is requested away from Review.
	ErrNotOnReview = errors.New("wizard: submit is only available on review")
	// ErrInFlight is returned when an action conflicts with a pending submission.
	ErrInFlight = submission.ErrInFlight
)

// ReasonClosed marks candidates offered while the details screen is not current.
const ReasonClosed media.Reason = "closed"

// Draft is the uncommitted input of the current screen.
type Draft struct {
	Language form.Language
	Contact  form.ContactDraft
	Details  string
}

// Outcome reports what ApplyDecoded did with one decode result.
type Outcome struct {
	Applied    bool
	Attachment form.Attachment
	Rejection  media.Rejection
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller owns the current screen, the drafts and the aggregate.
type Controller struct {
	pipeline    *media.Pipeline
	coordinator *submission.Coordinator
	logger      *zap.Logger

	screen    Screen
	aggregate form.Aggregate
	draft     Draft
	errors    form.FieldErrors
	reference string

	generation uint64
	decodeCtx  context.Context
	cancel     context.CancelFunc
	pending    int
}

// New starts a controller on the language screen with an empty record.
func New(pipeline *media.Pipeline, coordinator *submission.Coordinator, opts ...Option) *Controller {
	if pipeline == nil {
		pipeline = media.New()
	}
	if coordinator == nil {
		coordinator = submission.New(nil)
	}
	c := &Controller{
		pipeline:    pipeline,
		coordinator: coordinator,
		logger:      zap.NewNop(),
		screen:      ScreenLanguage,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.decodeCtx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Screen returns the current screen.
func (c *Controller) Screen() Screen { return c.screen }

// Aggregate returns a copy of the committed record.
func (c *Controller) Aggregate() form.Aggregate { return c.aggregate.Clone() }

// Draft returns the current screen's uncommitted input.
func (c *Controller) Draft() Draft { return c.draft }

// Reference returns the token minted by the last successful submission.
func (c *Controller) Reference() string { return c.reference }

// SubmissionState returns the coordinator's state.
func (c *Controller) SubmissionState() submission.State { return c.coordinator.State() }

// Generation identifies the current record; it advances on every Reset.
func (c *Controller) Generation() uint64 { return c.generation }

// PendingDecodes counts admitted jobs of this generation not yet applied.
func (c *Controller) PendingDecodes() int { return c.pending }

// DecodeContext is cancelled when the record is reset. Decode jobs for the
// current generation should run under it.
func (c *Controller) DecodeContext() context.Context { return c.decodeCtx }

// Pipeline exposes the ingestion pipeline so callers can schedule decodes.
func (c *Controller) Pipeline() *media.Pipeline { return c.pipeline }

// Coordinator exposes the submission coordinator so callers can deliver tickets.
func (c *Controller) Coordinator() *submission.Coordinator { return c.coordinator }

// Errors returns a copy of the current screen's validation errors.
func (c *Controller) Errors() form.FieldErrors {
	if len(c.errors) == 0 {
		return nil
	}
	out := make(form.FieldErrors, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

// SelectLanguage updates the language draft.
func (c *Controller) SelectLanguage(lang form.Language) {
	c.draft.Language = lang
	c.clearError(form.FieldLanguage)
}

// SetName updates the name draft and clears its error.
func (c *Controller) SetName(v string) {
	c.draft.Contact.Name = v
	c.clearError(form.FieldName)
}

// SetAddress updates the address draft and clears its error.
func (c *Controller) SetAddress(v string) {
	c.draft.Contact.Address = v
	c.clearError(form.FieldAddress)
}

// SetPhone updates the phone draft and clears its error.
func (c *Controller) SetPhone(v string) {
	c.draft.Contact.Phone = v
	c.clearError(form.FieldPhone)
}

// SetDetails updates the details draft, discarding input past the limit.
func (c *Controller) SetDetails(v string) {
	c.draft.Details = form.TruncateDetails(v)
}

func (c *Controller) clearError(field string) {
	if c.errors != nil {
		c.errors.Clear(field)
	}
}

// Continue validates the current screen, commits its draft and advances.
// Validation failures are returned as *form.ValidationError and also kept
// for Errors.
func (c *Controller) Continue() error {
	next, err := transition(c.screen, ActionContinue)
	if err != nil {
		return err
	}
	switch c.screen {
	case ScreenLanguage:
		if errs := form.ValidateLanguage(c.draft.Language); !errs.Valid() {
			c.errors = errs
			return errs.Err()
		}
		c.aggregate.Language = c.draft.Language
	case ScreenContact:
		if errs := form.ValidateContact(c.draft.Contact); !errs.Valid() {
			c.errors = errs
			return errs.Err()
		}
		contact := c.draft.Contact.Trimmed()
		c.aggregate.Name = contact.Name
		c.aggregate.Address = contact.Address
		c.aggregate.Phone = contact.Phone
	case ScreenDetails:
		c.aggregate.Details = form.TruncateDetails(strings.TrimSpace(c.draft.Details))
	}
	c.enter(next)
	return nil
}

// Back returns to the previous screen, discarding uncommitted edits on the
// screen being left. It is refused while a submission is pending.
func (c *Controller) Back() error {
	if c.screen == ScreenReview && c.coordinator.State().Pending() {
		return ErrInFlight
	}
	next, err := transition(c.screen, ActionBack)
	if err != nil {
		return err
	}
	if c.screen == ScreenReview {
		c.coordinator.Reset()
	}
	c.enter(next)
	return nil
}

func (c *Controller) enter(next Screen) {
	c.logger.Debug("screen transition", zap.Stringer("from", c.screen), zap.Stringer("to", next))
	c.screen = next
	c.errors = nil
	c.draft = Draft{
		Language: c.aggregate.Language,
		Contact: form.ContactDraft{
			Name:    c.aggregate.Name,
			Address: c.aggregate.Address,
			Phone:   c.aggregate.Phone,
		},
		Details: c.aggregate.Details,
	}
}

// Ingest offers candidates to the pipeline. Admitted jobs must be decoded
// (under DecodeContext) and their results passed to ApplyDecoded.
func (c *Controller) Ingest(candidates []media.Candidate) media.Admission {
	if c.screen != ScreenDetails {
		var adm media.Admission
		for _, cand := range candidates {
			if cand == nil {
				continue
			}
			adm.Rejected = append(adm.Rejected, media.Rejection{Name: cand.Name(), ContentType: cand.ContentType(), Reason: ReasonClosed})
		}
		return adm
	}
	adm := c.pipeline.Admit(c.generation, len(c.aggregate.Images), candidates)
	c.pending += len(adm.Jobs)
	return adm
}

// ApplyDecoded is the only place attachments are appended. It drops results
// from an earlier generation, failed decodes, and anything that would push
// the record past form.MaxImages.
func (c *Controller) ApplyDecoded(res media.Result) Outcome {
	reject := func(reason media.Reason) Outcome {
		return Outcome{Rejection: media.Rejection{Name: res.Job.Name, ContentType: res.Job.ContentType, Reason: reason}}
	}
	if res.Job.Generation != c.generation {
		c.logger.Debug("dropping stale decode", zap.String("attachment", res.Job.ID), zap.Uint64("generation", res.Job.Generation))
		return reject(media.ReasonStale)
	}
	if c.pending > 0 {
		c.pending--
	}
	if !res.OK() {
		return reject(media.ReasonDecodeFailed)
	}
	if len(c.aggregate.Images)+1 > form.MaxImages {
		return reject(media.ReasonOverLimit)
	}
	if c.aggregate.AttachmentIndex(res.Attachment.ID) >= 0 {
		return reject(media.ReasonStale)
	}
	c.aggregate.Images = append(c.aggregate.Images, res.Attachment)
	return Outcome{Applied: true, Attachment: res.Attachment}
}

// IngestAndWait ingests candidates and decodes them concurrently, applying
// every completion on the calling goroutine before returning.
func (c *Controller) IngestAndWait(ctx context.Context, candidates []media.Candidate) (media.Admission, []Outcome) {
	adm := c.Ingest(candidates)
	if len(adm.Jobs) == 0 {
		return adm, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.decodeCtx, cancel)
	defer stop()

	results := make(chan media.Result)
	go c.pipeline.DecodeAll(ctx, adm.Jobs, results)
	outcomes := make([]Outcome, 0, len(adm.Jobs))
	for range adm.Jobs {
		outcomes = append(outcomes, c.ApplyDecoded(<-results))
	}
	return adm, outcomes
}

// RemoveAttachment drops the attachment with id. Unknown ids are ignored.
func (c *Controller) RemoveAttachment(id string) bool {
	idx := c.aggregate.AttachmentIndex(id)
	if idx < 0 {
		return false
	}
	c.aggregate.Images = append(c.aggregate.Images[:idx:idx], c.aggregate.Images[idx+1:]...)
	return true
}

// Snapshot returns the payload the transport would receive now.
func (c *Controller) Snapshot() form.Payload {
	return c.aggregate.Snapshot()
}

// BeginSubmit snapshots the record and moves the submission to Pending.
func (c *Controller) BeginSubmit() (submission.Ticket, error) {
	if c.screen != ScreenReview {
		return submission.Ticket{}, ErrNotOnReview
	}
	return c.coordinator.Begin(c.aggregate.Snapshot())
}

// SettleSubmit applies a delivery result. Success advances to the success
// screen; failure keeps Review and the record intact for a retry.
func (c *Controller) SettleSubmit(res submission.Result) submission.Result {
	settled := c.coordinator.Settle(res)
	if !settled.OK() || settled.Reference == "" {
		return settled
	}
	next, err := transition(c.screen, ActionSubmitSucceeded)
	if err != nil {
		c.logger.Warn("submission settled off review", zap.Stringer("screen", c.screen), zap.Error(err))
		return settled
	}
	c.reference = settled.Reference
	c.enter(next)
	return settled
}

// Reset clears the record after a successful submission and returns to the
// language screen. Outstanding decodes are cancelled and their late results
// become stale.
func (c *Controller) Reset() error {
	next, err := transition(c.screen, ActionReset)
	if err != nil {
		return err
	}
	c.cancel()
	c.generation++
	c.decodeCtx, c.cancel = context.WithCancel(context.Background())
	c.pending = 0
	c.aggregate = form.Aggregate{}
	c.reference = ""
	c.coordinator.Reset()
	c.enter(next)
	return nil
}
