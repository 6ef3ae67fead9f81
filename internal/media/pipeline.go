// Package media admits candidate attachments under the record's image cap and
// decodes them concurrently into self-contained data URLs.
//
// The pipeline never mutates a record itself. Admit decides which candidates
// may proceed, Decode runs one job, and the caller applies each Result on its
// own goroutine so the cap is enforced at a single serialization point.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/telemetry"
)

const defaultMaxConcurrent = 4

// Reason explains why a candidate produced no attachment.
type Reason string

const (
	ReasonNotImage     Reason = "not-image"
	ReasonOverLimit    Reason = "over-limit"
	ReasonDecodeFailed Reason = "decode-failed"
	ReasonStale        Reason = "stale"
)

// Rejection records a dropped candidate. Rejections are informational; they
// are never returned as errors.
type Rejection struct {
	Name        string
	ContentType string
	Reason      Reason
}

// Job is one admitted candidate waiting to be decoded.
type Job struct {
	ID          string
	Name        string
	ContentType string
	Generation  uint64
	candidate   Candidate
}

// Admission is the outcome of offering a batch of candidates.
type Admission struct {
	Jobs     []Job
	Rejected []Rejection
}

// Result is the outcome of decoding one Job.
type Result struct {
	Job        Job
	Attachment form.Attachment
	Err        error
}

// OK reports whether the decode produced an attachment.
func (r Result) OK() bool {
	return r.Err == nil
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMaxConcurrent bounds how many decodes may read bytes at once.
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrent = n
		}
	}
}

// WithIDFunc replaces attachment id minting, for deterministic tests.
func WithIDFunc(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.nextID = fn
		}
	}
}

// Pipeline admits and decodes attachments. It is safe for concurrent use.
type Pipeline struct {
	logger        *zap.Logger
	maxConcurrent int
	slots         *semaphore.Weighted
	counter       atomic.Uint64
	nextID        func() string
}

// New prepares a pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:        zap.NewNop(),
		maxConcurrent: defaultMaxConcurrent,
	}
	p.nextID = p.mintID
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.slots = semaphore.NewWeighted(int64(p.maxConcurrent))
	return p
}

// mintID combines a process-wide monotonic counter with a random uuid
// fragment, so ids stay unique across resets.
func (p *Pipeline) mintID() string {
	n := p.counter.Add(1)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("att-%d-%s", n, random[:12])
}

// Admit filters candidates to images and keeps at most form.MaxImages-current
// of them, in the order provided. Everything else is reported as rejected.
func (p *Pipeline) Admit(generation uint64, current int, candidates []Candidate) Admission {
	var adm Admission
	images := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if !IsImage(c.ContentType()) {
			adm.Rejected = append(adm.Rejected, Rejection{Name: c.Name(), ContentType: c.ContentType(), Reason: ReasonNotImage})
			continue
		}
		images = append(images, c)
	}
	admitCount := max(0, form.MaxImages-current)
	for i, c := range images {
		if i >= admitCount {
			adm.Rejected = append(adm.Rejected, Rejection{Name: c.Name(), ContentType: c.ContentType(), Reason: ReasonOverLimit})
			continue
		}
		adm.Jobs = append(adm.Jobs, Job{
			ID:          p.nextID(),
			Name:        c.Name(),
			ContentType: c.ContentType(),
			Generation:  generation,
			candidate:   c,
		})
	}
	if len(adm.Rejected) > 0 {
		p.logger.Debug("ingest rejected candidates",
			zap.Int("admitted", len(adm.Jobs)),
			zap.Int("rejected", len(adm.Rejected)),
			zap.Int("current", current))
	}
	return adm
}

// Decode reads the job's bytes and encodes them as a data URL. It blocks
// while all decode slots are busy and honours ctx cancellation.
func (p *Pipeline) Decode(ctx context.Context, job Job) Result {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return Result{Job: job, Err: fmt.Errorf("media: wait for decode slot: %w", err)}
	}
	defer p.slots.Release(1)
	return p.decode(ctx, job)
}

// DecodeAll decodes every job with at most maxConcurrent in flight and sends
// exactly one Result per job on out, in completion order. The caller must
// drain len(jobs) results.
func (p *Pipeline) DecodeAll(ctx context.Context, jobs []Job, out chan<- Result) {
	var g errgroup.Group
	g.SetLimit(p.maxConcurrent)
	for _, job := range jobs {
		g.Go(func() error {
			out <- p.decode(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) decode(ctx context.Context, job Job) Result {
	ctx, span := telemetry.Start(ctx, "media.decode",
		attribute.String("attachment.id", job.ID),
		attribute.String("attachment.name", job.Name),
		attribute.String("attachment.content_type", job.ContentType))
	res := Result{Job: job}
	defer func() { telemetry.End(span, res.Err) }()

	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("media: decode %s: %w", job.Name, err)
		return res
	}
	data, err := readCandidate(job.candidate)
	if err != nil {
		res.Err = err
		p.logger.Warn("decode failed", zap.String("attachment", job.ID), zap.String("name", job.Name), zap.Error(err))
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("media: decode %s: %w", job.Name, err)
		return res
	}
	res.Attachment = form.Attachment{
		ID:           job.ID,
		EmbeddedData: DataURL(job.ContentType, data),
		DisplayName:  job.Name,
	}
	p.logger.Debug("decoded attachment", zap.String("attachment", job.ID), zap.Int("bytes", len(data)))
	return res
}

func readCandidate(c Candidate) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("media: job has no candidate")
	}
	rc, err := c.Open()
	if err != nil {
		return nil, fmt.Errorf("media: open %s: %w", c.Name(), err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("media: read %s: %w", c.Name(), err)
	}
	return data, nil
}

// DataURL renders data as a base64 data URL of the given media type.
func DataURL(contentType string, data []byte) string {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
