package submission

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kingrea/feedback-desk/internal/form"
)

type stubTransport struct {
	err      error
	received []form.Payload
}

func (s *stubTransport) Submit(_ context.Context, payload form.Payload) error {
	s.received = append(s.received, payload)
	return s.err
}

func samplePayload() form.Payload {
	return form.Payload{
		Language: "nepali",
		Name:     "Sita",
		Address:  "Butwal",
		Phone:    "9800000000",
		Images:   []form.Attachment{{ID: "att-1", EmbeddedData: "data:image/png;base64,AA==", DisplayName: "a.png"}},
	}
}

func TestBeginRejectsSecondSubmitWhilePending(t *testing.T) {
	c := New(&stubTransport{})
	_, err := c.Begin(samplePayload())
	require.NoError(t, err)
	assert.True(t, c.State().Pending())

	_, err = c.Begin(samplePayload())
	assert.ErrorIs(t, err, ErrInFlight)
}

func TestSuccessfulDeliveryMintsReferenceAndReturnsIdle(t *testing.T) {
	transport := &stubTransport{}
	c := New(transport, WithReferenceFunc(func() string { return "ABC123XYZ" }))
	ticket, err := c.Begin(samplePayload())
	require.NoError(t, err)

	res := c.Settle(c.Deliver(context.Background(), ticket))
	require.True(t, res.OK())
	assert.Equal(t, "ABC123XYZ", res.Reference)
	assert.Equal(t, State{Status: Idle}, c.State())
	require.Len(t, transport.received, 1)
	assert.Equal(t, samplePayload(), transport.received[0])
}

func TestFailedDeliveryAllowsRetry(t *testing.T) {
	transport := &stubTransport{err: errors.New("connection refused")}
	c := New(transport)
	ticket, err := c.Begin(samplePayload())
	require.NoError(t, err)

	res := c.Settle(c.Deliver(context.Background(), ticket))
	require.Error(t, res.Err)
	assert.Empty(t, res.Reference)
	assert.Equal(t, State{Status: Failed, Message: FailureMessage}, c.State())

	transport.err = nil
	retry, err := c.Begin(samplePayload())
	require.NoError(t, err)
	assert.Greater(t, retry.ID, ticket.ID)
	res = c.Settle(c.Deliver(context.Background(), retry))
	assert.True(t, res.OK())
	assert.Equal(t, Idle, c.State().Status)
}

func TestSettleIgnoresResultAfterReset(t *testing.T) {
	c := New(&stubTransport{})
	ticket, err := c.Begin(samplePayload())
	require.NoError(t, err)
	c.Reset()

	res := c.Settle(Result{Ticket: ticket, Err: errors.New("late")})
	require.Error(t, res.Err)
	assert.Equal(t, State{Status: Idle}, c.State())
}

func TestDeliverWithoutTransportFails(t *testing.T) {
	c := New(nil)
	ticket, err := c.Begin(samplePayload())
	require.NoError(t, err)
	res := c.Settle(c.Deliver(context.Background(), ticket))
	require.Error(t, res.Err)
	assert.True(t, c.State().Failed())
}

func TestDeliverRecordsElapsedFromClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := New(&stubTransport{}, WithClock(clock))
	ticket, err := c.Begin(samplePayload())
	require.NoError(t, err)
	now = now.Add(1500 * time.Millisecond)
	res := c.Deliver(context.Background(), ticket)
	assert.Equal(t, 1500*time.Millisecond, res.Elapsed)
}

func TestDeliverEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	c := New(&stubTransport{err: errors.New("boom")})
	ticket, err := c.Begin(samplePayload())
	require.NoError(t, err)
	c.Deliver(context.Background(), ticket)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "submission.deliver", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestNewReferenceShape(t *testing.T) {
	shape := regexp.MustCompile(`^[0-9A-Z]{9}$`)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		ref := NewReference()
		require.Regexp(t, shape, ref)
		seen[ref] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "failed", Failed.String())
}
