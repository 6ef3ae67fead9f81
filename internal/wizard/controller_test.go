package wizard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/media"
	"github.com/kingrea/feedback-desk/internal/submission"
)

type stubTransport struct {
	err   error
	calls int
}

func (s *stubTransport) Submit(context.Context, form.Payload) error {
	s.calls++
	return s.err
}

func newController(t *testing.T, transport submission.Transport) *Controller {
	t.Helper()
	return New(media.New(), submission.New(transport, submission.WithReferenceFunc(func() string { return "REF000001" })))
}

func photos(prefix string, n int) []media.Candidate {
	out := make([]media.Candidate, n)
	for i := range out {
		out[i] = media.BytesCandidate(fmt.Sprintf("%s-%d.jpg", prefix, i), "image/jpeg", []byte{0xff, 0xd8, byte(i)})
	}
	return out
}

func toDetails(t *testing.T, c *Controller) {
	t.Helper()
	c.SelectLanguage(form.LanguageNepali)
	require.NoError(t, c.Continue())
	c.SetName("  Sita Sharma ")
	c.SetAddress("Golpark, Butwal")
	c.SetPhone("+977 9800000000")
	require.NoError(t, c.Continue())
	require.Equal(t, ScreenDetails, c.Screen())
}

func toReview(t *testing.T, c *Controller) {
	t.Helper()
	toDetails(t, c)
	c.SetDetails("The canteen is closed on Fridays.")
	require.NoError(t, c.Continue())
	require.Equal(t, ScreenReview, c.Screen())
}

func TestTransitionTableIsTotal(t *testing.T) {
	allowed := map[Screen]map[Action]Screen{
		ScreenLanguage: {ActionContinue: ScreenContact},
		ScreenContact:  {ActionContinue: ScreenDetails, ActionBack: ScreenLanguage},
		ScreenDetails:  {ActionContinue: ScreenReview, ActionBack: ScreenContact},
		ScreenReview:   {ActionSubmitSucceeded: ScreenSuccess, ActionBack: ScreenDetails},
		ScreenSuccess:  {ActionReset: ScreenLanguage},
	}
	for _, screen := range Screens() {
		for _, action := range Actions() {
			next, err := transition(screen, action)
			want, ok := allowed[screen][action]
			if ok {
				require.NoError(t, err, "%s on %s", action, screen)
				assert.Equal(t, want, next, "%s on %s", action, screen)
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", action, screen)
			assert.Equal(t, screen, next)
		}
	}
}

func TestLanguageMustBeSelected(t *testing.T) {
	c := newController(t, &stubTransport{})
	err := c.Continue()
	var verr *form.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, c.Errors(), form.FieldLanguage)
	assert.Equal(t, ScreenLanguage, c.Screen())

	c.SelectLanguage(form.LanguageHindi)
	assert.Empty(t, c.Errors())
	require.NoError(t, c.Continue())
	assert.Equal(t, ScreenContact, c.Screen())
	assert.Equal(t, form.LanguageHindi, c.Aggregate().Language)
}

func TestContactRefusalReportsAllThreeErrors(t *testing.T) {
	c := newController(t, &stubTransport{})
	c.SelectLanguage(form.LanguageEnglish)
	require.NoError(t, c.Continue())

	err := c.Continue()
	require.Error(t, err)
	assert.Equal(t, ScreenContact, c.Screen())
	assert.Equal(t, []string{form.FieldAddress, form.FieldName, form.FieldPhone}, c.Errors().Fields())

	c.SetName("Ram")
	assert.NotContains(t, c.Errors(), form.FieldName, "editing a field clears its error")
	assert.Contains(t, c.Errors(), form.FieldPhone)
}

func TestContactCommitIsTrimmed(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	agg := c.Aggregate()
	assert.Equal(t, "Sita Sharma", agg.Name)
	assert.Equal(t, "+977 9800000000", agg.Phone)
}

func TestDetailsNeverExceedLimit(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	c.SetDetails(strings.Repeat("क", 4000))
	assert.Equal(t, form.MaxDetailsLength, form.DetailsLength(c.Draft().Details))
	require.NoError(t, c.Continue())
	assert.Equal(t, form.MaxDetailsLength, form.DetailsLength(c.Aggregate().Details))
}

func TestBackReseedsDraftsFromAggregate(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	c.SetDetails("unsaved")
	require.NoError(t, c.Back())
	assert.Equal(t, ScreenContact, c.Screen())
	assert.Equal(t, "Sita Sharma", c.Draft().Contact.Name)

	c.SetName("")
	require.NoError(t, c.Back())
	assert.Equal(t, form.LanguageNepali, c.Draft().Language)
	require.NoError(t, c.Continue())
	assert.Equal(t, "Sita Sharma", c.Draft().Contact.Name, "uncommitted edits are discarded when leaving a screen")
	require.NoError(t, c.Continue())
	assert.Empty(t, c.Draft().Details)

	assert.ErrorIs(t, newController(t, nil).Back(), ErrInvalidTransition)
}

func TestNoSkippingAhead(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	_, err := c.BeginSubmit()
	assert.ErrorIs(t, err, ErrNotOnReview)
	assert.ErrorIs(t, c.Reset(), ErrInvalidTransition)
}

func TestIngestThreeThenFourKeepsFive(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newController(t, &stubTransport{})
	toDetails(t, c)

	_, outcomes := c.IngestAndWait(context.Background(), photos("first", 3))
	require.Len(t, outcomes, 3)
	adm, outcomes := c.IngestAndWait(context.Background(), photos("second", 4))
	assert.Len(t, adm.Jobs, 2)
	assert.Len(t, adm.Rejected, 2)
	for _, rej := range adm.Rejected {
		assert.Equal(t, media.ReasonOverLimit, rej.Reason)
	}
	assert.Len(t, outcomes, 2)
	assert.Len(t, c.Aggregate().Images, form.MaxImages)
	assert.Zero(t, c.PendingDecodes())
}

func TestCapHoldsWhenBatchesOverlapBeforeCompletion(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	first := c.Ingest(photos("a", 3))
	second := c.Ingest(photos("b", 4))
	require.Len(t, first.Jobs, 3)
	require.Len(t, second.Jobs, 4, "nothing has landed yet, so all four are admitted")

	var applied, overLimit int
	for _, job := range append(second.Jobs, first.Jobs...) {
		out := c.ApplyDecoded(c.Pipeline().Decode(context.Background(), job))
		if out.Applied {
			applied++
		} else if out.Rejection.Reason == media.ReasonOverLimit {
			overLimit++
		}
		require.LessOrEqual(t, len(c.Aggregate().Images), form.MaxImages)
	}
	assert.Equal(t, 5, applied)
	assert.Equal(t, 2, overLimit)
}

func TestCapHoldsForRandomBatchesAndCompletionOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		c := newController(t, &stubTransport{})
		toDetails(t, c)
		var queued []media.Result
		for step := 0; step < 6; step++ {
			adm := c.Ingest(photos(fmt.Sprintf("t%d-s%d", trial, step), rng.Intn(5)))
			for _, job := range adm.Jobs {
				queued = append(queued, c.Pipeline().Decode(context.Background(), job))
			}
			rng.Shuffle(len(queued), func(i, j int) { queued[i], queued[j] = queued[j], queued[i] })
			drain := rng.Intn(len(queued) + 1)
			for _, res := range queued[:drain] {
				c.ApplyDecoded(res)
				require.LessOrEqual(t, len(c.Aggregate().Images), form.MaxImages)
			}
			queued = queued[drain:]
			if rng.Intn(4) == 0 {
				if ids := c.Aggregate().Images; len(ids) > 0 {
					c.RemoveAttachment(ids[rng.Intn(len(ids))].ID)
				}
			}
		}
		for _, res := range queued {
			c.ApplyDecoded(res)
			require.LessOrEqual(t, len(c.Aggregate().Images), form.MaxImages)
		}
	}
}

func TestDecodeFailureCreatesNoAttachment(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	adm := c.Ingest(photos("x", 1))
	out := c.ApplyDecoded(media.Result{Job: adm.Jobs[0], Err: errors.New("corrupt")})
	assert.False(t, out.Applied)
	assert.Equal(t, media.ReasonDecodeFailed, out.Rejection.Reason)
	assert.Empty(t, c.Aggregate().Images)
}

func TestIngestOutsideDetailsIsRejected(t *testing.T) {
	c := newController(t, &stubTransport{})
	adm := c.Ingest(photos("early", 2))
	assert.Empty(t, adm.Jobs)
	require.Len(t, adm.Rejected, 2)
	assert.Equal(t, ReasonClosed, adm.Rejected[0].Reason)
}

func TestRemoveOnlyAttachmentThenRefill(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	_, outcomes := c.IngestAndWait(context.Background(), photos("solo", 1))
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Applied)

	assert.True(t, c.RemoveAttachment(outcomes[0].Attachment.ID))
	assert.Empty(t, c.Aggregate().Images)
	assert.False(t, c.RemoveAttachment("missing"), "unknown ids are ignored")

	_, outcomes = c.IngestAndWait(context.Background(), photos("refill", 7))
	assert.Len(t, outcomes, form.MaxImages)
	assert.Len(t, c.Aggregate().Images, form.MaxImages)
}

func TestFailedSubmitKeepsReviewAndRecord(t *testing.T) {
	transport := &stubTransport{err: errors.New("offline")}
	c := newController(t, transport)
	toDetails(t, c)
	_, outcomes := c.IngestAndWait(context.Background(), photos("evidence", 2))
	require.Len(t, outcomes, 2)
	c.SetDetails("Water cooler broken")
	require.NoError(t, c.Continue())
	before := c.Aggregate()
	require.Len(t, before.Images, 2)

	ticket, err := c.BeginSubmit()
	require.NoError(t, err)
	assert.True(t, c.SubmissionState().Pending())
	assert.ErrorIs(t, c.Back(), ErrInFlight)
	_, err = c.BeginSubmit()
	assert.ErrorIs(t, err, ErrInFlight)

	res := c.SettleSubmit(c.Coordinator().Deliver(context.Background(), ticket))
	require.Error(t, res.Err)
	assert.Equal(t, ScreenReview, c.Screen())
	assert.Equal(t, submission.State{Status: submission.Failed, Message: submission.FailureMessage}, c.SubmissionState())
	if diff := cmp.Diff(before, c.Aggregate()); diff != "" {
		t.Fatalf("aggregate changed after failed submit (-want +got):\n%s", diff)
	}

	transport.err = nil
	ticket, err = c.BeginSubmit()
	require.NoError(t, err)
	res = c.SettleSubmit(c.Coordinator().Deliver(context.Background(), ticket))
	require.True(t, res.OK())
	assert.Equal(t, ScreenSuccess, c.Screen())
	assert.Equal(t, "REF000001", c.Reference())
	assert.Equal(t, 2, transport.calls)
}

func TestResetReturnsToEmptyLanguage(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	_, _ = c.IngestAndWait(context.Background(), photos("keep", 2))
	require.NoError(t, c.Continue())
	ticket, err := c.BeginSubmit()
	require.NoError(t, err)
	c.SettleSubmit(c.Coordinator().Deliver(context.Background(), ticket))
	require.Equal(t, ScreenSuccess, c.Screen())

	require.NoError(t, c.Reset())
	assert.Equal(t, ScreenLanguage, c.Screen())
	if diff := cmp.Diff(form.Aggregate{}, c.Aggregate()); diff != "" {
		t.Fatalf("aggregate not empty after reset (-want +got):\n%s", diff)
	}
	assert.Equal(t, Draft{}, c.Draft())
	assert.Empty(t, c.Reference())
	assert.Equal(t, submission.Idle, c.SubmissionState().Status)
}

func TestResetInvalidatesInFlightDecodes(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	adm := c.Ingest(photos("late", 2))
	decodeCtx := c.DecodeContext()
	require.NoError(t, c.Continue())
	ticket, err := c.BeginSubmit()
	require.NoError(t, err)
	c.SettleSubmit(c.Coordinator().Deliver(context.Background(), ticket))
	require.NoError(t, c.Reset())

	assert.Error(t, decodeCtx.Err(), "reset cancels the previous generation's decodes")
	toDetails(t, c)
	for _, job := range adm.Jobs {
		res := c.Pipeline().Decode(context.Background(), job)
		out := c.ApplyDecoded(res)
		assert.False(t, out.Applied)
		assert.Equal(t, media.ReasonStale, out.Rejection.Reason)
	}
	assert.Empty(t, c.Aggregate().Images)
}

func TestSnapshotDoesNotAliasRecord(t *testing.T) {
	c := newController(t, &stubTransport{})
	toDetails(t, c)
	_, _ = c.IngestAndWait(context.Background(), photos("snap", 1))
	payload := c.Snapshot()
	payload.Images[0].DisplayName = "tampered"
	assert.NotEqual(t, "tampered", c.Aggregate().Images[0].DisplayName)
}

func TestReviewAdvancesOnlyThroughSubmission(t *testing.T) {
	c := newController(t, &stubTransport{})
	toReview(t, c)
	assert.ErrorIs(t, c.Continue(), ErrInvalidTransition)
	assert.Equal(t, "The canteen is closed on Fridays.", c.Aggregate().Details)

	stale := c.SettleSubmit(submission.Result{Ticket: submission.Ticket{ID: 42}})
	assert.Empty(t, stale.Reference)
	assert.Equal(t, ScreenReview, c.Screen(), "a result with no pending ticket is ignored")
}
