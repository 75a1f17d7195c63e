package learning

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/keylock"
	"github.com/heartmarshall/lingualearn/internal/matcher"
	"github.com/heartmarshall/lingualearn/internal/workpool"
	"github.com/heartmarshall/lingualearn/pkg/ctxutil"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type deps struct {
	ext     *extractorMock
	terms   *termStoreMock
	matcher *matcherMock
	engine  *reinforcerMock
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func querySignature() domain.Signature {
	h := domain.PHash(0xDEADBEEF)
	return domain.Signature{
		Hash:       &h,
		Attributes: &domain.Attributes{Area: 1000, Perimeter: 120, Circularity: 0.8, AspectRatio: 1.2},
	}
}

func newDeps() *deps {
	return &deps{
		ext: &extractorMock{extractFunc: func(domain.Detection) (domain.Signature, error) {
			return querySignature(), nil
		}},
		terms:   &termStoreMock{},
		matcher: &matcherMock{},
		engine:  &reinforcerMock{},
	}
}

func newTestService(t *testing.T, d *deps) *Service {
	t.Helper()
	pool := workpool.New(testLogger(), 2)
	t.Cleanup(pool.Close)
	return NewService(testLogger(), d.ext, d.terms, d.matcher, d.engine, pool, keylock.New(),
		domain.NewLanguages("xho", "zul", "eng"), DefaultConfig())
}

func detection(score float64) domain.Detection {
	return domain.Detection{Score: score}
}

func teachInput() TeachInput {
	return TeachInput{
		Detection:  detection(0.9),
		ObjectName: "tree",
		LocalTerm:  "umthi",
		Language:   "XHO",
	}
}

var (
	pathCommitted = []State{StateIdle, StateAwaitingSignal, StateExtracting, StateTeaching, StateCommitted}
	pathRecalled  = []State{StateIdle, StateAwaitingSignal, StateExtracting, StateRecalling, StateCommitted}
)

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateAwaitingSignal, true},
		{StateIdle, StateExtracting, false},
		{StateAwaitingSignal, StateExtracting, true},
		{StateAwaitingSignal, StateIdle, true},
		{StateExtracting, StateTeaching, true},
		{StateExtracting, StateRecalling, true},
		{StateExtracting, StateIdle, true},
		{StateExtracting, StateCommitted, false},
		{StateTeaching, StateCommitted, true},
		{StateTeaching, StateRejected, true},
		{StateRecalling, StateRejected, true},
		{StateTeaching, StateRecalling, false},
		{StateCommitted, StateIdle, false},
		{StateRejected, StateIdle, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRun_IllegalTransitionPanics(t *testing.T) {
	t.Parallel()

	r := newRun()
	assert.Panics(t, func() { r.to(StateCommitted) })
	assert.Equal(t, []State{StateIdle}, r.Path())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "awaiting_signal", StateAwaitingSignal.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StateRejected.Terminal())
	assert.False(t, StateTeaching.Terminal())
}

// ---------------------------------------------------------------------------
// Teach
// ---------------------------------------------------------------------------

func TestTeach_Success(t *testing.T) {
	t.Parallel()

	d := newDeps()
	otherID := uuid.New()
	d.matcher.findSimilarFunc = func(_ context.Context, _ domain.Signature, language string, _ float64) (matcher.Result, error) {
		stored := d.terms.PutCalls()[0]
		return matcher.Result{Matches: []matcher.Match{
			{Term: *stored, Score: 1},
			{Term: domain.ObjectTerm{ID: otherID, LocalTerm: "isihlahla", Language: language}, Score: 0.85},
		}}, nil
	}
	svc := newTestService(t, d)
	ctx := ctxutil.WithContributor(context.Background(), "contributor-1")

	region := " Eastern Cape "
	res, err := svc.Teach(ctx, TeachInput{
		Detection:  detection(0.9),
		ObjectName: " tree ",
		LocalTerm:  "umthi",
		Language:   "XHO",
		Region:     &region,
		Dialect:    new(string),
	})
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, pathCommitted, res.Path)
	assert.Equal(t, "tree", res.Term.ObjectName)
	assert.Equal(t, "xho", res.Term.Language)
	assert.Equal(t, domain.DefaultConfidence, res.Term.Confidence)
	require.NotNil(t, res.Term.Region)
	assert.Equal(t, "Eastern Cape", *res.Term.Region)
	assert.Nil(t, res.Term.Dialect)
	require.NotNil(t, res.Term.AddedBy)
	assert.Equal(t, "contributor-1", *res.Term.AddedBy)
	assert.Equal(t, querySignature(), res.Term.Signature)

	require.Len(t, res.Similar, 1)
	assert.Equal(t, otherID, res.Similar[0].Term.ID)
}

func TestTeach_ExplicitConfidenceAndContributor(t *testing.T) {
	t.Parallel()

	d := newDeps()
	svc := newTestService(t, d)
	ctx := ctxutil.WithContributor(context.Background(), "from-context")

	conf := 0.8
	by := "explicit"
	in := teachInput()
	in.Confidence = &conf
	in.AddedBy = &by

	res, err := svc.Teach(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.Term.Confidence)
	assert.Equal(t, "explicit", *res.Term.AddedBy)
	assert.NotNil(t, res.Similar)
	assert.Empty(t, res.Similar)
}

func TestTeach_LowConfidenceDetection(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.ext.extractFunc = func(domain.Detection) (domain.Signature, error) {
		t.Error("extractor must not run for a low-confidence detection")
		return domain.Signature{}, nil
	}
	svc := newTestService(t, d)

	in := teachInput()
	in.Detection = detection(0.69)
	_, err := svc.Teach(context.Background(), in)

	require.ErrorIs(t, err, domain.ErrLowConfidenceDetection)
	assert.Empty(t, d.terms.PutCalls())
}

func TestTeach_EmptyRegion(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.ext.extractFunc = func(domain.Detection) (domain.Signature, error) {
		return domain.Signature{}, fmt.Errorf("extract: %w", domain.ErrEmptyRegion)
	}
	svc := newTestService(t, d)

	_, err := svc.Teach(context.Background(), teachInput())

	require.ErrorIs(t, err, domain.ErrEmptyRegion)
	assert.Empty(t, d.terms.PutCalls())
}

func TestTeach_StoreFailure(t *testing.T) {
	t.Parallel()

	d := newDeps()
	dbErr := errors.New("disk full")
	d.terms.putFunc = func(context.Context, *domain.ObjectTerm) (*domain.ObjectTerm, error) {
		return nil, dbErr
	}
	svc := newTestService(t, d)

	_, err := svc.Teach(context.Background(), teachInput())

	require.ErrorIs(t, err, domain.ErrStoreWrite)
	assert.ErrorIs(t, err, dbErr)
	assert.Len(t, d.terms.PutCalls(), 1, "a failed write is not retried")
	assert.Zero(t, d.matcher.Calls())
}

func TestTeach_StoreValidationKeepsIdentity(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.terms.putFunc = func(context.Context, *domain.ObjectTerm) (*domain.ObjectTerm, error) {
		return nil, fmt.Errorf("object_term x: %w", domain.ErrValidation)
	}
	svc := newTestService(t, d)

	_, err := svc.Teach(context.Background(), teachInput())

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.NotErrorIs(t, err, domain.ErrStoreWrite)
}

func TestTeach_RelatedLookupFailureIsIgnored(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.matcher.findSimilarFunc = func(context.Context, domain.Signature, string, float64) (matcher.Result, error) {
		return matcher.Result{}, errors.New("scan failed")
	}
	svc := newTestService(t, d)

	res, err := svc.Teach(context.Background(), teachInput())
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Empty(t, res.Similar)
}

func TestTeach_Validation(t *testing.T) {
	t.Parallel()

	tooHigh := 1.5
	tests := []struct {
		name    string
		mutate  func(*TeachInput)
		wantErr error
	}{
		{"missing object name", func(i *TeachInput) { i.ObjectName = " " }, domain.ErrValidation},
		{"missing local term", func(i *TeachInput) { i.LocalTerm = "" }, domain.ErrValidation},
		{"confidence out of range", func(i *TeachInput) { i.Confidence = &tooHigh }, domain.ErrValidation},
		{"unknown language", func(i *TeachInput) { i.Language = "klingon" }, domain.ErrInvalidLanguage},
		{"local term too long", func(i *TeachInput) { i.LocalTerm = strings.Repeat("ŋ", 201) }, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newDeps()
			svc := newTestService(t, d)
			in := teachInput()
			tt.mutate(&in)

			_, err := svc.Teach(context.Background(), in)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, d.terms.PutCalls())
		})
	}
}

func TestTeachInput_LocalTermLengthCountsCharacters(t *testing.T) {
	t.Parallel()

	langs := domain.NewLanguages("xho")
	tests := []struct {
		name    string
		term    string
		wantErr bool
	}{
		{"200 multibyte characters", strings.Repeat("ŋ", 200), false},
		{"200 mixed characters", strings.Repeat("é", 100) + strings.Repeat("a", 100), false},
		{"padding is not counted", "  " + strings.Repeat("ŋ", 200) + " ", false},
		{"201 multibyte characters", strings.Repeat("ŋ", 201), true},
		{"201 ascii characters", strings.Repeat("a", 201), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := teachInput()
			in.LocalTerm = tt.term
			err := in.Validate(langs)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTeach_CancelledBeforeWrite(t *testing.T) {
	t.Parallel()

	d := newDeps()
	svc := newTestService(t, d)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Teach(ctx, teachInput())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.terms.PutCalls())
}

func TestTeach_CancelledAfterCommit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The write commits on a worker slot, then the caller gives up.
	storePool := workpool.New(testLogger(), 1)
	t.Cleanup(storePool.Close)

	d := newDeps()
	d.terms.putFunc = func(ctx context.Context, term *domain.ObjectTerm) (*domain.ObjectTerm, error) {
		var stored *domain.ObjectTerm
		err := storePool.Do(ctx, func(context.Context) error {
			cp := *term
			stored = &cp
			cancel()
			return nil
		})
		return stored, err
	}
	svc := newTestService(t, d)

	res, err := svc.Teach(ctx, teachInput())
	require.NoError(t, err)
	require.NotNil(t, res.Term)
	assert.Equal(t, "umthi", res.Term.LocalTerm)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, pathCommitted, res.Path)
	assert.Empty(t, res.Similar)
	assert.Len(t, d.terms.PutCalls(), 1)
	assert.Zero(t, d.matcher.Calls())
}

// ---------------------------------------------------------------------------
// Recall
// ---------------------------------------------------------------------------

func TestRecall_ReturnsRankedMatches(t *testing.T) {
	t.Parallel()

	d := newDeps()
	want := []matcher.Match{
		{Term: domain.ObjectTerm{ID: uuid.New(), LocalTerm: "umthi"}, Score: 0.97},
		{Term: domain.ObjectTerm{ID: uuid.New(), LocalTerm: "isihlahla"}, Score: 0.82},
	}
	var gotThreshold float64
	d.matcher.findSimilarFunc = func(_ context.Context, _ domain.Signature, language string, threshold float64) (matcher.Result, error) {
		assert.Equal(t, "xho", language)
		gotThreshold = threshold
		return matcher.Result{Matches: want, Scanned: 2}, nil
	}
	svc := newTestService(t, d)

	res, err := svc.Recall(context.Background(), RecallInput{Detection: detection(0.9), Language: "xho", Threshold: 0.8})
	require.NoError(t, err)

	assert.Equal(t, want, res.Matches)
	assert.Equal(t, 0.8, gotThreshold)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, pathRecalled, res.Path)
	assert.False(t, res.Partial)
}

func TestRecall_EmptyStore(t *testing.T) {
	t.Parallel()

	d := newDeps()
	svc := newTestService(t, d)

	res, err := svc.Recall(context.Background(), RecallInput{Detection: detection(0.9), Language: "xho", Threshold: 0.8})
	require.NoError(t, err)
	assert.NotNil(t, res.Matches)
	assert.Empty(t, res.Matches)
	assert.Equal(t, StateCommitted, res.State)
}

func TestRecall_LowConfidenceIsEmpty(t *testing.T) {
	t.Parallel()

	d := newDeps()
	svc := newTestService(t, d)

	res, err := svc.Recall(context.Background(), RecallInput{Detection: detection(0.3), Language: "xho"})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, StateIdle, res.State)
	assert.Equal(t, []State{StateIdle}, res.Path)
	assert.Zero(t, d.matcher.Calls())
}

func TestRecall_EmptyRegionIsEmpty(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.ext.extractFunc = func(domain.Detection) (domain.Signature, error) {
		return domain.Signature{}, domain.ErrEmptyRegion
	}
	svc := newTestService(t, d)

	res, err := svc.Recall(context.Background(), RecallInput{Detection: detection(0.9), Language: "xho"})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, StateIdle, res.State)
	assert.Equal(t, []State{StateIdle, StateAwaitingSignal, StateExtracting, StateIdle}, res.Path)
}

func TestRecall_InvalidLanguage(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newDeps())

	_, err := svc.Recall(context.Background(), RecallInput{Detection: detection(0.9), Language: "tlh"})
	assert.ErrorIs(t, err, domain.ErrInvalidLanguage)
}

func TestRecall_MatcherFailure(t *testing.T) {
	t.Parallel()

	d := newDeps()
	dbErr := errors.New("connection reset")
	d.matcher.findSimilarFunc = func(context.Context, domain.Signature, string, float64) (matcher.Result, error) {
		return matcher.Result{}, dbErr
	}
	svc := newTestService(t, d)

	_, err := svc.Recall(context.Background(), RecallInput{Detection: detection(0.9), Language: "xho"})
	assert.ErrorIs(t, err, dbErr)
}

func TestRecall_PartialScanAddsExactHit(t *testing.T) {
	t.Parallel()

	d := newDeps()
	scanned := matcher.Match{Term: domain.ObjectTerm{ID: uuid.New(), LocalTerm: "inja"}, Score: 0.85}
	d.matcher.findSimilarFunc = func(context.Context, domain.Signature, string, float64) (matcher.Result, error) {
		return matcher.Result{Matches: []matcher.Match{scanned}, Scanned: 1, Partial: true}, nil
	}
	exact := &domain.ObjectTerm{ID: uuid.New(), LocalTerm: "umthi", Language: "xho", Signature: querySignature()}
	d.terms.getExactFunc = func(_ context.Context, language string, hash domain.PHash) (*domain.ObjectTerm, error) {
		assert.Equal(t, "xho", language)
		assert.Equal(t, *querySignature().Hash, hash)
		return exact, nil
	}
	svc := newTestService(t, d)

	res, err := svc.Recall(context.Background(), RecallInput{Detection: detection(0.9), Language: "xho"})
	require.NoError(t, err)

	assert.True(t, res.Partial)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "umthi", res.Matches[0].Term.LocalTerm)
	assert.InDelta(t, 1.0, res.Matches[0].Score, 1e-9)
	assert.Equal(t, "inja", res.Matches[1].Term.LocalTerm)
}

func TestRecallAll_KeepsOrder(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.ext.extractFunc = func(det domain.Detection) (domain.Signature, error) {
		h := domain.PHash(det.Box.Min.X)
		return domain.Signature{Hash: &h}, nil
	}
	d.matcher.findSimilarFunc = func(_ context.Context, sig domain.Signature, _ string, _ float64) (matcher.Result, error) {
		return matcher.Result{Matches: []matcher.Match{{Term: domain.ObjectTerm{LocalTerm: sig.Hash.String()}, Score: 1}}}, nil
	}
	svc := newTestService(t, d)

	boxed := func(x int, score float64) domain.Detection {
		d := detection(score)
		d.Box = image.Rect(x, 0, x+10, 10)
		return d
	}
	detections := []domain.Detection{boxed(90, 0.9), boxed(50, 0.5), boxed(80, 0.8), boxed(95, 0.95)}
	results, err := svc.RecallAll(context.Background(), detections, "xho", 0)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, domain.PHash(90).String(), results[0].Matches[0].Term.LocalTerm)
	assert.Empty(t, results[1].Matches)
	assert.Equal(t, StateIdle, results[1].State)
	assert.Equal(t, domain.PHash(80).String(), results[2].Matches[0].Term.LocalTerm)
	assert.Equal(t, domain.PHash(95).String(), results[3].Matches[0].Term.LocalTerm)
}

func TestRecallAll_FailureCancels(t *testing.T) {
	t.Parallel()

	d := newDeps()
	dbErr := errors.New("boom")
	d.matcher.findSimilarFunc = func(context.Context, domain.Signature, string, float64) (matcher.Result, error) {
		return matcher.Result{}, dbErr
	}
	svc := newTestService(t, d)

	_, err := svc.RecallAll(context.Background(), []domain.Detection{detection(0.9), detection(0.9)}, "xho", 0)
	assert.ErrorIs(t, err, dbErr)
}

// ---------------------------------------------------------------------------
// Feedback
// ---------------------------------------------------------------------------

func TestFeedback_DelegatesWithNormalizedKey(t *testing.T) {
	t.Parallel()

	d := newDeps()
	var gotKey domain.TermKey
	var gotAccepted bool
	d.engine.recordTermOutcomeFunc = func(_ context.Context, key domain.TermKey, accepted bool) (*domain.ObjectTerm, error) {
		gotKey, gotAccepted = key, accepted
		return &domain.ObjectTerm{LocalTerm: key.LocalTerm, Confidence: 0.6}, nil
	}
	svc := newTestService(t, d)

	term, err := svc.Feedback(context.Background(), FeedbackInput{LocalTerm: "umthi", Language: " XHO ", Accepted: true})
	require.NoError(t, err)
	assert.Equal(t, 0.6, term.Confidence)
	assert.Equal(t, domain.TermKey{LocalTerm: "umthi", Language: "xho"}, gotKey)
	assert.True(t, gotAccepted)
}

func TestFeedback_NotFound(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.engine.recordTermOutcomeFunc = func(context.Context, domain.TermKey, bool) (*domain.ObjectTerm, error) {
		return nil, domain.ErrNotFound
	}
	svc := newTestService(t, d)

	_, err := svc.Feedback(context.Background(), FeedbackInput{LocalTerm: "umthi", Language: "xho"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFeedback_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newDeps())

	_, err := svc.Feedback(context.Background(), FeedbackInput{Language: "xho"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
