package learning_test

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/lingualearn/internal/adapter/sqlite"
	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/keylock"
	"github.com/heartmarshall/lingualearn/internal/matcher"
	"github.com/heartmarshall/lingualearn/internal/reinforce"
	"github.com/heartmarshall/lingualearn/internal/service/learning"
	"github.com/heartmarshall/lingualearn/internal/signature"
	"github.com/heartmarshall/lingualearn/internal/workpool"
	"github.com/heartmarshall/lingualearn/migrations"
)

type stack struct {
	svc   *learning.Service
	terms *sqlite.TermRepo
}

func newStack(t *testing.T) stack {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pool := workpool.New(logger, 4)
	t.Cleanup(pool.Close)

	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "learning.db"), pool)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrations.Up(ctx, db.SQL(), migrations.SQLite)
	require.NoError(t, err)

	langs := domain.NewLanguages("xho", "zul")
	terms := sqlite.NewTermRepo(db)
	locks := keylock.New()
	rcfg := reinforce.DefaultConfig()

	engine := reinforce.NewEngine(logger, terms, sqlite.NewTranslationRepo(db), sqlite.NewRuleRepo(db), locks,
		reinforce.NewPatternTracker(rcfg.MinPatternExamples, rcfg.CorroborationMinConfidence), langs, rcfg)
	m := matcher.New(logger, terms, langs, matcher.Config{Threshold: 0.8, HammingBound: 10})

	svc := learning.NewService(logger, signature.NewExtractor(), terms, m, engine, pool, locks, langs,
		learning.DefaultConfig())
	return stack{svc: svc, terms: terms}
}

// frame draws a bright w x h block at (x, y) on a dark 64x64 canvas.
func frame(x, y, w, h int) (image.Image, image.Rectangle) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	box := image.Rect(x, y, x+w, y+h)
	for py := box.Min.Y; py < box.Max.Y; py++ {
		for px := box.Min.X; px < box.Max.X; px++ {
			v := uint8(120 + (px*7+py*3)%120)
			img.SetGray(px, py, color.Gray{Y: v})
		}
	}
	return img, box
}

func TestScenario_TeachThenRecall(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	ctx := context.Background()

	img, box := frame(8, 10, 36, 30)
	det := domain.Detection{Frame: img, Box: box, Score: 0.92}
	conf := 0.5

	taught, err := s.svc.Teach(ctx, learning.TeachInput{
		Detection: det, ObjectName: "tree", LocalTerm: "umthi", Language: "xho", Confidence: &conf,
	})
	require.NoError(t, err)
	assert.Equal(t, learning.StateCommitted, taught.State)
	assert.Empty(t, taught.Similar)

	recalled, err := s.svc.Recall(ctx, learning.RecallInput{Detection: det, Language: "xho", Threshold: 0.8})
	require.NoError(t, err)
	require.NotEmpty(t, recalled.Matches)
	assert.Equal(t, "umthi", recalled.Matches[0].Term.LocalTerm)
	assert.GreaterOrEqual(t, recalled.Matches[0].Score, 0.8)

	other, err := s.svc.Recall(ctx, learning.RecallInput{Detection: det, Language: "zul", Threshold: 0.8})
	require.NoError(t, err)
	assert.Empty(t, other.Matches)
}

func TestScenario_RecallOnEmptyStore(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	img, box := frame(4, 4, 20, 20)
	res, err := s.svc.Recall(context.Background(), learning.RecallInput{
		Detection: domain.Detection{Frame: img, Box: box, Score: 0.9}, Language: "xho", Threshold: 0.8,
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Matches)
	assert.Empty(t, res.Matches)
}

func TestScenario_ReteachReplacesContext(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	ctx := context.Background()

	img, box := frame(8, 10, 36, 30)
	det := domain.Detection{Frame: img, Box: box, Score: 0.9}

	for _, c := range []string{"garden", "forest"} {
		usage := c
		_, err := s.svc.Teach(ctx, learning.TeachInput{
			Detection: det, ObjectName: "tree", LocalTerm: "umthi", Language: "xho", Context: &usage,
		})
		require.NoError(t, err)
	}

	all, err := s.terms.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].Context)
	assert.Equal(t, "forest", *all[0].Context)
}

func TestScenario_SecondTeachSeesSynonym(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	ctx := context.Background()

	img, box := frame(8, 10, 36, 30)
	det := domain.Detection{Frame: img, Box: box, Score: 0.9}

	_, err := s.svc.Teach(ctx, learning.TeachInput{Detection: det, ObjectName: "tree", LocalTerm: "umthi", Language: "xho"})
	require.NoError(t, err)

	res, err := s.svc.Teach(ctx, learning.TeachInput{Detection: det, ObjectName: "tree", LocalTerm: "isihlahla", Language: "xho"})
	require.NoError(t, err)
	require.Len(t, res.Similar, 1)
	assert.Equal(t, "umthi", res.Similar[0].Term.LocalTerm)
}

func TestScenario_FeedbackMovesConfidence(t *testing.T) {
	t.Parallel()
	s := newStack(t)
	ctx := context.Background()

	img, box := frame(8, 10, 36, 30)
	_, err := s.svc.Teach(ctx, learning.TeachInput{
		Detection: domain.Detection{Frame: img, Box: box, Score: 0.9}, ObjectName: "tree", LocalTerm: "umthi", Language: "xho",
	})
	require.NoError(t, err)

	var term *domain.ObjectTerm
	for _, accepted := range []bool{true, true, true, false} {
		term, err = s.svc.Feedback(ctx, learning.FeedbackInput{LocalTerm: "umthi", Language: "xho", Accepted: accepted})
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.7, term.Confidence, 1e-9)
	assert.Equal(t, 4, term.UsageCount)

	_, err = s.svc.Feedback(ctx, learning.FeedbackInput{LocalTerm: "unknown", Language: "xho", Accepted: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScenario_EmptyMaskTeachFails(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	img, box := frame(8, 10, 36, 30)
	mask := image.NewGray(img.Bounds())

	_, err := s.svc.Teach(context.Background(), learning.TeachInput{
		Detection:  domain.Detection{Frame: img, Box: box, Mask: mask, Score: 0.9},
		ObjectName: "tree", LocalTerm: "umthi", Language: "xho",
	})
	assert.ErrorIs(t, err, domain.ErrEmptyRegion)
}
