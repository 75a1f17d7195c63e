// Package reinforce is the only writer of confidence scores. It applies
// accept/reject outcomes to terms and translations, learns translation
// entries and promotes recurring structure into contextual rules.
package reinforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/keylock"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type termRepo interface {
	Mutate(ctx context.Context, key domain.TermKey, fn func(*domain.ObjectTerm) error) (*domain.ObjectTerm, error)
}

type translationRepo interface {
	Upsert(ctx context.Context, e *domain.TranslationEntry) (*domain.TranslationEntry, error)
	Best(ctx context.Context, sourceText, sourceLang, targetLang string) (*domain.TranslationEntry, error)
	Mutate(ctx context.Context, key domain.TranslationKey, fn func(*domain.TranslationEntry) error) (*domain.TranslationEntry, error)
	ListAll(ctx context.Context, minConfidence float64) ([]domain.TranslationEntry, error)
}

type ruleRepo interface {
	Upsert(ctx context.Context, r *domain.ContextualRule) (*domain.ContextualRule, error)
	List(ctx context.Context, sourceLang, targetLang string, minConfidence float64) ([]domain.ContextualRule, error)
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Config holds the reinforcement parameters.
type Config struct {
	// Step is the confidence change of one accept or reject.
	Step float64
	// MinPatternExamples is the number of corroborating entries a pattern
	// needs before it becomes a rule.
	MinPatternExamples int
	// RuleInitialConfidence is the confidence of a freshly promoted rule.
	RuleInitialConfidence float64
	// RuleStep is added per corroborating example beyond the minimum.
	RuleStep float64
	// RuleMinConfidence is the default cut-off of GetContextualRules.
	RuleMinConfidence float64
	// EnhanceMinConfidence is the cut-off for rules applied by Enhance.
	EnhanceMinConfidence float64
	// CorroborationMinConfidence is the confidence an entry needs to count
	// as evidence for a pattern.
	CorroborationMinConfidence float64
}

// DefaultConfig returns the standard reinforcement parameters.
func DefaultConfig() Config {
	return Config{
		Step:                       0.1,
		MinPatternExamples:         3,
		RuleInitialConfidence:      0.5,
		RuleStep:                   0.1,
		RuleMinConfidence:          0.5,
		EnhanceMinConfidence:       0.7,
		CorroborationMinConfidence: 0.5,
	}
}

// Engine applies outcomes and learns patterns. Updates to one key are
// serialized through a per-key lock and a transactional read-modify-write in
// the store; updates to different keys proceed independently.
type Engine struct {
	terms        termRepo
	translations translationRepo
	rules        ruleRepo
	locks        *keylock.Locker
	tracker      *PatternTracker
	languages    *domain.Languages
	cfg          Config
	log          *slog.Logger
	now          func() time.Time
}

// NewEngine creates an Engine. A nil languages registry accepts every language.
func NewEngine(
	logger *slog.Logger,
	terms termRepo,
	translations translationRepo,
	rules ruleRepo,
	locks *keylock.Locker,
	tracker *PatternTracker,
	languages *domain.Languages,
	cfg Config,
) *Engine {
	return &Engine{
		terms:        terms,
		translations: translations,
		rules:        rules,
		locks:        locks,
		tracker:      tracker,
		languages:    languages,
		cfg:          cfg,
		log:          logger.With("service", "reinforce"),
		now:          time.Now,
	}
}

// RecordTermOutcome moves the confidence of the term at key one step up
// (accepted) or down, counts the use and refreshes its last-used time.
func (e *Engine) RecordTermOutcome(ctx context.Context, key domain.TermKey, accepted bool) (*domain.ObjectTerm, error) {
	unlock, err := e.locks.Lock(ctx, "term:"+key.Digest())
	if err != nil {
		return nil, fmt.Errorf("reinforce.RecordTermOutcome: %w", err)
	}
	defer unlock()

	now := e.now()
	term, err := e.terms.Mutate(ctx, key, func(t *domain.ObjectTerm) error {
		t.Confidence = e.applyOutcome(t.Confidence, accepted)
		t.UsageCount++
		t.LastUsed = &now
		return nil
	})
	if err != nil {
		return nil, writeError("reinforce.RecordTermOutcome", err)
	}

	e.log.InfoContext(ctx, "term outcome recorded",
		slog.String("key", key.String()),
		slog.Bool("accepted", accepted),
		slog.Float64("confidence", term.Confidence),
	)
	return term, nil
}

// RecordTranslationOutcome applies an outcome to a translation entry and
// feeds its new state to the pattern tracker. A key naming an unregistered
// language fails with domain.ErrInvalidLanguage.
func (e *Engine) RecordTranslationOutcome(ctx context.Context, key domain.TranslationKey, accepted bool) (*domain.TranslationEntry, error) {
	var err error
	if key.SourceLang, err = e.languages.Check(key.SourceLang); err != nil {
		return nil, fmt.Errorf("reinforce.RecordTranslationOutcome: %w", err)
	}
	if key.TargetLang, err = e.languages.Check(key.TargetLang); err != nil {
		return nil, fmt.Errorf("reinforce.RecordTranslationOutcome: %w", err)
	}

	unlock, err := e.locks.Lock(ctx, "translation:"+key.Digest())
	if err != nil {
		return nil, fmt.Errorf("reinforce.RecordTranslationOutcome: %w", err)
	}
	defer unlock()

	now := e.now()
	entry, err := e.translations.Mutate(ctx, key, func(t *domain.TranslationEntry) error {
		t.Confidence = e.applyOutcome(t.Confidence, accepted)
		t.UsageCount++
		t.LastUsed = now
		return nil
	})
	if err != nil {
		return nil, writeError("reinforce.RecordTranslationOutcome", err)
	}

	e.log.InfoContext(ctx, "translation outcome recorded",
		slog.String("source", entry.SourceText),
		slog.String("target", entry.TargetText),
		slog.Bool("accepted", accepted),
		slog.Float64("confidence", entry.Confidence),
	)

	e.promote(ctx, e.tracker.Observe(*entry))
	return entry, nil
}

// applyOutcome is the confidence update rule: one step, clamped to [0,1],
// rounded to two decimals so repeated steps do not drift.
func (e *Engine) applyOutcome(confidence float64, accepted bool) float64 {
	delta := e.cfg.Step
	if !accepted {
		delta = -delta
	}
	return round2(domain.ClampConfidence(confidence + delta))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// writeError classifies a store failure. Missing records and malformed input
// keep their own identity; anything else is a failed write.
func writeError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewStoreWriteError(op, err)
}
