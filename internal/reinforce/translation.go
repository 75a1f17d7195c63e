package reinforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// LearnInput is a translation offered for learning.
type LearnInput struct {
	SourceText string
	TargetText string
	SourceLang string
	TargetLang string
	Context    *string
	// Confidence is the contributor's feedback score. Nil means the default.
	Confidence *float64
}

// Validate checks the input and normalizes language codes through langs.
func (in *LearnInput) Validate(langs *domain.Languages) error {
	var errs []domain.FieldError

	if strings.TrimSpace(in.SourceText) == "" {
		errs = append(errs, domain.FieldError{Field: "source_text", Message: "required"})
	}
	if strings.TrimSpace(in.TargetText) == "" {
		errs = append(errs, domain.FieldError{Field: "target_text", Message: "required"})
	}
	if in.Confidence != nil && (*in.Confidence < domain.MinConfidence || *in.Confidence > domain.MaxConfidence) {
		errs = append(errs, domain.FieldError{Field: "confidence", Message: "must be between 0 and 1"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}

	var err error
	if in.SourceLang, err = langs.Check(in.SourceLang); err != nil {
		return err
	}
	if in.TargetLang, err = langs.Check(in.TargetLang); err != nil {
		return err
	}
	return nil
}

// LearnResult is the stored entry plus any rules its arrival promoted.
type LearnResult struct {
	Entry    *domain.TranslationEntry
	Promoted []domain.ContextualRule
}

// LearnTranslation stores a translation pair, replacing an earlier entry
// with the same key, and analyses it for recurring patterns.
func (e *Engine) LearnTranslation(ctx context.Context, in LearnInput) (*LearnResult, error) {
	if err := in.Validate(e.languages); err != nil {
		return nil, fmt.Errorf("reinforce.LearnTranslation: %w", err)
	}

	confidence := domain.DefaultConfidence
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	entry := &domain.TranslationEntry{
		ID:         uuid.New(),
		SourceText: strings.TrimSpace(in.SourceText),
		TargetText: strings.TrimSpace(in.TargetText),
		SourceLang: in.SourceLang,
		TargetLang: in.TargetLang,
		Context:    in.Context,
		Confidence: confidence,
		LastUsed:   e.now(),
	}

	unlock, err := e.locks.Lock(ctx, "translation:"+entry.Key().Digest())
	if err != nil {
		return nil, fmt.Errorf("reinforce.LearnTranslation: %w", err)
	}
	stored, err := e.translations.Upsert(ctx, entry)
	unlock()
	if err != nil {
		return nil, writeError("reinforce.LearnTranslation", err)
	}

	e.log.InfoContext(ctx, "translation learned",
		slog.String("source_lang", stored.SourceLang),
		slog.String("target_lang", stored.TargetLang),
		slog.Float64("confidence", stored.Confidence),
	)

	return &LearnResult{
		Entry:    stored,
		Promoted: e.promote(ctx, e.tracker.Observe(*stored)),
	}, nil
}

// Lookup returns the highest-confidence translation of sourceText and counts
// the lookup as a use of that entry. It returns domain.ErrNotFound when the
// pair has no translation for the text.
func (e *Engine) Lookup(ctx context.Context, sourceText, sourceLang, targetLang string) (*domain.TranslationEntry, error) {
	src, err := e.languages.Check(sourceLang)
	if err != nil {
		return nil, fmt.Errorf("reinforce.Lookup: %w", err)
	}
	tgt, err := e.languages.Check(targetLang)
	if err != nil {
		return nil, fmt.Errorf("reinforce.Lookup: %w", err)
	}

	best, err := e.translations.Best(ctx, strings.TrimSpace(sourceText), src, tgt)
	if err != nil {
		return nil, fmt.Errorf("reinforce.Lookup: %w", err)
	}

	key := best.Key()
	unlock, err := e.locks.Lock(ctx, "translation:"+key.Digest())
	if err != nil {
		return nil, fmt.Errorf("reinforce.Lookup: %w", err)
	}
	defer unlock()

	now := e.now()
	used, err := e.translations.Mutate(ctx, key, func(t *domain.TranslationEntry) error {
		t.UsageCount++
		t.LastUsed = now
		return nil
	})
	if err != nil {
		// The entry was found; failing to count the use must not hide it.
		e.log.WarnContext(ctx, "failed to record translation use", slog.String("error", err.Error()))
		return best, nil
	}

	e.promote(ctx, e.tracker.Observe(*used))
	return used, nil
}

// Warm rebuilds the pattern tracker from every stored entry that is
// confident enough to count as evidence. It returns the number of entries
// replayed.
func (e *Engine) Warm(ctx context.Context) (int, error) {
	entries, err := e.translations.ListAll(ctx, e.cfg.CorroborationMinConfidence)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("reinforce.Warm: %w", err)
	}

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("reinforce.Warm: %w", err)
		}
		e.tracker.Observe(entries[i])
	}

	e.log.InfoContext(ctx, "pattern tracker warmed", slog.Int("entries", len(entries)))
	return len(entries), nil
}
