package reinforce

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// GetContextualRules returns the rules of a language pair whose confidence is
// at least minConfidence. A minConfidence <= 0 uses the configured default.
func (e *Engine) GetContextualRules(ctx context.Context, sourceLang, targetLang string, minConfidence float64) ([]domain.ContextualRule, error) {
	src, err := e.languages.Check(sourceLang)
	if err != nil {
		return nil, fmt.Errorf("reinforce.GetContextualRules: %w", err)
	}
	tgt, err := e.languages.Check(targetLang)
	if err != nil {
		return nil, fmt.Errorf("reinforce.GetContextualRules: %w", err)
	}
	if minConfidence <= 0 {
		minConfidence = e.cfg.RuleMinConfidence
	}

	rules, err := e.rules.List(ctx, src, tgt, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("reinforce.GetContextualRules: %w", err)
	}
	return rules, nil
}

// EnhanceResult is an enhanced translation and the rules that changed it.
type EnhanceResult struct {
	Text    string
	Applied []domain.ContextualRule
}

// Enhance rewrites an initial translation of source with the pair's rules
// that are confident enough. Grammar frames run first, then collocations,
// then idioms, each group in descending confidence.
func (e *Engine) Enhance(ctx context.Context, source, initial, sourceLang, targetLang, usageContext string) (*EnhanceResult, error) {
	rules, err := e.GetContextualRules(ctx, sourceLang, targetLang, e.cfg.EnhanceMinConfidence)
	if err != nil {
		return nil, fmt.Errorf("reinforce.Enhance: %w", err)
	}

	slices.SortStableFunc(rules, func(a, b domain.ContextualRule) int {
		if c := cmp.Compare(applyOrder(a.Pattern), applyOrder(b.Pattern)); c != 0 {
			return c
		}
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	res := &EnhanceResult{Text: initial}
	for _, r := range rules {
		next := r.Pattern.Apply(source, res.Text, usageContext)
		if next != res.Text {
			res.Text = next
			res.Applied = append(res.Applied, r)
		}
	}

	if len(res.Applied) > 0 {
		e.log.DebugContext(ctx, "translation enhanced",
			slog.Int("rules_applied", len(res.Applied)),
			slog.String("source_lang", sourceLang),
			slog.String("target_lang", targetLang),
		)
	}
	return res, nil
}

func applyOrder(p domain.Pattern) int {
	switch p.(type) {
	case domain.GrammarPattern:
		return 0
	case domain.CollocationPattern:
		return 1
	case domain.IdiomPattern:
		return 2
	}
	return 3
}

// promote persists promotions as rules. A failed rule write is logged and
// skipped: the translation that triggered it is already stored, and the
// pattern is offered again on its next corroboration.
func (e *Engine) promote(ctx context.Context, promotions []Promotion) []domain.ContextualRule {
	var out []domain.ContextualRule
	for _, p := range promotions {
		rule := &domain.ContextualRule{
			ID:         uuid.New(),
			SourceLang: p.Pair.Source,
			TargetLang: p.Pair.Target,
			Pattern:    p.Pattern,
			Confidence: e.ruleConfidence(p.Examples),
			Examples:   p.Examples,
			UpdatedAt:  e.now(),
		}

		stored, err := e.rules.Upsert(ctx, rule)
		if err != nil {
			e.log.WarnContext(ctx, "failed to store contextual rule",
				slog.String("kind", p.Pattern.Kind().String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		e.log.InfoContext(ctx, "contextual rule promoted",
			slog.String("kind", stored.Pattern.Kind().String()),
			slog.String("source_lang", stored.SourceLang),
			slog.String("target_lang", stored.TargetLang),
			slog.Int("examples", stored.Examples),
			slog.Float64("confidence", stored.Confidence),
		)
		out = append(out, *stored)
	}
	return out
}

// ruleConfidence grows from the initial confidence by one rule step per
// example beyond the promotion minimum.
func (e *Engine) ruleConfidence(examples int) float64 {
	extra := max(examples-e.cfg.MinPatternExamples, 0)
	return round2(domain.ClampConfidence(e.cfg.RuleInitialConfidence + e.cfg.RuleStep*float64(extra)))
}
