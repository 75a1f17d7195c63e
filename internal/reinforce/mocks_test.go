package reinforce

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// ---------------------------------------------------------------------------
// Func-field mocks
// ---------------------------------------------------------------------------

type mockTermRepo struct {
	mutateFunc func(ctx context.Context, key domain.TermKey, fn func(*domain.ObjectTerm) error) (*domain.ObjectTerm, error)
}

func (m *mockTermRepo) Mutate(ctx context.Context, key domain.TermKey, fn func(*domain.ObjectTerm) error) (*domain.ObjectTerm, error) {
	return m.mutateFunc(ctx, key, fn)
}

type mockRuleRepo struct {
	upsertFunc func(ctx context.Context, r *domain.ContextualRule) (*domain.ContextualRule, error)
	listFunc   func(ctx context.Context, sourceLang, targetLang string, minConfidence float64) ([]domain.ContextualRule, error)
}

func (m *mockRuleRepo) Upsert(ctx context.Context, r *domain.ContextualRule) (*domain.ContextualRule, error) {
	return m.upsertFunc(ctx, r)
}

func (m *mockRuleRepo) List(ctx context.Context, sourceLang, targetLang string, minConfidence float64) ([]domain.ContextualRule, error) {
	return m.listFunc(ctx, sourceLang, targetLang, minConfidence)
}

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type memTerms struct {
	mu    sync.Mutex
	terms map[string]domain.ObjectTerm
}

func newMemTerms(terms ...domain.ObjectTerm) *memTerms {
	m := &memTerms{terms: make(map[string]domain.ObjectTerm)}
	for _, t := range terms {
		m.terms[t.Key().Digest()] = t
	}
	return m
}

func (m *memTerms) Mutate(_ context.Context, key domain.TermKey, fn func(*domain.ObjectTerm) error) (*domain.ObjectTerm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.terms[key.Digest()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := fn(&t); err != nil {
		return nil, err
	}
	m.terms[key.Digest()] = t
	return &t, nil
}

func (m *memTerms) get(key domain.TermKey) domain.ObjectTerm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terms[key.Digest()]
}

type memTranslations struct {
	mu      sync.Mutex
	entries map[string]domain.TranslationEntry
	order   []string
}

func newMemTranslations() *memTranslations {
	return &memTranslations{entries: make(map[string]domain.TranslationEntry)}
}

func (m *memTranslations) Upsert(_ context.Context, e *domain.TranslationEntry) (*domain.TranslationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := e.Key().Digest()
	if _, ok := m.entries[d]; !ok {
		m.order = append(m.order, d)
	}
	m.entries[d] = *e
	out := *e
	return &out, nil
}

func (m *memTranslations) Best(_ context.Context, sourceText, sourceLang, targetLang string) (*domain.TranslationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *domain.TranslationEntry
	for _, d := range m.order {
		e := m.entries[d]
		if domain.NormalizeText(e.SourceText) != domain.NormalizeText(sourceText) || e.SourceLang != sourceLang || e.TargetLang != targetLang {
			continue
		}
		if best == nil || e.Confidence > best.Confidence {
			best = &e
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (m *memTranslations) Mutate(_ context.Context, key domain.TranslationKey, fn func(*domain.TranslationEntry) error) (*domain.TranslationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key.Digest()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := fn(&e); err != nil {
		return nil, err
	}
	m.entries[key.Digest()] = e
	return &e, nil
}

func (m *memTranslations) ListAll(_ context.Context, minConfidence float64) ([]domain.TranslationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.TranslationEntry
	for _, d := range m.order {
		if e := m.entries[d]; e.Confidence >= minConfidence {
			out = append(out, e)
		}
	}
	return out, nil
}

type memRules struct {
	mu    sync.Mutex
	rules map[string]domain.ContextualRule
}

func newMemRules(rules ...domain.ContextualRule) *memRules {
	m := &memRules{rules: make(map[string]domain.ContextualRule)}
	for _, r := range rules {
		m.rules[ruleKey(r)] = r
	}
	return m
}

func ruleKey(r domain.ContextualRule) string {
	return patternID(domain.LanguagePair{Source: r.SourceLang, Target: r.TargetLang}, r.Pattern)
}

func (m *memRules) Upsert(_ context.Context, r *domain.ContextualRule) (*domain.ContextualRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := ruleKey(*r)
	out := *r
	if prev, ok := m.rules[k]; ok {
		out.ID = prev.ID
		out.Confidence = max(prev.Confidence, r.Confidence)
	}
	m.rules[k] = out
	return &out, nil
}

func (m *memRules) List(_ context.Context, sourceLang, targetLang string, minConfidence float64) ([]domain.ContextualRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ContextualRule
	for _, r := range m.rules {
		if r.SourceLang == sourceLang && r.TargetLang == targetLang && r.Confidence >= minConfidence {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b domain.ContextualRule) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(ruleKey(a), ruleKey(b))
	})
	return out, nil
}

func (m *memRules) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rules)
}
