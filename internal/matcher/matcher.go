// Package matcher ranks stored object terms by visual similarity to a query signature.
package matcher

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type termLister interface {
	GetByLanguage(ctx context.Context, language string) ([]domain.ObjectTerm, error)
}

// ---------------------------------------------------------------------------
// Matcher
// ---------------------------------------------------------------------------

// Config holds the matching parameters.
type Config struct {
	// Threshold is the minimum combined score of a returned match.
	Threshold float64
	// HammingBound is the exclusive hash distance limit: a distance below it
	// counts as a near duplicate. Equal hashes match regardless.
	HammingBound int
	// PerTermBudget is the scan time allowed per candidate.
	PerTermBudget time.Duration
	// Ceiling caps the total scan time regardless of catalog size.
	Ceiling time.Duration
}

// DefaultConfig returns the standard matching parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:     0.8,
		HammingBound:  10,
		PerTermBudget: 50 * time.Microsecond,
		Ceiling:       250 * time.Millisecond,
	}
}

// Match is a stored term together with its similarity to the query.
type Match struct {
	Term  domain.ObjectTerm
	Score float64
}

// Result is the outcome of a similarity scan.
type Result struct {
	Matches []Match
	// Scanned is the number of candidates examined.
	Scanned int
	// Partial is set when the time budget ran out or the context ended
	// before every candidate was examined.
	Partial bool
}

// Matcher scans the terms of one language and ranks them against a query.
type Matcher struct {
	terms     termLister
	languages *domain.Languages
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Matcher. A nil languages registry accepts every language.
func New(logger *slog.Logger, terms termLister, languages *domain.Languages, cfg Config) *Matcher {
	return &Matcher{
		terms:     terms,
		languages: languages,
		cfg:       cfg,
		log:       logger.With("service", "matcher"),
		now:       time.Now,
	}
}

// FindSimilar returns the terms of language whose signature scores at least
// threshold against sig, best first. A threshold <= 0 uses the configured
// default. Ties are broken by stored confidence, then by most recent use.
func (m *Matcher) FindSimilar(ctx context.Context, sig domain.Signature, language string, threshold float64) (Result, error) {
	language, err := m.languages.Check(language)
	if err != nil {
		return Result{}, fmt.Errorf("matcher.FindSimilar: %w", err)
	}
	if threshold <= 0 {
		threshold = m.cfg.Threshold
	}
	if sig.IsZero() {
		return Result{}, nil
	}

	candidates, err := m.terms.GetByLanguage(ctx, language)
	if err != nil {
		return Result{}, fmt.Errorf("matcher.FindSimilar: list %s: %w", language, err)
	}

	res := m.scan(ctx, sig, candidates, threshold)
	if res.Partial {
		m.log.WarnContext(ctx, "similarity scan cut short",
			slog.String("language", language),
			slog.Int("scanned", res.Scanned),
			slog.Int("candidates", len(candidates)),
		)
	}
	return res, nil
}

func (m *Matcher) scan(ctx context.Context, sig domain.Signature, candidates []domain.ObjectTerm, threshold float64) Result {
	deadline := m.now().Add(m.budget(len(candidates)))

	var res Result
	for i := range candidates {
		if ctx.Err() != nil || m.now().After(deadline) {
			res.Partial = true
			break
		}
		res.Scanned++

		score, ok := Score(sig, candidates[i].Signature, m.cfg.HammingBound)
		if !ok || score < threshold {
			continue
		}
		res.Matches = append(res.Matches, Match{Term: candidates[i], Score: score})
	}

	Rank(res.Matches)
	return res
}

// budget is the scan time allowed for n candidates. A zero ceiling or
// per-term budget disables that limit.
func (m *Matcher) budget(n int) time.Duration {
	const unlimited = time.Duration(1<<63 - 1)

	b := unlimited
	if m.cfg.PerTermBudget > 0 {
		b = m.cfg.PerTermBudget * time.Duration(max(n, 1))
	}
	if m.cfg.Ceiling > 0 && m.cfg.Ceiling < b {
		b = m.cfg.Ceiling
	}
	return b
}

// Rank sorts matches by score, then confidence, then last use, all descending.
// Terms never used sort after used ones.
func Rank(matches []Match) {
	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Term.Confidence, a.Term.Confidence); c != 0 {
			return c
		}
		return compareLastUsed(b.Term.LastUsed, a.Term.LastUsed)
	})
}

func compareLastUsed(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}
