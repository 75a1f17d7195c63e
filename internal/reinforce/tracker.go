package reinforce

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// Promotion is a pattern that has gathered enough corroborating examples to
// become a contextual rule.
type Promotion struct {
	Pair     domain.LanguagePair
	Pattern  domain.Pattern
	Examples int
}

// PatternTracker accumulates structural evidence across translation entries.
// It is an explicit state object owned by one Engine; its lifetime is the
// Engine's, and Engine.Warm rebuilds it from the store after a restart.
type PatternTracker struct {
	minExamples   int
	minConfidence float64

	mu       sync.Mutex
	entries  map[domain.LanguagePair]map[string]observed
	patterns map[string]*tracked
	memberOf map[string][]string
}

type observed struct {
	source []string
	target []string
}

type tracked struct {
	pair    domain.LanguagePair
	pattern domain.Pattern
	members map[string]struct{}
}

// NewPatternTracker creates a tracker that promotes a pattern once
// minExamples entries with confidence >= minConfidence corroborate it.
func NewPatternTracker(minExamples int, minConfidence float64) *PatternTracker {
	return &PatternTracker{
		minExamples:   max(minExamples, 1),
		minConfidence: minConfidence,
		entries:       make(map[domain.LanguagePair]map[string]observed),
		patterns:      make(map[string]*tracked),
		memberOf:      make(map[string][]string),
	}
}

// Observe records the current state of e and returns every pattern e
// corroborates that has reached the promotion threshold. Observing the same
// entry again replaces its earlier evidence; an entry whose confidence fell
// below the corroboration minimum stops counting.
func (t *PatternTracker) Observe(e domain.TranslationEntry) []Promotion {
	digest := e.Key().Digest()
	pair := e.Pair()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.forget(pair, digest)
	if e.Confidence < t.minConfidence {
		return nil
	}

	src, tgt := domain.Tokens(e.SourceText), domain.Tokens(e.TargetText)
	if len(src) == 0 || len(tgt) == 0 {
		return nil
	}

	var touched []string
	for _, sb := range bigrams(src) {
		for _, tb := range bigrams(tgt) {
			touched = append(touched, t.support(pair, domain.CollocationPattern{Source: sb, Target: tb}, digest))
		}
	}

	for other, o := range t.entries[pair] {
		frame, ok := grammarFrame(src, tgt, o.source, o.target)
		if !ok {
			continue
		}
		id := t.support(pair, frame, digest)
		t.support(pair, frame, other)
		touched = append(touched, id)
	}

	if t.entries[pair] == nil {
		t.entries[pair] = make(map[string]observed)
	}
	t.entries[pair][digest] = observed{source: src, target: tgt}

	var out []Promotion
	slices.Sort(touched)
	for _, id := range slices.Compact(touched) {
		p := t.patterns[id]
		if len(p.members) >= t.minExamples {
			out = append(out, Promotion{Pair: p.pair, Pattern: p.pattern, Examples: len(p.members)})
		}
	}

	if idiom, ok := t.idiom(e); ok {
		out = append(out, Promotion{Pair: pair, Pattern: idiom, Examples: e.UsageCount})
	}
	sortPromotions(out)
	return out
}

// Len returns the number of entries currently counted as evidence.
func (t *PatternTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, m := range t.entries {
		n += len(m)
	}
	return n
}

// idiom treats a multi-word entry that has been used at least minExamples
// times as a fixed expression.
func (t *PatternTracker) idiom(e domain.TranslationEntry) (domain.IdiomPattern, bool) {
	words := 0
	for _, tok := range domain.Tokens(e.SourceText) {
		if domain.IsWord(tok) {
			words++
		}
	}
	if words < 2 || e.UsageCount < t.minExamples {
		return domain.IdiomPattern{}, false
	}

	p := domain.IdiomPattern{
		Source: domain.Phrase(e.SourceText),
		Target: domain.Phrase(e.TargetText),
	}
	if e.Context != nil {
		p.Context = domain.NormalizeText(*e.Context)
	}
	return p, true
}

func (t *PatternTracker) support(pair domain.LanguagePair, p domain.Pattern, digest string) string {
	id := patternID(pair, p)
	tp, ok := t.patterns[id]
	if !ok {
		tp = &tracked{pair: pair, pattern: p, members: make(map[string]struct{})}
		t.patterns[id] = tp
	}
	if _, seen := tp.members[digest]; !seen {
		tp.members[digest] = struct{}{}
		t.memberOf[digest] = append(t.memberOf[digest], id)
	}
	return id
}

func (t *PatternTracker) forget(pair domain.LanguagePair, digest string) {
	for _, id := range t.memberOf[digest] {
		if p, ok := t.patterns[id]; ok {
			delete(p.members, digest)
			if len(p.members) == 0 {
				delete(t.patterns, id)
			}
		}
	}
	delete(t.memberOf, digest)
	delete(t.entries[pair], digest)
}

func patternID(pair domain.LanguagePair, p domain.Pattern) string {
	kind, content, err := domain.EncodePattern(p)
	if err != nil {
		content = "?"
	}
	return strings.Join([]string{pair.Source, pair.Target, string(kind), content}, "\x1f")
}

// bigrams returns the distinct adjacent pairs of word tokens, skipping pairs
// of a repeated word.
func bigrams(tokens []string) [][2]string {
	var out [][2]string
	for i := 0; i+1 < len(tokens); i++ {
		a, b := tokens[i], tokens[i+1]
		if a == b || !domain.IsWord(a) || !domain.IsWord(b) {
			continue
		}
		pair := [2]string{a, b}
		if !slices.Contains(out, pair) {
			out = append(out, pair)
		}
	}
	return out
}

// grammarFrame derives a word-order frame from two same-shaped entries that
// differ in exactly one source token and exactly one target token.
func grammarFrame(src, tgt, otherSrc, otherTgt []string) (domain.GrammarPattern, bool) {
	if len(src) < 2 || len(tgt) < 2 || len(src) != len(otherSrc) || len(tgt) != len(otherTgt) {
		return domain.GrammarPattern{}, false
	}
	i, ok := singleDiff(src, otherSrc)
	if !ok {
		return domain.GrammarPattern{}, false
	}
	j, ok := singleDiff(tgt, otherTgt)
	if !ok {
		return domain.GrammarPattern{}, false
	}

	sf := slices.Clone(src)
	sf[i] = domain.SlotToken
	tf := slices.Clone(tgt)
	tf[j] = domain.SlotToken
	return domain.GrammarPattern{SourceFrame: sf, TargetFrame: tf}, true
}

func singleDiff(a, b []string) (int, bool) {
	at := -1
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if at >= 0 {
			return -1, false
		}
		at = i
	}
	return at, at >= 0
}

func sortPromotions(ps []Promotion) {
	slices.SortFunc(ps, func(a, b Promotion) int {
		return cmp.Compare(patternID(a.Pair, a.Pattern), patternID(b.Pair, b.Pattern))
	})
}
