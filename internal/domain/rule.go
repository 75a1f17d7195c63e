package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RuleKind is the stored discriminator of a contextual rule.
type RuleKind string

const (
	RuleKindGrammar     RuleKind = "grammar"
	RuleKindIdiom       RuleKind = "idiom"
	RuleKindCollocation RuleKind = "collocation"
)

func (k RuleKind) String() string { return string(k) }

func (k RuleKind) IsValid() bool {
	switch k {
	case RuleKindGrammar, RuleKindIdiom, RuleKindCollocation:
		return true
	}
	return false
}

// SlotToken marks the variable position of a grammar frame.
const SlotToken = "{x}"

// Pattern is the typed payload of a contextual rule. The set of
// implementations is closed: GrammarPattern, IdiomPattern, CollocationPattern.
type Pattern interface {
	Kind() RuleKind
	// Apply rewrites translation (the translation of source) when the rule
	// fires and returns it unchanged otherwise.
	Apply(source, translation, context string) string
	isPattern()
}

// GrammarPattern is a word-order frame: source and target token sequences
// each containing exactly one SlotToken.
type GrammarPattern struct {
	SourceFrame []string `json:"source_frame"`
	TargetFrame []string `json:"target_frame"`
}

// IdiomPattern maps a whole multi-word phrase to a fixed target phrase,
// optionally restricted to a usage context.
type IdiomPattern struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Context string `json:"context,omitempty"`
}

// CollocationPattern ties an adjacent source word pair to the target word
// pair that consistently translates it.
type CollocationPattern struct {
	Source [2]string `json:"source"`
	Target [2]string `json:"target"`
}

func (GrammarPattern) Kind() RuleKind     { return RuleKindGrammar }
func (IdiomPattern) Kind() RuleKind       { return RuleKindIdiom }
func (CollocationPattern) Kind() RuleKind { return RuleKindCollocation }

func (GrammarPattern) isPattern()     {}
func (IdiomPattern) isPattern()       {}
func (CollocationPattern) isPattern() {}

// Apply reorders a word-for-word translation into the target frame. It fires
// when the source fits the source frame and the translation consists of the
// target frame's fixed words plus exactly one other word.
func (p GrammarPattern) Apply(source, translation, _ string) string {
	src := Tokens(source)
	if !frameMatches(p.SourceFrame, src) {
		return translation
	}

	tgt := Tokens(translation)
	if len(tgt) != len(p.TargetFrame) {
		return translation
	}

	fixed := make(map[string]int, len(p.TargetFrame))
	for _, tok := range p.TargetFrame {
		if tok != SlotToken {
			fixed[tok]++
		}
	}

	var filler []string
	for _, tok := range tgt {
		if fixed[tok] > 0 {
			fixed[tok]--
			continue
		}
		filler = append(filler, tok)
	}
	if len(filler) != 1 {
		return translation
	}

	out := make([]string, len(p.TargetFrame))
	for i, tok := range p.TargetFrame {
		if tok == SlotToken {
			out[i] = filler[0]
		} else {
			out[i] = tok
		}
	}
	return strings.Join(out, " ")
}

// Apply substitutes the idiomatic target when the whole source is the idiom
// and the usage context agrees. An idiom without context applies everywhere.
func (p IdiomPattern) Apply(source, translation, context string) string {
	if Phrase(source) != p.Source {
		return translation
	}
	if p.Context != "" && NormalizeText(context) != p.Context {
		return translation
	}
	return p.Target
}

// Apply restores the learned order of the target word pair when the source
// contains the collocation and the translation has the pair reversed.
func (p CollocationPattern) Apply(source, translation, _ string) string {
	if indexBigram(Tokens(source), p.Source) < 0 {
		return translation
	}

	tgt := Tokens(translation)
	i := indexBigram(tgt, [2]string{p.Target[1], p.Target[0]})
	if i < 0 {
		return translation
	}
	tgt[i], tgt[i+1] = p.Target[0], p.Target[1]
	return strings.Join(tgt, " ")
}

func frameMatches(frame, tokens []string) bool {
	if len(frame) != len(tokens) {
		return false
	}
	for i, tok := range frame {
		if tok != SlotToken && tok != tokens[i] {
			return false
		}
	}
	return true
}

func indexBigram(tokens []string, pair [2]string) int {
	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i] == pair[0] && tokens[i+1] == pair[1] {
			return i
		}
	}
	return -1
}

// EncodePattern returns the stored (rule_type, rule_content) form of p.
func EncodePattern(p Pattern) (RuleKind, string, error) {
	if p == nil {
		return "", "", fmt.Errorf("encode pattern: nil")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("encode %s pattern: %w", p.Kind(), err)
	}
	return p.Kind(), string(b), nil
}

// DecodePattern parses a stored rule back into its typed payload.
func DecodePattern(kind RuleKind, content string) (Pattern, error) {
	var (
		p   Pattern
		err error
	)
	switch kind {
	case RuleKindGrammar:
		var g GrammarPattern
		err = json.Unmarshal([]byte(content), &g)
		p = g
	case RuleKindIdiom:
		var i IdiomPattern
		err = json.Unmarshal([]byte(content), &i)
		p = i
	case RuleKindCollocation:
		var c CollocationPattern
		err = json.Unmarshal([]byte(content), &c)
		p = c
	default:
		return nil, fmt.Errorf("decode pattern: unknown rule type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s pattern: %w", kind, err)
	}
	return p, nil
}

// ContextualRule is a generalized translation pattern for a language pair.
type ContextualRule struct {
	ID         uuid.UUID
	SourceLang string
	TargetLang string
	Pattern    Pattern
	Confidence float64
	Examples   int
	UpdatedAt  time.Time
}
