package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/matcher"
	"github.com/heartmarshall/lingualearn/internal/reinforce"
	"github.com/heartmarshall/lingualearn/internal/service/learning"
)

type termJSON struct {
	ID         string     `json:"id"`
	ObjectName string     `json:"object_name"`
	LocalTerm  string     `json:"local_term"`
	Language   string     `json:"language"`
	Region     *string    `json:"region,omitempty"`
	Context    *string    `json:"context,omitempty"`
	Dialect    *string    `json:"dialect,omitempty"`
	ImageHash  *string    `json:"image_hash,omitempty"`
	Confidence float64    `json:"confidence"`
	Verified   bool       `json:"verified"`
	UsageCount int        `json:"usage_count"`
	AddedBy    *string    `json:"added_by,omitempty"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
}

func toTermJSON(t domain.ObjectTerm) termJSON {
	out := termJSON{
		ID:         t.ID.String(),
		ObjectName: t.ObjectName,
		LocalTerm:  t.LocalTerm,
		Language:   t.Language,
		Region:     t.Region,
		Context:    t.Context,
		Dialect:    t.Dialect,
		Confidence: t.Confidence,
		Verified:   t.Verified,
		UsageCount: t.UsageCount,
		AddedBy:    t.AddedBy,
		LastUsed:   t.LastUsed,
	}
	if t.Signature.Hash != nil {
		h := t.Signature.Hash.String()
		out.ImageHash = &h
	}
	return out
}

type matchJSON struct {
	Term            termJSON `json:"term"`
	Confidence      float64  `json:"confidence"`
	SimilarityScore float64  `json:"similarity_score"`
}

func toMatchesJSON(ms []matcher.Match) []matchJSON {
	out := make([]matchJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, matchJSON{
			Term:            toTermJSON(m.Term),
			Confidence:      m.Term.Confidence,
			SimilarityScore: m.Score,
		})
	}
	return out
}

type teachJSON struct {
	Success      bool        `json:"success"`
	Term         *termJSON   `json:"term,omitempty"`
	SimilarTerms []matchJSON `json:"similar_terms,omitempty"`
	State        string      `json:"state,omitempty"`
	Error        string      `json:"error,omitempty"`
}

func teachSuccess(res *learning.TeachResult) teachJSON {
	term := toTermJSON(*res.Term)
	return teachJSON{
		Success:      true,
		Term:         &term,
		SimilarTerms: toMatchesJSON(res.Similar),
		State:        res.State.String(),
	}
}

type recallJSON struct {
	Matches []matchJSON `json:"matches"`
	Partial bool        `json:"partial"`
	State   string      `json:"state"`
}

func toRecallJSON(res *learning.RecallResult) recallJSON {
	return recallJSON{
		Matches: toMatchesJSON(res.Matches),
		Partial: res.Partial,
		State:   res.State.String(),
	}
}

type translationJSON struct {
	ID         string    `json:"id"`
	SourceText string    `json:"source_text"`
	TargetText string    `json:"target_text"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	Context    *string   `json:"context,omitempty"`
	Confidence float64   `json:"confidence"`
	UsageCount int       `json:"usage_count"`
	LastUsed   time.Time `json:"last_used"`
}

func toTranslationJSON(e domain.TranslationEntry) translationJSON {
	return translationJSON{
		ID:         e.ID.String(),
		SourceText: e.SourceText,
		TargetText: e.TargetText,
		SourceLang: e.SourceLang,
		TargetLang: e.TargetLang,
		Context:    e.Context,
		Confidence: e.Confidence,
		UsageCount: e.UsageCount,
		LastUsed:   e.LastUsed,
	}
}

type ruleJSON struct {
	ID         string         `json:"id"`
	SourceLang string         `json:"source_lang"`
	TargetLang string         `json:"target_lang"`
	RuleType   string         `json:"rule_type"`
	Pattern    domain.Pattern `json:"pattern"`
	Confidence float64        `json:"confidence"`
	Examples   int            `json:"examples"`
}

func toRulesJSON(rules []domain.ContextualRule) []ruleJSON {
	out := make([]ruleJSON, 0, len(rules))
	for _, r := range rules {
		out = append(out, ruleJSON{
			ID:         r.ID.String(),
			SourceLang: r.SourceLang,
			TargetLang: r.TargetLang,
			RuleType:   r.Pattern.Kind().String(),
			Pattern:    r.Pattern,
			Confidence: r.Confidence,
			Examples:   r.Examples,
		})
	}
	return out
}

type learnJSON struct {
	Entry    translationJSON `json:"entry"`
	Promoted []ruleJSON      `json:"promoted"`
}

func toLearnJSON(res *reinforce.LearnResult) learnJSON {
	return learnJSON{Entry: toTranslationJSON(*res.Entry), Promoted: toRulesJSON(res.Promoted)}
}

type enhanceJSON struct {
	Text    string     `json:"text"`
	Applied []ruleJSON `json:"applied"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
