package domain

import (
	"time"

	"github.com/google/uuid"
)

// TranslationKey identifies a TranslationEntry.
type TranslationKey struct {
	SourceText string
	TargetText string
	SourceLang string
	TargetLang string
}

// Normalized returns the key with every component run through NormalizeText.
func (k TranslationKey) Normalized() TranslationKey {
	return TranslationKey{
		SourceText: NormalizeText(k.SourceText),
		TargetText: NormalizeText(k.TargetText),
		SourceLang: NormalizeText(k.SourceLang),
		TargetLang: NormalizeText(k.TargetLang),
	}
}

// Digest is the content address of the key.
func (k TranslationKey) Digest() string {
	n := k.Normalized()
	return digest(n.SourceText, n.TargetText, n.SourceLang, n.TargetLang)
}

// TranslationEntry is a free-text source/target pair with usage statistics.
type TranslationEntry struct {
	ID         uuid.UUID
	SourceText string
	TargetText string
	SourceLang string
	TargetLang string
	Context    *string
	Confidence float64
	UsageCount int
	LastUsed   time.Time
}

// Key returns the uniqueness key of the entry.
func (e *TranslationEntry) Key() TranslationKey {
	return TranslationKey{
		SourceText: e.SourceText,
		TargetText: e.TargetText,
		SourceLang: e.SourceLang,
		TargetLang: e.TargetLang,
	}
}

// LanguagePair is an ordered (source, target) language pair.
type LanguagePair struct {
	Source string
	Target string
}

// Pair returns the entry's language pair, normalized.
func (e *TranslationEntry) Pair() LanguagePair {
	return LanguagePair{Source: NormalizeText(e.SourceLang), Target: NormalizeText(e.TargetLang)}
}
