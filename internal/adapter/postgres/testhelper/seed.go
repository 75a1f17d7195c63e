package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// UniqueSuffix returns a short unique string for generating non-conflicting test data.
func UniqueSuffix() string {
	return uuid.New().String()[:8]
}

// UniqueLanguage returns a language code no other test uses, so tests that
// list by language can share the database.
func UniqueLanguage() string {
	return "t" + UniqueSuffix()
}

// SeedTerm inserts an object term with a hash and attributes in language.
// Returns the stored domain.ObjectTerm.
func SeedTerm(t *testing.T, pool *pgxpool.Pool, language, localTerm string, hash domain.PHash) domain.ObjectTerm {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	term := domain.ObjectTerm{
		ID:         uuid.New(),
		ObjectName: "object-" + UniqueSuffix(),
		LocalTerm:  localTerm,
		Language:   language,
		Signature: domain.Signature{
			Hash:       &hash,
			Attributes: &domain.Attributes{Area: 1000, Perimeter: 120, Circularity: 0.8, AspectRatio: 1.2},
		},
		Confidence: domain.DefaultConfidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	a := term.Signature.Attributes

	_, err := pool.Exec(ctx,
		`INSERT INTO object_terms (id, key_digest, object_name, local_term, language, image_hash,
		     area, perimeter, circularity, aspect_ratio, confidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		term.ID, term.Key().Digest(), term.ObjectName, term.LocalTerm, term.Language, hash.String(),
		a.Area, a.Perimeter, a.Circularity, a.AspectRatio, term.Confidence, now,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedTerm insert: %v", err)
	}

	return term
}

// SeedTranslation inserts a translation entry with the given confidence.
// Returns the stored domain.TranslationEntry.
func SeedTranslation(t *testing.T, pool *pgxpool.Pool, sourceLang, targetLang, source, target string, confidence float64) domain.TranslationEntry {
	t.Helper()
	ctx := context.Background()

	e := domain.TranslationEntry{
		ID:         uuid.New(),
		SourceText: source,
		TargetText: target,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Confidence: confidence,
		LastUsed:   time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO translations (id, key_digest, source_text, source_key, target_text, source_lang, target_lang,
		     confidence_score, usage_count, last_used)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`,
		e.ID, e.Key().Digest(), e.SourceText, domain.NormalizeText(e.SourceText), e.TargetText, e.SourceLang, e.TargetLang, e.Confidence, e.LastUsed,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedTranslation insert: %v", err)
	}

	return e
}
