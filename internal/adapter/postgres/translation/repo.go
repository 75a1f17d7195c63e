// Package translation implements the TranslationEntry repository using
// PostgreSQL. Entries are unique on the digest of (source_text, target_text,
// source_lang, target_lang); re-insertion replaces the stored entry.
package translation

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	postgres "github.com/heartmarshall/lingualearn/internal/adapter/postgres"
	"github.com/heartmarshall/lingualearn/internal/domain"
)

const (
	table  = "translations"
	entity = "translation"
)

var columns = []string{
	"id", "source_text", "target_text", "source_lang", "target_lang",
	"context", "confidence_score", "usage_count", "last_used",
}

// Repo provides translation persistence backed by PostgreSQL.
type Repo struct {
	db  postgres.DB
	txm *postgres.TxManager
}

// New creates a new translation repository.
func New(db postgres.DB, txm *postgres.TxManager) *Repo {
	return &Repo{db: db, txm: txm}
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

const upsertSQL = `
INSERT INTO translations (
    id, key_digest, source_text, source_key, target_text, source_lang, target_lang,
    context, confidence_score, usage_count, last_used
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (key_digest) DO UPDATE SET
    source_text      = EXCLUDED.source_text,
    source_key       = EXCLUDED.source_key,
    target_text      = EXCLUDED.target_text,
    source_lang      = EXCLUDED.source_lang,
    target_lang      = EXCLUDED.target_lang,
    context          = EXCLUDED.context,
    confidence_score = EXCLUDED.confidence_score,
    usage_count      = EXCLUDED.usage_count,
    last_used        = EXCLUDED.last_used
RETURNING id, source_text, target_text, source_lang, target_lang,
    context, confidence_score, usage_count, last_used`

// Upsert stores e, replacing any entry with the same key. A replaced entry
// keeps its ID.
func (r *Repo) Upsert(ctx context.Context, e *domain.TranslationEntry) (*domain.TranslationEntry, error) {
	key := e.Key()
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	lastUsed := e.LastUsed
	if lastUsed.IsZero() {
		lastUsed = time.Now()
	}

	q := postgres.QuerierFromCtx(ctx, r.db)
	row := q.QueryRow(ctx, upsertSQL,
		id, key.Digest(), e.SourceText, domain.NormalizeText(e.SourceText), e.TargetText, e.SourceLang, e.TargetLang,
		e.Context, domain.ClampConfidence(e.Confidence), e.UsageCount, lastUsed.UTC(),
	)

	stored, err := scanEntry(row)
	if err != nil {
		return nil, postgres.MapError(err, entity, key.Digest())
	}
	return stored, nil
}

const updateStatsSQL = `
UPDATE translations
SET confidence_score = $2, usage_count = $3, last_used = $4
WHERE id = $1`

// Mutate loads the entry under a row lock, applies fn and writes back
// confidence_score, usage_count and last_used.
func (r *Repo) Mutate(ctx context.Context, key domain.TranslationKey, fn func(*domain.TranslationEntry) error) (*domain.TranslationEntry, error) {
	var out *domain.TranslationEntry

	err := r.txm.RunInTx(ctx, func(txCtx context.Context) error {
		e, err := r.getByDigest(txCtx, key.Digest(), "FOR UPDATE")
		if err != nil {
			return err
		}

		if err := fn(e); err != nil {
			return err
		}
		if e.Key().Digest() != key.Digest() {
			return domain.NewValidationError("key", "mutation must not change the translation key")
		}
		e.Confidence = domain.ClampConfidence(e.Confidence)

		q := postgres.QuerierFromCtx(txCtx, r.db)
		if _, err := q.Exec(txCtx, updateStatsSQL, e.ID, e.Confidence, e.UsageCount, e.LastUsed.UTC()); err != nil {
			return err
		}

		out = e
		return nil
	})
	if err != nil {
		return nil, postgres.MapError(err, entity, key.Digest())
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetByKey returns the entry stored under key.
func (r *Repo) GetByKey(ctx context.Context, key domain.TranslationKey) (*domain.TranslationEntry, error) {
	e, err := r.getByDigest(ctx, key.Digest(), "")
	if err != nil {
		return nil, postgres.MapError(err, entity, key.Digest())
	}
	return e, nil
}

// Best returns the most confident translation of sourceText between the two
// languages, matching on the normalized source text. Ties go to the more
// used, then the more recently used entry.
func (r *Repo) Best(ctx context.Context, sourceText, sourceLang, targetLang string) (*domain.TranslationEntry, error) {
	query := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.Eq{"source_key": domain.NormalizeText(sourceText), "source_lang": sourceLang, "target_lang": targetLang}).
		OrderBy("confidence_score DESC", "usage_count DESC", "last_used DESC").
		Limit(1)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build best translation query: %w", err)
	}

	e, err := scanEntry(postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, postgres.MapError(err, entity, sourceLang+">"+targetLang+":"+sourceText)
	}
	return e, nil
}

// List returns entries matching f, most confident first.
func (r *Repo) List(ctx context.Context, f domain.TranslationFilter) ([]domain.TranslationEntry, error) {
	query := postgres.Builder().
		Select(columns...).
		From(table).
		OrderBy("confidence_score DESC", "last_used DESC", "id")

	if f.SourceLang != "" {
		query = query.Where(sq.Eq{"source_lang": f.SourceLang})
	}
	if f.TargetLang != "" {
		query = query.Where(sq.Eq{"target_lang": f.TargetLang})
	}
	if f.MinConfidence > 0 {
		query = query.Where(sq.GtOrEq{"confidence_score": f.MinConfidence})
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	return r.list(ctx, "list translations", query)
}

// ListAll returns every entry with confidence of at least minConfidence,
// least recently used first.
func (r *Repo) ListAll(ctx context.Context, minConfidence float64) ([]domain.TranslationEntry, error) {
	query := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.GtOrEq{"confidence_score": minConfidence}).
		OrderBy("last_used", "id")

	return r.list(ctx, "list all translations", query)
}

func (r *Repo) list(ctx context.Context, op string, query sq.SelectBuilder) ([]domain.TranslationEntry, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	entries := []domain.TranslationEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

func (r *Repo) getByDigest(ctx context.Context, digest, suffix string) (*domain.TranslationEntry, error) {
	query := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.Eq{"key_digest": digest})
	if suffix != "" {
		query = query.Suffix(suffix)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}

	return scanEntry(postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...))
}

func scanEntry(row pgx.Row) (*domain.TranslationEntry, error) {
	var e domain.TranslationEntry
	if err := row.Scan(
		&e.ID, &e.SourceText, &e.TargetText, &e.SourceLang, &e.TargetLang,
		&e.Context, &e.Confidence, &e.UsageCount, &e.LastUsed,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
