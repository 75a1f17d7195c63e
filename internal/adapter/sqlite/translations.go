package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

var translationColumns = []string{
	"id", "source_text", "target_text", "source_lang", "target_lang",
	"context", "confidence_score", "usage_count", "last_used",
}

// TranslationRepo stores translation entries.
type TranslationRepo struct {
	db *DB
}

// NewTranslationRepo creates a translation repository on db.
func NewTranslationRepo(db *DB) *TranslationRepo {
	return &TranslationRepo{db: db}
}

const upsertTranslationSQL = `
INSERT INTO translations (
    id, key_digest, source_text, source_key, target_text, source_lang, target_lang,
    context, confidence_score, usage_count, last_used
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (key_digest) DO UPDATE SET
    source_text      = excluded.source_text,
    source_key       = excluded.source_key,
    target_text      = excluded.target_text,
    source_lang      = excluded.source_lang,
    target_lang      = excluded.target_lang,
    context          = excluded.context,
    confidence_score = excluded.confidence_score,
    usage_count      = excluded.usage_count,
    last_used        = excluded.last_used`

// Upsert stores e, replacing any entry with the same key.
func (r *TranslationRepo) Upsert(ctx context.Context, e *domain.TranslationEntry) (*domain.TranslationEntry, error) {
	key := e.Key()
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	lastUsed := e.LastUsed
	if lastUsed.IsZero() {
		lastUsed = time.Now()
	}

	var stored *domain.TranslationEntry
	err := r.db.inTx(ctx, func(ctx context.Context, q querier) error {
		if _, err := q.ExecContext(ctx, upsertTranslationSQL,
			id.String(), key.Digest(), e.SourceText, domain.NormalizeText(e.SourceText), e.TargetText, e.SourceLang, e.TargetLang,
			e.Context, domain.ClampConfidence(e.Confidence), e.UsageCount, lastUsed.UTC(),
		); err != nil {
			return err
		}

		var err error
		stored, err = r.getByDigest(ctx, q, key.Digest())
		return err
	})
	if err != nil {
		return nil, mapError(err, "translation", key.Digest())
	}
	return stored, nil
}

// Mutate applies fn to the entry under key inside an immediate transaction
// and writes back confidence_score, usage_count and last_used.
func (r *TranslationRepo) Mutate(ctx context.Context, key domain.TranslationKey, fn func(*domain.TranslationEntry) error) (*domain.TranslationEntry, error) {
	var out *domain.TranslationEntry

	err := r.db.inTx(ctx, func(ctx context.Context, q querier) error {
		e, err := r.getByDigest(ctx, q, key.Digest())
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

		if _, err := q.ExecContext(ctx,
			`UPDATE translations SET confidence_score = ?, usage_count = ?, last_used = ? WHERE id = ?`,
			e.Confidence, e.UsageCount, e.LastUsed.UTC(), e.ID.String(),
		); err != nil {
			return err
		}

		out = e
		return nil
	})
	if err != nil {
		return nil, mapError(err, "translation", key.Digest())
	}
	return out, nil
}

// GetByKey returns the entry stored under key.
func (r *TranslationRepo) GetByKey(ctx context.Context, key domain.TranslationKey) (*domain.TranslationEntry, error) {
	var e *domain.TranslationEntry
	err := r.db.do(ctx, func(ctx context.Context, q querier) error {
		var err error
		e, err = r.getByDigest(ctx, q, key.Digest())
		return err
	})
	if err != nil {
		return nil, mapError(err, "translation", key.Digest())
	}
	return e, nil
}

// Best returns the most confident translation of sourceText between the two
// languages. Source texts are compared in their normalized form, so case and
// repeated spaces do not matter. Ties go to the more used, then the more
// recently used entry.
func (r *TranslationRepo) Best(ctx context.Context, sourceText, sourceLang, targetLang string) (*domain.TranslationEntry, error) {
	query, args, err := builder().
		Select(translationColumns...).
		From("translations").
		Where(sq.Eq{"source_key": domain.NormalizeText(sourceText), "source_lang": sourceLang, "target_lang": targetLang}).
		OrderBy("confidence_score DESC", "usage_count DESC", "last_used DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build best translation query: %w", err)
	}

	var e *domain.TranslationEntry
	err = r.db.do(ctx, func(ctx context.Context, q querier) error {
		var err error
		e, err = scanTranslation(q.QueryRowContext(ctx, query, args...))
		return err
	})
	if err != nil {
		return nil, mapError(err, "translation", sourceLang+">"+targetLang+":"+sourceText)
	}
	return e, nil
}

// List returns entries matching f, most confident first.
func (r *TranslationRepo) List(ctx context.Context, f domain.TranslationFilter) ([]domain.TranslationEntry, error) {
	query := builder().
		Select(translationColumns...).
		From("translations").
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
func (r *TranslationRepo) ListAll(ctx context.Context, minConfidence float64) ([]domain.TranslationEntry, error) {
	query := builder().
		Select(translationColumns...).
		From("translations").
		Where(sq.GtOrEq{"confidence_score": minConfidence}).
		OrderBy("last_used", "id")

	return r.list(ctx, "list all translations", query)
}

func (r *TranslationRepo) list(ctx context.Context, op string, query sq.SelectBuilder) ([]domain.TranslationEntry, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	entries := []domain.TranslationEntry{}
	err = r.db.do(ctx, func(ctx context.Context, q querier) error {
		rows, err := q.QueryContext(ctx, sqlStr, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanTranslation(rows)
			if err != nil {
				return err
			}
			entries = append(entries, *e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

func (r *TranslationRepo) getByDigest(ctx context.Context, q querier, digest string) (*domain.TranslationEntry, error) {
	query, args, err := builder().
		Select(translationColumns...).
		From("translations").
		Where(sq.Eq{"key_digest": digest}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	return scanTranslation(q.QueryRowContext(ctx, query, args...))
}

func scanTranslation(row scanner) (*domain.TranslationEntry, error) {
	var e domain.TranslationEntry
	if err := row.Scan(
		&e.ID, &e.SourceText, &e.TargetText, &e.SourceLang, &e.TargetLang,
		&e.Context, &e.Confidence, &e.UsageCount, &e.LastUsed,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
