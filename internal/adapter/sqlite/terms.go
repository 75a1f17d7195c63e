package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

var termColumns = []string{
	"id", "object_name", "local_term", "language", "region", "context", "dialect",
	"image_hash", "area", "perimeter", "circularity", "aspect_ratio",
	"confidence", "added_by", "verified", "usage_count", "last_used",
	"created_at", "updated_at",
}

// TermRepo stores object terms.
type TermRepo struct {
	db  *DB
	now func() time.Time
}

// NewTermRepo creates a term repository on db.
func NewTermRepo(db *DB) *TermRepo {
	return &TermRepo{db: db, now: time.Now}
}

const putTermSQL = `
INSERT INTO object_terms (
    id, key_digest, object_name, local_term, language, region, context, dialect,
    image_hash, area, perimeter, circularity, aspect_ratio,
    confidence, added_by, verified, usage_count, last_used, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (key_digest) DO UPDATE SET
    object_name  = excluded.object_name,
    local_term   = excluded.local_term,
    language     = excluded.language,
    region       = excluded.region,
    context      = excluded.context,
    dialect      = excluded.dialect,
    image_hash   = excluded.image_hash,
    area         = excluded.area,
    perimeter    = excluded.perimeter,
    circularity  = excluded.circularity,
    aspect_ratio = excluded.aspect_ratio,
    confidence   = excluded.confidence,
    added_by     = excluded.added_by,
    verified     = excluded.verified,
    usage_count  = excluded.usage_count,
    last_used    = excluded.last_used,
    updated_at   = excluded.updated_at`

// Put stores t, replacing any record with the same key, and returns the
// stored row.
func (r *TermRepo) Put(ctx context.Context, t *domain.ObjectTerm) (*domain.ObjectTerm, error) {
	key := t.Key()
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := r.now().UTC()

	var hash *string
	if t.Signature.Hash != nil {
		s := t.Signature.Hash.String()
		hash = &s
	}
	var area, perimeter, circularity, aspect *float64
	if a := t.Signature.Attributes; a != nil {
		area, perimeter, circularity, aspect = &a.Area, &a.Perimeter, &a.Circularity, &a.AspectRatio
	}

	var stored *domain.ObjectTerm
	err := r.db.inTx(ctx, func(ctx context.Context, q querier) error {
		if _, err := q.ExecContext(ctx, putTermSQL,
			id.String(), key.Digest(), t.ObjectName, t.LocalTerm, t.Language, t.Region, t.Context, t.Dialect,
			hash, area, perimeter, circularity, aspect,
			domain.ClampConfidence(t.Confidence), t.AddedBy, t.Verified, t.UsageCount, utcPtr(t.LastUsed),
			now, now,
		); err != nil {
			return err
		}

		var err error
		stored, err = r.getByDigest(ctx, q, key.Digest())
		return err
	})
	if err != nil {
		return nil, mapError(err, "object_term", key.String())
	}
	return stored, nil
}

// Mutate applies fn to the term under key inside an immediate transaction
// and writes back confidence, verified, usage_count and last_used.
func (r *TermRepo) Mutate(ctx context.Context, key domain.TermKey, fn func(*domain.ObjectTerm) error) (*domain.ObjectTerm, error) {
	var out *domain.ObjectTerm

	err := r.db.inTx(ctx, func(ctx context.Context, q querier) error {
		t, err := r.getByDigest(ctx, q, key.Digest())
		if err != nil {
			return err
		}

		if err := fn(t); err != nil {
			return err
		}
		if t.Key().Digest() != key.Digest() {
			return domain.NewValidationError("key", "mutation must not change the term key")
		}
		t.Confidence = domain.ClampConfidence(t.Confidence)
		t.UpdatedAt = r.now().UTC()

		if _, err := q.ExecContext(ctx,
			`UPDATE object_terms SET confidence = ?, verified = ?, usage_count = ?, last_used = ?, updated_at = ? WHERE id = ?`,
			t.Confidence, t.Verified, t.UsageCount, utcPtr(t.LastUsed), t.UpdatedAt, t.ID.String(),
		); err != nil {
			return err
		}

		out = t
		return nil
	})
	if err != nil {
		return nil, mapError(err, "object_term", key.String())
	}
	return out, nil
}

// GetByKey returns the term stored under key.
func (r *TermRepo) GetByKey(ctx context.Context, key domain.TermKey) (*domain.ObjectTerm, error) {
	var t *domain.ObjectTerm
	err := r.db.do(ctx, func(ctx context.Context, q querier) error {
		var err error
		t, err = r.getByDigest(ctx, q, key.Digest())
		return err
	})
	if err != nil {
		return nil, mapError(err, "object_term", key.String())
	}
	return t, nil
}

// GetExact returns the most confident term of language whose hash equals hash.
func (r *TermRepo) GetExact(ctx context.Context, language string, hash domain.PHash) (*domain.ObjectTerm, error) {
	query, args, err := builder().
		Select(termColumns...).
		From("object_terms").
		Where(sq.Eq{"language": language, "image_hash": hash.String()}).
		OrderBy("confidence DESC", "last_used DESC NULLS LAST").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get exact query: %w", err)
	}

	var t *domain.ObjectTerm
	err = r.db.do(ctx, func(ctx context.Context, q querier) error {
		var err error
		t, err = scanTerm(q.QueryRowContext(ctx, query, args...))
		return err
	})
	if err != nil {
		return nil, mapError(err, "object_term", language+"#"+hash.String())
	}
	return t, nil
}

// ListAll returns every stored term, oldest first.
func (r *TermRepo) ListAll(ctx context.Context) ([]domain.ObjectTerm, error) {
	return r.list(ctx, "list object terms", nil)
}

// GetByLanguage returns every term of language, oldest first.
func (r *TermRepo) GetByLanguage(ctx context.Context, language string) ([]domain.ObjectTerm, error) {
	return r.list(ctx, "list object terms by language", sq.Eq{"language": language})
}

func (r *TermRepo) list(ctx context.Context, op string, where sq.Sqlizer) ([]domain.ObjectTerm, error) {
	b := builder().Select(termColumns...).From("object_terms").OrderBy("created_at", "id")
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	terms := []domain.ObjectTerm{}
	err = r.db.do(ctx, func(ctx context.Context, q querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTerm(rows)
			if err != nil {
				return err
			}
			terms = append(terms, *t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return terms, nil
}

func (r *TermRepo) getByDigest(ctx context.Context, q querier, digest string) (*domain.ObjectTerm, error) {
	query, args, err := builder().
		Select(termColumns...).
		From("object_terms").
		Where(sq.Eq{"key_digest": digest}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	return scanTerm(q.QueryRowContext(ctx, query, args...))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTerm(row scanner) (*domain.ObjectTerm, error) {
	var (
		t                             domain.ObjectTerm
		hash                          *string
		area, perimeter, circ, aspect *float64
	)

	if err := row.Scan(
		&t.ID, &t.ObjectName, &t.LocalTerm, &t.Language, &t.Region, &t.Context, &t.Dialect,
		&hash, &area, &perimeter, &circ, &aspect,
		&t.Confidence, &t.AddedBy, &t.Verified, &t.UsageCount, &t.LastUsed,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if hash != nil {
		h, err := domain.ParsePHash(*hash)
		if err != nil {
			return nil, err
		}
		t.Signature.Hash = &h
	}
	if area != nil && perimeter != nil && circ != nil && aspect != nil {
		t.Signature.Attributes = &domain.Attributes{
			Area:        *area,
			Perimeter:   *perimeter,
			Circularity: *circ,
			AspectRatio: *aspect,
		}
	}

	return &t, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
