// Package objectterm implements the ObjectTerm repository using PostgreSQL.
// Records are addressed by the digest of their (local_term, language, dialect)
// key; Put is an upsert on that digest.
package objectterm

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
	table  = "object_terms"
	entity = "object_term"
)

// columns is the scan order of scanTerm.
var columns = []string{
	"id", "object_name", "local_term", "language", "region", "context", "dialect",
	"image_hash", "area", "perimeter", "circularity", "aspect_ratio",
	"confidence", "added_by", "verified", "usage_count", "last_used",
	"created_at", "updated_at",
}

// Repo provides object term persistence backed by PostgreSQL.
type Repo struct {
	db  postgres.DB
	txm *postgres.TxManager
	now func() time.Time
}

// New creates a new object term repository.
func New(db postgres.DB, txm *postgres.TxManager) *Repo {
	return &Repo{db: db, txm: txm, now: time.Now}
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

const putSQL = `
INSERT INTO object_terms (
    id, key_digest, object_name, local_term, language, region, context, dialect,
    image_hash, area, perimeter, circularity, aspect_ratio,
    confidence, added_by, verified, usage_count, last_used, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19
)
ON CONFLICT (key_digest) DO UPDATE SET
    object_name  = EXCLUDED.object_name,
    local_term   = EXCLUDED.local_term,
    language     = EXCLUDED.language,
    region       = EXCLUDED.region,
    context      = EXCLUDED.context,
    dialect      = EXCLUDED.dialect,
    image_hash   = EXCLUDED.image_hash,
    area         = EXCLUDED.area,
    perimeter    = EXCLUDED.perimeter,
    circularity  = EXCLUDED.circularity,
    aspect_ratio = EXCLUDED.aspect_ratio,
    confidence   = EXCLUDED.confidence,
    added_by     = EXCLUDED.added_by,
    verified     = EXCLUDED.verified,
    usage_count  = EXCLUDED.usage_count,
    last_used    = EXCLUDED.last_used,
    updated_at   = EXCLUDED.updated_at
RETURNING id, object_name, local_term, language, region, context, dialect,
    image_hash, area, perimeter, circularity, aspect_ratio,
    confidence, added_by, verified, usage_count, last_used, created_at, updated_at`

// Put stores t, replacing any record with the same key. The stored row is
// returned; a replaced record keeps its ID and created_at.
func (r *Repo) Put(ctx context.Context, t *domain.ObjectTerm) (*domain.ObjectTerm, error) {
	key := t.Key()
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := r.now().UTC()

	q := postgres.QuerierFromCtx(ctx, r.db)
	row := q.QueryRow(ctx, putSQL, append([]any{id, key.Digest()}, writeArgs(t, now)...)...)

	stored, err := scanTerm(row)
	if err != nil {
		return nil, postgres.MapError(err, entity, key.String())
	}
	return stored, nil
}

const updateStatsSQL = `
UPDATE object_terms
SET confidence = $2, verified = $3, usage_count = $4, last_used = $5, updated_at = $6
WHERE id = $1`

// Mutate loads the term under a row lock, applies fn and writes back the
// fields fn may change: confidence, verified, usage_count and last_used.
func (r *Repo) Mutate(ctx context.Context, key domain.TermKey, fn func(*domain.ObjectTerm) error) (*domain.ObjectTerm, error) {
	var out *domain.ObjectTerm

	err := r.txm.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := r.getByDigest(txCtx, key.Digest(), "FOR UPDATE")
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

		q := postgres.QuerierFromCtx(txCtx, r.db)
		if _, err := q.Exec(txCtx, updateStatsSQL,
			t.ID, t.Confidence, t.Verified, t.UsageCount, t.LastUsed, t.UpdatedAt,
		); err != nil {
			return err
		}

		out = t
		return nil
	})
	if err != nil {
		return nil, postgres.MapError(err, entity, key.String())
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetByKey returns the term stored under key.
func (r *Repo) GetByKey(ctx context.Context, key domain.TermKey) (*domain.ObjectTerm, error) {
	t, err := r.getByDigest(ctx, key.Digest(), "")
	if err != nil {
		return nil, postgres.MapError(err, entity, key.String())
	}
	return t, nil
}

// GetExact returns the most confident term of language whose stored hash
// equals hash exactly.
func (r *Repo) GetExact(ctx context.Context, language string, hash domain.PHash) (*domain.ObjectTerm, error) {
	query := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.Eq{"language": language, "image_hash": hash.String()}).
		OrderBy("confidence DESC", "last_used DESC NULLS LAST").
		Limit(1)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get exact query: %w", err)
	}

	q := postgres.QuerierFromCtx(ctx, r.db)
	t, err := scanTerm(q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, postgres.MapError(err, entity, language+"#"+hash.String())
	}
	return t, nil
}

// ListAll returns every stored term, oldest first.
func (r *Repo) ListAll(ctx context.Context) ([]domain.ObjectTerm, error) {
	return r.list(ctx, "list object terms", nil)
}

// GetByLanguage returns every term of language, oldest first.
func (r *Repo) GetByLanguage(ctx context.Context, language string) ([]domain.ObjectTerm, error) {
	return r.list(ctx, "list object terms by language", sq.Eq{"language": language})
}

func (r *Repo) list(ctx context.Context, op string, where sq.Sqlizer) ([]domain.ObjectTerm, error) {
	query := postgres.Builder().
		Select(columns...).
		From(table).
		OrderBy("created_at", "id")
	if where != nil {
		query = query.Where(where)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	terms := []domain.ObjectTerm{}
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		terms = append(terms, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return terms, nil
}

func (r *Repo) getByDigest(ctx context.Context, digest, suffix string) (*domain.ObjectTerm, error) {
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

	return scanTerm(postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...))
}

// ---------------------------------------------------------------------------
// Row mapping
// ---------------------------------------------------------------------------

// writeArgs returns the column values of t after id and key_digest, in
// putSQL order.
func writeArgs(t *domain.ObjectTerm, now time.Time) []any {
	var hash *string
	if t.Signature.Hash != nil {
		s := t.Signature.Hash.String()
		hash = &s
	}

	var area, perimeter, circularity, aspect *float64
	if a := t.Signature.Attributes; a != nil {
		area, perimeter, circularity, aspect = &a.Area, &a.Perimeter, &a.Circularity, &a.AspectRatio
	}

	return []any{
		t.ObjectName, t.LocalTerm, t.Language, t.Region, t.Context, t.Dialect,
		hash, area, perimeter, circularity, aspect,
		domain.ClampConfidence(t.Confidence), t.AddedBy, t.Verified, t.UsageCount, t.LastUsed,
		now,
	}
}

func scanTerm(row pgx.Row) (*domain.ObjectTerm, error) {
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

	sig, err := buildSignature(hash, area, perimeter, circ, aspect)
	if err != nil {
		return nil, err
	}
	t.Signature = sig

	return &t, nil
}

func buildSignature(hash *string, area, perimeter, circ, aspect *float64) (domain.Signature, error) {
	var sig domain.Signature

	if hash != nil {
		h, err := domain.ParsePHash(*hash)
		if err != nil {
			return domain.Signature{}, err
		}
		sig.Hash = &h
	}

	if area != nil && perimeter != nil && circ != nil && aspect != nil {
		sig.Attributes = &domain.Attributes{
			Area:        *area,
			Perimeter:   *perimeter,
			Circularity: *circ,
			AspectRatio: *aspect,
		}
	}

	return sig, nil
}
