// Package rule implements the ContextualRule repository using PostgreSQL.
package rule

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
	table  = "contextual_rules"
	entity = "contextual_rule"
)

var columns = []string{
	"id", "source_lang", "target_lang", "rule_type", "rule_content",
	"confidence_score", "examples", "updated_at",
}

// Repo provides contextual rule persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new contextual rule repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// Confidence and example count never decrease on conflict.
const upsertSQL = `
INSERT INTO contextual_rules (
    id, source_lang, target_lang, rule_type, rule_content, confidence_score, examples, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (source_lang, target_lang, rule_type, rule_content) DO UPDATE SET
    confidence_score = GREATEST(contextual_rules.confidence_score, EXCLUDED.confidence_score),
    examples         = GREATEST(contextual_rules.examples, EXCLUDED.examples),
    updated_at       = EXCLUDED.updated_at
RETURNING id, source_lang, target_lang, rule_type, rule_content, confidence_score, examples, updated_at`

// Upsert stores rule keyed by (source_lang, target_lang, rule_type,
// rule_content) and returns the stored row.
func (r *Repo) Upsert(ctx context.Context, rule *domain.ContextualRule) (*domain.ContextualRule, error) {
	kind, content, err := domain.EncodePattern(rule.Pattern)
	if err != nil {
		return nil, fmt.Errorf("upsert contextual rule: %w", err)
	}

	id := rule.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	updated := rule.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	q := postgres.QuerierFromCtx(ctx, r.db)
	row := q.QueryRow(ctx, upsertSQL,
		id, rule.SourceLang, rule.TargetLang, string(kind), content,
		domain.ClampConfidence(rule.Confidence), rule.Examples, updated.UTC(),
	)

	stored, err := scanRule(row)
	if err != nil {
		return nil, postgres.MapError(err, entity, string(kind)+":"+content)
	}
	return stored, nil
}

// List returns the rules of a language pair with confidence of at least
// minConfidence, most confident first.
func (r *Repo) List(ctx context.Context, sourceLang, targetLang string, minConfidence float64) ([]domain.ContextualRule, error) {
	query := postgres.Builder().
		Select(columns...).
		From(table).
		Where(sq.Eq{"source_lang": sourceLang, "target_lang": targetLang}).
		Where(sq.GtOrEq{"confidence_score": minConfidence}).
		OrderBy("confidence_score DESC", "rule_type", "rule_content")

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list contextual rules: build query: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list contextual rules: %w", err)
	}
	defer rows.Close()

	rules := []domain.ContextualRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("list contextual rules: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contextual rules: %w", err)
	}

	return rules, nil
}

func scanRule(row pgx.Row) (*domain.ContextualRule, error) {
	var (
		rule    domain.ContextualRule
		kind    string
		content string
	)
	if err := row.Scan(
		&rule.ID, &rule.SourceLang, &rule.TargetLang, &kind, &content,
		&rule.Confidence, &rule.Examples, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p, err := domain.DecodePattern(domain.RuleKind(kind), content)
	if err != nil {
		return nil, err
	}
	rule.Pattern = p

	return &rule, nil
}
