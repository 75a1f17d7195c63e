package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// RuleRepo stores contextual rules.
type RuleRepo struct {
	db *DB
}

// NewRuleRepo creates a rule repository on db.
func NewRuleRepo(db *DB) *RuleRepo {
	return &RuleRepo{db: db}
}

// Confidence and example count never decrease on conflict.
const upsertRuleSQL = `
INSERT INTO contextual_rules (
    id, source_lang, target_lang, rule_type, rule_content, confidence_score, examples, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source_lang, target_lang, rule_type, rule_content) DO UPDATE SET
    confidence_score = MAX(contextual_rules.confidence_score, excluded.confidence_score),
    examples         = MAX(contextual_rules.examples, excluded.examples),
    updated_at       = excluded.updated_at`

// Upsert stores rule and returns the stored row.
func (r *RuleRepo) Upsert(ctx context.Context, rule *domain.ContextualRule) (*domain.ContextualRule, error) {
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

	var stored *domain.ContextualRule
	err = r.db.inTx(ctx, func(ctx context.Context, q querier) error {
		if _, err := q.ExecContext(ctx, upsertRuleSQL,
			id.String(), rule.SourceLang, rule.TargetLang, string(kind), content,
			domain.ClampConfidence(rule.Confidence), rule.Examples, updated.UTC(),
		); err != nil {
			return err
		}

		query, args, err := ruleSelect().
			Where(sq.Eq{
				"source_lang":  rule.SourceLang,
				"target_lang":  rule.TargetLang,
				"rule_type":    string(kind),
				"rule_content": content,
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build get query: %w", err)
		}
		stored, err = scanRule(q.QueryRowContext(ctx, query, args...))
		return err
	})
	if err != nil {
		return nil, mapError(err, "contextual_rule", string(kind)+":"+content)
	}
	return stored, nil
}

// List returns the rules of a language pair with confidence of at least
// minConfidence, most confident first.
func (r *RuleRepo) List(ctx context.Context, sourceLang, targetLang string, minConfidence float64) ([]domain.ContextualRule, error) {
	query, args, err := ruleSelect().
		Where(sq.Eq{"source_lang": sourceLang, "target_lang": targetLang}).
		Where(sq.GtOrEq{"confidence_score": minConfidence}).
		OrderBy("confidence_score DESC", "rule_type", "rule_content").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("list contextual rules: build query: %w", err)
	}

	rules := []domain.ContextualRule{}
	err = r.db.do(ctx, func(ctx context.Context, q querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rule, err := scanRule(rows)
			if err != nil {
				return err
			}
			rules = append(rules, *rule)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list contextual rules: %w", err)
	}
	return rules, nil
}

func ruleSelect() sq.SelectBuilder {
	return builder().
		Select("id", "source_lang", "target_lang", "rule_type", "rule_content", "confidence_score", "examples", "updated_at").
		From("contextual_rules")
}

func scanRule(row scanner) (*domain.ContextualRule, error) {
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
