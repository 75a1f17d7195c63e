package config

import (
	"fmt"
	"strings"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if c.Storage.Driver == DriverPostgres && strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required for the %s driver", DriverPostgres)
	}

	if err := c.Learning.validate(); err != nil {
		return fmt.Errorf("learning: %w", err)
	}

	if err := c.Matching.validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}

	if err := c.Reinforcement.validate(); err != nil {
		return fmt.Errorf("reinforcement: %w", err)
	}

	if c.Workers.PoolSize <= 0 {
		return fmt.Errorf("workers.pool_size must be > 0 (got %d)", c.Workers.PoolSize)
	}

	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("sqlite_path is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("driver must be %q or %q (got %q)", DriverPostgres, DriverSQLite, s.Driver)
	}
	return nil
}

func (l *LearningConfig) validate() error {
	if !isUnit(l.MinDetectorConfidence) {
		return fmt.Errorf("min_detector_confidence must be in [0,1] (got %v)", l.MinDetectorConfidence)
	}
	if !isUnit(l.DefaultConfidence) {
		return fmt.Errorf("default_confidence must be in [0,1] (got %v)", l.DefaultConfidence)
	}

	langs := domain.ParseLanguages(l.LanguagesRaw)
	if langs.Len() == 0 {
		return fmt.Errorf("languages must list at least one code")
	}
	l.Languages = langs

	return nil
}

func (m *MatchingConfig) validate() error {
	if m.Threshold <= 0 || m.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0,1] (got %v)", m.Threshold)
	}
	if m.HammingBound < 0 || m.HammingBound > domain.PHashBits {
		return fmt.Errorf("hamming_bound must be in [0,%d] (got %d)", domain.PHashBits, m.HammingBound)
	}
	if m.PerTermBudget <= 0 {
		return fmt.Errorf("per_term_budget must be > 0 (got %v)", m.PerTermBudget)
	}
	if m.ScanCeiling < m.PerTermBudget {
		return fmt.Errorf("scan_ceiling must be >= per_term_budget (got %v)", m.ScanCeiling)
	}
	return nil
}

func (r *ReinforcementConfig) validate() error {
	if r.Step <= 0 || r.Step > 1 {
		return fmt.Errorf("step must be in (0,1] (got %v)", r.Step)
	}
	if r.MinPatternExamples < 1 {
		return fmt.Errorf("min_pattern_examples must be >= 1 (got %d)", r.MinPatternExamples)
	}
	for name, v := range map[string]float64{
		"rule_initial_confidence":      r.RuleInitialConfidence,
		"rule_step":                    r.RuleStep,
		"rule_min_confidence":          r.RuleMinConfidence,
		"enhance_min_confidence":       r.EnhanceMinConfidence,
		"corroboration_min_confidence": r.CorroborationMinConfidence,
	} {
		if !isUnit(v) {
			return fmt.Errorf("%s must be in [0,1] (got %v)", name, v)
		}
	}
	return nil
}

func isUnit(v float64) bool {
	return v >= 0 && v <= 1
}
