package config

import (
	"time"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the root application configuration.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Learning      LearningConfig      `yaml:"learning"`
	Matching      MatchingConfig      `yaml:"matching"`
	Reinforcement ReinforcementConfig `yaml:"reinforcement"`
	Workers       WorkersConfig       `yaml:"workers"`
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	Driver     string `yaml:"driver"      env:"STORAGE_DRIVER"      env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" env:"STORAGE_SQLITE_PATH" env-default:"lingualearn.db"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	ApplicationName string        `yaml:"application_name"   env:"DATABASE_APPLICATION_NAME"   env-default:"lingualearn"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// LearningConfig holds teach/recall parameters.
type LearningConfig struct {
	MinDetectorConfidence float64 `yaml:"min_detector_confidence" env:"LEARNING_MIN_DETECTOR_CONFIDENCE" env-default:"0.7"`
	DefaultConfidence     float64 `yaml:"default_confidence"      env:"LEARNING_DEFAULT_CONFIDENCE"      env-default:"0.5"`
	LanguagesRaw          string  `yaml:"languages"               env:"LEARNING_LANGUAGES"               env-default:"xho,zul,afr,eng"`

	// Languages is parsed from LanguagesRaw during validation.
	Languages *domain.Languages `yaml:"-" env:"-"`
}

// MatchingConfig holds similarity matcher parameters.
type MatchingConfig struct {
	Threshold     float64       `yaml:"threshold"       env:"MATCHING_THRESHOLD"       env-default:"0.8"`
	HammingBound  int           `yaml:"hamming_bound"   env:"MATCHING_HAMMING_BOUND"   env-default:"10"`
	PerTermBudget time.Duration `yaml:"per_term_budget" env:"MATCHING_PER_TERM_BUDGET" env-default:"50us"`
	ScanCeiling   time.Duration `yaml:"scan_ceiling"    env:"MATCHING_SCAN_CEILING"    env-default:"250ms"`
}

// ReinforcementConfig holds confidence and pattern promotion parameters.
type ReinforcementConfig struct {
	Step                       float64 `yaml:"step"                         env:"REINFORCE_STEP"                         env-default:"0.1"`
	MinPatternExamples         int     `yaml:"min_pattern_examples"         env:"REINFORCE_MIN_PATTERN_EXAMPLES"         env-default:"3"`
	RuleInitialConfidence      float64 `yaml:"rule_initial_confidence"      env:"REINFORCE_RULE_INITIAL_CONFIDENCE"      env-default:"0.5"`
	RuleStep                   float64 `yaml:"rule_step"                    env:"REINFORCE_RULE_STEP"                    env-default:"0.1"`
	RuleMinConfidence          float64 `yaml:"rule_min_confidence"          env:"REINFORCE_RULE_MIN_CONFIDENCE"          env-default:"0.5"`
	EnhanceMinConfidence       float64 `yaml:"enhance_min_confidence"       env:"REINFORCE_ENHANCE_MIN_CONFIDENCE"       env-default:"0.7"`
	CorroborationMinConfidence float64 `yaml:"corroboration_min_confidence" env:"REINFORCE_CORROBORATION_MIN_CONFIDENCE" env-default:"0.5"`
}

// WorkersConfig sizes the shared worker pool.
type WorkersConfig struct {
	PoolSize int `yaml:"pool_size" env:"WORKERS_POOL_SIZE" env-default:"4"`
}
