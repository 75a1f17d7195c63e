package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql (migrations)

	"github.com/heartmarshall/lingualearn/internal/adapter/postgres"
	"github.com/heartmarshall/lingualearn/internal/adapter/postgres/objectterm"
	"github.com/heartmarshall/lingualearn/internal/adapter/postgres/rule"
	"github.com/heartmarshall/lingualearn/internal/adapter/postgres/translation"
	"github.com/heartmarshall/lingualearn/internal/adapter/sqlite"
	"github.com/heartmarshall/lingualearn/internal/config"
	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/keylock"
	"github.com/heartmarshall/lingualearn/internal/matcher"
	"github.com/heartmarshall/lingualearn/internal/reinforce"
	"github.com/heartmarshall/lingualearn/internal/service/learning"
	"github.com/heartmarshall/lingualearn/internal/signature"
	"github.com/heartmarshall/lingualearn/internal/workpool"
	"github.com/heartmarshall/lingualearn/migrations"
)

// ---------------------------------------------------------------------------
// Store contracts shared by both drivers
// ---------------------------------------------------------------------------

// TermStore is the term repository of the configured driver.
type TermStore interface {
	Put(ctx context.Context, t *domain.ObjectTerm) (*domain.ObjectTerm, error)
	Mutate(ctx context.Context, key domain.TermKey, fn func(*domain.ObjectTerm) error) (*domain.ObjectTerm, error)
	GetByKey(ctx context.Context, key domain.TermKey) (*domain.ObjectTerm, error)
	GetExact(ctx context.Context, language string, hash domain.PHash) (*domain.ObjectTerm, error)
	ListAll(ctx context.Context) ([]domain.ObjectTerm, error)
	GetByLanguage(ctx context.Context, language string) ([]domain.ObjectTerm, error)
}

// TranslationStore is the translation repository of the configured driver.
type TranslationStore interface {
	Upsert(ctx context.Context, e *domain.TranslationEntry) (*domain.TranslationEntry, error)
	Mutate(ctx context.Context, key domain.TranslationKey, fn func(*domain.TranslationEntry) error) (*domain.TranslationEntry, error)
	GetByKey(ctx context.Context, key domain.TranslationKey) (*domain.TranslationEntry, error)
	Best(ctx context.Context, sourceText, sourceLang, targetLang string) (*domain.TranslationEntry, error)
	ListAll(ctx context.Context, minConfidence float64) ([]domain.TranslationEntry, error)
	List(ctx context.Context, f domain.TranslationFilter) ([]domain.TranslationEntry, error)
}

// RuleStore is the contextual rule repository of the configured driver.
type RuleStore interface {
	Upsert(ctx context.Context, r *domain.ContextualRule) (*domain.ContextualRule, error)
	List(ctx context.Context, sourceLang, targetLang string, minConfidence float64) ([]domain.ContextualRule, error)
}

// ---------------------------------------------------------------------------
// App
// ---------------------------------------------------------------------------

// App is the wired application: stores of the configured driver, the shared
// worker pool and lock registry, and the services built on them.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Terms        TermStore
	Translations TranslationStore
	Rules        RuleStore

	Pool     *workpool.Pool
	Locks    *keylock.Locker
	Matcher  *matcher.Matcher
	Engine   *reinforce.Engine
	Learning *learning.Service

	migrateDB func() (*sql.DB, func(), error)
	closers   []func()
}

// New connects the configured store and wires the services. The caller must
// call Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Pool:   workpool.New(logger, cfg.Workers.PoolSize),
		Locks:  keylock.New(),
	}
	a.closers = append(a.closers, a.Pool.Close)

	var err error
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		err = a.openPostgres(ctx)
	case config.DriverSQLite:
		err = a.openSQLite(ctx)
	default:
		err = fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	a.wire()

	logger.Info("application ready",
		slog.String("version", BuildVersion()),
		slog.String("driver", cfg.Storage.Driver),
		slog.Any("languages", cfg.Learning.Languages.Codes()),
		slog.Int("workers", a.Pool.Size()),
	)
	return a, nil
}

func (a *App) openPostgres(ctx context.Context) error {
	pool, err := postgres.NewPool(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)

	txm := postgres.NewTxManager(pool)
	a.Terms = objectterm.New(pool, txm)
	a.Translations = translation.New(pool, txm)
	a.Rules = rule.New(pool)

	dsn := a.Config.Database.DSN
	a.migrateDB = func() (*sql.DB, func(), error) {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open migration connection: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	}
	return nil
}

func (a *App) openSQLite(ctx context.Context) error {
	db, err := sqlite.Open(ctx, a.Config.Storage.SQLitePath, a.Pool)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	a.Terms = sqlite.NewTermRepo(db)
	a.Translations = sqlite.NewTranslationRepo(db)
	a.Rules = sqlite.NewRuleRepo(db)

	a.migrateDB = func() (*sql.DB, func(), error) {
		return db.SQL(), func() {}, nil
	}
	return nil
}

func (a *App) wire() {
	cfg := a.Config
	langs := cfg.Learning.Languages

	a.Matcher = matcher.New(a.Logger, a.Terms, langs, matcher.Config{
		Threshold:     cfg.Matching.Threshold,
		HammingBound:  cfg.Matching.HammingBound,
		PerTermBudget: cfg.Matching.PerTermBudget,
		Ceiling:       cfg.Matching.ScanCeiling,
	})

	rcfg := reinforce.Config{
		Step:                       cfg.Reinforcement.Step,
		MinPatternExamples:         cfg.Reinforcement.MinPatternExamples,
		RuleInitialConfidence:      cfg.Reinforcement.RuleInitialConfidence,
		RuleStep:                   cfg.Reinforcement.RuleStep,
		RuleMinConfidence:          cfg.Reinforcement.RuleMinConfidence,
		EnhanceMinConfidence:       cfg.Reinforcement.EnhanceMinConfidence,
		CorroborationMinConfidence: cfg.Reinforcement.CorroborationMinConfidence,
	}
	tracker := reinforce.NewPatternTracker(rcfg.MinPatternExamples, rcfg.CorroborationMinConfidence)
	a.Engine = reinforce.NewEngine(a.Logger, a.Terms, a.Translations, a.Rules, a.Locks, tracker, langs, rcfg)

	a.Learning = learning.NewService(a.Logger, signature.NewExtractor(), a.Terms, a.Matcher, a.Engine,
		a.Pool, a.Locks, langs, learning.Config{
			MinDetectorConfidence: cfg.Learning.MinDetectorConfidence,
			DefaultConfidence:     cfg.Learning.DefaultConfidence,
			Threshold:             cfg.Matching.Threshold,
		})
}

// Warm loads the stored translations into the pattern tracker so promotion
// continues where the previous process left off.
func (a *App) Warm(ctx context.Context) error {
	n, err := a.Engine.Warm(ctx)
	if err != nil {
		return fmt.Errorf("app: warm pattern tracker: %w", err)
	}
	a.Logger.Debug("pattern tracker warmed", slog.Int("entries", n))
	return nil
}

// Migrate applies pending schema migrations of the configured driver and
// returns the versions applied.
func (a *App) Migrate(ctx context.Context) ([]int64, error) {
	db, done, err := a.migrateDB()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	defer done()

	dialect := migrations.SQLite
	if a.Config.Storage.Driver == config.DriverPostgres {
		dialect = migrations.Postgres
	}

	applied, err := migrations.Up(ctx, db, dialect)
	if err != nil {
		return nil, fmt.Errorf("app: migrate: %w", err)
	}
	a.Logger.Info("migrations applied", slog.String("dialect", dialect), slog.Any("versions", applied))
	return applied, nil
}

// Close releases the store and the worker pool, most recent first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
