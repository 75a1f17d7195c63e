// Package learning composes signature extraction, the term store, the
// similarity matcher and the reinforcement engine into the teach and recall
// workflows.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/keylock"
	"github.com/heartmarshall/lingualearn/internal/matcher"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type extractor interface {
	Extract(d domain.Detection) (domain.Signature, error)
}

type termStore interface {
	Put(ctx context.Context, t *domain.ObjectTerm) (*domain.ObjectTerm, error)
	GetExact(ctx context.Context, language string, hash domain.PHash) (*domain.ObjectTerm, error)
}

type similarityMatcher interface {
	FindSimilar(ctx context.Context, sig domain.Signature, language string, threshold float64) (matcher.Result, error)
}

type reinforcer interface {
	RecordTermOutcome(ctx context.Context, key domain.TermKey, accepted bool) (*domain.ObjectTerm, error)
}

type runner interface {
	Do(ctx context.Context, fn func(context.Context) error) error
	Size() int
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Config holds the orchestration parameters.
type Config struct {
	// MinDetectorConfidence turns away detections scored below it.
	MinDetectorConfidence float64
	// DefaultConfidence is the confidence of a taught term that carries none.
	DefaultConfidence float64
	// Threshold is the similarity cut-off for recall and related terms.
	// Zero defers to the matcher's default.
	Threshold float64
}

// DefaultConfig returns the standard orchestration parameters.
func DefaultConfig() Config {
	return Config{
		MinDetectorConfidence: 0.7,
		DefaultConfidence:     domain.DefaultConfidence,
	}
}

// Service runs teach and recall. It holds no per-request state; all
// long-lived state lives in the collaborators passed to NewService.
type Service struct {
	extractor extractor
	terms     termStore
	matcher   similarityMatcher
	engine    reinforcer
	pool      runner
	locks     *keylock.Locker
	languages *domain.Languages
	cfg       Config
	log       *slog.Logger
}

// NewService creates a learning Service. Extraction runs on pool. locks must
// be the Locker the reinforcement engine uses so that a teach and a feedback
// on the same term never interleave.
func NewService(
	logger *slog.Logger,
	ext extractor,
	terms termStore,
	m similarityMatcher,
	engine reinforcer,
	pool runner,
	locks *keylock.Locker,
	languages *domain.Languages,
	cfg Config,
) *Service {
	return &Service{
		extractor: ext,
		terms:     terms,
		matcher:   m,
		engine:    engine,
		pool:      pool,
		locks:     locks,
		languages: languages,
		cfg:       cfg,
		log:       logger.With("service", "learning"),
	}
}

// extract takes r from Idle to Extracting and computes the signature on the
// worker pool. A detection below the minimum score leaves r in Idle; an empty
// region sends it back there. Both return the matching sentinel.
func (s *Service) extract(ctx context.Context, r *run, d domain.Detection) (domain.Signature, error) {
	if d.Score < s.cfg.MinDetectorConfidence {
		return domain.Signature{}, fmt.Errorf("score %.2f below %.2f: %w",
			d.Score, s.cfg.MinDetectorConfidence, domain.ErrLowConfidenceDetection)
	}
	r.to(StateAwaitingSignal)
	r.to(StateExtracting)

	var sig domain.Signature
	err := s.pool.Do(ctx, func(context.Context) error {
		var err error
		sig, err = s.extractor.Extract(d)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyRegion) {
			r.to(StateIdle)
		}
		return domain.Signature{}, err
	}
	return sig, nil
}

// turnedAway reports whether err sent a run back to Idle without a fault.
func turnedAway(err error) bool {
	return errors.Is(err, domain.ErrLowConfidenceDetection) || errors.Is(err, domain.ErrEmptyRegion)
}
