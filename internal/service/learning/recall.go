package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/matcher"
)

// Recall returns the known terms of the detected object, best first.
// Finding nothing is not an error, and neither is a detection that is turned
// away for a low score or an empty region: both yield an empty result.
func (s *Service) Recall(ctx context.Context, input RecallInput) (*RecallResult, error) {
	if err := input.Validate(s.languages); err != nil {
		return nil, fmt.Errorf("learning.Recall: %w", err)
	}

	r := newRun()
	sig, err := s.extract(ctx, r, input.Detection)
	if err != nil {
		if turnedAway(err) {
			s.log.DebugContext(ctx, "nothing to recall", slog.String("reason", err.Error()))
			return &RecallResult{Matches: []matcher.Match{}, State: r.state(), Path: r.Path()}, nil
		}
		return nil, fmt.Errorf("learning.Recall: %w", err)
	}

	r.to(StateRecalling)
	threshold := input.Threshold
	if threshold == 0 {
		threshold = s.cfg.Threshold
	}

	res, err := s.matcher.FindSimilar(ctx, sig, input.Language, threshold)
	if err != nil {
		r.to(StateRejected)
		return nil, fmt.Errorf("learning.Recall: %w", err)
	}
	if res.Partial {
		res.Matches = s.withExact(ctx, res.Matches, sig, input.Language)
	}
	if res.Matches == nil {
		res.Matches = []matcher.Match{}
	}
	r.to(StateCommitted)

	s.log.InfoContext(ctx, "recall completed",
		slog.String("language", input.Language),
		slog.Int("matches", len(res.Matches)),
		slog.Bool("partial", res.Partial),
	)

	return &RecallResult{
		Matches: res.Matches,
		Partial: res.Partial,
		State:   r.state(),
		Path:    r.Path(),
	}, nil
}

// withExact makes sure a term with exactly the query's hash is reported even
// when the similarity scan stopped before reaching it.
func (s *Service) withExact(ctx context.Context, matches []matcher.Match, sig domain.Signature, language string) []matcher.Match {
	if sig.Hash == nil {
		return matches
	}

	exact, err := s.terms.GetExact(ctx, language, *sig.Hash)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.WarnContext(ctx, "exact hash lookup failed",
				slog.String("language", language),
				slog.String("error", err.Error()),
			)
		}
		return matches
	}

	for _, m := range matches {
		if m.Term.ID == exact.ID {
			return matches
		}
	}

	score, ok := matcher.Score(sig, exact.Signature, domain.PHashBits)
	if !ok {
		return matches
	}
	matches = append(matches, matcher.Match{Term: *exact, Score: score})
	matcher.Rank(matches)
	return matches
}

// RecallAll recalls every detection of one frame concurrently. Results are in
// the order of detections. The first failure cancels the remaining work.
func (s *Service) RecallAll(ctx context.Context, detections []domain.Detection, language string, threshold float64) ([]*RecallResult, error) {
	results := make([]*RecallResult, len(detections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.pool.Size(), 1))

	for i, d := range detections {
		g.Go(func() error {
			res, err := s.Recall(gctx, RecallInput{Detection: d, Language: language, Threshold: threshold})
			if err != nil {
				return fmt.Errorf("detection %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("learning.RecallAll: %w", err)
	}
	return results, nil
}
