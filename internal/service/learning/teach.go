package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/matcher"
	"github.com/heartmarshall/lingualearn/pkg/ctxutil"
)

// Teach stores the term in input for the detected object and returns it
// together with similar terms already known in the same language.
//
// A detection below the minimum score or without foreground fails with an
// error wrapping domain.ErrLowConfidenceDetection or domain.ErrEmptyRegion.
// A failed store write fails with domain.ErrStoreWrite and is not retried.
func (s *Service) Teach(ctx context.Context, input TeachInput) (*TeachResult, error) {
	if err := input.Validate(s.languages); err != nil {
		return nil, fmt.Errorf("learning.Teach: %w", err)
	}

	r := newRun()
	sig, err := s.extract(ctx, r, input.Detection)
	if err != nil {
		if turnedAway(err) {
			s.log.InfoContext(ctx, "teach turned away", slog.String("reason", err.Error()))
		}
		return nil, fmt.Errorf("learning.Teach: %w", err)
	}

	r.to(StateTeaching)
	term := s.newTerm(ctx, input, sig)

	stored, err := s.put(ctx, term)
	if err != nil {
		r.to(StateRejected)
		s.log.ErrorContext(ctx, "teach rejected",
			slog.String("key", term.Key().String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	r.to(StateCommitted)

	s.log.InfoContext(ctx, "term taught",
		slog.String("key", stored.Key().String()),
		slog.String("object", stored.ObjectName),
		slog.Float64("confidence", stored.Confidence),
	)

	return &TeachResult{
		Term:    stored,
		Similar: s.related(ctx, stored, sig),
		State:   r.state(),
		Path:    r.Path(),
	}, nil
}

func (s *Service) newTerm(ctx context.Context, input TeachInput, sig domain.Signature) *domain.ObjectTerm {
	confidence := s.cfg.DefaultConfidence
	if input.Confidence != nil {
		confidence = *input.Confidence
	}

	addedBy := input.AddedBy
	if addedBy == nil {
		if id, ok := ctxutil.ContributorFromCtx(ctx); ok {
			addedBy = &id
		}
	}

	return &domain.ObjectTerm{
		ID:         uuid.New(),
		ObjectName: strings.TrimSpace(input.ObjectName),
		LocalTerm:  strings.TrimSpace(input.LocalTerm),
		Language:   input.Language,
		Region:     trimOrNil(input.Region),
		Context:    trimOrNil(input.Context),
		Dialect:    trimOrNil(input.Dialect),
		Signature:  sig,
		Confidence: domain.ClampConfidence(confidence),
		AddedBy:    addedBy,
	}
}

// put writes term under the same per-key lock the reinforcement engine takes.
func (s *Service) put(ctx context.Context, term *domain.ObjectTerm) (*domain.ObjectTerm, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("learning.Teach: %w", err)
	}

	unlock, err := s.locks.Lock(ctx, "term:"+term.Key().Digest())
	if err != nil {
		return nil, fmt.Errorf("learning.Teach: %w", err)
	}
	defer unlock()

	stored, err := s.terms.Put(ctx, term)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, fmt.Errorf("learning.Teach: %w", err)
		}
		return nil, domain.NewStoreWriteError("learning.Teach", err)
	}
	return stored, nil
}

// related looks up the terms resembling a freshly stored one. The write has
// already committed, so a failure here only costs the suggestions.
func (s *Service) related(ctx context.Context, stored *domain.ObjectTerm, sig domain.Signature) []matcher.Match {
	similar := []matcher.Match{}
	if ctx.Err() != nil {
		return similar
	}

	res, err := s.matcher.FindSimilar(ctx, sig, stored.Language, s.cfg.Threshold)
	if err != nil {
		s.log.WarnContext(ctx, "related terms lookup failed",
			slog.String("key", stored.Key().String()),
			slog.String("error", err.Error()),
		)
		return similar
	}

	for _, m := range res.Matches {
		if m.Term.ID == stored.ID {
			continue
		}
		similar = append(similar, m)
	}
	return similar
}

func trimOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
