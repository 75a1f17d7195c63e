package learning

import (
	"context"
	"fmt"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// Feedback applies a contributor's verdict on a recalled term.
func (s *Service) Feedback(ctx context.Context, input FeedbackInput) (*domain.ObjectTerm, error) {
	if err := input.Validate(s.languages); err != nil {
		return nil, fmt.Errorf("learning.Feedback: %w", err)
	}

	term, err := s.engine.RecordTermOutcome(ctx, input.Key(), input.Accepted)
	if err != nil {
		return nil, fmt.Errorf("learning.Feedback: %w", err)
	}
	return term, nil
}
