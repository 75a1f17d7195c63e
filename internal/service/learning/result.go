package learning

import (
	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/matcher"
)

// TeachResult is the stored term and the existing terms that look like it.
type TeachResult struct {
	Term    *domain.ObjectTerm
	Similar []matcher.Match
	State   State
	Path    []State
}

// RecallResult holds the ranked matches of one detection. An empty Matches
// is a valid answer, including for a detection that was turned away.
type RecallResult struct {
	Matches []matcher.Match
	// Partial is set when the similarity scan ran out of time.
	Partial bool
	State   State
	Path    []State
}
