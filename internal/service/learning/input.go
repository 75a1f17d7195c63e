package learning

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// TeachInput associates a new term with the object in Detection.
type TeachInput struct {
	Detection  domain.Detection
	ObjectName string
	LocalTerm  string
	Language   string
	Region     *string
	Context    *string
	Dialect    *string
	// Confidence is the initial confidence. Nil means the configured default.
	Confidence *float64
	// AddedBy names the contributor. Nil falls back to the contributor in
	// the request context.
	AddedBy *string
}

// maxLocalTermLen is the longest local term accepted, in characters.
const maxLocalTermLen = 200

// Validate checks all fields and normalizes the language through langs.
func (i *TeachInput) Validate(langs *domain.Languages) error {
	var errs []domain.FieldError

	if strings.TrimSpace(i.ObjectName) == "" {
		errs = append(errs, domain.FieldError{Field: "object_name", Message: "required"})
	}
	if strings.TrimSpace(i.LocalTerm) == "" {
		errs = append(errs, domain.FieldError{Field: "local_term", Message: "required"})
	}
	if utf8.RuneCountInString(strings.TrimSpace(i.LocalTerm)) > maxLocalTermLen {
		errs = append(errs, domain.FieldError{Field: "local_term", Message: fmt.Sprintf("max %d characters", maxLocalTermLen)})
	}
	if i.Confidence != nil && (*i.Confidence < domain.MinConfidence || *i.Confidence > domain.MaxConfidence) {
		errs = append(errs, domain.FieldError{Field: "confidence", Message: "must be between 0 and 1"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}

	lang, err := langs.Check(i.Language)
	if err != nil {
		return err
	}
	i.Language = lang
	return nil
}

// RecallInput asks for the known terms of the object in Detection.
type RecallInput struct {
	Detection domain.Detection
	Language  string
	// Threshold is the minimum similarity score. Zero means the default.
	Threshold float64
}

// Validate checks all fields and normalizes the language through langs.
func (i *RecallInput) Validate(langs *domain.Languages) error {
	if i.Threshold < 0 || i.Threshold > 1 {
		return domain.NewValidationError("threshold", "must be between 0 and 1")
	}

	lang, err := langs.Check(i.Language)
	if err != nil {
		return err
	}
	i.Language = lang
	return nil
}

// FeedbackInput reports whether a recalled term was right.
type FeedbackInput struct {
	LocalTerm string
	Language  string
	Dialect   string
	Accepted  bool
}

// Validate checks all fields and normalizes the language through langs.
func (i *FeedbackInput) Validate(langs *domain.Languages) error {
	if strings.TrimSpace(i.LocalTerm) == "" {
		return domain.NewValidationError("local_term", "required")
	}

	lang, err := langs.Check(i.Language)
	if err != nil {
		return err
	}
	i.Language = lang
	return nil
}

// Key returns the term key the feedback applies to.
func (i FeedbackInput) Key() domain.TermKey {
	return domain.TermKey{LocalTerm: i.LocalTerm, Language: i.Language, Dialect: i.Dialect}
}
