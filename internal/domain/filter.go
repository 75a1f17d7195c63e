package domain

// TranslationFilter narrows a translation listing. Zero fields match
// everything.
type TranslationFilter struct {
	SourceLang    string
	TargetLang    string
	MinConfidence float64
	Limit         uint64
}
