package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/heartmarshall/lingualearn/internal/app"
	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/reinforce"
	"github.com/heartmarshall/lingualearn/internal/service/learning"
)

func runMigrate(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	applied, err := a.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(stdout, "schema is up to date")
		return nil
	}
	for _, v := range applied {
		fmt.Fprintf(stdout, "applied migration %d\n", v)
	}
	return nil
}

func runTeach(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("teach")
	var det detectionFlags
	det.register(fs)
	object := fs.String("object", "", "object name, e.g. tree (required)")
	term := fs.String("term", "", "local-language term (required)")
	lang := fs.String("lang", "", "language code of the term (required)")
	region := optionalString(fs, "region", "region where the term is used")
	usage := optionalString(fs, "context", "usage context")
	dialect := optionalString(fs, "dialect", "dialect of the term")
	confidence := optionalFloat(fs, "confidence", "initial confidence in [0,1] (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := det.detection()
	if err != nil {
		return err
	}

	res, err := a.Learning.Teach(ctx, learning.TeachInput{
		Detection:  d,
		ObjectName: *object,
		LocalTerm:  *term,
		Language:   *lang,
		Region:     region.value(),
		Context:    usage.value(),
		Dialect:    dialect.value(),
		Confidence: confidence.value(),
	})
	if err != nil {
		if werr := writeJSON(stdout, teachJSON{Success: false, Error: err.Error()}); werr != nil {
			return errors.Join(err, werr)
		}
		return err
	}
	return writeJSON(stdout, teachSuccess(res))
}

func runRecall(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("recall")
	var det detectionFlags
	det.register(fs)
	lang := fs.String("lang", "", "language to recall terms in (required)")
	threshold := fs.Float64("threshold", 0, "minimum similarity in (0,1] (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := det.detection()
	if err != nil {
		return err
	}

	res, err := a.Learning.Recall(ctx, learning.RecallInput{Detection: d, Language: *lang, Threshold: *threshold})
	if err != nil {
		return err
	}
	return writeJSON(stdout, toRecallJSON(res))
}

func runFeedback(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("feedback")
	term := fs.String("term", "", "local term the verdict is about")
	lang := fs.String("lang", "", "language of the term")
	dialect := fs.String("dialect", "", "dialect of the term")
	source := fs.String("source", "", "source text of a translation (instead of -term)")
	target := fs.String("target", "", "target text of the translation")
	from := fs.String("from", "", "source language of the translation")
	to := fs.String("to", "", "target language of the translation")
	reject := fs.Bool("reject", false, "reject instead of accept")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *source != "" {
		key := domain.TranslationKey{SourceText: *source, TargetText: *target, SourceLang: *from, TargetLang: *to}
		entry, err := a.Engine.RecordTranslationOutcome(ctx, key.Normalized(), !*reject)
		if err != nil {
			return err
		}
		return writeJSON(stdout, toTranslationJSON(*entry))
	}

	updated, err := a.Learning.Feedback(ctx, learning.FeedbackInput{
		LocalTerm: *term,
		Language:  *lang,
		Dialect:   *dialect,
		Accepted:  !*reject,
	})
	if err != nil {
		return err
	}
	return writeJSON(stdout, toTermJSON(*updated))
}

func runLearnTranslation(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("learn-translation")
	source := fs.String("source", "", "source text (required)")
	target := fs.String("target", "", "translated text (required)")
	from := fs.String("from", "", "source language (required)")
	to := fs.String("to", "", "target language (required)")
	usage := optionalString(fs, "context", "usage context")
	confidence := optionalFloat(fs, "confidence", "feedback score in [0,1] (default 0.5)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.Engine.LearnTranslation(ctx, reinforce.LearnInput{
		SourceText: *source,
		TargetText: *target,
		SourceLang: *from,
		TargetLang: *to,
		Context:    usage.value(),
		Confidence: confidence.value(),
	})
	if err != nil {
		return err
	}
	return writeJSON(stdout, toLearnJSON(res))
}

func runLookup(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("lookup")
	text := fs.String("text", "", "source text (required)")
	from := fs.String("from", "", "source language (required)")
	to := fs.String("to", "", "target language (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entry, err := a.Engine.Lookup(ctx, *text, *from, *to)
	if err != nil {
		return err
	}
	return writeJSON(stdout, toTranslationJSON(*entry))
}

func runTranslations(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("translations")
	from := fs.String("from", "", "only this source language")
	to := fs.String("to", "", "only this target language")
	minConfidence := fs.Float64("min-confidence", 0, "minimum entry confidence")
	limit := fs.Uint64("limit", 50, "maximum number of entries (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := domain.TranslationFilter{MinConfidence: *minConfidence, Limit: *limit}
	langs := a.Config.Learning.Languages
	var err error
	if *from != "" {
		if f.SourceLang, err = langs.Check(*from); err != nil {
			return err
		}
	}
	if *to != "" {
		if f.TargetLang, err = langs.Check(*to); err != nil {
			return err
		}
	}

	entries, err := a.Translations.List(ctx, f)
	if err != nil {
		return err
	}
	out := make([]translationJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toTranslationJSON(e))
	}
	return writeJSON(stdout, out)
}

func runRules(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("rules")
	from := fs.String("from", "", "source language (required)")
	to := fs.String("to", "", "target language (required)")
	minConfidence := fs.Float64("min-confidence", 0, "minimum rule confidence (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rules, err := a.Engine.GetContextualRules(ctx, *from, *to, *minConfidence)
	if err != nil {
		return err
	}
	return writeJSON(stdout, toRulesJSON(rules))
}

func runEnhance(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("enhance")
	source := fs.String("source", "", "source text (required)")
	initial := fs.String("translation", "", "initial translation to enhance (required)")
	from := fs.String("from", "", "source language (required)")
	to := fs.String("to", "", "target language (required)")
	usage := fs.String("context", "", "usage context")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.Engine.Enhance(ctx, *source, *initial, *from, *to, *usage)
	if err != nil {
		return err
	}
	return writeJSON(stdout, enhanceJSON{Text: res.Text, Applied: toRulesJSON(res.Applied)})
}

// ---------------------------------------------------------------------------
// Optional flags
// ---------------------------------------------------------------------------

// stringFlag is a string flag that distinguishes "not given" from "".
type stringFlag struct {
	v   string
	set bool
}

func (f *stringFlag) String() string     { return f.v }
func (f *stringFlag) Set(s string) error { f.v, f.set = s, true; return nil }

func (f *stringFlag) value() *string {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

func optionalString(fs *flag.FlagSet, name, usage string) *stringFlag {
	f := &stringFlag{}
	fs.Var(f, name, usage)
	return f
}

// floatFlag is a float flag that distinguishes "not given" from 0.
type floatFlag struct {
	v   float64
	set bool
}

func (f *floatFlag) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatFloat(f.v, 'g', -1, 64)
}

func (f *floatFlag) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.v, f.set = v, true
	return nil
}

func (f *floatFlag) value() *float64 {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

func optionalFloat(fs *flag.FlagSet, name, usage string) *floatFlag {
	f := &floatFlag{}
	fs.Var(f, name, usage)
	return f
}
