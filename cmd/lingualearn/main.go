// Command lingualearn teaches and recalls local-language names for objects
// seen in camera frames, and manages the translation memory that grows from
// confirmed translations.
//
// Usage:
//
//	lingualearn [-config path] [-contributor name] [-timeout d] <command> [flags]
//
// Commands:
//
//	migrate            apply pending schema migrations
//	teach              store a term for the object in an image region
//	recall             list known terms for the object in an image region
//	feedback           confirm or reject a stored term or translation
//	learn-translation  record a confirmed translation
//	lookup             print the best translation of a text
//	translations       list stored translations
//	rules              list promoted contextual rules of a language pair
//	enhance            rewrite a translation with confident rules
//	version            print the build version
//
// Configuration is read from CONFIG_PATH (or ./config.yaml) and the
// environment; a ./.env file is loaded first when present.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heartmarshall/lingualearn/internal/app"
	"github.com/heartmarshall/lingualearn/internal/config"
	"github.com/heartmarshall/lingualearn/pkg/ctxutil"
)

// errUsage reports a command line that could not be parsed. Usage has
// already been printed when it is returned.
var errUsage = errors.New("invalid usage")

type command struct {
	name    string
	summary string
	// warm loads stored translations into the pattern tracker before run.
	warm bool
	run  func(ctx context.Context, a *app.App, args []string, stdout io.Writer) error
}

var commands = []command{
	{name: "migrate", summary: "apply pending schema migrations", run: runMigrate},
	{name: "teach", summary: "store a term for the object in an image region", run: runTeach},
	{name: "recall", summary: "list known terms for the object in an image region", run: runRecall},
	{name: "feedback", summary: "confirm or reject a stored term or translation", warm: true, run: runFeedback},
	{name: "learn-translation", summary: "record a confirmed translation", warm: true, run: runLearnTranslation},
	{name: "lookup", summary: "print the best translation of a text", warm: true, run: runLookup},
	{name: "translations", summary: "list stored translations", run: runTranslations},
	{name: "rules", summary: "list promoted contextual rules of a language pair", run: runRules},
	{name: "enhance", summary: "rewrite a translation with confident rules", run: runEnhance},
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "lingualearn:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("lingualearn", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "path to YAML config (default: $CONFIG_PATH or "+config.DefaultPath+")")
	contributor := global.String("contributor", "", "name recorded as the author of taught terms")
	timeout := global.Duration("timeout", 2*time.Minute, "overall deadline of the command")
	global.Usage = func() { usage(global) }

	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage(global)
		return errUsage
	}

	name := rest[0]
	if name == "version" {
		fmt.Fprintln(stdout, app.BuildVersion())
		return nil
	}
	cmd, ok := lookupCommand(name)
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(global)
		return errUsage
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	ctx, _ = ctxutil.EnsureRequestID(ctx)
	if *contributor != "" {
		ctx = ctxutil.WithContributor(ctx, *contributor)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.warm {
		if err := a.Warm(ctx); err != nil {
			logger.WarnContext(ctx, "pattern tracker not warmed", "error", err)
		}
	}

	return cmd.run(ctx, a, rest[1:], stdout)
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "Usage: lingualearn [flags] <command> [command flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "  %-18s %s\n", "version", "print the build version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}

// newFlagSet returns the flag set of a subcommand. Parse errors are returned,
// not fatal, and usage goes to stderr.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("lingualearn "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
