// Package commands implements the leapcalc subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcalc/internal/cli/config"
	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/engine"
	"github.com/leapstack-labs/leapcalc/internal/loader"
	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext assembles the config, logger and renderer for a
// command invocation.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back
// to environment variables. The fallback matters for commands built
// outside the root command, as tests do.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	workers := 0
	if v := os.Getenv("LEAPCALC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			workers = n
		}
	}

	return &config.Config{
		Locale:       language.Make(os.Getenv("LEAPCALC_LOCALE")),
		Workers:      workers,
		OutputFormat: getEnvOrDefault("LEAPCALC_OUTPUT", config.DefaultOutput),
		Verbose:      os.Getenv("LEAPCALC_VERBOSE") == "true",
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// resolveLocale maps a language tag to a registered locale. The root
// tag selects the default. The config decode hook canonicalizes the
// tag, so "de-de" in a config file still finds the de-DE pack.
func resolveLocale(tag language.Tag) (*locale.Locale, error) {
	if tag.IsRoot() {
		return locale.Default(), nil
	}
	loc, ok := locale.Get(tag.String())
	if !ok {
		return nil, fmt.Errorf("unknown locale %q, have %s", tag, strings.Join(locale.List(), ", "))
	}
	return loc, nil
}

// bookOptions maps CLI settings to build options. Settings the user
// left unset defer to the workbook: a configured locale or worker
// count wins, and configured iterative settings apply to books without
// their own.
func bookOptions(cctx *CommandContext, path string) (loader.Options, error) {
	opts := loader.Options{
		Workers:  cctx.Cfg.Workers,
		Filename: filepath.Base(path),
		Logger:   cctx.Logger,
	}
	if !cctx.Cfg.Locale.IsRoot() {
		loc, err := resolveLocale(cctx.Cfg.Locale)
		if err != nil {
			return loader.Options{}, err
		}
		opts.Locale = loc
	}
	if cctx.Cfg.Iterative.Enabled {
		opts.Iterative = &engine.IterativeConfig{
			Enabled:       true,
			MaxIterations: cctx.Cfg.Iterative.MaxIterations,
			Epsilon:       cctx.Cfg.Iterative.Epsilon,
		}
	}
	return opts, nil
}

// openBook loads a workbook file and builds an engine from it.
func openBook(cctx *CommandContext, path string) (*engine.Engine, error) {
	doc, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	opts, err := bookOptions(cctx, path)
	if err != nil {
		return nil, err
	}
	return loader.Build(doc, opts)
}

// scratchEngine builds an empty single-sheet engine for commands that
// run without a workbook file.
func scratchEngine(cctx *CommandContext) (*engine.Engine, error) {
	loc, err := resolveLocale(cctx.Cfg.Locale)
	if err != nil {
		return nil, err
	}

	cfg := engine.Config{
		Locale:  loc,
		Workers: cctx.Cfg.Workers,
		Logger:  cctx.Logger,
	}
	if cctx.Cfg.Iterative.Enabled {
		cfg.Iterative = engine.IterativeConfig{
			Enabled:       true,
			MaxIterations: cctx.Cfg.Iterative.MaxIterations,
			Epsilon:       cctx.Cfg.Iterative.Epsilon,
		}
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	eng.AddSheet("Sheet1")
	return eng, nil
}
