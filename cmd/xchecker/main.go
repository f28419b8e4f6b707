// Command xchecker drives a spec workspace through its phases from the
// command line.
//
// This file serves as the entry point and command registration hub. Command
// implementations are split across cmd_*.go files by concern.
//
// # File Index
//
// Entry Point & Global State:
//   - main.go       - entry point, rootCmd, global flags, PersistentPreRunE/PostRun
//
// Phase Commands:
//   - cmd_phase.go  - runPhaseCmd, runRunPhase()
//
// Fixup Commands:
//   - cmd_fixup.go  - previewFixupCmd, applyFixupCmd, loadReviewDiffs()
//
// Query Commands:
//   - cmd_query.go  - statusCmd, resumeCmd, specCmd, gateCmd, and their shared
//                     workspace-state gathering helpers
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"bitbucket.org/creachadair/stringset"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xchecker/internal/config"
	"xchecker/internal/errs"
	"xchecker/internal/redact"
	"xchecker/internal/sandbox"
	"xchecker/internal/specid"
	"xchecker/internal/xlog"
)

var (
	verbose   bool
	workspace string
	specIDRaw string

	// logger is the CLI-facing stdout logger, separate from the internal
	// per-category file logger in xlog.
	logger *zap.Logger

	cfg      *config.Config
	redactor *redact.Redactor
)

var rootCmd = &cobra.Command{
	Use:   "xchecker",
	Short: "Drives a spec workspace through requirements, design, tasks, review, and fixup",
	Long: `xchecker runs one phase of a spec workflow at a time: it checks the
phase's dependencies, acquires the workspace lock, builds a bounded context
packet, invokes the configured LLM client, validates and canonicalizes the
result, promotes it, and emits a receipt.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("xchecker: init logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}

		loaded, err := config.Load(filepath.Join(ws, ".xchecker", "config.yaml"))
		if err != nil {
			return fmt.Errorf("xchecker: load config: %w", err)
		}
		cfg = loaded

		if err := xlog.Init(ws, cfg.DebugMode, false); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not initialize file logging: %v\n", err)
		}

		extra := make(map[string]*regexp.Regexp, len(cfg.Redaction.ExtraPatterns))
		for id, src := range cfg.Redaction.ExtraPatterns {
			re, err := regexp.Compile(src)
			if err != nil {
				return fmt.Errorf("xchecker: compile extra redaction pattern %q: %w", id, err)
			}
			extra[id] = re
		}
		redactor = redact.New(redact.Config{
			ExtraPatterns: extra,
			Ignore:        stringset.New(cfg.Redaction.Ignore...),
		})

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (defaults to the current directory)")
	rootCmd.PersistentFlags().StringVar(&specIDRaw, "spec-id", "", "spec identifier (sanitized before use)")

	rootCmd.AddCommand(runPhaseCmd)
	rootCmd.AddCommand(previewFixupCmd)
	rootCmd.AddCommand(applyFixupCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(specCmd)
	rootCmd.AddCommand(gateCmd)
}

// specRoot resolves the sandboxed root for the currently selected spec:
// <workspace>/.xchecker/specs/<sanitized spec-id>/.
func specRoot() (*sandbox.Root, string, error) {
	id, err := specid.Normalize(specIDRaw)
	if err != nil {
		return nil, "", errs.Wrap(errs.CategoryConfiguration, err, "invalid --spec-id", specIDRaw)
	}

	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	base := filepath.Join(ws, ".xchecker", "specs", id)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, "", errs.Wrap(errs.CategoryFileSystem, err, "could not create spec workspace", base)
	}

	root, err := sandbox.New(base, sandbox.Config{
		AllowSymlinks:  cfg.Sandbox.AllowSymlinks,
		AllowHardlinks: cfg.Sandbox.AllowHardlinks,
	})
	if err != nil {
		return nil, "", errs.Wrap(errs.CategoryFileSystem, err, "could not open spec workspace", base)
	}
	return root, id, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reporter := errs.NewReporter(redactor)
		fmt.Fprint(os.Stderr, reporter.Render(err))
		os.Exit(reporter.Exit(err))
	}
}
