// Package main is the normlab CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/normlab/internal/app"
	"github.com/hyperjump/normlab/internal/cli"
	"github.com/hyperjump/normlab/internal/config"
	"github.com/hyperjump/normlab/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/normlab/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "normlab serve" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	output     string
}

// session is a loaded config plus a logger for one command invocation.
type session struct {
	cfg        *config.Config
	configPath string
	debug      bool
	logger     *zap.Logger
}

func (g *globalFlags) session() (*session, error) {
	cfg, resolved, err := loadConfig(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || g.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &session{cfg: cfg, configPath: resolved, debug: debug, logger: logger}, nil
}

func (g *globalFlags) format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(g.output)
}

// withBackend opens the backend for the configured data directory, runs fn, and closes it.
func (g *globalFlags) withBackend(ctx context.Context, fn func(ctx context.Context, b *app.Backend, s *session) error) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()
	b, err := app.Open(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	runErr := fn(ctx, b, s)
	if err := b.Close(); err != nil {
		s.logger.Warn("close backend failed", zap.Error(err))
	}
	return runErr
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "normlab",
		Short: "Labor-hour norms, retrieval, and variance reports for reinforced-concrete work",
		Long: `normlab ingests normative documents (FER, Poz, internal standards), indexes them for
semantic and text retrieval, resolves labor hours from norm records with condition
multipliers, and reports theoretical versus observed labor hours per work item.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "output format: text, compact, or json")

	root.AddCommand(
		newServeCmd(g),
		newIngestCmd(g),
		newSearchCmd(g),
		newResolveCmd(g),
		newReportCmd(g),
		newMigrateCmd(g),
		newImportCmd(g),
		newResetCmd(g),
		newStatusCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the normlab version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "normlab version %s\n", version)
		},
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
