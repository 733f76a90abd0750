package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-gitlog/internal/config"
	"github.com/naka-gawa/github-gitlog/internal/gateway"
	"github.com/naka-gawa/github-gitlog/internal/git"
	"github.com/naka-gawa/github-gitlog/internal/gitlog"
	"github.com/naka-gawa/github-gitlog/internal/report"
	"github.com/naka-gawa/github-gitlog/internal/system"
	"github.com/naka-gawa/github-gitlog/internal/usecase"
)

// envFile is loaded from the working directory when present.
const envFile = ".env"

// stdinIsTerminal reports whether missing settings may be prompted for.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronizes every repository of an organization and writes its commit log",
	Long: `Clones missing repositories and fetches existing ones for every public and private
repository of a GitHub organization, then writes one record per commit of every
branch to the selected reports.

Settings are taken, in increasing priority, from defaults, the --config file,
.env and the environment (GITHUB_ORG, GITHUB_TOKEN), and flags. Anything still
missing is prompted for when stdin is a terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var prompter config.Prompter
		if stdinIsTerminal() {
			prompter = config.NewLinePrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		}
		cfg, err := buildConfig(cmd, prompter)
		if err != nil {
			return err
		}
		if err := system.CheckDependencies(system.RequiredBinaries...); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSync(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// buildConfig layers defaults, the config file, the environment, changed flags and
// finally prompts, then validates the result.
func buildConfig(cmd *cobra.Command, prompter config.Prompter) (config.Config, error) {
	cfg := config.Default()
	flags := cmd.Flags()

	if path, _ := flags.GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return config.Config{}, err
	}

	if flags.Changed("org") {
		cfg.Organization, _ = flags.GetString("org")
	}
	if flags.Changed("token") {
		cfg.Token, _ = flags.GetString("token")
	}
	if flags.Changed("token-file") {
		cfg.TokenFile, _ = flags.GetString("token-file")
	}
	if flags.Changed("format") {
		names, _ := flags.GetStringSlice("format")
		formats, err := config.ParseFormats(names)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Formats = formats
	}
	if flags.Changed("repos-dir") {
		cfg.ReposDir, _ = flags.GetString("repos-dir")
	}
	if flags.Changed("report-dir") {
		cfg.ReportDir, _ = flags.GetString("report-dir")
	}
	if flags.Changed("api-url") {
		cfg.APIBaseURL, _ = flags.GetString("api-url")
	}
	if flags.Changed("quiet") {
		cfg.Quiet, _ = flags.GetBool("quiet")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}

	if err := cfg.ResolveToken(); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Complete(prompter); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// runSync wires the collaborators for one run and prints its summary as JSON to stdout.
func runSync(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	logger := log.New(io.Discard, "", log.LstdFlags) // Default: discard all logs.
	if cfg.Verbose {
		logger.SetOutput(stderr)
	}

	runID := uuid.NewString()
	ws, err := report.NewWorkspace(cfg.ReportDir, config.ToolName, runID, time.Now())
	if err != nil {
		return err
	}
	defer ws.Cleanup()

	sinks, err := report.NewSinks(ws, cfg.Formats)
	if err != nil {
		return err
	}
	fanout := report.NewFanout(sinks...)
	defer fanout.Close()

	enumerator, err := gateway.NewGitHubGateway(cfg.Token, cfg.APIBaseURL, logger)
	if err != nil {
		return err
	}
	executor := git.NewExecExecutor(git.AuthSecrets(cfg.Token)...)
	syncer := git.NewSynchronizer(executor, cfg.GitBaseURL, cfg.Token, logger)
	parser := gitlog.NewParser(executor, logger)

	pipeline := usecase.NewPipeline(cfg, enumerator, syncer, parser, fanout, logger)
	pipeline.RunID = runID
	if !cfg.Quiet {
		pipeline.Progress = stderr
	}

	summary, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	if cfg.Quiet {
		return nil
	}

	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary to JSON: %w", err)
	}
	fmt.Fprintln(stdout, string(jsonData))
	return nil
}

// registerSyncFlags defines the flags read by buildConfig.
func registerSyncFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("format", "f", nil, "Report format: csv, sqlite or both (repeatable)")
	cmd.Flags().StringP("org", "o", "", "Target GitHub organization name")
	cmd.Flags().StringP("token", "t", "", "GitHub access token")
	cmd.Flags().String("token-file", "", "File containing the GitHub access token")
	cmd.Flags().String("config", "", "Configuration file (.toml, .yaml or .yml)")
	cmd.Flags().String("repos-dir", "", "Directory holding the local clones")
	cmd.Flags().String("report-dir", "", "Directory the reports are written to")
	cmd.Flags().String("api-url", "", "GitHub Enterprise API base URL, e.g. https://ghe.example.com/api/v3/")
}

func init() {
	rootCmd.AddCommand(syncCmd)
	registerSyncFlags(syncCmd)
}
