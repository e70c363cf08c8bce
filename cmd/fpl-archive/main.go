// Command fpl-archive snapshots Fantasy Premier League data into a local
// archive of JSON and CSV files.
//
// Usage:
//
//	fpl-archive --out ./fpl_archive
//	fpl-archive --season 2025-26 --historical 2024-25,2023-24 --understat --zip
//	fpl-archive --resume=false --strict-players
//	fpl-archive seasons
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/fpl-archive/internal/archiver"
	"github.com/albapepper/fpl-archive/internal/config"
	"github.com/albapepper/fpl-archive/internal/fetch"
	"github.com/albapepper/fpl-archive/internal/season"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	out           string
	season        string
	historical    []string
	understat     bool
	zip           bool
	resume        bool
	strictPlayers bool
	playerDelay   time.Duration
	configPath    string
	logLevel      string
}

func rootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "fpl-archive",
		Short:         "Archive Fantasy Premier League data to JSON and CSV",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.out, "out", config.Defaults().OutputDir, "Output directory")
	fs.StringVar(&f.season, "season", "", "Current season label (YYYY-YY); inferred from today when empty")
	fs.StringSliceVar(&f.historical, "historical", nil, "Historical season labels (YYYY-YY); the two preceding seasons when unset")
	fs.BoolVar(&f.understat, "understat", false, "Collect best-effort Understat aggregates")
	fs.BoolVar(&f.zip, "zip", false, "Bundle each season and the whole archive as ZIP files")
	fs.BoolVar(&f.resume, "resume", true, "Reuse cached player summaries")
	fs.BoolVar(&f.strictPlayers, "strict-players", false, "Abort on the first player summary failure")
	fs.DurationVar(&f.playerDelay, "player-delay", 0, "Spacing between players, overriding PLAYER_DELAY_MS (0 disables)")
	cmd.PersistentFlags().StringVar(&f.configPath, "config", "", "Config file (default "+config.DefaultFile+" if present)")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(seasonsCmd())
	return cmd
}

// --------------------------------------------------------------------------
// archive run
// --------------------------------------------------------------------------

func runArchive(cmd *cobra.Command, f flags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("out") || cfg.OutputDir == "" {
		cfg.OutputDir = f.out
	}
	if cmd.Flags().Changed("player-delay") {
		cfg.PlayerDelayMillis = int(f.playerDelay / time.Millisecond)
	}
	logger := newLogger(cfg)

	opts := archiver.Options{
		OutputDir:     cfg.OutputDir,
		CurrentSeason: f.season,
		Understat:     f.understat,
		Zip:           f.zip,
		Resume:        f.resume,
		StrictPlayers: f.strictPlayers,
	}
	if cmd.Flags().Changed("historical") {
		opts.HistoricalSeasons = nonEmpty(f.historical)
	}

	report, err := archiver.New(cfg, logger).Run(ctx, opts)
	if err != nil {
		var exhausted *fetch.ExhaustedError
		if errors.As(err, &exhausted) {
			logger.Error("Archive run failed", "url", exhausted.URL, "attempts", exhausted.Attempts, "error", err)
		} else {
			logger.Error("Archive run failed", "error", err)
		}
		return err
	}

	printReport(report)
	for _, step := range report.Steps {
		for _, e := range step.Errors {
			logger.Warn("step error", "step", step.Name, "error", e)
		}
	}
	return nil
}

func printReport(r *archiver.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("%s  current=%s  historical=%s",
		r.Root, r.CurrentSeason, strings.Join(r.HistoricalSeasons, ",")))
	t.AppendHeader(table.Row{"Step", "Files", "Fetched", "Cached", "Failed", "Rows", "Errors", "Duration"})
	for _, s := range r.Steps {
		t.AppendRow(table.Row{
			s.Name, s.FilesWritten, s.PlayersFetched, s.PlayersCached,
			s.PlayersFailed, s.RowsAccumulated, len(s.Errors), s.Duration.Round(time.Millisecond),
		})
	}
	total := r.Totals()
	t.AppendFooter(table.Row{
		total.Name, total.FilesWritten, total.PlayersFetched, total.PlayersCached,
		total.PlayersFailed, total.RowsAccumulated, len(total.Errors), total.Duration.Round(time.Millisecond),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// --------------------------------------------------------------------------
// seasons command
// --------------------------------------------------------------------------

func seasonsCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "seasons",
		Short: "Print the seasons a run would archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := time.Now()
			if at != "" {
				t, err := time.Parse(time.DateOnly, at)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				ref = t
			}
			current, historical := season.Infer(ref)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Role", "FPL", "Understat"})
			t.AppendRow(table.Row{"current", current, season.ToUnderstatYear(current)})
			for _, s := range historical {
				t.AppendRow(table.Row{"historical", s, season.ToUnderstatYear(s)})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "date", "", "Reference date (YYYY-MM-DD); today when empty")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return logger
}

// nonEmpty drops blank labels so --historical= means no historical seasons.
func nonEmpty(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
