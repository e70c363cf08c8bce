// Package archiver runs one complete archive pass: the live season, the
// historical seasons, optional enrichment, the manifest and the bundles.
package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/albapepper/fpl-archive/internal/bundle"
	"github.com/albapepper/fpl-archive/internal/config"
	"github.com/albapepper/fpl-archive/internal/fetch"
	"github.com/albapepper/fpl-archive/internal/harvest"
	"github.com/albapepper/fpl-archive/internal/manifest"
	"github.com/albapepper/fpl-archive/internal/provider/fpl"
	"github.com/albapepper/fpl-archive/internal/provider/understat"
	"github.com/albapepper/fpl-archive/internal/provider/vaastav"
	"github.com/albapepper/fpl-archive/internal/season"
)

// RootBundle is the archive-wide ZIP written at the root.
const RootBundle = "fpl_archive_bundle.zip"

// Options are the run-shaped settings, typically from CLI flags.
type Options struct {
	OutputDir string
	// CurrentSeason and HistoricalSeasons override inference when set.
	CurrentSeason     string
	HistoricalSeasons []string
	Understat         bool
	Zip               bool
	Resume            bool
	StrictPlayers     bool
}

// Report collects the outcome of every step in run order.
type Report struct {
	Root              string
	CurrentSeason     string
	HistoricalSeasons []string
	Steps             []harvest.Result
	Duration          time.Duration
}

// Totals folds all steps into one Result.
func (r *Report) Totals() harvest.Result {
	total := harvest.Result{Name: "total"}
	for _, s := range r.Steps {
		total.Add(s)
	}
	total.Duration = r.Duration
	return total
}

// Archiver wires the sources to the harvesters.
type Archiver struct {
	cfg       *config.Config
	fpl       *fpl.Client
	vaastav   *vaastav.Client
	understat *understat.Source
	now       func() time.Time
	logger    *slog.Logger
}

// New creates an Archiver sharing one retrying fetch client across all
// sources.
func New(cfg *config.Config, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	fc := fetch.New(fetch.Options{
		Retries:     cfg.FetchRetries,
		BackoffBase: cfg.FetchBackoffBase,
		Timeout:     cfg.FetchTimeout(),
		UserAgent:   cfg.UserAgent,
	}, logger)
	return newArchiver(cfg, fc, logger)
}

func newArchiver(cfg *config.Config, fc *fetch.Client, logger *slog.Logger) *Archiver {
	return &Archiver{
		cfg:       cfg,
		fpl:       fpl.NewClient(cfg.FPLBaseURL, fc),
		vaastav:   vaastav.NewClient(cfg.VaastavBaseURL, fc),
		understat: understat.NewSource(cfg.UnderstatBaseURL, cfg.UnderstatLeague, fc),
		now:       time.Now,
		logger:    logger,
	}
}

// ResolveSeasons returns the explicit seasons when given, validated, and
// otherwise infers them from now. An explicit current season without
// explicit historical seasons gets the seasons preceding it.
func ResolveSeasons(opts Options, now time.Time) (string, []string, error) {
	current, historical := season.Infer(now)
	if opts.CurrentSeason != "" {
		if err := season.Validate(opts.CurrentSeason); err != nil {
			return "", nil, fmt.Errorf("current season: %w", err)
		}
		start, _ := season.StartYear(opts.CurrentSeason)
		current = opts.CurrentSeason
		historical = historical[:0]
		for i := 1; i <= season.HistoryDepth; i++ {
			historical = append(historical, season.Label(start-i))
		}
	}
	if opts.HistoricalSeasons != nil {
		historical = make([]string, 0, len(opts.HistoricalSeasons))
		for _, s := range opts.HistoricalSeasons {
			if err := season.Validate(s); err != nil {
				return "", nil, fmt.Errorf("historical season: %w", err)
			}
			if s == current {
				return "", nil, fmt.Errorf("historical season %s is the current season", s)
			}
			historical = append(historical, s)
		}
	}
	return current, historical, nil
}

// Run executes one archive pass. Only failures of the current season (and
// of writing the manifest or bundles) are returned; historical and
// enrichment problems are logged and recorded in the report.
func (a *Archiver) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	root := opts.OutputDir
	if root == "" {
		root = a.cfg.OutputDir
	}
	current, historical, err := ResolveSeasons(opts, a.now())
	if err != nil {
		return nil, err
	}
	report := &Report{Root: root, CurrentSeason: current, HistoricalSeasons: historical}
	finish := func(err error) (*Report, error) {
		report.Duration = time.Since(start)
		return report, err
	}

	a.logger.Info("Starting archive run",
		"root", root, "current", current, "historical", historical,
		"understat", opts.Understat, "zip", opts.Zip, "resume", opts.Resume)

	cur := harvest.NewCurrent(a.fpl, harvest.CurrentOptions{
		PlayerDelay:   a.cfg.PlayerDelay(),
		StrictPlayers: opts.StrictPlayers,
	}, a.logger)
	res, err := cur.Run(ctx, root, current, opts.Resume)
	report.Steps = append(report.Steps, res)
	if err != nil {
		return finish(fmt.Errorf("current season %s: %w", current, err))
	}

	hist := harvest.NewHistorical(a.vaastav, a.logger)
	for _, s := range historical {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		report.Steps = append(report.Steps, hist.Run(ctx, root, s))
	}

	if opts.Understat {
		seasons := append([]string{current}, historical...)
		report.Steps = append(report.Steps, a.enrich(ctx, root, seasons))
	}
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	m := manifest.New(a.now(), current, historical, opts.Understat, manifest.Origins{
		FPL:       a.fpl.BaseURL(),
		Vaastav:   a.vaastav.BaseURL(),
		Understat: a.understat.Origin(),
	})
	if err := m.Write(root); err != nil {
		return finish(fmt.Errorf("write manifest: %w", err))
	}
	a.logger.Info("Manifest written", "path", filepath.Join(root, manifest.FileName))

	if opts.Zip {
		steps, err := a.bundle(root, append([]string{current}, historical...))
		report.Steps = append(report.Steps, steps...)
		if err != nil {
			return finish(err)
		}
	}

	report.Duration = time.Since(start)
	a.logger.Info("Archive run complete", "root", root, "duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// enrich runs the enrichment harvester. Nothing that happens inside it,
// panics included, can fail the run.
func (a *Archiver) enrich(ctx context.Context, root string, seasons []string) (res harvest.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = harvest.Result{Name: "understat"}
			res.AddErrorf("understat: panic: %v", r)
			a.logger.Warn("Understat enrichment aborted", "error", r)
		}
	}()
	return harvest.NewEnrichment(a.understat, a.logger).Run(ctx, root, seasons)
}

// bundle zips each season directory to root/{season}.zip, then the whole
// root to RootBundle. The season zips are left out of RootBundle because
// their contents are already in it under the season directories.
func (a *Archiver) bundle(root string, seasons []string) ([]harvest.Result, error) {
	var steps []harvest.Result
	zips := make([]string, 0, len(seasons))
	for _, s := range seasons {
		dir := filepath.Join(root, s)
		if _, err := os.Stat(dir); err != nil {
			a.logger.Warn("Season directory missing; not bundled", "season", s, "error", err)
			continue
		}
		dst := filepath.Join(root, s+".zip")
		step, err := a.zip(dir, dst, "bundle "+s)
		steps = append(steps, step)
		if err != nil {
			return steps, err
		}
		zips = append(zips, dst)
	}
	step, err := a.zip(root, filepath.Join(root, RootBundle), "bundle root", zips...)
	steps = append(steps, step)
	return steps, err
}

func (a *Archiver) zip(src, dst, name string, exclude ...string) (harvest.Result, error) {
	start := time.Now()
	res := harvest.Result{Name: name}
	n, err := bundle.Dir(src, dst, exclude...)
	res.Duration = time.Since(start)
	if err != nil {
		res.AddErrorf("%s: %v", filepath.Base(dst), err)
		return res, fmt.Errorf("bundle %s: %w", filepath.Base(dst), err)
	}
	res.FilesWritten = 1
	a.logger.Info("Bundle written", "path", dst, "entries", n)
	return res, nil
}
