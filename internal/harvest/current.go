package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/albapepper/fpl-archive/internal/cache"
	"github.com/albapepper/fpl-archive/internal/provider/fpl"
	"github.com/albapepper/fpl-archive/internal/tabular"
)

// File names written into the current season directory.
const (
	BootstrapFile    = "bootstrap_static.json"
	PlayersFile      = "players.csv"
	TeamsFile        = "teams.csv"
	PositionsFile    = "positions.csv"
	EventsFile       = "events.csv"
	FixturesJSONFile = "fixtures.json"
	FixturesCSVFile  = "fixtures.csv"
	DeadlineFile     = "current_gw_deadline.txt"
	SummariesDir     = "player_summaries"
)

// GWHistoryFile names the combined per-gameweek table for season.
func GWHistoryFile(season string) string {
	return fmt.Sprintf("player_gw_history_%s.csv", season)
}

// LiveSource is satisfied by *fpl.Client.
type LiveSource interface {
	Bootstrap(ctx context.Context) (*fpl.Bootstrap, error)
	Fixtures(ctx context.Context) (any, error)
	ElementSummary(ctx context.Context, id int) (fpl.Summary, error)
}

// CurrentOptions configures the current-season harvester.
type CurrentOptions struct {
	// PlayerDelay is the pause after each player before the next one
	// starts, applied in full whether or not the player came from the cache.
	PlayerDelay time.Duration
	// StrictPlayers aborts the run on the first player failure instead of
	// logging and skipping the player.
	StrictPlayers bool
}

// Current harvests a full snapshot of the running season.
type Current struct {
	source LiveSource
	opts   CurrentOptions
	logger *slog.Logger
}

// NewCurrent creates a current-season harvester.
func NewCurrent(source LiveSource, opts CurrentOptions, logger *slog.Logger) *Current {
	if logger == nil {
		logger = slog.Default()
	}
	return &Current{source: source, opts: opts, logger: logger}
}

// Run writes the season snapshot under root/season. Bootstrap and fixture
// failures are returned; player failures are returned only in strict mode.
// With resume set, cached player summaries are reused without a request.
func (h *Current) Run(ctx context.Context, root, season string, resume bool) (Result, error) {
	start := time.Now()
	result := Result{Name: "current " + season}
	dir := filepath.Join(root, season)
	finish := func(err error) (Result, error) {
		result.Duration = time.Since(start)
		return result, err
	}

	// 1. Bootstrap
	h.logger.Info("Phase 1/4: Fetching bootstrap snapshot...", "season", season)
	boot, err := h.source.Bootstrap(ctx)
	if err != nil {
		return finish(fmt.Errorf("bootstrap: %w", err))
	}
	if err := h.writeBootstrap(dir, boot, &result); err != nil {
		return finish(err)
	}

	// 2. Fixtures
	h.logger.Info("Phase 2/4: Fetching fixtures...")
	fixtures, err := h.source.Fixtures(ctx)
	if err != nil {
		return finish(fmt.Errorf("fixtures: %w", err))
	}
	if err := tabular.WriteStructured(fixtures, filepath.Join(dir, FixturesJSONFile)); err != nil {
		return finish(err)
	}
	result.FilesWritten++
	if rows, ok := tabular.Rows(fixtures); ok {
		if err := tabular.WriteTable(rows, filepath.Join(dir, FixturesCSVFile), nil); err != nil {
			return finish(err)
		}
		result.FilesWritten++
	}

	// 3. Current gameweek deadline
	h.logger.Info("Phase 3/4: Recording current gameweek deadline...")
	if ev, ok := boot.CurrentEvent(); ok && ev.DeadlineTime != "" {
		if err := tabular.WriteText(ev.DeadlineTime+"\n", filepath.Join(dir, DeadlineFile)); err != nil {
			return finish(err)
		}
		result.FilesWritten++
		h.logger.Info("Current gameweek", "event", ev.ID, "deadline", ev.DeadlineTime)
	} else {
		h.logger.Info("No current gameweek; deadline not recorded")
	}

	// 4. Per-player summaries
	ids := boot.PlayerIDs()
	h.logger.Info("Phase 4/4: Fetching player summaries...", "players", len(ids), "resume", resume)
	combined, err := h.players(ctx, dir, ids, resume, &result)
	if err != nil {
		return finish(err)
	}

	if err := tabular.WriteTable(combined, filepath.Join(dir, GWHistoryFile(season)), nil); err != nil {
		return finish(err)
	}
	result.FilesWritten++
	result.RowsAccumulated = len(combined)

	h.logger.Info("Current season harvest complete", "season", season, "summary", result.Summary())
	return finish(nil)
}

func (h *Current) writeBootstrap(dir string, boot *fpl.Bootstrap, result *Result) error {
	if err := tabular.WriteStructured(boot.Raw, filepath.Join(dir, BootstrapFile)); err != nil {
		return err
	}
	result.FilesWritten++

	tables := []struct {
		key, file string
	}{
		{fpl.KeyPlayers, PlayersFile},
		{fpl.KeyTeams, TeamsFile},
		{fpl.KeyPositions, PositionsFile},
		{fpl.KeyEvents, EventsFile},
	}
	for _, t := range tables {
		if err := tabular.WriteTable(boot.Table(t.key), filepath.Join(dir, t.file), nil); err != nil {
			return err
		}
		result.FilesWritten++
	}
	return nil
}

// players walks ids in listing order and returns the combined history rows.
func (h *Current) players(ctx context.Context, dir string, ids []int, resume bool, result *Result) ([]tabular.Row, error) {
	store := cache.NewFileStore(filepath.Join(dir, SummariesDir), fpl.VerifySummary)

	var combined []tabular.Row
	for i, id := range ids {
		if i > 0 {
			if err := pause(ctx, h.opts.PlayerDelay); err != nil {
				return nil, fmt.Errorf("player delay: %w", err)
			}
		}

		summary, cached, err := h.player(ctx, store, id, resume)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if h.opts.StrictPlayers {
				return nil, fmt.Errorf("player %d: %w", id, err)
			}
			result.PlayersFailed++
			result.AddErrorf("player %d: %v", id, err)
			h.logger.Warn("Skipping player", "player_id", id, "error", err)
			continue
		}
		if cached {
			result.PlayersCached++
		} else {
			result.PlayersFetched++
		}

		for _, row := range summary.History() {
			tagged := make(tabular.Row, len(row)+1)
			for k, v := range row {
				tagged[k] = v
			}
			tagged["player_id"] = id
			combined = append(combined, tagged)
		}

		if n := i + 1; n%50 == 0 {
			h.logger.Info("Player progress", "count", n, "of", len(ids),
				"fetched", result.PlayersFetched, "cached", result.PlayersCached)
		}
	}
	return combined, nil
}

// pause blocks for the full delay d, however long the previous player took.
// The limiter starts drained, so Wait cannot be satisfied by tokens that
// accrued during a slow fetch. A wait that cannot finish before ctx's
// deadline fails at once.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Every(d), 1)
	limiter.Allow()
	return limiter.Wait(ctx)
}

// player returns the summary for id, from the cache when resuming and the
// cached copy verifies, otherwise from the source (persisting it).
func (h *Current) player(ctx context.Context, store *cache.FileStore, id int, resume bool) (fpl.Summary, bool, error) {
	if resume {
		entry := store.Get(id)
		switch entry.Status {
		case cache.Hit:
			if s, err := fpl.DecodeSummary(entry.Data); err == nil {
				h.logger.Debug("Reusing cached summary", "player_id", id, "etag", entry.ETag)
				return s, true, nil
			}
		case cache.Corrupt:
			h.logger.Warn("Cached summary unusable; refetching", "player_id", id, "error", entry.Err)
		}
	}

	s, err := h.source.ElementSummary(ctx, id)
	if err != nil {
		return nil, false, err
	}
	etag, err := store.Put(id, s)
	if err != nil {
		return nil, false, fmt.Errorf("persist summary: %w", err)
	}
	h.logger.Debug("Cached summary", "player_id", id, "etag", etag)
	return s, false, nil
}
