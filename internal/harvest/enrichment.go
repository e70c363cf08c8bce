package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/albapepper/fpl-archive/internal/season"
	"github.com/albapepper/fpl-archive/internal/tabular"
)

// Enrichment output location, relative to the archive root.
const (
	EnrichmentDir  = "understat"
	EnrichmentFile = "understat_players.csv"
)

// SeasonAggregateSource yields one row per player for a season, keyed by
// Understat year. *understat.Source is the production implementation.
type SeasonAggregateSource interface {
	SeasonAggregates(ctx context.Context, year string) ([]tabular.Row, error)
}

// Enrichment collects best-effort aggregates across seasons into a single
// table. Nothing it does can fail the archive run.
type Enrichment struct {
	source SeasonAggregateSource
	logger *slog.Logger
}

// NewEnrichment creates an enrichment harvester.
func NewEnrichment(source SeasonAggregateSource, logger *slog.Logger) *Enrichment {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enrichment{source: source, logger: logger}
}

// Run harvests every season in order and writes one cross-season table
// under root. Per-season failures are logged and skipped.
func (h *Enrichment) Run(ctx context.Context, root string, seasons []string) Result {
	start := time.Now()
	result := Result{Name: "understat"}

	var rows []tabular.Row
	for _, s := range seasons {
		year := season.ToUnderstatYear(s)
		got, err := h.seasonRows(ctx, year)
		if err != nil {
			result.AddErrorf("understat %s: %v", year, err)
			h.logger.Warn("Understat season skipped", "season", s, "year", year, "error", err)
			continue
		}
		if len(got) == 0 {
			h.logger.Info("Understat has no player data", "season", s, "year", year)
			continue
		}
		rows = append(rows, got...)
		h.logger.Info("Understat season collected", "season", s, "year", year, "players", len(got))
	}

	path := filepath.Join(root, EnrichmentDir, EnrichmentFile)
	if err := tabular.WriteTable(rows, path, nil); err != nil {
		result.AddErrorf("write %s: %v", EnrichmentFile, err)
		h.logger.Warn("Understat table not written", "error", err)
	} else {
		result.FilesWritten++
	}
	result.RowsAccumulated = len(rows)
	result.Duration = time.Since(start)
	return result
}

// seasonRows fetches and tags one season, converting a panic in the source
// into an error so a misbehaving scrape cannot take the run down.
func (h *Enrichment) seasonRows(ctx context.Context, year string) (rows []tabular.Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	got, err := h.source.SeasonAggregates(ctx, year)
	if err != nil {
		return nil, err
	}
	rows = make([]tabular.Row, 0, len(got))
	for _, r := range got {
		tagged := make(tabular.Row, len(r)+1)
		for k, v := range r {
			tagged[k] = v
		}
		tagged["season"] = year
		rows = append(rows, tagged)
	}
	return rows, nil
}
