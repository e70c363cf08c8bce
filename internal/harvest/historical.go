package harvest

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/albapepper/fpl-archive/internal/provider/vaastav"
	"github.com/albapepper/fpl-archive/internal/tabular"
)

// ArtifactSource is satisfied by *vaastav.Client.
type ArtifactSource interface {
	URL(season string, a vaastav.Artifact) string
	Fetch(ctx context.Context, season string, a vaastav.Artifact) (string, error)
}

// Historical copies the pre-published files of a past season verbatim.
type Historical struct {
	source ArtifactSource
	logger *slog.Logger
}

// NewHistorical creates a historical-season harvester.
func NewHistorical(source ArtifactSource, logger *slog.Logger) *Historical {
	if logger == nil {
		logger = slog.Default()
	}
	return &Historical{source: source, logger: logger}
}

// Run fetches every artifact for season into root/season. Each artifact is
// attempted independently; failures are logged and recorded, never returned.
func (h *Historical) Run(ctx context.Context, root, season string) Result {
	start := time.Now()
	result := Result{Name: "historical " + season}
	dir := filepath.Join(root, season)

	for _, a := range vaastav.Artifacts {
		body, err := h.source.Fetch(ctx, season, a)
		if err != nil {
			result.AddErrorf("%s %s: %v", season, a.Name, err)
			h.logger.Warn("Historical artifact unavailable",
				"season", season, "artifact", a.Name, "url", h.source.URL(season, a), "error", err)
			continue
		}
		if err := tabular.WriteText(body, filepath.Join(dir, a.Name)); err != nil {
			result.AddErrorf("%s %s: %v", season, a.Name, err)
			h.logger.Warn("Historical artifact not written",
				"season", season, "artifact", a.Name, "error", err)
			continue
		}
		result.FilesWritten++
	}

	result.Duration = time.Since(start)
	h.logger.Info("Historical season harvested", "season", season, "summary", result.Summary())
	return result
}
