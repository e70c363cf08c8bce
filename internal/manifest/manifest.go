// Package manifest describes a finished archive run.
package manifest

import (
	"path/filepath"
	"time"

	"github.com/albapepper/fpl-archive/internal/tabular"
)

// FileName is written at the archive root.
const FileName = "MANIFEST.json"

// TimeFormat is the UTC layout of GeneratedAt.
const TimeFormat = "2006-01-02T15:04:05Z"

// Source origin keys.
const (
	SourceFPL       = "fpl_api"
	SourceVaastav   = "vaastav"
	SourceUnderstat = "understat"
)

// Manifest is the MANIFEST.json document.
type Manifest struct {
	GeneratedAt       string            `json:"generated_at"`
	CurrentSeason     string            `json:"current_season"`
	HistoricalSeasons []string          `json:"historical_seasons"`
	UnderstatEnabled  bool              `json:"understat_enabled"`
	Sources           map[string]string `json:"sources"`
}

// Origins are the base URLs a run pulled from.
type Origins struct {
	FPL       string
	Vaastav   string
	Understat string
}

// New builds a manifest. The understat origin is listed only when
// enrichment ran.
func New(at time.Time, current string, historical []string, understat bool, o Origins) Manifest {
	if historical == nil {
		historical = []string{}
	}
	sources := map[string]string{
		SourceFPL:     o.FPL,
		SourceVaastav: o.Vaastav,
	}
	if understat {
		sources[SourceUnderstat] = o.Understat
	}
	return Manifest{
		GeneratedAt:       at.UTC().Format(TimeFormat),
		CurrentSeason:     current,
		HistoricalSeasons: historical,
		UnderstatEnabled:  understat,
		Sources:           sources,
	}
}

// Write stores m as root/MANIFEST.json.
func (m Manifest) Write(root string) error {
	return tabular.WriteStructured(m, filepath.Join(root, FileName))
}
