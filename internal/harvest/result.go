// Package harvest pulls each source into its season-scoped subtree of the
// archive: the live season from the FPL API, past seasons from the vaastav
// dataset, and best-effort Understat aggregates.
package harvest

import (
	"fmt"
	"time"
)

// Result tracks counts and errors from one harvester run.
type Result struct {
	Name            string
	FilesWritten    int
	PlayersFetched  int
	PlayersCached   int
	PlayersFailed   int
	RowsAccumulated int
	Errors          []string
	Duration        time.Duration
}

// Add merges another Result into this one.
func (r *Result) Add(other Result) {
	r.FilesWritten += other.FilesWritten
	r.PlayersFetched += other.PlayersFetched
	r.PlayersCached += other.PlayersCached
	r.PlayersFailed += other.PlayersFailed
	r.RowsAccumulated += other.RowsAccumulated
	r.Errors = append(r.Errors, other.Errors...)
	r.Duration += other.Duration
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"files=%d fetched=%d cached=%d failed=%d rows=%d errors=%d dur=%s",
		r.FilesWritten, r.PlayersFetched, r.PlayersCached,
		r.PlayersFailed, r.RowsAccumulated, len(r.Errors),
		r.Duration.Round(time.Millisecond),
	)
}
