package fpl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/albapepper/fpl-archive/internal/provider"
	"github.com/albapepper/fpl-archive/internal/tabular"
)

// Collection keys inside bootstrap-static.
const (
	KeyPlayers   = "elements"
	KeyTeams     = "teams"
	KeyPositions = "element_types"
	KeyEvents    = "events"
)

// Bootstrap is the bootstrap-static payload. Raw is written out untouched.
type Bootstrap struct {
	Raw map[string]any
}

// Event is the typed view of one gameweek, used to find the current one.
type Event struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DeadlineTime string `json:"deadline_time"`
	IsCurrent    bool   `json:"is_current"`
	IsPrevious   bool   `json:"is_previous"`
	IsNext       bool   `json:"is_next"`
	Finished     bool   `json:"finished"`
}

// NewBootstrap wraps a decoded payload, which must be a JSON object.
func NewBootstrap(v any) (*Bootstrap, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return &Bootstrap{Raw: m}, nil
}

// Table returns the rows of a top-level collection, or nil if key is absent
// or not an array.
func (b *Bootstrap) Table(key string) []tabular.Row {
	rows, _ := tabular.Rows(b.Raw[key])
	return rows
}

// PlayerIDs returns player ids in listing order. Entries without a usable
// id are skipped.
func (b *Bootstrap) PlayerIDs() []int {
	players := b.Table(KeyPlayers)
	ids := make([]int, 0, len(players))
	for _, p := range players {
		if id, ok := provider.ExtractInt(p["id"]); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Events decodes the events collection into its typed view.
func (b *Bootstrap) Events() ([]Event, error) {
	raw, ok := b.Raw[KeyEvents]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// CurrentEvent returns the event flagged current, if any.
func (b *Bootstrap) CurrentEvent() (Event, bool) {
	events, err := b.Events()
	if err != nil {
		return Event{}, false
	}
	for _, e := range events {
		if e.IsCurrent {
			return e, true
		}
	}
	return Event{}, false
}

// Summary is an element-summary payload.
type Summary map[string]any

var errNoHistory = errors.New("summary has no history array")

// NewSummary wraps a decoded payload, which must be an object whose history
// field, if present, is an array.
func NewSummary(v any) (Summary, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	if h, present := m["history"]; present {
		if _, isArray := h.([]any); !isArray {
			return nil, errNoHistory
		}
	}
	return Summary(m), nil
}

// DecodeSummary parses a cached summary file. Unlike NewSummary it requires
// the history field so truncated or foreign files are rejected.
func DecodeSummary(data []byte) (Summary, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	s, err := NewSummary(v)
	if err != nil {
		return nil, err
	}
	if _, ok := s["history"]; !ok {
		return nil, errNoHistory
	}
	return s, nil
}

// VerifySummary is a cache.Verifier for summary files.
func VerifySummary(data []byte) error {
	_, err := DecodeSummary(data)
	return err
}

// History returns the per-gameweek rows for the current season.
func (s Summary) History() []tabular.Row {
	rows, _ := tabular.Rows(s["history"])
	return rows
}
