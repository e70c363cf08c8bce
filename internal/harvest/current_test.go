package harvest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/fpl-archive/internal/fetch"
	"github.com/albapepper/fpl-archive/internal/provider/fpl"
)

const testSeason = "2025-26"

// fakeFPL serves a three-player season and counts hits per path.
type fakeFPL struct {
	mu        sync.Mutex
	hits      map[string]int
	failing   map[int]bool
	noCurrent bool
	failBoot  bool
	playerIDs []int

	// summaryLatency slows every element-summary response; the handler
	// records when each one started and finished
	summaryLatency time.Duration
	summarySpans   [][2]time.Time
}

func newFakeFPL() *fakeFPL {
	return &fakeFPL{hits: map[string]int{}, failing: map[int]bool{}, playerIDs: []int{1, 2, 3}}
}

func (f *fakeFPL) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeFPL) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/bootstrap-static/":
		if f.failBoot {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var elements []string
		for _, id := range f.playerIDs {
			elements = append(elements, fmt.Sprintf(`{"id": %d, "web_name": "P%d", "team": 1, "now_cost": 55}`, id, id))
		}
		current := "true"
		if f.noCurrent {
			current = "false"
		}
		fmt.Fprintf(w, `{
			"elements": [%s],
			"teams": [{"id": 1, "name": "Arsenal", "short_name": "ARS"}],
			"element_types": [{"id": 1, "singular_name": "Goalkeeper"}],
			"events": [
				{"id": 1, "deadline_time": "2025-08-15T17:30:00Z", "is_current": false, "is_previous": true, "chip_plays": []},
				{"id": 2, "deadline_time": "2025-08-22T17:30:00Z", "is_current": %s, "chip_plays": [{"chip_name": "bboost", "num_played": 10}]}
			]
		}`, strings.Join(elements, ","), current)
	case r.URL.Path == "/api/fixtures/":
		w.Write([]byte(`[{"id": 10, "event": 1, "team_h": 1, "team_a": 2, "team_h_score": null}]`))
	case strings.HasPrefix(r.URL.Path, "/api/element-summary/"):
		began := time.Now()
		time.Sleep(f.summaryLatency)
		defer func() {
			f.mu.Lock()
			f.summarySpans = append(f.summarySpans, [2]time.Time{began, time.Now()})
			f.mu.Unlock()
		}()
		var id int
		fmt.Sscanf(r.URL.Path, "/api/element-summary/%d/", &id)
		if f.failing[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"fixtures": [], "history": [
			{"element": %d, "round": 1, "total_points": %d},
			{"element": %d, "round": 2, "total_points": %d}
		], "history_past": []}`, id, id, id, id*2)
	default:
		http.NotFound(w, r)
	}
}

func newCurrent(t *testing.T, f *fakeFPL, strict bool) (*Current, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	fc := fetch.New(fetch.Options{Retries: 2, BackoffBase: 2, Timeout: 2 * time.Second}, logger).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
	src := fpl.NewClient(srv.URL+"/api", fc)
	return NewCurrent(src, CurrentOptions{StrictPlayers: strict}, logger), &logs
}

func readRecords(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func summaryPath(root string, id int) string {
	return filepath.Join(root, testSeason, SummariesDir, fmt.Sprintf("player_%d.json", id))
}

func TestCurrentFreshRun(t *testing.T) {
	f := newFakeFPL()
	h, _ := newCurrent(t, f, false)
	root := t.TempDir()

	res, err := h.Run(context.Background(), root, testSeason, false)
	require.NoError(t, err)
	require.Equal(t, 3, res.PlayersFetched)
	require.Zero(t, res.PlayersCached)
	require.Equal(t, 6, res.RowsAccumulated)
	require.Empty(t, res.Errors)

	dir := filepath.Join(root, testSeason)
	for _, name := range []string{
		BootstrapFile, PlayersFile, TeamsFile, PositionsFile, EventsFile,
		FixturesJSONFile, FixturesCSVFile, DeadlineFile, GWHistoryFile(testSeason),
	} {
		require.FileExists(t, filepath.Join(dir, name))
	}
	for _, id := range f.playerIDs {
		require.FileExists(t, summaryPath(root, id))
		require.Equal(t, 1, f.count(fmt.Sprintf("/api/element-summary/%d/", id)))
	}

	deadline, err := os.ReadFile(filepath.Join(dir, DeadlineFile))
	require.NoError(t, err)
	require.Equal(t, "2025-08-22T17:30:00Z\n", string(deadline))

	want := [][]string{
		{"element", "player_id", "round", "total_points"},
		{"1", "1", "1", "1"},
		{"1", "1", "2", "2"},
		{"2", "2", "1", "2"},
		{"2", "2", "2", "4"},
		{"3", "3", "1", "3"},
		{"3", "3", "2", "6"},
	}
	if diff := cmp.Diff(want, readRecords(t, filepath.Join(dir, GWHistoryFile(testSeason)))); diff != "" {
		t.Fatal(diff)
	}

	fixtures := readRecords(t, filepath.Join(dir, FixturesCSVFile))
	require.Equal(t, []string{"event", "id", "team_a", "team_h", "team_h_score"}, fixtures[0])
	require.Equal(t, []string{"1", "10", "2", "1", ""}, fixtures[1])

	teams := readRecords(t, filepath.Join(dir, TeamsFile))
	require.Equal(t, []string{"id", "name", "short_name"}, teams[0])

	events := readRecords(t, filepath.Join(dir, EventsFile))
	require.Equal(t, `[{"chip_name":"bboost","num_played":10}]`, events[2][0])
}

func TestCurrentResume(t *testing.T) {
	f := newFakeFPL()
	h, logs := newCurrent(t, f, false)
	root := t.TempDir()

	// player 2 has a valid cached copy that differs from the live one,
	// player 3 a corrupted one
	require.NoError(t, os.MkdirAll(filepath.Dir(summaryPath(root, 2)), 0o755))
	require.NoError(t, os.WriteFile(summaryPath(root, 2),
		[]byte(`{"history": [{"element": 2, "round": 1, "total_points": 99}]}`), 0o644))
	require.NoError(t, os.WriteFile(summaryPath(root, 3), []byte(`{"history": [`), 0o644))

	res, err := h.Run(context.Background(), root, testSeason, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.PlayersCached)
	require.Equal(t, 2, res.PlayersFetched)

	require.Zero(t, f.count("/api/element-summary/2/"))
	require.Equal(t, 1, f.count("/api/element-summary/3/"))
	require.Equal(t, 1, f.count("/api/element-summary/1/"))

	repaired, err := os.ReadFile(summaryPath(root, 3))
	require.NoError(t, err)
	require.NoError(t, fpl.VerifySummary(repaired))
	require.Contains(t, logs.String(), "Cached summary unusable")

	// the cached copy is used verbatim, stale or not
	rows := readRecords(t, filepath.Join(root, testSeason, GWHistoryFile(testSeason)))
	require.Len(t, rows, 1+2+1+2)
	require.Equal(t, []string{"2", "2", "1", "99"}, rows[3])
}

func TestCurrentNoResumeRefetches(t *testing.T) {
	f := newFakeFPL()
	h, _ := newCurrent(t, f, false)
	root := t.TempDir()

	_, err := h.Run(context.Background(), root, testSeason, false)
	require.NoError(t, err)
	_, err = h.Run(context.Background(), root, testSeason, false)
	require.NoError(t, err)
	require.Equal(t, 2, f.count("/api/element-summary/1/"))

	res, err := h.Run(context.Background(), root, testSeason, true)
	require.NoError(t, err)
	require.Equal(t, 3, res.PlayersCached)
	require.Equal(t, 2, f.count("/api/element-summary/1/"))
}

func TestCurrentPlayerFailureIsolated(t *testing.T) {
	f := newFakeFPL()
	f.failing[2] = true
	h, logs := newCurrent(t, f, false)
	root := t.TempDir()

	res, err := h.Run(context.Background(), root, testSeason, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.PlayersFailed)
	require.Equal(t, 2, res.PlayersFetched)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "element-summary/2/")
	require.Equal(t, 2, f.count("/api/element-summary/2/"))
	require.Contains(t, logs.String(), "Skipping player")

	require.NoFileExists(t, summaryPath(root, 2))
	rows := readRecords(t, filepath.Join(root, testSeason, GWHistoryFile(testSeason)))
	require.Len(t, rows, 1+4)
}

func TestCurrentStrictPlayers(t *testing.T) {
	f := newFakeFPL()
	f.failing[2] = true
	h, _ := newCurrent(t, f, true)
	root := t.TempDir()

	_, err := h.Run(context.Background(), root, testSeason, false)
	var exhausted *fetch.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.True(t, strings.HasSuffix(exhausted.URL, "/api/element-summary/2/"))

	require.Zero(t, f.count("/api/element-summary/3/"))
	require.NoFileExists(t, filepath.Join(root, testSeason, GWHistoryFile(testSeason)))
}

func TestCurrentBootstrapFailureIsFatal(t *testing.T) {
	f := newFakeFPL()
	f.failBoot = true
	h, _ := newCurrent(t, f, false)

	_, err := h.Run(context.Background(), t.TempDir(), testSeason, false)
	var exhausted *fetch.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Zero(t, f.count("/api/fixtures/"))
}

func TestCurrentWithoutCurrentEvent(t *testing.T) {
	f := newFakeFPL()
	f.noCurrent = true
	h, _ := newCurrent(t, f, false)
	root := t.TempDir()

	_, err := h.Run(context.Background(), root, testSeason, false)
	require.NoError(t, err)
	require.NoFileExists(t, filepath.Join(root, testSeason, DeadlineFile))
}

func TestCurrentPlayerDelay(t *testing.T) {
	f := newFakeFPL()
	f.summaryLatency = 150 * time.Millisecond
	h, _ := newCurrent(t, f, false)
	h.opts.PlayerDelay = 100 * time.Millisecond
	root := t.TempDir()

	_, err := h.Run(context.Background(), root, testSeason, false)
	require.NoError(t, err)

	// a slow response does not shorten the pause before the next player
	require.Len(t, f.summarySpans, 3)
	for i := 1; i < len(f.summarySpans); i++ {
		gap := f.summarySpans[i][0].Sub(f.summarySpans[i-1][1])
		require.GreaterOrEqual(t, gap, 100*time.Millisecond, "gap before player %d", i+1)
	}

	// all three players cached: the pause still applies between them
	start := time.Now()
	res, err := h.Run(context.Background(), root, testSeason, true)
	require.NoError(t, err)
	require.Equal(t, 3, res.PlayersCached)
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestCurrentCancelled(t *testing.T) {
	f := newFakeFPL()
	h, _ := newCurrent(t, f, false)
	h.opts.PlayerDelay = time.Hour

	// the limiter refuses a wait that cannot finish before the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.Run(ctx, t.TempDir(), testSeason, false)
	require.Error(t, err)
	require.Equal(t, 1, f.count("/api/element-summary/1/"))
	require.Zero(t, f.count("/api/element-summary/2/"))
}
