// Package season converts between the season naming conventions used by the
// archive's sources. FPL and vaastav use "YYYY-YY" (e.g. "2025-26");
// Understat uses the starting year alone ("2025").
//
// Premier League seasons run July to June: July 1 starts a new season.
package season

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HistoryDepth is how many seasons before the current one are archived by
// default.
const HistoryDepth = 2

// Label formats the FPL label of the season starting in startYear.
func Label(startYear int) string {
	return fmt.Sprintf("%d-%02d", startYear, (startYear+1)%100)
}

// Infer returns the season in progress at ref plus the HistoryDepth seasons
// preceding it, newest first.
func Infer(ref time.Time) (current string, historical []string) {
	start := ref.Year()
	if ref.Month() < time.July {
		start--
	}
	historical = make([]string, 0, HistoryDepth)
	for i := 1; i <= HistoryDepth; i++ {
		historical = append(historical, Label(start-i))
	}
	return Label(start), historical
}

// ToUnderstatYear returns the first four-digit component of an FPL label.
func ToUnderstatYear(label string) string {
	year, _, _ := strings.Cut(strings.TrimSpace(label), "-")
	return year
}

// StartYear parses the starting year of an FPL label.
func StartYear(label string) (int, error) {
	year, err := strconv.Atoi(ToUnderstatYear(label))
	if err != nil {
		return 0, fmt.Errorf("season %q: invalid start year", label)
	}
	return year, nil
}

// Validate checks that label is a well-formed FPL label whose second
// component follows the first.
func Validate(label string) error {
	first, second, ok := strings.Cut(label, "-")
	if !ok || len(first) != 4 || len(second) != 2 {
		return fmt.Errorf("season %q: want YYYY-YY", label)
	}
	year, err := strconv.Atoi(first)
	if err != nil {
		return fmt.Errorf("season %q: invalid start year", label)
	}
	if Label(year) != label {
		return fmt.Errorf("season %q: expected %q", label, Label(year))
	}
	return nil
}
