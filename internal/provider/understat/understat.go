// Package understat scrapes per-season player aggregates from understat.com.
//
// League pages embed their data in inline scripts as
//
//	var playersData = JSON.parse('[{\x22id\x22:\x22647\x22, ...}]');
//
// The quoted argument is a JavaScript string literal; it is unescaped and
// parsed as JSON. A page without the marker means no data for that season.
package understat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/PuerkitoBio/goquery"

	"github.com/albapepper/fpl-archive/internal/tabular"
)

// PlayersVar is the script variable holding player-season aggregates.
const PlayersVar = "playersData"

// TextFetcher is satisfied by *fetch.Client.
type TextFetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Source fetches league pages for one league, e.g. "EPL".
type Source struct {
	baseURL string
	league  string
	fetch   TextFetcher
}

// NewSource creates a Source.
func NewSource(baseURL, league string, f TextFetcher) *Source {
	return &Source{baseURL: strings.TrimRight(baseURL, "/"), league: league, fetch: f}
}

// Origin returns the site the source scrapes.
func (s *Source) Origin() string { return s.baseURL }

// URL returns the league page for an Understat year.
func (s *Source) URL(year string) string {
	return fmt.Sprintf("%s/league/%s/%s", s.baseURL, s.league, year)
}

// SeasonAggregates returns one row per player for the season starting in
// year. A page without embedded data yields no rows and no error.
func (s *Source) SeasonAggregates(ctx context.Context, year string) ([]tabular.Row, error) {
	page, err := s.fetch.Text(ctx, s.URL(year))
	if err != nil {
		return nil, err
	}
	return Extract(page, PlayersVar)
}

// Extract finds `variable = JSON.parse('...')` in the page's scripts and
// decodes its array payload.
func Extract(page, variable string) ([]tabular.Row, error) {
	literal, ok, err := findLiteral(page, variable)
	if err != nil || !ok {
		return nil, err
	}

	decoded, err := unescapeJS(literal)
	if err != nil {
		return nil, fmt.Errorf("unescape %s: %w", variable, err)
	}

	dec := json.NewDecoder(strings.NewReader(decoded))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", variable, err)
	}
	rows, isArray := tabular.Rows(v)
	if !isArray {
		return nil, fmt.Errorf("decode %s: expected array, got %T", variable, v)
	}
	return rows, nil
}

func markerPattern(variable string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(variable) + `\s*=\s*JSON\.parse\(\s*'((?:[^'\\]|\\.)*)'\s*\)`)
}

// findLiteral returns the raw (still escaped) string literal assigned to
// variable, looking through <script> elements.
func findLiteral(page, variable string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", false, fmt.Errorf("parse html: %w", err)
	}
	re := markerPattern(variable)

	var literal string
	found := false
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		groups := re.FindStringSubmatch(sel.Text())
		if len(groups) < 2 {
			return true
		}
		literal, found = groups[1], true
		return false
	})
	return literal, found, nil
}

// unescapeJS decodes the body of a single-quoted JavaScript string literal.
func unescapeJS(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b bytes.Buffer
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("trailing backslash")
		}
		switch e := s[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case 'x':
			r, err := hexRune(s, i+1, 2)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
			i += 2
		case 'u':
			r, err := hexRune(s, i+1, 4)
			if err != nil {
				return "", err
			}
			i += 4
			if utf16.IsSurrogate(r) && i+6 < len(s) && s[i+1] == '\\' && s[i+2] == 'u' {
				if lo, err := hexRune(s, i+3, 4); err == nil {
					if pair := utf16.DecodeRune(r, lo); pair != unicode.ReplacementChar {
						r = pair
						i += 6
					}
				}
			}
			b.WriteRune(r)
		default:
			// \' \" \\ \/ and any other character escape to themselves
			b.WriteByte(e)
		}
	}
	return b.String(), nil
}

func hexRune(s string, start, n int) (rune, error) {
	if start+n > len(s) {
		return 0, fmt.Errorf("short hex escape at %d", start)
	}
	var r rune
	for _, c := range s[start : start+n] {
		var d rune
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, fmt.Errorf("invalid hex escape %q", s[start:start+n])
		}
		r = r<<4 | d
	}
	return r, nil
}
