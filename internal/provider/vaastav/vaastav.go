// Package vaastav locates the pre-published season files of the community
// Fantasy-Premier-League dataset on GitHub.
package vaastav

import (
	"context"
	"strings"
)

// Artifact is one season-keyed file in the dataset.
type Artifact struct {
	Name string // file name written into the season directory
	Path string // path below data/{season}/
}

// Artifacts are fetched for every historical season, in this order.
var Artifacts = []Artifact{
	{Name: "merged_gw.csv", Path: "gws/merged_gw.csv"},
	{Name: "fixtures.csv", Path: "fixtures.csv"},
	{Name: "cleaned_players.csv", Path: "cleaned_players.csv"},
}

// TextFetcher is satisfied by *fetch.Client.
type TextFetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Client fetches artifacts relative to the dataset's data directory, e.g.
// "https://raw.githubusercontent.com/vaastav/Fantasy-Premier-League/master/data".
type Client struct {
	baseURL string
	fetch   TextFetcher
}

// NewClient creates a dataset client.
func NewClient(baseURL string, f TextFetcher) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetch: f}
}

// BaseURL returns the dataset origin.
func (c *Client) BaseURL() string { return c.baseURL }

// URL returns the location of a for season.
func (c *Client) URL(season string, a Artifact) string {
	return c.baseURL + "/" + season + "/" + a.Path
}

// Fetch returns the artifact body verbatim.
func (c *Client) Fetch(ctx context.Context, season string, a Artifact) (string, error) {
	return c.fetch.Text(ctx, c.URL(season, a))
}
