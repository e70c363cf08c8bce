// Package fpl adapts the live Fantasy Premier League API.
//
// Payloads are passed through as decoded JSON; only the few fields the
// archiver needs to navigate (player ids, events, summary history) are
// looked at.
package fpl

import (
	"context"
	"fmt"
	"strings"
)

// JSONFetcher is satisfied by *fetch.Client.
type JSONFetcher interface {
	JSON(ctx context.Context, url string) (any, error)
}

// Client fetches FPL endpoints relative to a base URL such as
// "https://fantasy.premierleague.com/api".
type Client struct {
	baseURL string
	fetch   JSONFetcher
}

// NewClient creates an FPL client.
func NewClient(baseURL string, f JSONFetcher) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetch: f}
}

// BaseURL returns the API origin the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) BootstrapURL() string { return c.baseURL + "/bootstrap-static/" }

func (c *Client) FixturesURL() string { return c.baseURL + "/fixtures/" }

func (c *Client) ElementSummaryURL(id int) string {
	return fmt.Sprintf("%s/element-summary/%d/", c.baseURL, id)
}

// Bootstrap fetches the static snapshot for the running season.
func (c *Client) Bootstrap(ctx context.Context) (*Bootstrap, error) {
	v, err := c.fetch.JSON(ctx, c.BootstrapURL())
	if err != nil {
		return nil, err
	}
	b, err := NewBootstrap(v)
	if err != nil {
		return nil, fmt.Errorf("bootstrap-static: %w", err)
	}
	return b, nil
}

// Fixtures fetches every fixture of the running season, unmodified.
func (c *Client) Fixtures(ctx context.Context) (any, error) {
	return c.fetch.JSON(ctx, c.FixturesURL())
}

// ElementSummary fetches one player's summary.
func (c *Client) ElementSummary(ctx context.Context, id int) (Summary, error) {
	v, err := c.fetch.JSON(ctx, c.ElementSummaryURL(id))
	if err != nil {
		return nil, err
	}
	s, err := NewSummary(v)
	if err != nil {
		return nil, fmt.Errorf("element-summary %d: %w", id, err)
	}
	return s, nil
}
