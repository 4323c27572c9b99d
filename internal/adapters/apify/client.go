package apify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"directory/internal/adapters/httpx"
)

// Client runs a reviews actor synchronously and returns its dataset items.
type Client struct {
	base  string
	token string
	actor string
	http  *httpx.Client
}

func New(base, token, actor string, rps int, opts ...httpx.Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("apify token is required")
	}
	if actor == "" {
		return nil, fmt.Errorf("apify actor is required")
	}
	// actor runs are slow; the sync endpoint holds the connection for up to 5 minutes
	opts = append([]httpx.Option{httpx.WithTimeout(5 * time.Minute)}, opts...)
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		actor: actor,
		http:  httpx.New("apify", rps, opts...),
	}, nil
}

func (c *Client) GetReviews(ctx context.Context, placeID string, max int) ([]map[string]any, error) {
	if max <= 0 {
		max = 50
	}
	u := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		c.base, url.PathEscape(c.actor), url.QueryEscape(c.token))
	in := map[string]any{
		"placeIds":      []string{placeID},
		"maxReviews":    max,
		"reviewsSort":   "newest",
		"language":      "en",
		"personalData":  false,
		"reviewsOrigin": "google",
	}
	var items []map[string]any
	if err := c.http.PostJSON(ctx, "run-sync-get-dataset-items", u, in, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}
