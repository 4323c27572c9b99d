package firecrawl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"directory/internal/adapters/httpx"
)

// extractPrompt steers the JSON extraction towards the fields the merge step reads.
const extractPrompt = "Extract the business description, frequently asked questions " +
	"(question/answer pairs), policies (kind, title, body) such as cancellation, dress code, " +
	"pets, age or admission rules, contact phone and email, opening hours and gallery image URLs."

type Client struct {
	base string
	http *httpx.Client
}

func New(base, key string, rps int, opts ...httpx.Option) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("firecrawl API key is required")
	}
	opts = append([]httpx.Option{httpx.WithHeader("Authorization", "Bearer "+key)}, opts...)
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: httpx.New("firecrawl", rps, opts...),
	}, nil
}

// Scrape returns the scrape "data" object: markdown, json and metadata.
func (c *Client) Scrape(ctx context.Context, url string) (map[string]any, error) {
	req := map[string]any{
		"url":             url,
		"formats":         []string{"markdown", "json"},
		"onlyMainContent": true,
		"jsonOptions":     map[string]any{"prompt": extractPrompt},
	}
	var out struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Error   string         `json:"error"`
	}
	if err := c.http.PostJSON(ctx, "scrape", c.base+"/scrape", req, nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "unsuccessful scrape"
		}
		return nil, errors.New("firecrawl: " + out.Error)
	}
	return out.Data, nil
}
