package googleplaces

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"directory/internal/adapters/httpx"
)

const (
	searchFieldMask = "places.id,places.displayName,places.formattedAddress,places.location"
	detailFieldMask = "id,displayName,formattedAddress,addressComponents,location,nationalPhoneNumber," +
		"internationalPhoneNumber,websiteUri,rating,userRatingCount,priceLevel,editorialSummary," +
		"regularOpeningHours,googleMapsUri,businessStatus"
)

type Client struct {
	base string
	http *httpx.Client
}

func New(base, key string, rps int, opts ...httpx.Option) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("places API key is required")
	}
	opts = append([]httpx.Option{httpx.WithHeader("X-Goog-Api-Key", key)}, opts...)
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: httpx.New("google_places", rps, opts...),
	}, nil
}

// SearchText returns candidate places for a free-text query, best match first.
func (c *Client) SearchText(ctx context.Context, query string) ([]map[string]any, error) {
	var out struct {
		Places []map[string]any `json:"places"`
	}
	err := c.http.PostJSON(ctx, "searchText", c.base+"/places:searchText",
		map[string]any{"textQuery": query, "pageSize": 5},
		http.Header{"X-Goog-FieldMask": {searchFieldMask}}, &out)
	if err != nil {
		return nil, err
	}
	return out.Places, nil
}

func (c *Client) GetPlace(ctx context.Context, placeID string) (map[string]any, error) {
	u := c.base + "/places/" + url.PathEscape(placeID) + "?fields=" + url.QueryEscape(detailFieldMask)
	var out map[string]any
	if err := c.http.GetJSON(ctx, "details", u, &out); err != nil {
		return nil, err
	}
	return out, nil
}
