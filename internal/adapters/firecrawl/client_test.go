package firecrawl_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory/internal/adapters/firecrawl"
)

func TestClient_Scrape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com", body["url"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"markdown": "# Example",
				"json":     map[string]any{"description": "A place"},
			},
		})
	}))
	defer ts.Close()

	cl, err := firecrawl.New(ts.URL, "fc-key", 100)
	require.NoError(t, err)

	got, err := cl.Scrape(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "# Example", got["markdown"])
}

func TestClient_Scrape_Unsuccessful(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "blocked"})
	}))
	defer ts.Close()

	cl, err := firecrawl.New(ts.URL, "fc-key", 100)
	require.NoError(t, err)

	_, err = cl.Scrape(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}
