package googleplaces_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory/internal/adapters/googleplaces"
	"directory/internal/domain"
)

func TestNew_RequiresKey(t *testing.T) {
	_, err := googleplaces.New("http://x", "", 5)
	assert.Error(t, err)
}

func TestClient_SearchText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.id")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Noma, Copenhagen", body["textQuery"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"places": []map[string]any{{"id": "p1", "displayName": map[string]any{"text": "Noma"}}},
		})
	}))
	defer ts.Close()

	cl, err := googleplaces.New(ts.URL, "k", 100)
	require.NoError(t, err)

	got, err := cl.SearchText(context.Background(), "Noma, Copenhagen")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0]["id"])
}

func TestClient_GetPlace_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places/missing", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("fields"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	cl, err := googleplaces.New(ts.URL, "k", 100)
	require.NoError(t, err)

	_, err = cl.GetPlace(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
