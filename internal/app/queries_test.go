package app_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory/internal/app"
	"directory/internal/app/apptest"
	"directory/internal/domain"
)

func TestPublished_CacheMissThenHit(t *testing.T) {
	repo := apptest.NewRepo()
	l := apptest.Visible(domain.Restaurants, "Casa Azul", "casa-azul")
	l.FirecrawlOutput = json.RawMessage(`{"secret":true}`)
	repo.Put(l)
	cache := apptest.NewCache()
	q := app.NewQueryService(repo, cache, 10*time.Minute)
	ctx := context.Background()

	got, err := q.Published(ctx, domain.Restaurants, "casa-azul")
	require.NoError(t, err)
	assert.Equal(t, "Casa Azul", got.Name)
	assert.Nil(t, got.FirecrawlOutput, "payloads are admin only")
	assert.True(t, cache.Has("listing:restaurants:casa-azul"))

	got, err = q.Published(ctx, domain.Restaurants, "casa-azul")
	require.NoError(t, err)
	assert.Equal(t, "Casa Azul", got.Name)
	assert.Equal(t, 1, repo.BySlugCalls, "second read is served from cache")
}

func TestPublished_HiddenListingIsNotFound(t *testing.T) {
	repo := apptest.NewRepo()
	unpublished := apptest.Visible(domain.Hotels, "Draft Inn", "draft-inn")
	unpublished.Published, unpublished.PublishedAt = false, nil
	repo.Put(unpublished)
	inactive := apptest.Visible(domain.Hotels, "Closed Inn", "closed-inn")
	inactive.Active = false
	repo.Put(inactive)

	q := app.NewQueryService(repo, nil, time.Minute)
	for _, slug := range []string{"draft-inn", "closed-inn", "nowhere"} {
		_, err := q.Published(context.Background(), domain.Hotels, slug)
		assert.ErrorIs(t, err, domain.ErrNotFound, slug)
	}
}

func TestListPublished_OnlyVisibleAndPaged(t *testing.T) {
	repo := apptest.NewRepo()
	for _, n := range []string{"a", "b", "c"} {
		repo.Put(apptest.Visible(domain.Malls, "Mall "+n, "mall-"+n))
	}
	hidden := apptest.Visible(domain.Malls, "Hidden", "hidden")
	hidden.Published, hidden.PublishedAt = false, nil
	repo.Put(hidden)

	q := app.NewQueryService(repo, nil, time.Minute)
	page, err := q.ListPublished(context.Background(), domain.ListQuery{
		Category: domain.Malls, Status: domain.StatusUnpublished, Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total, "status is forced to visible")
	assert.Len(t, page.Items, 2)
}

func TestListQueryValidation(t *testing.T) {
	q := app.NewQueryService(apptest.NewRepo(), nil, time.Minute)
	ctx := context.Background()

	cases := []struct {
		name string
		in   domain.ListQuery
		err  error
	}{
		{"defaults", domain.ListQuery{Category: domain.Schools}, nil},
		{"max limit", domain.ListQuery{Category: domain.Schools, Limit: 100}, nil},
		{"limit too big", domain.ListQuery{Category: domain.Schools, Limit: 101}, domain.ErrInvalid},
		{"negative limit", domain.ListQuery{Category: domain.Schools, Limit: -1}, domain.ErrInvalid},
		{"negative offset", domain.ListQuery{Category: domain.Schools, Offset: -5}, domain.ErrInvalid},
		{"bad sort", domain.ListQuery{Category: domain.Schools, Sort: "price"}, domain.ErrInvalid},
		{"bad status", domain.ListQuery{Category: domain.Schools, Status: "deleted"}, domain.ErrInvalid},
		{"unknown category", domain.ListQuery{Category: "zoos"}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := q.List(ctx, tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, page.Limit)
		})
	}
}

func TestSearch_MinimumLength(t *testing.T) {
	repo := apptest.NewRepo()
	repo.Put(apptest.Visible(domain.Attractions, "Old Fort", "old-fort"))
	q := app.NewQueryService(repo, nil, time.Minute)
	ctx := context.Background()

	for _, s := range []string{"", " ", "o", "  o  ", "é"} {
		_, err := q.Search(ctx, domain.SearchQuery{Q: s})
		assert.ErrorIs(t, err, domain.ErrInvalid, "query %q", s)
	}

	got, err := q.Search(ctx, domain.SearchQuery{Q: " fo ", VisibleOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Old Fort", got[0].Name)

	_, err = q.Search(ctx, domain.SearchQuery{Q: "fort", Limit: 51})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestQueue_DefaultsToQueued(t *testing.T) {
	repo := apptest.NewRepo()
	l := apptest.Visible(domain.FitnessPlaces, "Iron Gym", "iron-gym")
	l.ExtractionStatus = domain.ExtractionQueued
	repo.Put(l)
	repo.Put(apptest.Visible(domain.FitnessPlaces, "Yoga Loft", "yoga-loft"))

	q := app.NewQueryService(repo, nil, time.Minute)
	got, err := q.Queue(context.Background(), domain.QueueQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Iron Gym", got[0].Name)

	_, err = q.Queue(context.Background(), domain.QueueQuery{Status: "stuck"})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestStats_Cached(t *testing.T) {
	repo := apptest.NewRepo()
	repo.Put(apptest.Visible(domain.Hotels, "Grand", "grand"))
	q := app.NewQueryService(repo, apptest.NewCache(), time.Minute)

	for i := 0; i < 3; i++ {
		st, err := q.Stats(context.Background())
		require.NoError(t, err)
		require.Len(t, st, len(domain.Categories))
		assert.Equal(t, 1, st[1].Total)
	}
	assert.Equal(t, 1, repo.StatsCalls)
}
