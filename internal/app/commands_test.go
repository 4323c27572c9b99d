package app_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory/internal/app"
	"directory/internal/app/apptest"
	"directory/internal/domain"
)

func TestCreate_DefaultsAndUniqueSlug(t *testing.T) {
	repo := apptest.NewRepo()
	repo.Put(apptest.Visible(domain.Restaurants, "Café Olé", "cafe-ole"))
	cmd := app.NewCommandService(repo, nil)

	l, err := cmd.Create(context.Background(), domain.Restaurants, app.ListingInput{
		Name:       "  Café Olé ",
		City:       ptr("Lisbon"),
		Website:    ptr("https://cafe-ole.example"),
		Attributes: json.RawMessage(`{"cuisine":["portuguese"]}`),
		Images:     []app.ImageInput{{URL: "https://img.example/1.jpg", IsPrimary: true}},
		FAQs:       []app.FAQInput{{Question: "Vegan?", Answer: "Yes"}},
		Policies:   []app.PolicyInput{{Kind: "Dress Code", Title: "Dress code", Body: "Smart casual"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Café Olé", l.Name)
	assert.Equal(t, "cafe-ole-2", *l.Slug)
	assert.True(t, l.Active)
	assert.False(t, l.Published)
	assert.Nil(t, l.PublishedAt)
	assert.False(t, l.Verified)
	assert.Equal(t, domain.ExtractionIdle, l.ExtractionStatus)
	require.Len(t, l.Images, 1)
	assert.Equal(t, domain.SourceManual, l.Images[0].Source)
	require.Len(t, l.Policies, 1)
	assert.Equal(t, "dress_code", l.Policies[0].Kind)
}

func TestCreate_Validation(t *testing.T) {
	cmd := app.NewCommandService(apptest.NewRepo(), nil)
	ctx := context.Background()

	cases := map[string]app.ListingInput{
		"missing name":   {Name: "   "},
		"bad website":    {Name: "X Bar", Website: ptr("not a url")},
		"bad email":      {Name: "X Bar", Email: ptr("nobody")},
		"rating range":   {Name: "X Bar", Rating: ptr(5.5)},
		"latitude range": {Name: "X Bar", Lat: ptr(91.0)},
		"price range":    {Name: "X Bar", PriceRange: ptr("cheap")},
		"bad slug":       {Name: "X Bar", Slug: ptr("Not A Slug")},
		"attributes":     {Name: "X Bar", Attributes: json.RawMessage(`[1,2]`)},
		"image url":      {Name: "X Bar", Images: []app.ImageInput{{URL: ""}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := cmd.Create(ctx, domain.Restaurants, in)
			assert.ErrorIs(t, err, domain.ErrInvalid)
		})
	}

	_, err := cmd.Create(ctx, "zoos", app.ListingInput{Name: "Zoo"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate_ExplicitSlugConflict(t *testing.T) {
	repo := apptest.NewRepo()
	repo.Put(apptest.Visible(domain.Hotels, "Grand", "grand"))
	cmd := app.NewCommandService(repo, nil)

	_, err := cmd.Create(context.Background(), domain.Hotels, app.ListingInput{Name: "Grand Two", Slug: ptr("grand")})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTransition_PublishFlow(t *testing.T) {
	repo := apptest.NewRepo()
	l := apptest.Visible(domain.Schools, "North High", "north-high")
	l.Published, l.PublishedAt, l.Active = false, nil, false
	ref := repo.Put(l)
	cache := apptest.NewCache()
	require.NoError(t, cache.Set(context.Background(), "listing:schools:north-high", l, 60))
	cmd := app.NewCommandService(repo, cache)
	ctx := context.Background()

	_, err := cmd.Transition(ctx, ref, domain.Publish)
	assert.ErrorIs(t, err, domain.ErrConflict, "inactive listings cannot be published")

	_, err = cmd.Transition(ctx, ref, domain.Activate)
	require.NoError(t, err)
	got, err := cmd.Transition(ctx, ref, domain.Publish)
	require.NoError(t, err)
	require.NotNil(t, got.PublishedAt)
	first := *got.PublishedAt

	got, err = cmd.Transition(ctx, ref, domain.Publish)
	require.NoError(t, err)
	assert.Equal(t, first, *got.PublishedAt, "republish keeps the timestamp")

	got, err = cmd.Transition(ctx, ref, domain.Deactivate)
	require.NoError(t, err)
	assert.False(t, got.Published)
	assert.Nil(t, got.PublishedAt)

	assert.False(t, cache.Has("listing:schools:north-high"))
	assert.Contains(t, cache.Dels, "stats")

	_, err = cmd.Transition(ctx, domain.ListingRef{Category: domain.Schools, ID: 999}, domain.Verify)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	repo := apptest.NewRepo()
	ref := repo.Put(apptest.Visible(domain.Attractions, "Old Fort", "old-fort"))
	cache := apptest.NewCache()
	cmd := app.NewCommandService(repo, cache)
	ctx := context.Background()

	got, err := cmd.Update(ctx, ref, app.ListingUpdate{Slug: ptr("the-old-fort"), City: ptr("Porto")})
	require.NoError(t, err)
	assert.Equal(t, "the-old-fort", *got.Slug)
	assert.Equal(t, "Porto", *got.City)
	assert.Contains(t, cache.Dels, "listing:attractions:old-fort")
	assert.Contains(t, cache.Dels, "listing:attractions:the-old-fort")

	_, err = cmd.Update(ctx, ref, app.ListingUpdate{Name: ptr(" ")})
	assert.ErrorIs(t, err, domain.ErrInvalid)
	_, err = cmd.Update(ctx, ref, app.ListingUpdate{Slug: ptr("")})
	assert.ErrorIs(t, err, domain.ErrInvalid)
	_, err = cmd.Update(ctx, ref, app.ListingUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestDeleteAndEnqueue(t *testing.T) {
	repo := apptest.NewRepo()
	ref := repo.Put(apptest.Visible(domain.Malls, "Galleria", "galleria"))
	running := apptest.Visible(domain.Malls, "Busy", "busy")
	running.ExtractionStatus = domain.ExtractionRunning
	busy := repo.Put(running)
	cmd := app.NewCommandService(repo, nil)
	ctx := context.Background()

	got, err := cmd.Enqueue(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionQueued, got.ExtractionStatus)

	_, err = cmd.Enqueue(ctx, busy)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, cmd.Delete(ctx, ref))
	assert.ErrorIs(t, cmd.Delete(ctx, ref), domain.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }
