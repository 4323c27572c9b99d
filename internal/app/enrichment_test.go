package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory/internal/adapters/httpx"
	"directory/internal/app"
	"directory/internal/app/apptest"
	"directory/internal/domain"
)

type fakePlaces struct {
	hits    []map[string]any
	place   map[string]any
	err     error
	queries []string
}

func (f *fakePlaces) SearchText(ctx context.Context, q string) ([]map[string]any, error) {
	f.queries = append(f.queries, q)
	return f.hits, f.err
}

func (f *fakePlaces) GetPlace(ctx context.Context, id string) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.place, nil
}

type fakeScraper struct {
	data map[string]any
	err  error
	urls []string
}

func (f *fakeScraper) Scrape(ctx context.Context, url string) (map[string]any, error) {
	f.urls = append(f.urls, url)
	return f.data, f.err
}

type fakeReviews struct {
	items []map[string]any
	err   error
	ids   []string
}

func (f *fakeReviews) GetReviews(ctx context.Context, placeID string, max int) ([]map[string]any, error) {
	f.ids = append(f.ids, placeID)
	return f.items, f.err
}

func samplePlace() map[string]any {
	return map[string]any{
		"id":                       "ChIJ123",
		"displayName":              map[string]any{"text": "Casa Azul"},
		"formattedAddress":         "Rua Azul 1, Lisboa",
		"internationalPhoneNumber": "+351 21 000 0000",
		"websiteUri":               "https://casa-azul.example",
		"rating":                   4.6,
		"userRatingCount":          float64(812),
		"priceLevel":               "PRICE_LEVEL_MODERATE",
		"location":                 map[string]any{"latitude": 38.71, "longitude": -9.14},
		"editorialSummary":         map[string]any{"text": "Blue house."},
		"addressComponents": []any{
			map[string]any{"longText": "Alfama", "types": []any{"neighborhood", "political"}},
			map[string]any{"longText": "Lisboa", "types": []any{"locality", "political"}},
		},
	}
}

func sampleScrape() map[string]any {
	return map[string]any{
		"metadata": map[string]any{"ogImage": "https://casa-azul.example/og.jpg"},
		"json": map[string]any{
			"description": "A family restaurant serving Portuguese classics since 1962.",
			"email":       "hello@casa-azul.example",
			"images":      []any{"https://casa-azul.example/1.jpg", "/relative.jpg", "https://casa-azul.example/og.jpg"},
			"faqs":        []any{map[string]any{"question": "Do you take bookings?", "answer": "Yes, online."}},
			"policies":    []any{map[string]any{"type": "Cancellation", "text": "Free until 24h before."}},
		},
	}
}

func TestEnrich_AllStepsMergeMissing(t *testing.T) {
	repo := apptest.NewRepo()
	l := apptest.Visible(domain.Restaurants, "Casa Azul", "casa-azul")
	l.City = ptr("Lisbon") // curated, must survive
	l.Rating = ptr(3.0)
	ref := repo.Put(l)
	cache := apptest.NewCache()
	require.NoError(t, cache.Set(context.Background(), "listing:restaurants:casa-azul", l, 60))

	places := &fakePlaces{hits: []map[string]any{{"id": "ChIJ123"}}, place: samplePlace()}
	scraper := &fakeScraper{data: sampleScrape()}
	reviews := &fakeReviews{items: []map[string]any{{"stars": 5.0}, {"stars": 4.0}}}
	svc := app.NewEnrichmentService(repo, places, scraper, reviews, cache, 20)

	require.NoError(t, svc.Enrich(context.Background(), ref))

	got := repo.Get(ref)
	assert.Equal(t, domain.ExtractionDone, got.ExtractionStatus)
	assert.Equal(t, "Lisbon", *got.City, "filled columns are kept")
	assert.Equal(t, "Alfama", *got.Area)
	assert.Equal(t, "Rua Azul 1, Lisboa", *got.Address)
	assert.Equal(t, "ChIJ123", *got.GooglePlaceID)
	assert.Equal(t, "$$", *got.PriceRange)
	assert.Equal(t, "hello@casa-azul.example", *got.Email)
	assert.Equal(t, "A family restaurant serving Portuguese classics since 1962.", *got.Description)
	assert.Equal(t, 4.6, *got.Rating, "rating is refreshed")
	assert.Equal(t, 812, *got.ReviewCount)
	assert.Len(t, got.Images, 2)
	assert.NotEmpty(t, got.PlacesOutput)
	assert.NotEmpty(t, got.FirecrawlOutput)
	assert.NotEmpty(t, got.ApifyOutput)

	assert.Equal(t, []string{"Casa Azul, Lisbon"}, places.queries)
	assert.Equal(t, []string{"https://casa-azul.example"}, scraper.urls)
	assert.Equal(t, []string{"ChIJ123"}, reviews.ids)

	var prog domain.Progress
	require.NoError(t, json.Unmarshal(got.ExtractionProgress, &prog))
	assert.NotEmpty(t, prog.RunID)
	require.NotNil(t, prog.FinishedAt)
	for _, step := range []string{domain.StepPlaces, domain.StepFirecrawl, domain.StepApify} {
		assert.Equal(t, domain.StepDone, prog.Steps[step].Status, step)
	}

	saved := repo.Saved[0]
	require.Len(t, saved.FAQs, 1)
	require.Len(t, saved.Policies, 1)
	assert.Equal(t, "cancellation", saved.Policies[0].Kind)
	assert.False(t, cache.Has("listing:restaurants:casa-azul"))
}

func TestEnrich_PlaceMissContinues(t *testing.T) {
	repo := apptest.NewRepo()
	l := apptest.Visible(domain.Hotels, "Grand", "grand")
	l.Website = ptr("https://grand.example")
	ref := repo.Put(l)

	places := &fakePlaces{err: httpx.ErrNotFound}
	scraper := &fakeScraper{data: map[string]any{"json": map[string]any{"phone": "+1 555"}}}
	reviews := &fakeReviews{}
	svc := app.NewEnrichmentService(repo, places, scraper, reviews, nil, 0)

	require.NoError(t, svc.Enrich(context.Background(), ref))

	got := repo.Get(ref)
	assert.Equal(t, domain.ExtractionDone, got.ExtractionStatus)
	assert.Equal(t, "+1 555", *got.Phone)
	assert.Equal(t, []string{domain.StepPlaces}, repo.Misses)
	assert.Empty(t, reviews.ids, "reviews need a place id")

	var prog domain.Progress
	require.NoError(t, json.Unmarshal(got.ExtractionProgress, &prog))
	assert.Equal(t, domain.StepMiss, prog.Steps[domain.StepPlaces].Status)
	assert.Equal(t, domain.StepDone, prog.Steps[domain.StepFirecrawl].Status)
	assert.Equal(t, domain.StepSkipped, prog.Steps[domain.StepApify].Status)
}

func TestEnrich_ProviderFailureMarksFailed(t *testing.T) {
	repo := apptest.NewRepo()
	l := apptest.Visible(domain.Malls, "Galleria", "galleria")
	l.Website = ptr("https://galleria.example")
	ref := repo.Put(l)

	boom := &httpx.StatusError{Code: 502}
	svc := app.NewEnrichmentService(repo, nil, &fakeScraper{err: boom}, nil, nil, 0)

	err := svc.Enrich(context.Background(), ref)
	require.Error(t, err)
	var se *httpx.StatusError
	assert.True(t, errors.As(err, &se))

	got := repo.Get(ref)
	assert.Equal(t, domain.ExtractionFailed, got.ExtractionStatus)
	var prog domain.Progress
	require.NoError(t, json.Unmarshal(got.ExtractionProgress, &prog))
	assert.Equal(t, domain.StepSkipped, prog.Steps[domain.StepPlaces].Status)
	assert.Equal(t, domain.StepFailed, prog.Steps[domain.StepFirecrawl].Status)
	assert.Contains(t, prog.Steps[domain.StepFirecrawl].Error, "502")
	_, ran := prog.Steps[domain.StepApify]
	assert.False(t, ran)
}

func TestEnrich_NoProvidersSkipsEverything(t *testing.T) {
	repo := apptest.NewRepo()
	ref := repo.Put(apptest.Visible(domain.Schools, "North High", "north-high"))
	svc := app.NewEnrichmentService(repo, nil, nil, nil, nil, 0)

	require.NoError(t, svc.Enrich(context.Background(), ref))
	got := repo.Get(ref)
	assert.Equal(t, domain.ExtractionDone, got.ExtractionStatus)
	assert.Nil(t, got.Rating)

	err := svc.Enrich(context.Background(), domain.ListingRef{Category: domain.Schools, ID: 42})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
