package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory/internal/domain"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]domain.Category{
		"restaurants":    domain.Restaurants,
		"Hotel":          domain.Hotels,
		"fitness-places": domain.FitnessPlaces,
		" fitness_place": domain.FitnessPlaces,
	}
	for in, want := range cases {
		got, err := domain.ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := domain.ParseCategory("casinos")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCategoryTables(t *testing.T) {
	c := domain.FitnessPlaces
	assert.Equal(t, "fitness_places", c.Table())
	assert.Equal(t, "fitness_place_images", c.ImagesTable())
	assert.Equal(t, "fitness_place_faqs", c.FAQsTable())
	assert.Equal(t, "fitness_place_policies", c.PoliciesTable())
	assert.Equal(t, "Fitness Places", c.Label())
}
