package domain

import (
	"fmt"
	"strings"
)

// Category names a listing table. The string value is the table name.
type Category string

const (
	Restaurants   Category = "restaurants"
	Hotels        Category = "hotels"
	Malls         Category = "malls"
	Schools       Category = "schools"
	Attractions   Category = "attractions"
	FitnessPlaces Category = "fitness_places"
)

// Categories is the fixed set of listing tables, in display order.
var Categories = []Category{Restaurants, Hotels, Malls, Schools, Attractions, FitnessPlaces}

var singular = map[Category]string{
	Restaurants:   "restaurant",
	Hotels:        "hotel",
	Malls:         "mall",
	Schools:       "school",
	Attractions:   "attraction",
	FitnessPlaces: "fitness_place",
}

// ParseCategory accepts the table name, its singular form, or a dashed variant
// ("fitness-places").
func ParseCategory(s string) (Category, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, c := range Categories {
		if s == string(c) || s == singular[c] {
			return c, nil
		}
	}
	return "", fmt.Errorf("category %q: %w", s, ErrNotFound)
}

func (c Category) Valid() bool {
	_, ok := singular[c]
	return ok
}

func (c Category) Table() string         { return string(c) }
func (c Category) ImagesTable() string   { return singular[c] + "_images" }
func (c Category) FAQsTable() string     { return singular[c] + "_faqs" }
func (c Category) PoliciesTable() string { return singular[c] + "_policies" }

// Label is the human title used by the admin pages.
func (c Category) Label() string {
	w := strings.Split(string(c), "_")
	for i, p := range w {
		if p != "" {
			w[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(w, " ")
}
