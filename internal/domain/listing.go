package domain

import (
	"encoding/json"
	"time"
)

type Listing struct {
	ID            int64           `json:"id"`
	Category      Category        `json:"category"`
	Slug          *string         `json:"slug"`
	Name          string          `json:"name"`
	Description   *string         `json:"description,omitempty"`
	Area          *string         `json:"area,omitempty"`
	City          *string         `json:"city,omitempty"`
	Address       *string         `json:"address,omitempty"`
	Lat           *float64        `json:"lat,omitempty"`
	Lon           *float64        `json:"lon,omitempty"`
	Phone         *string         `json:"phone,omitempty"`
	Website       *string         `json:"website,omitempty"`
	Email         *string         `json:"email,omitempty"`
	PriceRange    *string         `json:"price_range,omitempty"`
	Rating        *float64        `json:"rating,omitempty"`
	ReviewCount   *int            `json:"review_count,omitempty"`
	GooglePlaceID *string         `json:"google_place_id,omitempty"`
	Attributes    json.RawMessage `json:"attributes,omitempty"` // category specific: cuisine, stars, curriculum...

	Flags

	ExtractionStatus    ExtractionStatus `json:"extraction_status"`
	ExtractionStartedAt *time.Time       `json:"extraction_started_at,omitempty"`
	ExtractedAt         *time.Time       `json:"extracted_at,omitempty"`

	// Third-party payloads; only loaded by the admin detail read.
	ExtractionProgress json.RawMessage `json:"extraction_progress,omitempty"`
	PlacesOutput       json.RawMessage `json:"places_output,omitempty"`
	ApifyOutput        json.RawMessage `json:"apify_output,omitempty"`
	FirecrawlOutput    json.RawMessage `json:"firecrawl_output,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Images   []Image  `json:"images,omitempty"`
	FAQs     []FAQ    `json:"faqs,omitempty"`
	Policies []Policy `json:"policies,omitempty"`
}

// Ref addresses a listing row.
func (l Listing) Ref() ListingRef { return ListingRef{Category: l.Category, ID: l.ID} }

// StripPayloads drops the admin-only blobs before a listing is served publicly.
func (l Listing) StripPayloads() Listing {
	l.ExtractionProgress = nil
	l.PlacesOutput = nil
	l.ApifyOutput = nil
	l.FirecrawlOutput = nil
	return l
}

type ListingRef struct {
	Category Category `json:"category"`
	ID       int64    `json:"id"`
}

// Sources for child rows. Manual rows are never replaced by extraction.
const (
	SourceManual    = "manual"
	SourcePlaces    = "google_places"
	SourceFirecrawl = "firecrawl"
	SourceApify     = "apify"
)

type Image struct {
	ID        int64   `json:"id"`
	URL       string  `json:"url"`
	Alt       *string `json:"alt,omitempty"`
	Source    string  `json:"source"`
	SortOrder int     `json:"sort_order"`
	IsPrimary bool    `json:"is_primary"`
}

type FAQ struct {
	ID        int64  `json:"id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Source    string `json:"source"`
	SortOrder int    `json:"sort_order"`
}

type Policy struct {
	ID     int64  `json:"id"`
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Source string `json:"source"`
}

// ListingPatch carries the editable columns; nil means unchanged.
type ListingPatch struct {
	Slug          *string
	Name          *string
	Description   *string
	Area          *string
	City          *string
	Address       *string
	Lat           *float64
	Lon           *float64
	Phone         *string
	Website       *string
	Email         *string
	PriceRange    *string
	Rating        *float64
	ReviewCount   *int
	GooglePlaceID *string
	Attributes    json.RawMessage
}

func (p ListingPatch) Empty() bool {
	return p.Slug == nil && p.Name == nil && p.Description == nil && p.Area == nil &&
		p.City == nil && p.Address == nil && p.Lat == nil && p.Lon == nil &&
		p.Phone == nil && p.Website == nil && p.Email == nil && p.PriceRange == nil &&
		p.Rating == nil && p.ReviewCount == nil && p.GooglePlaceID == nil && len(p.Attributes) == 0
}

// Apply copies the set fields of p onto l.
func (p ListingPatch) Apply(l Listing) Listing {
	if p.Slug != nil {
		l.Slug = p.Slug
	}
	if p.Name != nil {
		l.Name = *p.Name
	}
	setStr := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	setStr(&l.Description, p.Description)
	setStr(&l.Area, p.Area)
	setStr(&l.City, p.City)
	setStr(&l.Address, p.Address)
	setStr(&l.Phone, p.Phone)
	setStr(&l.Website, p.Website)
	setStr(&l.Email, p.Email)
	setStr(&l.PriceRange, p.PriceRange)
	setStr(&l.GooglePlaceID, p.GooglePlaceID)
	if p.Lat != nil {
		l.Lat = p.Lat
	}
	if p.Lon != nil {
		l.Lon = p.Lon
	}
	if p.Rating != nil {
		l.Rating = p.Rating
	}
	if p.ReviewCount != nil {
		l.ReviewCount = p.ReviewCount
	}
	if len(p.Attributes) > 0 {
		l.Attributes = p.Attributes
	}
	return l
}
