package domain

import (
	"context"
	"time"
)

type ListingReader interface {
	// GetListing loads the full row, payload blobs and child rows included.
	GetListing(ctx context.Context, ref ListingRef) (Listing, error)
	// GetListingBySlug loads the row and child rows without payload blobs.
	GetListingBySlug(ctx context.Context, c Category, slug string) (Listing, error)
	ListListings(ctx context.Context, q ListQuery) (ListingsPage, error)
	Search(ctx context.Context, q SearchQuery) ([]Listing, error)
	ExtractionQueue(ctx context.Context, q QueueQuery) ([]Listing, error)
	Stats(ctx context.Context) ([]CategoryStats, error)
	SlugExists(ctx context.Context, c Category, slug string, exceptID int64) (bool, error)
}

type ListingWriter interface {
	CreateListing(ctx context.Context, l Listing) (int64, error)
	UpdateListing(ctx context.Context, ref ListingRef, p ListingPatch) error
	DeleteListing(ctx context.Context, ref ListingRef) error
	// ApplyTransition locks the row, applies Flags.Apply and writes the result back.
	ApplyTransition(ctx context.Context, ref ListingRef, t Transition, now time.Time) (Flags, error)
}

type ExtractionStore interface {
	Enqueue(ctx context.Context, ref ListingRef, now time.Time) error
	// ClaimQueued moves up to limit queued rows of c to running and returns them.
	ClaimQueued(ctx context.Context, c Category, limit int, now time.Time) ([]ListingRef, error)
	// ReleaseClaimed puts claimed rows that never started back to queued.
	ReleaseClaimed(ctx context.Context, refs []ListingRef) error
	SaveExtraction(ctx context.Context, ref ListingRef, r ExtractionResult) error
	// LogMiss records a provider that had nothing for (or refused) a listing.
	LogMiss(ctx context.Context, ref ListingRef, step, reason string) error
}

type AuditStore interface {
	AuditFind(ctx context.Context, c Category, check AuditCheck, opts AuditOptions) ([]Finding, error)
	// AuditRepair fixes every row matching check in one statement. Missing slugs
	// need per-row generation and go through SetSlug instead.
	AuditRepair(ctx context.Context, c Category, check AuditCheck, opts AuditOptions) (int64, error)
	SetSlug(ctx context.Context, ref ListingRef, slug string) error
}

type ListingRepository interface {
	ListingReader
	ListingWriter
	ExtractionStore
	AuditStore
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, keys ...string) error
}

// Third-party providers. Payloads stay opaque maps; the app layer maps them
// through alias registries.
type PlaceSearcher interface {
	SearchText(ctx context.Context, query string) ([]map[string]any, error)
	GetPlace(ctx context.Context, placeID string) (map[string]any, error)
}

type Scraper interface {
	Scrape(ctx context.Context, url string) (map[string]any, error)
}

type ReviewExtractor interface {
	GetReviews(ctx context.Context, placeID string, max int) ([]map[string]any, error)
}

// Read models & queries

type StatusFilter string

const (
	StatusAll         StatusFilter = "all"
	StatusVisible     StatusFilter = "visible"
	StatusPublished   StatusFilter = "published"
	StatusUnpublished StatusFilter = "unpublished"
	StatusActive      StatusFilter = "active"
	StatusInactive    StatusFilter = "inactive"
	StatusVerified    StatusFilter = "verified"
	StatusUnverified  StatusFilter = "unverified"
)

var StatusFilters = []StatusFilter{
	StatusAll, StatusVisible, StatusPublished, StatusUnpublished,
	StatusActive, StatusInactive, StatusVerified, StatusUnverified,
}

// Sort orders accepted by list queries; the first is the default.
var ListSorts = []string{"name", "-rating", "-published_at", "-created_at", "-updated_at"}

type ListQuery struct {
	Category   Category
	Status     StatusFilter
	Extraction *ExtractionStatus
	City       *string
	Area       *string
	Verified   *bool
	Q          *string
	Sort       string
	Limit      int
	Offset     int
}

type ListingsPage struct {
	Items      []Listing `json:"items"`
	Total      int       `json:"total"`
	Limit      int       `json:"limit"`
	Offset     int       `json:"offset"`
	NextOffset *int      `json:"next_offset,omitempty"`
}

type SearchQuery struct {
	Q           string
	Categories  []Category
	VisibleOnly bool
	Limit       int
}

type QueueQuery struct {
	Category *Category
	Status   ExtractionStatus
	Limit    int
}

type CategoryStats struct {
	Category  Category `json:"category"`
	Total     int      `json:"total"`
	Active    int      `json:"active"`
	Published int      `json:"published"`
	Verified  int      `json:"verified"`
	Queued    int      `json:"queued"`
	Running   int      `json:"running"`
	Failed    int      `json:"failed"`
}

type AuditOptions struct {
	Now        time.Time
	StaleAfter time.Duration
	Limit      int
}
