package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"directory/internal/domain"
)

const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
	MinSearchLen       = 2
	DefaultQueueLimit  = 50
	MaxQueueLimit      = 200

	statsTTL = 60 * time.Second
)

func listingKey(c domain.Category, slug string) string {
	return fmt.Sprintf("listing:%s:%s", c, slug)
}

const statsKey = "stats"

type QueryService struct {
	repo     domain.ListingReader
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ListingReader, c domain.Cache, ttl time.Duration) *QueryService {
	if c == nil {
		c = NopCache{}
	}
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

// Published returns the public view of a visible listing. Hidden listings are
// reported as not found.
func (s *QueryService) Published(ctx context.Context, c domain.Category, slug string) (domain.Listing, error) {
	key := listingKey(c, slug)
	var l domain.Listing
	if ok, _ := s.cache.Get(ctx, key, &l); ok {
		return l, nil
	}
	l, err := s.repo.GetListingBySlug(ctx, c, slug)
	if err != nil {
		return domain.Listing{}, err
	}
	if !l.Visible() {
		return domain.Listing{}, fmt.Errorf("%s %q: %w", c, slug, domain.ErrNotFound)
	}
	l = l.StripPayloads()
	_ = s.cache.Set(ctx, key, l, int(s.cacheTTL.Seconds()))
	return l, nil
}

// Listing is the admin detail read, payload blobs included.
func (s *QueryService) Listing(ctx context.Context, ref domain.ListingRef) (domain.Listing, error) {
	return s.repo.GetListing(ctx, ref)
}

// ListPublished pages through the visible listings of a category.
func (s *QueryService) ListPublished(ctx context.Context, q domain.ListQuery) (domain.ListingsPage, error) {
	q.Status = domain.StatusVisible
	q.Extraction = nil
	if err := normalizeList(&q); err != nil {
		return domain.ListingsPage{}, err
	}
	page, err := s.repo.ListListings(ctx, q)
	if err != nil {
		return domain.ListingsPage{}, err
	}
	for i := range page.Items {
		page.Items[i] = page.Items[i].StripPayloads()
	}
	return page, nil
}

// List is the admin listing with every status filter available.
func (s *QueryService) List(ctx context.Context, q domain.ListQuery) (domain.ListingsPage, error) {
	if q.Status == "" {
		q.Status = domain.StatusAll
	}
	if err := normalizeList(&q); err != nil {
		return domain.ListingsPage{}, err
	}
	return s.repo.ListListings(ctx, q)
}

// Search matches names across categories. Queries shorter than MinSearchLen
// characters are rejected.
func (s *QueryService) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Listing, error) {
	q.Q = strings.TrimSpace(q.Q)
	if utf8.RuneCountInString(q.Q) < MinSearchLen {
		return nil, fmt.Errorf("search query must have at least %d characters: %w", MinSearchLen, domain.ErrInvalid)
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultSearchLimit
	case q.Limit < 1 || q.Limit > MaxSearchLimit:
		return nil, fmt.Errorf("limit must be between 1 and %d: %w", MaxSearchLimit, domain.ErrInvalid)
	}
	for _, c := range q.Categories {
		if !c.Valid() {
			return nil, fmt.Errorf("category %q: %w", c, domain.ErrInvalid)
		}
	}
	if len(q.Categories) == 0 {
		q.Categories = domain.Categories
	}
	out, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.VisibleOnly {
		for i := range out {
			out[i] = out[i].StripPayloads()
		}
	}
	return out, nil
}

// Queue lists listings by extraction status, oldest first.
func (s *QueryService) Queue(ctx context.Context, q domain.QueueQuery) ([]domain.Listing, error) {
	if q.Status == "" {
		q.Status = domain.ExtractionQueued
	}
	if _, err := domain.ParseExtractionStatus(string(q.Status)); err != nil {
		return nil, err
	}
	if q.Category != nil && !q.Category.Valid() {
		return nil, fmt.Errorf("category %q: %w", *q.Category, domain.ErrInvalid)
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultQueueLimit
	case q.Limit < 1 || q.Limit > MaxQueueLimit:
		return nil, fmt.Errorf("limit must be between 1 and %d: %w", MaxQueueLimit, domain.ErrInvalid)
	}
	return s.repo.ExtractionQueue(ctx, q)
}

// Stats returns per-category counters, cached briefly.
func (s *QueryService) Stats(ctx context.Context) ([]domain.CategoryStats, error) {
	var out []domain.CategoryStats
	if ok, _ := s.cache.Get(ctx, statsKey, &out); ok {
		return out, nil
	}
	out, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, statsKey, out, int(statsTTL.Seconds()))
	return out, nil
}

func normalizeList(q *domain.ListQuery) error {
	if !q.Category.Valid() {
		return fmt.Errorf("category %q: %w", q.Category, domain.ErrNotFound)
	}
	if !validStatus(q.Status) {
		return fmt.Errorf("status %q: %w", q.Status, domain.ErrInvalid)
	}
	if q.Sort == "" {
		q.Sort = domain.ListSorts[0]
	} else if !validSort(q.Sort) {
		return fmt.Errorf("sort %q: %w", q.Sort, domain.ErrInvalid)
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultListLimit
	case q.Limit < 1 || q.Limit > MaxListLimit:
		return fmt.Errorf("limit must be between 1 and %d: %w", MaxListLimit, domain.ErrInvalid)
	}
	if q.Offset < 0 {
		return fmt.Errorf("offset must not be negative: %w", domain.ErrInvalid)
	}
	for _, p := range []**string{&q.City, &q.Area, &q.Q} {
		if *p != nil && strings.TrimSpace(**p) == "" {
			*p = nil
		}
	}
	return nil
}

func validStatus(st domain.StatusFilter) bool {
	for _, s := range domain.StatusFilters {
		if s == st {
			return true
		}
	}
	return false
}

func validSort(s string) bool {
	for _, v := range domain.ListSorts {
		if v == s {
			return true
		}
	}
	return false
}

// NopCache satisfies domain.Cache without storing anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (NopCache) Set(context.Context, string, any, int) error    { return nil }
func (NopCache) Del(context.Context, ...string) error           { return nil }
