// Package apptest holds in-memory implementations of the domain ports for tests.
package apptest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"directory/internal/domain"
)

// Repo implements domain.ListingRepository over a map.
type Repo struct {
	mu          sync.Mutex
	rows        map[domain.ListingRef]domain.Listing
	nextID      int64
	Misses      []string
	Saved       []domain.ExtractionResult
	Findings    map[domain.AuditCheck][]domain.Finding
	Repaired    []domain.AuditCheck
	BySlugCalls int
	StatsCalls  int
}

var _ domain.ListingRepository = (*Repo)(nil)

func NewRepo() *Repo {
	return &Repo{rows: map[domain.ListingRef]domain.Listing{}, Findings: map[domain.AuditCheck][]domain.Finding{}}
}

// Put stores l as-is and returns its ref.
func (m *Repo) Put(l domain.Listing) domain.ListingRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	l.ID = m.nextID
	if l.ExtractionStatus == "" {
		l.ExtractionStatus = domain.ExtractionIdle
	}
	m.rows[l.Ref()] = l
	return l.Ref()
}

func (m *Repo) Get(ref domain.ListingRef) domain.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[ref]
}

func (m *Repo) GetListing(ctx context.Context, ref domain.ListingRef) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[ref]
	if !ok {
		return domain.Listing{}, fmt.Errorf("%s/%d: %w", ref.Category, ref.ID, domain.ErrNotFound)
	}
	return l, nil
}

func (m *Repo) GetListingBySlug(ctx context.Context, c domain.Category, slug string) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BySlugCalls++
	for _, l := range m.rows {
		if l.Category == c && l.Slug != nil && *l.Slug == slug {
			return l, nil
		}
	}
	return domain.Listing{}, domain.ErrNotFound
}

func (m *Repo) sorted(c *domain.Category) []domain.Listing {
	var out []domain.Listing
	for _, l := range m.rows {
		if c == nil || l.Category == *c {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matchStatus(l domain.Listing, s domain.StatusFilter) bool {
	switch s {
	case domain.StatusVisible:
		return l.Visible()
	case domain.StatusPublished:
		return l.Published
	case domain.StatusUnpublished:
		return !l.Published
	case domain.StatusActive:
		return l.Active
	case domain.StatusInactive:
		return !l.Active
	case domain.StatusVerified:
		return l.Verified
	case domain.StatusUnverified:
		return !l.Verified
	}
	return true
}

func (m *Repo) ListListings(ctx context.Context, q domain.ListQuery) (domain.ListingsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Listing
	for _, l := range m.sorted(&q.Category) {
		if matchStatus(l, q.Status) {
			all = append(all, l)
		}
	}
	page := domain.ListingsPage{Total: len(all), Limit: q.Limit, Offset: q.Offset, Items: []domain.Listing{}}
	for i := q.Offset; i < len(all) && i < q.Offset+q.Limit; i++ {
		page.Items = append(page.Items, all[i])
	}
	return page, nil
}

func (m *Repo) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Listing
	for _, l := range m.sorted(nil) {
		if q.VisibleOnly && !l.Visible() {
			continue
		}
		if strings.Contains(strings.ToLower(l.Name), strings.ToLower(q.Q)) && len(out) < q.Limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Repo) ExtractionQueue(ctx context.Context, q domain.QueueQuery) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Listing
	for _, l := range m.sorted(q.Category) {
		if l.ExtractionStatus == q.Status && len(out) < q.Limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Repo) Stats(ctx context.Context) ([]domain.CategoryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatsCalls++
	var out []domain.CategoryStats
	for _, c := range domain.Categories {
		st := domain.CategoryStats{Category: c}
		for _, l := range m.sorted(&c) {
			st.Total++
			if l.Published {
				st.Published++
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Repo) SlugExists(ctx context.Context, c domain.Category, slug string, exceptID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.rows {
		if l.Category == c && l.ID != exceptID && l.Slug != nil && *l.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *Repo) CreateListing(ctx context.Context, l domain.Listing) (int64, error) {
	if l.Slug == nil {
		return 0, domain.ErrInvalid
	}
	if ok, _ := m.SlugExists(ctx, l.Category, *l.Slug, 0); ok {
		return 0, domain.ErrConflict
	}
	l.CreatedAt = time.Now().UTC()
	return m.Put(l).ID, nil
}

func (m *Repo) UpdateListing(ctx context.Context, ref domain.ListingRef, p domain.ListingPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[ref]
	if !ok {
		return domain.ErrNotFound
	}
	m.rows[ref] = p.Apply(l)
	return nil
}

func (m *Repo) DeleteListing(ctx context.Context, ref domain.ListingRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[ref]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rows, ref)
	return nil
}

func (m *Repo) ApplyTransition(ctx context.Context, ref domain.ListingRef, t domain.Transition, now time.Time) (domain.Flags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[ref]
	if !ok {
		return domain.Flags{}, domain.ErrNotFound
	}
	f, err := l.Flags.Apply(t, now)
	if err != nil {
		return l.Flags, err
	}
	l.Flags = f
	m.rows[ref] = l
	return f, nil
}

func (m *Repo) Enqueue(ctx context.Context, ref domain.ListingRef, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[ref]
	if !ok {
		return domain.ErrNotFound
	}
	if l.ExtractionStatus == domain.ExtractionRunning {
		return domain.ErrConflict
	}
	l.ExtractionStatus = domain.ExtractionQueued
	m.rows[ref] = l
	return nil
}

func (m *Repo) ClaimQueued(ctx context.Context, c domain.Category, limit int, now time.Time) ([]domain.ListingRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ListingRef
	for _, l := range m.sorted(&c) {
		if l.ExtractionStatus != domain.ExtractionQueued || len(out) == limit {
			continue
		}
		l.ExtractionStatus = domain.ExtractionRunning
		l.ExtractionStartedAt = &now
		m.rows[l.Ref()] = l
		out = append(out, l.Ref())
	}
	return out, nil
}

func (m *Repo) ReleaseClaimed(ctx context.Context, refs []domain.ListingRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		l, ok := m.rows[ref]
		if !ok || l.ExtractionStatus != domain.ExtractionRunning {
			continue
		}
		l.ExtractionStatus = domain.ExtractionQueued
		l.ExtractionStartedAt = nil
		m.rows[ref] = l
	}
	return nil
}

func (m *Repo) SaveExtraction(ctx context.Context, ref domain.ListingRef, r domain.ExtractionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[ref]
	if !ok {
		return domain.ErrNotFound
	}
	m.Saved = append(m.Saved, r)
	l = r.Patch.Apply(l)
	l.ExtractionStatus = r.Status
	l.ExtractionProgress = r.Progress.JSON()
	if r.PlacesOutput != nil {
		l.PlacesOutput = r.PlacesOutput
	}
	if r.FirecrawlOutput != nil {
		l.FirecrawlOutput = r.FirecrawlOutput
	}
	if r.ApifyOutput != nil {
		l.ApifyOutput = r.ApifyOutput
	}
	l.Images = append(l.Images, r.Images...)
	m.rows[ref] = l
	return nil
}

func (m *Repo) LogMiss(ctx context.Context, ref domain.ListingRef, step, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Misses = append(m.Misses, step)
	return nil
}

func (m *Repo) AuditFind(ctx context.Context, c domain.Category, check domain.AuditCheck, opts domain.AuditOptions) ([]domain.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Finding
	for _, f := range m.Findings[check] {
		if f.Category == c {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Repo) AuditRepair(ctx context.Context, c domain.Category, check domain.AuditCheck, opts domain.AuditOptions) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Repaired = append(m.Repaired, check)
	var n int64
	for _, f := range m.Findings[check] {
		if f.Category == c {
			n++
		}
	}
	return n, nil
}

func (m *Repo) SetSlug(ctx context.Context, ref domain.ListingRef, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[ref]
	if !ok {
		return domain.ErrNotFound
	}
	l.Slug = &slug
	m.rows[ref] = l
	return nil
}

// ---- JSON cache ----

// Cache stores JSON like the Redis adapter does, so cached values round-trip.
type Cache struct {
	mu    sync.Mutex
	store map[string][]byte
	Dels  []string
}

func NewCache() *Cache { return &Cache{store: map[string][]byte{}} }

func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = b
	return nil
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.store, k)
		c.Dels = append(c.Dels, k)
	}
	return nil
}

func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

// ---- helpers ----

// Visible builds an active, published listing.
func Visible(c domain.Category, name, slug string) domain.Listing {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.Listing{
		Category: c, Name: name, Slug: &slug,
		Flags: domain.Flags{Active: true, Published: true, PublishedAt: &at},
	}
}
