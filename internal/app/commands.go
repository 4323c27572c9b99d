package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"

	"directory/internal/adapters/observability"
	"directory/internal/domain"
)

const maxSlugAttempts = 100

type CommandService struct {
	repo  domain.ListingRepository
	cache domain.Cache
	now   func() time.Time
}

func NewCommandService(r domain.ListingRepository, c domain.Cache) *CommandService {
	if c == nil {
		c = NopCache{}
	}
	return &CommandService{repo: r, cache: c, now: time.Now}
}

// Create inserts a listing. New listings start active, unpublished and
// unverified with an idle extraction status; the slug is derived from the
// name when not given.
func (s *CommandService) Create(ctx context.Context, c domain.Category, in ListingInput) (domain.Listing, error) {
	if !c.Valid() {
		return domain.Listing{}, fmt.Errorf("category %q: %w", c, domain.ErrNotFound)
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return domain.Listing{}, err
	}

	l := domain.Listing{
		Category: c, Name: in.Name, Description: in.Description, Area: in.Area, City: in.City,
		Address: in.Address, Lat: in.Lat, Lon: in.Lon, Phone: in.Phone, Website: in.Website,
		Email: in.Email, PriceRange: in.PriceRange, Rating: in.Rating, ReviewCount: in.ReviewCount,
		GooglePlaceID: in.GooglePlaceID, Attributes: in.Attributes,
		ExtractionStatus: domain.ExtractionIdle,
	}
	l.Active = in.Active == nil || *in.Active

	if in.Slug != nil {
		l.Slug = in.Slug
	} else {
		sl, err := uniqueSlug(ctx, s.repo, c, in.Name, 0)
		if err != nil {
			return domain.Listing{}, err
		}
		l.Slug = &sl
	}

	for i, im := range in.Images {
		l.Images = append(l.Images, domain.Image{
			URL: im.URL, Alt: im.Alt, Source: domain.SourceManual, SortOrder: i, IsPrimary: im.IsPrimary,
		})
	}
	for i, f := range in.FAQs {
		l.FAQs = append(l.FAQs, domain.FAQ{Question: f.Question, Answer: f.Answer, Source: domain.SourceManual, SortOrder: i})
	}
	for _, p := range in.Policies {
		l.Policies = append(l.Policies, domain.Policy{Kind: policyKind(p.Kind), Title: p.Title, Body: p.Body, Source: domain.SourceManual})
	}

	id, err := s.repo.CreateListing(ctx, l)
	if err != nil {
		return domain.Listing{}, err
	}
	log.Info().Str("category", string(c)).Int64("id", id).Str("slug", deref(l.Slug)).Msg("listing created")
	s.invalidate(ctx, c)
	return s.repo.GetListing(ctx, domain.ListingRef{Category: c, ID: id})
}

// Update applies the set fields. An empty string clears an optional column;
// name and slug cannot be cleared.
func (s *CommandService) Update(ctx context.Context, ref domain.ListingRef, in ListingUpdate) (domain.Listing, error) {
	if err := validateStruct(in); err != nil {
		return domain.Listing{}, err
	}
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if n == "" {
			return domain.Listing{}, fmt.Errorf("name: required: %w", domain.ErrInvalid)
		}
		in.Name = &n
	}
	if in.Slug != nil && *in.Slug == "" {
		return domain.Listing{}, fmt.Errorf("slug: required: %w", domain.ErrInvalid)
	}
	p := in.patch()
	if p.Empty() {
		return domain.Listing{}, fmt.Errorf("no fields to update: %w", domain.ErrInvalid)
	}

	before, err := s.repo.GetListing(ctx, ref)
	if err != nil {
		return domain.Listing{}, err
	}
	if err := s.repo.UpdateListing(ctx, ref, p); err != nil {
		return domain.Listing{}, err
	}
	after, err := s.repo.GetListing(ctx, ref)
	if err != nil {
		return domain.Listing{}, err
	}
	s.invalidate(ctx, ref.Category, deref(before.Slug), deref(after.Slug))
	return after, nil
}

func (s *CommandService) Delete(ctx context.Context, ref domain.ListingRef) error {
	l, err := s.repo.GetListing(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteListing(ctx, ref); err != nil {
		return err
	}
	log.Info().Str("category", string(ref.Category)).Int64("id", ref.ID).Msg("listing deleted")
	s.invalidate(ctx, ref.Category, deref(l.Slug))
	return nil
}

// Transition toggles one visibility flag and returns the updated listing.
func (s *CommandService) Transition(ctx context.Context, ref domain.ListingRef, t domain.Transition) (domain.Listing, error) {
	_, err := s.repo.ApplyTransition(ctx, ref, t, s.now())
	observability.ObserveTransition(string(ref.Category), string(t), err)
	if err != nil {
		return domain.Listing{}, err
	}
	l, err := s.repo.GetListing(ctx, ref)
	if err != nil {
		return domain.Listing{}, err
	}
	log.Info().Str("category", string(ref.Category)).Int64("id", ref.ID).Str("transition", string(t)).
		Bool("active", l.Active).Bool("published", l.Published).Bool("verified", l.Verified).
		Msg("listing flags changed")
	s.invalidate(ctx, ref.Category, deref(l.Slug))
	return l, nil
}

// Enqueue schedules an enrichment run. A running extraction yields ErrConflict.
func (s *CommandService) Enqueue(ctx context.Context, ref domain.ListingRef) (domain.Listing, error) {
	if err := s.repo.Enqueue(ctx, ref, s.now()); err != nil {
		return domain.Listing{}, err
	}
	s.invalidate(ctx, ref.Category)
	return s.repo.GetListing(ctx, ref)
}

// invalidate drops the cached public views of the given slugs and the stats.
func (s *CommandService) invalidate(ctx context.Context, c domain.Category, slugs ...string) {
	keys := []string{statsKey}
	for _, sl := range slugs {
		if sl != "" {
			keys = append(keys, listingKey(c, sl))
		}
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// uniqueSlug derives a slug from name and appends -2, -3... until it is free
// within c. exceptID lets a row keep its own slug.
func uniqueSlug(ctx context.Context, r domain.ListingReader, c domain.Category, name string, exceptID int64) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = singularSlug(c)
	}
	if len(base) > 180 {
		base = strings.TrimRight(base[:180], "-")
	}
	for i := 1; i <= maxSlugAttempts; i++ {
		cand := base
		if i > 1 {
			cand = base + "-" + strconv.Itoa(i)
		}
		taken, err := r.SlugExists(ctx, c, cand, exceptID)
		if err != nil {
			return "", err
		}
		if !taken {
			return cand, nil
		}
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts: %w", base, maxSlugAttempts, domain.ErrConflict)
}

func singularSlug(c domain.Category) string {
	return strings.ReplaceAll(strings.TrimSuffix(c.ImagesTable(), "_images"), "_", "-")
}
