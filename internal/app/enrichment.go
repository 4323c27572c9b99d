package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"directory/internal/adapters/httpx"
	"directory/internal/adapters/observability"
	"directory/internal/domain"
)

// EnrichmentService runs the three provider steps for one listing and stores
// what they return. A nil provider makes its step "skipped".
type EnrichmentService struct {
	repo       domain.ListingRepository
	places     domain.PlaceSearcher
	scraper    domain.Scraper
	reviews    domain.ReviewExtractor
	cache      domain.Cache
	maxReviews int
	now        func() time.Time
}

func NewEnrichmentService(
	repo domain.ListingRepository,
	places domain.PlaceSearcher,
	scraper domain.Scraper,
	reviews domain.ReviewExtractor,
	cache domain.Cache,
	maxReviews int,
) *EnrichmentService {
	if cache == nil {
		cache = NopCache{}
	}
	if maxReviews <= 0 {
		maxReviews = 50
	}
	return &EnrichmentService{
		repo: repo, places: places, scraper: scraper, reviews: reviews,
		cache: cache, maxReviews: maxReviews, now: time.Now,
	}
}

// run tracks one enrichment pass.
type run struct {
	ref  domain.ListingRef
	prog domain.Progress
	res  domain.ExtractionResult
}

func (s *EnrichmentService) mark(r *run, step string, st domain.StepStatus, err error) {
	sr := domain.StepResult{Status: st, At: s.now().UTC()}
	if err != nil {
		sr.Error = err.Error()
	}
	r.prog.Steps[step] = sr
	observability.ObserveExtractionStep(string(r.ref.Category), step, string(st))
}

// miss records a provider that had nothing for the listing. The run goes on.
func (s *EnrichmentService) miss(ctx context.Context, r *run, step string, err error) {
	s.mark(r, step, domain.StepMiss, err)
	if lerr := s.repo.LogMiss(ctx, r.ref, step, err.Error()); lerr != nil {
		log.Warn().Err(lerr).Str("step", step).Int64("id", r.ref.ID).Msg("log miss failed")
	}
}

// Enrich fetches place details, scrapes the website and pulls reviews. Misses
// (404/401/403) are recorded and skipped; any other provider error fails the
// run and is returned after the failure has been saved.
func (s *EnrichmentService) Enrich(ctx context.Context, ref domain.ListingRef) error {
	l, err := s.repo.GetListing(ctx, ref)
	if err != nil {
		return err
	}
	started := s.now().UTC()
	r := &run{
		ref:  ref,
		prog: domain.Progress{RunID: uuid.NewString(), StartedAt: started, Steps: map[string]domain.StepResult{}},
	}
	logger := log.With().Str("run_id", r.prog.RunID).Str("category", string(ref.Category)).Int64("id", ref.ID).Logger()
	logger.Info().Str("name", l.Name).Msg("enrichment started")

	var cand domain.ListingPatch

	// 1) Place details. Search by name when no place id is stored yet.
	placeID := deref(l.GooglePlaceID)
	if s.places == nil {
		s.mark(r, domain.StepPlaces, domain.StepSkipped, nil)
	} else if place, err := s.lookupPlace(ctx, l); err != nil {
		if !httpx.IsMiss(err) {
			return s.fail(ctx, r, domain.StepPlaces, err)
		}
		s.miss(ctx, r, domain.StepPlaces, err)
	} else {
		s.mark(r, domain.StepPlaces, domain.StepDone, nil)
		r.res.PlacesOutput = marshalRaw(place, "places")
		pd := mapPlace(place)
		cand = pd.Patch
		if placeID == "" {
			placeID = pd.PlaceID
		}
	}

	// 2) Website scrape.
	website := deref(l.Website)
	if website == "" {
		website = deref(cand.Website)
	}
	if s.scraper == nil || website == "" {
		s.mark(r, domain.StepFirecrawl, domain.StepSkipped, nil)
	} else if data, err := s.scraper.Scrape(ctx, website); err != nil {
		if !httpx.IsMiss(err) {
			return s.fail(ctx, r, domain.StepFirecrawl, err)
		}
		s.miss(ctx, r, domain.StepFirecrawl, err)
	} else {
		s.mark(r, domain.StepFirecrawl, domain.StepDone, nil)
		r.res.FirecrawlOutput = marshalRaw(data, "firecrawl")
		sd := mapScrape(data)
		cand.Description = longer(cand.Description, sd.Description)
		if cand.Phone == nil {
			cand.Phone = sd.Phone
		}
		cand.Email = sd.Email
		r.res.Images, r.res.FAQs, r.res.Policies = sd.Images, sd.FAQs, sd.Policies
	}

	// 3) Reviews. Needs a place id.
	if s.reviews == nil || placeID == "" {
		s.mark(r, domain.StepApify, domain.StepSkipped, nil)
	} else if items, err := s.reviews.GetReviews(ctx, placeID, s.maxReviews); err != nil {
		if !httpx.IsMiss(err) {
			return s.fail(ctx, r, domain.StepApify, err)
		}
		s.miss(ctx, r, domain.StepApify, err)
	} else {
		s.mark(r, domain.StepApify, domain.StepDone, nil)
		r.res.ApifyOutput = marshalRaw(items, "apify")
		if cand.Rating == nil || cand.ReviewCount == nil {
			st := mapReviewStats(items)
			cand.Rating, cand.ReviewCount = st.Rating, st.Count
		}
	}

	r.res.Patch = mergeMissing(l, cand)
	r.res.Status = domain.ExtractionDone
	if err := s.save(ctx, r); err != nil {
		return err
	}
	s.invalidate(ctx, l)
	logger.Info().
		Dur("took", s.now().UTC().Sub(started)).
		Int("images", len(r.res.Images)).Int("faqs", len(r.res.FAQs)).Int("policies", len(r.res.Policies)).
		Msg("enrichment done")
	return nil
}

func (s *EnrichmentService) lookupPlace(ctx context.Context, l domain.Listing) (map[string]any, error) {
	id := deref(l.GooglePlaceID)
	if id == "" {
		q := joinNonEmpty(", ", l.Name, deref(l.Area), deref(l.City))
		hits, err := s.places.SearchText(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if id = deref(firstNonEmptyAlias(h, placeAliases, "place_id")); id != "" {
				break
			}
		}
		if id == "" {
			return nil, fmt.Errorf("no place matches %q: %w", q, domain.ErrNotFound)
		}
	}
	return s.places.GetPlace(ctx, id)
}

// fail stores what was fetched so far with status failed and returns err.
func (s *EnrichmentService) fail(ctx context.Context, r *run, step string, err error) error {
	s.mark(r, step, domain.StepFailed, err)
	r.res.Status = domain.ExtractionFailed
	r.res.Images, r.res.FAQs, r.res.Policies = nil, nil, nil
	r.res.Patch = domain.ListingPatch{}
	if serr := s.save(ctx, r); serr != nil {
		log.Error().Err(serr).Int64("id", r.ref.ID).Msg("save failed extraction")
	}
	log.Warn().Err(err).Str("run_id", r.prog.RunID).Str("step", step).Int64("id", r.ref.ID).Msg("enrichment failed")
	return fmt.Errorf("%s step for %s/%d: %w", step, r.ref.Category, r.ref.ID, err)
}

func (s *EnrichmentService) save(ctx context.Context, r *run) error {
	fin := s.now().UTC()
	r.prog.FinishedAt = &fin
	r.res.Progress = r.prog
	r.res.FinishedAt = fin
	// a cancelled worker still records the outcome
	return s.repo.SaveExtraction(context.WithoutCancel(ctx), r.ref, r.res)
}

func (s *EnrichmentService) invalidate(ctx context.Context, l domain.Listing) {
	keys := []string{statsKey}
	if sl := deref(l.Slug); sl != "" {
		keys = append(keys, listingKey(l.Category, sl))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}
