package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"directory/internal/domain"
)

type AuditService struct {
	repo       domain.ListingRepository
	cache      domain.Cache
	staleAfter time.Duration
	now        func() time.Time
}

func NewAuditService(r domain.ListingRepository, cache domain.Cache, staleAfter time.Duration) *AuditService {
	if cache == nil {
		cache = NopCache{}
	}
	return &AuditService{repo: r, cache: cache, staleAfter: staleAfter, now: time.Now}
}

type AuditRequest struct {
	Categories []domain.Category
	Checks     []domain.AuditCheck
	Fix        bool
	Limit      int
}

type AuditReport struct {
	Findings []domain.Finding            `json:"findings"`
	Repaired map[domain.AuditCheck]int64 `json:"repaired,omitempty"`
}

// Run evaluates each check over each category. With Fix set, fixable checks
// are repaired after they have been reported.
func (s *AuditService) Run(ctx context.Context, req AuditRequest) (AuditReport, error) {
	cats := req.Categories
	if len(cats) == 0 {
		cats = domain.Categories
	}
	checks := req.Checks
	if len(checks) == 0 {
		checks = domain.AuditChecks
	}
	opts := domain.AuditOptions{Now: s.now().UTC(), StaleAfter: s.staleAfter, Limit: req.Limit}

	rep := AuditReport{Findings: []domain.Finding{}}
	if req.Fix {
		rep.Repaired = map[domain.AuditCheck]int64{}
	}
	for _, c := range cats {
		for _, chk := range checks {
			found, err := s.repo.AuditFind(ctx, c, chk, opts)
			if err != nil {
				return rep, err
			}
			rep.Findings = append(rep.Findings, found...)
			if !req.Fix || !chk.Fixable() || len(found) == 0 {
				continue
			}
			touched := found
			if opts.Limit > 0 {
				// the repair statement is unbounded, so invalidate every affected row
				all := opts
				all.Limit = 0
				if touched, err = s.repo.AuditFind(ctx, c, chk, all); err != nil {
					return rep, err
				}
			}
			n, err := s.repair(ctx, c, chk, found, opts)
			if err != nil {
				return rep, err
			}
			s.invalidate(ctx, c, touched)
			rep.Repaired[chk] += n
			log.Info().Str("category", string(c)).Str("check", string(chk)).Int64("rows", n).Msg("audit repaired")
		}
	}
	return rep, nil
}

func (s *AuditService) repair(ctx context.Context, c domain.Category, chk domain.AuditCheck, found []domain.Finding, opts domain.AuditOptions) (int64, error) {
	if chk != domain.CheckMissingSlug {
		return s.repo.AuditRepair(ctx, c, chk, opts)
	}
	var n int64
	for _, f := range found {
		sl, err := uniqueSlug(ctx, s.repo, c, f.Name, f.ID)
		if err != nil {
			return n, err
		}
		if err := s.repo.SetSlug(ctx, domain.ListingRef{Category: c, ID: f.ID}, sl); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// invalidate drops the stats entry and the public detail entries of rows a
// repair touched. Slugs are read after the repair so generated ones count.
func (s *AuditService) invalidate(ctx context.Context, c domain.Category, rows []domain.Finding) {
	keys := []string{statsKey}
	for _, f := range rows {
		l, err := s.repo.GetListing(ctx, domain.ListingRef{Category: c, ID: f.ID})
		if err != nil {
			continue
		}
		if sl := deref(l.Slug); sl != "" {
			keys = append(keys, listingKey(c, sl))
		}
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}
