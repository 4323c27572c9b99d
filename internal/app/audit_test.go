package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory/internal/app"
	"directory/internal/app/apptest"
	"directory/internal/domain"
)

func TestAudit_ReportOnly(t *testing.T) {
	repo := apptest.NewRepo()
	repo.Findings[domain.CheckPublishedInactive] = []domain.Finding{
		{Check: domain.CheckPublishedInactive, Category: domain.Hotels, ID: 1, Name: "Grand"},
	}
	repo.Findings[domain.CheckMissingImages] = []domain.Finding{
		{Check: domain.CheckMissingImages, Category: domain.Malls, ID: 2, Name: "Galleria"},
	}
	svc := app.NewAuditService(repo, nil, time.Hour)

	rep, err := svc.Run(context.Background(), app.AuditRequest{})
	require.NoError(t, err)
	assert.Len(t, rep.Findings, 2)
	assert.Nil(t, rep.Repaired)
	assert.Empty(t, repo.Repaired)
}

func TestAudit_FixRepairsFixableChecks(t *testing.T) {
	repo := apptest.NewRepo()
	repo.Put(apptest.Visible(domain.Restaurants, "Casa Azul", "casa-azul"))
	noSlug := apptest.Visible(domain.Restaurants, "Casa Azul", "")
	noSlug.Slug = nil
	ref := repo.Put(noSlug)

	repo.Findings[domain.CheckMissingSlug] = []domain.Finding{
		{Check: domain.CheckMissingSlug, Category: domain.Restaurants, ID: ref.ID, Name: "Casa Azul"},
	}
	repo.Findings[domain.CheckStaleExtraction] = []domain.Finding{
		{Check: domain.CheckStaleExtraction, Category: domain.Restaurants, ID: 7, Name: "Slow"},
	}
	repo.Findings[domain.CheckDuplicateNames] = []domain.Finding{
		{Check: domain.CheckDuplicateNames, Category: domain.Restaurants, ID: 1, Name: "Casa Azul"},
	}
	cache := apptest.NewCache()
	require.NoError(t, cache.Set(context.Background(), "stats", []int{1}, 60))
	require.NoError(t, cache.Set(context.Background(), "listing:restaurants:casa-azul", "stale", 60))
	svc := app.NewAuditService(repo, cache, time.Hour)

	rep, err := svc.Run(context.Background(), app.AuditRequest{
		Categories: []domain.Category{domain.Restaurants},
		Fix:        true,
	})
	require.NoError(t, err)
	assert.Len(t, rep.Findings, 3)
	assert.Equal(t, int64(1), rep.Repaired[domain.CheckMissingSlug])
	assert.Equal(t, int64(1), rep.Repaired[domain.CheckStaleExtraction])
	_, fixedDupes := rep.Repaired[domain.CheckDuplicateNames]
	assert.False(t, fixedDupes, "duplicate names need a human")

	assert.Equal(t, "casa-azul-2", *repo.Get(ref).Slug)
	assert.Equal(t, []domain.AuditCheck{domain.CheckStaleExtraction}, repo.Repaired)

	assert.False(t, cache.Has("stats"))
	assert.Contains(t, cache.Dels, "listing:restaurants:casa-azul-2")
	assert.True(t, cache.Has("listing:restaurants:casa-azul"), "untouched rows keep their entry")
}
