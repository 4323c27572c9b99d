package shared_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"directory/internal/shared"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CACHE_TTL_SECONDS", "")
	t.Setenv("ENRICH_WORKERS", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("ADMIN_TOKEN", "")

	c := shared.Load()
	assert.Equal(t, "prod", c.AppEnv)
	assert.Equal(t, 15*time.Minute, c.CacheTTL)
	assert.Equal(t, 4, c.EnrichWorkers)
	assert.False(t, c.IsDev())
	assert.Contains(t, c.Warnings, "ADMIN_TOKEN is empty outside dev")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("ENRICH_WORKERS", "not-a-number")
	t.Setenv("ADMIN_TOKEN", "s3cret")

	c := shared.Load()
	assert.True(t, c.IsDev())
	assert.Equal(t, time.Minute, c.CacheTTL)
	assert.Equal(t, 4, c.EnrichWorkers)
	assert.Equal(t, "s3cret", c.AdminToken)
	assert.Contains(t, c.Warnings, `ENRICH_WORKERS="not-a-number" is not an integer, using default`)
	assert.NotContains(t, c.Warnings, "ADMIN_TOKEN is empty outside dev")
}
