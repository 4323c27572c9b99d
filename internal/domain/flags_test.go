package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFlagsApply_PublishSetsTimestamp(t *testing.T) {
	f, err := domain.Flags{Active: true}.Apply(domain.Publish, now)
	require.NoError(t, err)
	assert.True(t, f.Published)
	require.NotNil(t, f.PublishedAt)
	assert.True(t, f.PublishedAt.Equal(now))
	assert.True(t, f.Visible())
}

func TestFlagsApply_RepublishKeepsOriginalTimestamp(t *testing.T) {
	first, err := domain.Flags{Active: true}.Apply(domain.Publish, now)
	require.NoError(t, err)

	again, err := first.Apply(domain.Publish, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, again.PublishedAt.Equal(now))
}

func TestFlagsApply_PublishInactiveConflicts(t *testing.T) {
	f, err := domain.Flags{}.Apply(domain.Publish, now)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.False(t, f.Published)
	assert.Nil(t, f.PublishedAt)
}

func TestFlagsApply_UnpublishClearsTimestamp(t *testing.T) {
	ts := now
	f, err := domain.Flags{Active: true, Published: true, PublishedAt: &ts}.Apply(domain.Unpublish, now)
	require.NoError(t, err)
	assert.False(t, f.Published)
	assert.Nil(t, f.PublishedAt)
	assert.True(t, f.Active)
}

func TestFlagsApply_DeactivateUnpublishes(t *testing.T) {
	ts := now
	f, err := domain.Flags{Active: true, Published: true, PublishedAt: &ts}.Apply(domain.Deactivate, now)
	require.NoError(t, err)
	assert.False(t, f.Active)
	assert.False(t, f.Published)
	assert.Nil(t, f.PublishedAt)
	assert.False(t, f.Visible())
}

func TestFlagsApply_Verify(t *testing.T) {
	f, err := domain.Flags{}.Apply(domain.Verify, now)
	require.NoError(t, err)
	assert.True(t, f.Verified)
	require.NotNil(t, f.VerifiedAt)

	f, err = f.Apply(domain.Unverify, now)
	require.NoError(t, err)
	assert.False(t, f.Verified)
	assert.Nil(t, f.VerifiedAt)
}

func TestFlagsApply_Invariants(t *testing.T) {
	f := domain.Flags{}
	seq := []domain.Transition{
		domain.Activate, domain.Publish, domain.Verify, domain.Deactivate, domain.Activate,
		domain.Publish, domain.Unverify, domain.Unpublish, domain.Publish,
	}
	for _, tr := range seq {
		var err error
		f, err = f.Apply(tr, now)
		require.NoError(t, err, tr)
		assert.Equal(t, f.Published, f.PublishedAt != nil, "after %s", tr)
		assert.Equal(t, f.Verified, f.VerifiedAt != nil, "after %s", tr)
		if f.Published {
			assert.True(t, f.Active, "after %s", tr)
		}
	}
}

func TestParseTransition(t *testing.T) {
	tr, err := domain.ParseTransition("unpublish")
	require.NoError(t, err)
	assert.Equal(t, domain.Unpublish, tr)

	_, err = domain.ParseTransition("archive")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
