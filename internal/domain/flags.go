package domain

import (
	"fmt"
	"time"
)

// Flags is the visibility state of a listing.
// Invariants: Published iff PublishedAt != nil, Verified iff VerifiedAt != nil,
// Published implies Active.
type Flags struct {
	Active      bool       `json:"active"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

// Visible reports whether the listing appears on public pages.
func (f Flags) Visible() bool { return f.Active && f.Published }

type Transition string

const (
	Publish    Transition = "publish"
	Unpublish  Transition = "unpublish"
	Activate   Transition = "activate"
	Deactivate Transition = "deactivate"
	Verify     Transition = "verify"
	Unverify   Transition = "unverify"
)

var Transitions = []Transition{Publish, Unpublish, Activate, Deactivate, Verify, Unverify}

func ParseTransition(s string) (Transition, error) {
	for _, t := range Transitions {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("transition %q: %w", s, ErrNotFound)
}

// Apply returns the flags after t. Re-publishing or re-verifying keeps the
// original timestamp.
func (f Flags) Apply(t Transition, now time.Time) (Flags, error) {
	now = now.UTC()
	switch t {
	case Publish:
		if !f.Active {
			return f, fmt.Errorf("cannot publish an inactive listing: %w", ErrConflict)
		}
		if !f.Published || f.PublishedAt == nil {
			f.Published, f.PublishedAt = true, &now
		}
	case Unpublish:
		f.Published, f.PublishedAt = false, nil
	case Activate:
		f.Active = true
	case Deactivate:
		f.Active = false
		f.Published, f.PublishedAt = false, nil
	case Verify:
		if !f.Verified || f.VerifiedAt == nil {
			f.Verified, f.VerifiedAt = true, &now
		}
	case Unverify:
		f.Verified, f.VerifiedAt = false, nil
	default:
		return f, fmt.Errorf("transition %q: %w", t, ErrInvalid)
	}
	return f, nil
}
