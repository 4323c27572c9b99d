package domain

import "fmt"

type AuditCheck string

const (
	CheckPublishedInactive  AuditCheck = "published-inactive"
	CheckPublishTimestamp   AuditCheck = "publish-timestamp"
	CheckVerifyTimestamp    AuditCheck = "verify-timestamp"
	CheckMissingSlug        AuditCheck = "missing-slug"
	CheckMissingImages      AuditCheck = "missing-images"
	CheckStaleExtraction    AuditCheck = "stale-extraction"
	CheckUnmergedExtraction AuditCheck = "unmerged-extraction"
	CheckDuplicateNames     AuditCheck = "duplicate-names"
)

var AuditChecks = []AuditCheck{
	CheckPublishedInactive, CheckPublishTimestamp, CheckVerifyTimestamp, CheckMissingSlug,
	CheckMissingImages, CheckStaleExtraction, CheckUnmergedExtraction, CheckDuplicateNames,
}

// Fixable reports whether the audit script can repair findings of c.
func (c AuditCheck) Fixable() bool {
	switch c {
	case CheckPublishedInactive, CheckPublishTimestamp, CheckVerifyTimestamp,
		CheckMissingSlug, CheckStaleExtraction:
		return true
	}
	return false
}

func ParseAuditCheck(s string) (AuditCheck, error) {
	for _, c := range AuditChecks {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("audit check %q: %w", s, ErrInvalid)
}

type Finding struct {
	Check    AuditCheck `json:"check"`
	Category Category   `json:"category"`
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Detail   string     `json:"detail"`
}
