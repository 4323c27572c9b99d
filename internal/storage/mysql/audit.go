package mysql

import (
	"context"
	"fmt"

	"directory/internal/domain"
)

// auditCondition returns the WHERE predicate (without WHERE) selecting rows that fail check.
func auditCondition(c domain.Category, check domain.AuditCheck, opts domain.AuditOptions) (string, []any, error) {
	switch check {
	case domain.CheckPublishedInactive:
		return "published = 1 AND active = 0", nil, nil
	case domain.CheckPublishTimestamp:
		return "((published = 1 AND published_at IS NULL) OR (published = 0 AND published_at IS NOT NULL))", nil, nil
	case domain.CheckVerifyTimestamp:
		return "((verified = 1 AND verified_at IS NULL) OR (verified = 0 AND verified_at IS NOT NULL))", nil, nil
	case domain.CheckMissingSlug:
		return "(slug IS NULL OR slug = '')", nil, nil
	case domain.CheckMissingImages:
		return fmt.Sprintf("published = 1 AND NOT EXISTS (SELECT 1 FROM %s i WHERE i.listing_id = %s.id)",
			c.ImagesTable(), c.Table()), nil, nil
	case domain.CheckStaleExtraction:
		cutoff := opts.Now.Add(-opts.StaleAfter).UTC()
		return "extraction_status = 'running' AND (extraction_started_at IS NULL OR extraction_started_at < ?)",
			[]any{cutoff}, nil
	case domain.CheckUnmergedExtraction:
		return "extraction_status = 'done' AND (description IS NULL OR description = '') AND " +
			"(places_output IS NOT NULL OR firecrawl_output IS NOT NULL OR apify_output IS NOT NULL)", nil, nil
	}
	return "", nil, fmt.Errorf("audit check %q: %w", check, domain.ErrInvalid)
}

var auditDetail = map[domain.AuditCheck]string{
	domain.CheckPublishedInactive:  "'published but inactive'",
	domain.CheckPublishTimestamp:   "CONCAT('published=', published, ' published_at=', COALESCE(published_at, 'NULL'))",
	domain.CheckVerifyTimestamp:    "CONCAT('verified=', verified, ' verified_at=', COALESCE(verified_at, 'NULL'))",
	domain.CheckMissingSlug:        "'no slug'",
	domain.CheckMissingImages:      "'published without images'",
	domain.CheckStaleExtraction:    "CONCAT('running since ', COALESCE(extraction_started_at, 'unknown'))",
	domain.CheckUnmergedExtraction: "'payloads stored but no description'",
}

const duplicateNamesSQL = `
SELECT MIN(id), MIN(name), CONCAT(COUNT(*), ' rows named alike in ', COALESCE(NULLIF(MIN(COALESCE(city, '')), ''), 'unknown city'))
FROM %s
GROUP BY LOWER(name), COALESCE(city, '')
HAVING COUNT(*) > 1
ORDER BY MIN(id)
LIMIT ?
`

func (r *Repo) AuditFind(ctx context.Context, c domain.Category, check domain.AuditCheck, opts domain.AuditOptions) ([]domain.Finding, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	var (
		q    string
		args []any
	)
	if check == domain.CheckDuplicateNames {
		q, args = fmt.Sprintf(duplicateNamesSQL, c.Table()), []any{limit}
	} else {
		cond, cargs, err := auditCondition(c, check, opts)
		if err != nil {
			return nil, err
		}
		q = fmt.Sprintf("SELECT id, name, %s FROM %s WHERE %s ORDER BY id LIMIT ?", auditDetail[check], c.Table(), cond)
		args = append(cargs, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit %s on %s: %w", check, c, err)
	}
	defer rows.Close()
	var out []domain.Finding
	for rows.Next() {
		f := domain.Finding{Check: check, Category: c}
		if err := rows.Scan(&f.ID, &f.Name, &f.Detail); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

var auditRepairSet = map[domain.AuditCheck]string{
	domain.CheckPublishedInactive: "published = 0, published_at = NULL",
	domain.CheckPublishTimestamp:  "published_at = CASE WHEN published = 1 THEN COALESCE(published_at, updated_at) ELSE NULL END",
	domain.CheckVerifyTimestamp:   "verified_at = CASE WHEN verified = 1 THEN COALESCE(verified_at, updated_at) ELSE NULL END",
	domain.CheckStaleExtraction:   "extraction_status = 'failed'",
}

func (r *Repo) AuditRepair(ctx context.Context, c domain.Category, check domain.AuditCheck, opts domain.AuditOptions) (int64, error) {
	set, ok := auditRepairSet[check]
	if !ok {
		return 0, fmt.Errorf("audit check %q has no bulk repair: %w", check, domain.ErrInvalid)
	}
	cond, args, err := auditCondition(c, check, opts)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s", c.Table(), set, cond), args...)
	if err != nil {
		return 0, fmt.Errorf("repair %s on %s: %w", check, c, err)
	}
	return res.RowsAffected()
}
