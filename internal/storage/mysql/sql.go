package mysql

import (
	"strings"

	"directory/internal/domain"
)

// Table names come from domain.Category, a closed set, and are the only
// strings ever spliced into statements; values always go through placeholders.

const listingColumns = `id, slug, name, description, area, city, address, lat, lon, phone, website,
  email, price_range, rating, review_count, google_place_id, attributes, active, published,
  published_at, verified, verified_at, extraction_status, extraction_started_at, extracted_at,
  created_at, updated_at`

const payloadColumns = `extraction_progress, places_output, apify_output, firecrawl_output`

const insertListingSQL = `
INSERT INTO %s
  (slug, name, description, area, city, address, lat, lon, phone, website, email, price_range,
   rating, review_count, google_place_id, attributes, active, published, published_at, verified,
   verified_at, extraction_status)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const lockFlagsSQL = `SELECT active, published, published_at, verified, verified_at FROM %s WHERE id = ? FOR UPDATE`

const writeFlagsSQL = `
UPDATE %s
SET active = ?, published = ?, published_at = ?, verified = ?, verified_at = ?
WHERE id = ?
`

const enqueueSQL = `
UPDATE %s
SET extraction_status = 'queued', extraction_progress = NULL, extraction_started_at = NULL, updated_at = ?
WHERE id = ? AND extraction_status <> 'running'
`

const claimSelectSQL = `
SELECT id FROM %s
WHERE extraction_status = 'queued'
ORDER BY updated_at, id
LIMIT ?
FOR UPDATE SKIP LOCKED
`

const statsSQL = `
SELECT
  COUNT(*),
  COALESCE(SUM(active), 0),
  COALESCE(SUM(published), 0),
  COALESCE(SUM(verified), 0),
  COALESCE(SUM(extraction_status = 'queued'), 0),
  COALESCE(SUM(extraction_status = 'running'), 0),
  COALESCE(SUM(extraction_status = 'failed'), 0)
FROM %s
`

// Child rows. Images de-duplicate on (listing_id, sha1(url)).
const insertImagesPrefix = "INSERT INTO %s\n  (listing_id, url, url_hash, alt, source, sort_order, is_primary)\nVALUES "

const insertImagesOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  alt        = COALESCE(alt, VALUES(alt)),\n" +
	"  is_primary = GREATEST(is_primary, VALUES(is_primary))\n"

const insertFAQsPrefix = "INSERT INTO %s\n  (listing_id, question, answer, source, sort_order)\nVALUES "

const insertPoliciesPrefix = "INSERT INTO %s\n  (listing_id, kind, title, body, source)\nVALUES "

const insertPoliciesOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  title = VALUES(title),\n" +
	"  body  = VALUES(body)\n"

const insertMissSQL = `
INSERT INTO extraction_misses (category, listing_id, step, reason)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE reason = VALUES(reason), hits = hits + 1, seen_at = CURRENT_TIMESTAMP(3)
`

// orderBy maps the public sort keys to ORDER BY clauses.
var orderBy = map[string]string{
	"name":          "name ASC, id ASC",
	"-rating":       "rating IS NULL, rating DESC, id DESC",
	"-published_at": "published_at IS NULL, published_at DESC, id DESC",
	"-created_at":   "created_at DESC, id DESC",
	"-updated_at":   "updated_at DESC, id DESC",
}

// where accumulates AND-ed predicates and their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func statusClause(w *where, s domain.StatusFilter) {
	switch s {
	case domain.StatusVisible:
		w.add("active = 1 AND published = 1")
	case domain.StatusPublished:
		w.add("published = 1")
	case domain.StatusUnpublished:
		w.add("published = 0")
	case domain.StatusActive:
		w.add("active = 1")
	case domain.StatusInactive:
		w.add("active = 0")
	case domain.StatusVerified:
		w.add("verified = 1")
	case domain.StatusUnverified:
		w.add("verified = 0")
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeContains builds a %term% pattern with LIKE metacharacters escaped.
func likeContains(term string) string { return "%" + likeEscaper.Replace(term) + "%" }

func likePrefix(term string) string { return likeEscaper.Replace(term) + "%" }

func textMatchClause(w *where, q string) {
	p := likeContains(q)
	w.add("(name LIKE ? OR area LIKE ? OR city LIKE ?)", p, p, p)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
