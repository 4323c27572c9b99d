package mysql

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"directory/internal/domain"
)

const errDuplicateEntry = 1062

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullStr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}
func nullF64(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	i := int(n.Int64)
	return &i
}
func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

// mapErr turns driver errors into domain sentinels.
func mapErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == errDuplicateEntry {
		return fmt.Errorf("%s: %w", me.Message, domain.ErrConflict)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanListing reads listingColumns, followed by extra destinations.
func scanListing(sc rowScanner, c domain.Category, extra ...any) (domain.Listing, error) {
	l := domain.Listing{Category: c}
	var (
		slug, desc, area, city, addr, phone, web, email, price, placeID sql.NullString
		lat, lon, rating                                                sql.NullFloat64
		reviews                                                         sql.NullInt64
		attrs                                                           []byte
		pubAt, verAt, startedAt, extractedAt                            sql.NullTime
		status                                                          string
	)
	dest := []any{
		&l.ID, &slug, &l.Name, &desc, &area, &city, &addr, &lat, &lon, &phone, &web,
		&email, &price, &rating, &reviews, &placeID, &attrs, &l.Active, &l.Published,
		&pubAt, &l.Verified, &verAt, &status, &startedAt, &extractedAt,
		&l.CreatedAt, &l.UpdatedAt,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return domain.Listing{}, err
	}
	l.Slug, l.Description, l.Area, l.City, l.Address = nullStr(slug), nullStr(desc), nullStr(area), nullStr(city), nullStr(addr)
	l.Phone, l.Website, l.Email, l.PriceRange, l.GooglePlaceID = nullStr(phone), nullStr(web), nullStr(email), nullStr(price), nullStr(placeID)
	l.Lat, l.Lon, l.Rating = nullF64(lat), nullF64(lon), nullF64(rating)
	l.ReviewCount = nullInt(reviews)
	if len(attrs) > 0 {
		l.Attributes = append([]byte(nil), attrs...)
	}
	l.PublishedAt, l.VerifiedAt = nullTime(pubAt), nullTime(verAt)
	l.ExtractionStatus = domain.ExtractionStatus(status)
	l.ExtractionStartedAt, l.ExtractedAt = nullTime(startedAt), nullTime(extractedAt)
	l.CreatedAt, l.UpdatedAt = l.CreatedAt.UTC(), l.UpdatedAt.UTC()
	return l, nil
}

func copyJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func urlHash(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// ---------------------------------------------------------------------------
// Write paths
// ---------------------------------------------------------------------------

func (r *Repo) CreateListing(ctx context.Context, l domain.Listing) (int64, error) {
	if !l.Category.Valid() {
		return 0, fmt.Errorf("category %q: %w", l.Category, domain.ErrInvalid)
	}
	status := l.ExtractionStatus
	if status == "" {
		status = domain.ExtractionIdle
	}
	var id int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(insertListingSQL, l.Category.Table()),
			valStr(l.Slug), l.Name, valStr(l.Description), valStr(l.Area), valStr(l.City),
			valStr(l.Address), valF64(l.Lat), valF64(l.Lon), valStr(l.Phone), valStr(l.Website),
			valStr(l.Email), valStr(l.PriceRange), valF64(l.Rating), valInt(l.ReviewCount),
			valStr(l.GooglePlaceID), valJSON(l.Attributes), l.Active, l.Published,
			valTime(l.PublishedAt), l.Verified, valTime(l.VerifiedAt), string(status),
		)
		if err != nil {
			return mapErr(err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		ref := domain.ListingRef{Category: l.Category, ID: id}
		if err := insertImages(ctx, tx, ref, l.Images); err != nil {
			return err
		}
		if err := insertFAQs(ctx, tx, ref, l.FAQs); err != nil {
			return err
		}
		return insertPolicies(ctx, tx, ref, l.Policies)
	})
	return id, err
}

// patchSets returns SET assignments for the non-nil fields of p.
func patchSets(p domain.ListingPatch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Slug != nil {
		add("slug", *p.Slug)
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	str := map[string]*string{
		"description": p.Description, "area": p.Area, "city": p.City, "address": p.Address,
		"phone": p.Phone, "website": p.Website, "email": p.Email, "price_range": p.PriceRange,
		"google_place_id": p.GooglePlaceID,
	}
	cols := make([]string, 0, len(str))
	for col := range str {
		cols = append(cols, col)
	}
	sort.Strings(cols) // stable statement text
	for _, col := range cols {
		if v := str[col]; v != nil {
			// an explicit empty string clears the column
			if *v == "" {
				add(col, nil)
			} else {
				add(col, *v)
			}
		}
	}
	if p.Lat != nil {
		add("lat", *p.Lat)
	}
	if p.Lon != nil {
		add("lon", *p.Lon)
	}
	if p.Rating != nil {
		add("rating", *p.Rating)
	}
	if p.ReviewCount != nil {
		add("review_count", *p.ReviewCount)
	}
	if len(p.Attributes) > 0 {
		add("attributes", string(p.Attributes))
	}
	return sets, args
}

func (r *Repo) UpdateListing(ctx context.Context, ref domain.ListingRef, p domain.ListingPatch) error {
	sets, args := patchSets(p)
	if len(sets) == 0 {
		return r.mustExist(ctx, ref)
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", ref.Category.Table(), strings.Join(sets, ", "))
	res, err := r.db.ExecContext(ctx, q, append(args, ref.ID)...)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// unchanged values also report zero rows
		return r.mustExist(ctx, ref)
	}
	return nil
}

func (r *Repo) DeleteListing(ctx context.Context, ref domain.ListingRef) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", ref.Category.Table()), ref.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) ApplyTransition(ctx context.Context, ref domain.ListingRef, t domain.Transition, now time.Time) (domain.Flags, error) {
	var out domain.Flags
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var f domain.Flags
		var pubAt, verAt sql.NullTime
		row := tx.QueryRowContext(ctx, fmt.Sprintf(lockFlagsSQL, ref.Category.Table()), ref.ID)
		if err := row.Scan(&f.Active, &f.Published, &pubAt, &f.Verified, &verAt); err != nil {
			return mapErr(err)
		}
		f.PublishedAt, f.VerifiedAt = nullTime(pubAt), nullTime(verAt)

		next, err := f.Apply(t, now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(writeFlagsSQL, ref.Category.Table()),
			next.Active, next.Published, valTime(next.PublishedAt), next.Verified, valTime(next.VerifiedAt), ref.ID,
		); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (r *Repo) SetSlug(ctx context.Context, ref domain.ListingRef, slug string) error {
	return r.UpdateListing(ctx, ref, domain.ListingPatch{Slug: &slug})
}

// ---------------------------------------------------------------------------
// Read paths
// ---------------------------------------------------------------------------

func (r *Repo) GetListing(ctx context.Context, ref domain.ListingRef) (domain.Listing, error) {
	q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE id = ?", listingColumns, payloadColumns, ref.Category.Table())
	var progress, places, apify, firecrawl []byte
	l, err := scanListing(r.db.QueryRowContext(ctx, q, ref.ID), ref.Category, &progress, &places, &apify, &firecrawl)
	if err != nil {
		return domain.Listing{}, mapErr(err)
	}
	l.ExtractionProgress, l.PlacesOutput = copyJSON(progress), copyJSON(places)
	l.ApifyOutput, l.FirecrawlOutput = copyJSON(apify), copyJSON(firecrawl)
	if err := r.loadChildren(ctx, &l); err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}

func (r *Repo) GetListingBySlug(ctx context.Context, c domain.Category, slug string) (domain.Listing, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE slug = ?", listingColumns, c.Table())
	l, err := scanListing(r.db.QueryRowContext(ctx, q, slug), c)
	if err != nil {
		return domain.Listing{}, mapErr(err)
	}
	if err := r.loadChildren(ctx, &l); err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}

func (r *Repo) loadChildren(ctx context.Context, l *domain.Listing) error {
	c := l.Category

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, url, alt, source, sort_order, is_primary FROM %s WHERE listing_id = ? ORDER BY is_primary DESC, sort_order, id",
		c.ImagesTable()), l.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var im domain.Image
		var alt sql.NullString
		if err := rows.Scan(&im.ID, &im.URL, &alt, &im.Source, &im.SortOrder, &im.IsPrimary); err != nil {
			rows.Close()
			return err
		}
		im.Alt = nullStr(alt)
		l.Images = append(l.Images, im)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, question, answer, source, sort_order FROM %s WHERE listing_id = ? ORDER BY sort_order, id",
		c.FAQsTable()), l.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var f domain.FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer, &f.Source, &f.SortOrder); err != nil {
			rows.Close()
			return err
		}
		l.FAQs = append(l.FAQs, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, kind, title, body, source FROM %s WHERE listing_id = ? ORDER BY kind, id",
		c.PoliciesTable()), l.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.Kind, &p.Title, &p.Body, &p.Source); err != nil {
			return err
		}
		l.Policies = append(l.Policies, p)
	}
	return rows.Err()
}

func (r *Repo) ListListings(ctx context.Context, q domain.ListQuery) (domain.ListingsPage, error) {
	var w where
	statusClause(&w, q.Status)
	if q.Extraction != nil {
		w.add("extraction_status = ?", string(*q.Extraction))
	}
	if q.City != nil {
		w.add("city = ?", *q.City)
	}
	if q.Area != nil {
		w.add("area = ?", *q.Area)
	}
	if q.Verified != nil {
		w.add("verified = ?", *q.Verified)
	}
	if q.Q != nil && *q.Q != "" {
		textMatchClause(&w, *q.Q)
	}
	order, ok := orderBy[q.Sort]
	if !ok {
		order = orderBy[domain.ListSorts[0]]
	}

	page := domain.ListingsPage{Limit: q.Limit, Offset: q.Offset}
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.Category.Table(), w.String())
	if err := r.db.QueryRowContext(ctx, countSQL, w.args...).Scan(&page.Total); err != nil {
		return domain.ListingsPage{}, err
	}

	listSQL := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT ? OFFSET ?",
		listingColumns, q.Category.Table(), w.String(), order)
	items, err := r.queryListings(ctx, q.Category, listSQL, append(w.args, q.Limit, q.Offset)...)
	if err != nil {
		return domain.ListingsPage{}, err
	}
	page.Items = items
	if next := q.Offset + len(items); next < page.Total {
		page.NextOffset = &next
	}
	return page, nil
}

func (r *Repo) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Listing, error) {
	cats := q.Categories
	if len(cats) == 0 {
		cats = domain.Categories
	}
	prefix := likePrefix(q.Q)
	var out []domain.Listing
	for _, c := range cats {
		var w where
		if q.VisibleOnly {
			statusClause(&w, domain.StatusVisible)
		}
		textMatchClause(&w, q.Q)
		s := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY (name LIKE ?) DESC, name, id LIMIT ?",
			listingColumns, c.Table(), w.String())
		items, err := r.queryListings(ctx, c, s, append(w.args, prefix, q.Limit)...)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	lower := strings.ToLower(q.Q)
	sort.SliceStable(out, func(i, j int) bool {
		pi := strings.HasPrefix(strings.ToLower(out[i].Name), lower)
		pj := strings.HasPrefix(strings.ToLower(out[j].Name), lower)
		if pi != pj {
			return pi
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *Repo) ExtractionQueue(ctx context.Context, q domain.QueueQuery) ([]domain.Listing, error) {
	cats := domain.Categories
	if q.Category != nil {
		cats = []domain.Category{*q.Category}
	}
	var out []domain.Listing
	for _, c := range cats {
		s := fmt.Sprintf("SELECT %s FROM %s WHERE extraction_status = ? ORDER BY updated_at, id LIMIT ?",
			listingColumns, c.Table())
		items, err := r.queryListings(ctx, c, s, string(q.Status), q.Limit)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *Repo) Stats(ctx context.Context) ([]domain.CategoryStats, error) {
	out := make([]domain.CategoryStats, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		s := domain.CategoryStats{Category: c}
		if err := r.db.QueryRowContext(ctx, fmt.Sprintf(statsSQL, c.Table())).Scan(
			&s.Total, &s.Active, &s.Published, &s.Verified, &s.Queued, &s.Running, &s.Failed,
		); err != nil {
			return nil, fmt.Errorf("stats %s: %w", c, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Repo) SlugExists(ctx context.Context, c domain.Category, slug string, exceptID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE slug = ? AND id <> ?)", c.Table()), slug, exceptID,
	).Scan(&ok)
	return ok, err
}

func (r *Repo) queryListings(ctx context.Context, c domain.Category, q string, args ...any) ([]domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows, c)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) mustExist(ctx context.Context, ref domain.ListingRef) error {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", ref.Category.Table()), ref.ID,
	).Scan(&ok)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
