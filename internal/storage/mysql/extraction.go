package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"directory/internal/domain"
)

func (r *Repo) Enqueue(ctx context.Context, ref domain.ListingRef, now time.Time) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(enqueueSQL, ref.Category.Table()), now.UTC(), ref.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var status string
	err = r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT extraction_status FROM %s WHERE id = ?", ref.Category.Table()), ref.ID,
	).Scan(&status)
	if err != nil {
		return mapErr(err)
	}
	if domain.ExtractionStatus(status) == domain.ExtractionRunning {
		return fmt.Errorf("extraction already running: %w", domain.ErrConflict)
	}
	return nil
}

func (r *Repo) ClaimQueued(ctx context.Context, c domain.Category, limit int, now time.Time) ([]domain.ListingRef, error) {
	if limit <= 0 {
		return nil, nil
	}
	var refs []domain.ListingRef
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(claimSelectSQL, c.Table()), limit)
		if err != nil {
			return err
		}
		var ids []any
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
			refs = append(refs, domain.ListingRef{Category: c, ID: id})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		q := fmt.Sprintf("UPDATE %s SET extraction_status = 'running', extraction_started_at = ? WHERE id IN (%s)",
			c.Table(), placeholders(len(ids)))
		_, err = tx.ExecContext(ctx, q, append([]any{now.UTC()}, ids...)...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *Repo) ReleaseClaimed(ctx context.Context, refs []domain.ListingRef) error {
	byCat := map[domain.Category][]any{}
	for _, ref := range refs {
		byCat[ref.Category] = append(byCat[ref.Category], ref.ID)
	}
	for c, ids := range byCat {
		q := fmt.Sprintf("UPDATE %s SET extraction_status = 'queued', extraction_started_at = NULL WHERE extraction_status = 'running' AND id IN (%s)",
			c.Table(), placeholders(len(ids)))
		if _, err := r.db.ExecContext(ctx, q, ids...); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) SaveExtraction(ctx context.Context, ref domain.ListingRef, res domain.ExtractionResult) error {
	sets := []string{
		"extraction_status = ?",
		"extraction_progress = ?",
		"places_output = COALESCE(?, places_output)",
		"apify_output = COALESCE(?, apify_output)",
		"firecrawl_output = COALESCE(?, firecrawl_output)",
	}
	args := []any{
		string(res.Status), valJSON(res.Progress.JSON()),
		valJSON(res.PlacesOutput), valJSON(res.ApifyOutput), valJSON(res.FirecrawlOutput),
	}
	if res.Status == domain.ExtractionDone {
		sets = append(sets, "extracted_at = ?")
		args = append(args, res.FinishedAt.UTC())
	}
	ps, pa := patchSets(res.Patch)
	sets = append(sets, ps...)
	args = append(args, pa...)

	return r.inTx(ctx, func(tx *sql.Tx) error {
		q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", ref.Category.Table(), strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, q, append(args, ref.ID)...); err != nil {
			return mapErr(err)
		}
		if err := insertImages(ctx, tx, ref, res.Images); err != nil {
			return err
		}
		if len(res.FAQs) > 0 {
			curated, err := hasManual(ctx, tx, ref.Category.FAQsTable(), ref.ID)
			if err != nil {
				return err
			}
			if !curated {
				if err := replaceExtracted(ctx, tx, ref.Category.FAQsTable(), ref.ID); err != nil {
					return err
				}
				if err := insertFAQs(ctx, tx, ref, res.FAQs); err != nil {
					return err
				}
			}
		}
		if len(res.Policies) > 0 {
			curated, err := hasManual(ctx, tx, ref.Category.PoliciesTable(), ref.ID)
			if err != nil {
				return err
			}
			if !curated {
				if err := replaceExtracted(ctx, tx, ref.Category.PoliciesTable(), ref.ID); err != nil {
					return err
				}
				if err := insertPolicies(ctx, tx, ref, res.Policies); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *Repo) LogMiss(ctx context.Context, ref domain.ListingRef, step, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, string(ref.Category), ref.ID, step, reason)
	return err
}

func hasManual(ctx context.Context, tx *sql.Tx, table string, id int64) (bool, error) {
	var ok bool
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE listing_id = ? AND source = ?)", table),
		id, domain.SourceManual,
	).Scan(&ok)
	return ok, err
}

func replaceExtracted(ctx context.Context, tx *sql.Tx, table string, id int64) error {
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE listing_id = ? AND source <> ?", table), id, domain.SourceManual)
	return err
}

func insertImages(ctx context.Context, tx *sql.Tx, ref domain.ListingRef, imgs []domain.Image) error {
	if len(imgs) == 0 {
		return nil
	}
	values := make([]string, 0, len(imgs))
	args := make([]any, 0, len(imgs)*7)
	for _, im := range imgs {
		values = append(values, "(?,?,?,?,?,?,?)")
		args = append(args, ref.ID, im.URL, urlHash(im.URL), valStr(im.Alt), sourceOr(im.Source), im.SortOrder, im.IsPrimary)
	}
	q := fmt.Sprintf(insertImagesPrefix, ref.Category.ImagesTable()) + strings.Join(values, ",") + insertImagesOnDup
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func insertFAQs(ctx context.Context, tx *sql.Tx, ref domain.ListingRef, faqs []domain.FAQ) error {
	if len(faqs) == 0 {
		return nil
	}
	values := make([]string, 0, len(faqs))
	args := make([]any, 0, len(faqs)*5)
	for _, f := range faqs {
		values = append(values, "(?,?,?,?,?)")
		args = append(args, ref.ID, f.Question, f.Answer, sourceOr(f.Source), f.SortOrder)
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf(insertFAQsPrefix, ref.Category.FAQsTable())+strings.Join(values, ","), args...)
	return err
}

func insertPolicies(ctx context.Context, tx *sql.Tx, ref domain.ListingRef, ps []domain.Policy) error {
	if len(ps) == 0 {
		return nil
	}
	values := make([]string, 0, len(ps))
	args := make([]any, 0, len(ps)*5)
	for _, p := range ps {
		values = append(values, "(?,?,?,?,?)")
		args = append(args, ref.ID, p.Kind, p.Title, p.Body, sourceOr(p.Source))
	}
	q := fmt.Sprintf(insertPoliciesPrefix, ref.Category.PoliciesTable()) + strings.Join(values, ",") + insertPoliciesOnDup
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func sourceOr(s string) string {
	if s == "" {
		return domain.SourceManual
	}
	return s
}
