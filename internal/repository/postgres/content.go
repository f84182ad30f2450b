package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/proshano/kcru-mailer/internal/domain"
)

// ContentRepo serves both campaign feeds: the recruiting-study list and
// the publication cache. It implements dispatch.ContentSource and
// content.PublicationStore.
type ContentRepo struct{ db *sql.DB }

// NewContentRepo creates a Postgres-backed content repository.
func NewContentRepo(db *sql.DB) *ContentRepo { return &ContentRepo{db: db} }

// Studies returns recruiting studies that accept referrals. The dispatch
// engine narrows further per subscriber; this query only applies the
// global filters.
func (r *ContentRepo) Studies(ctx context.Context) ([]domain.Study, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(summary,''), COALESCE(url,''), areas,
		       featured, recruiting, accepts_referral, updated_at
		FROM studies
		WHERE recruiting = true AND accepts_referral = true
		ORDER BY featured DESC, title
	`)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	defer rows.Close()

	var out []domain.Study
	for rows.Next() {
		var s domain.Study
		if err := rows.Scan(
			&s.ID, &s.Title, &s.Summary, &s.URL, pq.Array(&s.Areas),
			&s.Featured, &s.Recruiting, &s.AcceptsReferral, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studies: %w", err)
	}
	return out, nil
}

// Publications returns the whole local cache, excluded rows included; the
// selector applies the Exclude flag so curation stays in one place.
func (r *ContentRepo) Publications(ctx context.Context) ([]domain.Publication, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(authors,''), COALESCE(journal,''),
		       COALESCE(url,''), exclude, published_at, COALESCE(year,0),
		       COALESCE(date_text,''), fetched_at
		FROM publications
		ORDER BY fetched_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer rows.Close()

	var out []domain.Publication
	for rows.Next() {
		var p domain.Publication
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Authors, &p.Journal,
			&p.URL, &p.Exclude, &p.PublishedAt, &p.Year,
			&p.DateText, &p.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publications: %w", err)
	}
	return out, nil
}

// UpsertPublication inserts or refreshes a cache row keyed by URL. The
// editorial exclude flag on an existing row is never overwritten by a
// feed refresh.
func (r *ContentRepo) UpsertPublication(ctx context.Context, p domain.Publication) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO publications
			(id, title, authors, journal, url, exclude, published_at, year,
			 date_text, fetched_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7, $8, NOW())
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			authors = EXCLUDED.authors,
			journal = EXCLUDED.journal,
			published_at = EXCLUDED.published_at,
			year = EXCLUDED.year,
			date_text = EXCLUDED.date_text,
			fetched_at = NOW()
	`, p.ID, p.Title, p.Authors, p.Journal, p.URL, p.PublishedAt, p.Year, p.DateText)
	if err != nil {
		return fmt.Errorf("upsert publication: %w", err)
	}
	return nil
}

// SetPublicationExclude flips the editorial exclude flag on one row.
func (r *ContentRepo) SetPublicationExclude(ctx context.Context, id string, exclude bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE publications SET exclude = $1 WHERE id = $2
	`, exclude, id)
	if err != nil {
		return fmt.Errorf("set publication exclude: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
