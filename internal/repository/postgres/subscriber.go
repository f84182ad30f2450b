package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/service/dispatch"
)

const subscriberColumns = `
	id, email, COALESCE(display_name,''), topics, interest_areas, all_areas,
	subscription_status, delivery_status, manage_token,
	last_study_update_sent_at, last_publication_newsletter_sent_at,
	created_at, updated_at`

// SubscriberRepo implements dispatch.SubscriberRepository against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

// ListEligible evaluates the eligibility policy in bulk. The WHERE clause
// must stay in step with dispatch.Eligible.
func (r *SubscriberRepo) ListEligible(ctx context.Context, campaign domain.CampaignType, cutoff *time.Time, force bool) ([]domain.Subscriber, error) {
	q := `
		SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE subscription_status = 'subscribed'
		  AND delivery_status = 'active'
		  AND $1 = ANY(topics)`
	args := []interface{}{campaign.Topic()}

	// MarkerColumn comes from a closed enum, never from input.
	if !force && cutoff != nil {
		col := campaign.MarkerColumn()
		q += fmt.Sprintf(" AND (%s IS NULL OR %s < $2)", col, col)
		args = append(args, *cutoff)
	}
	q += " ORDER BY lower(email)"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list eligible subscribers: %w", err)
	}
	defer rows.Close()
	return scanSubscribers(rows)
}

func (r *SubscriberRepo) ListDeliverable(ctx context.Context, topic string) ([]domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE subscription_status = 'subscribed'
		  AND delivery_status = 'active'
		  AND $1 = ANY(topics)
		ORDER BY lower(email)
	`, topic)
	if err != nil {
		return nil, fmt.Errorf("list deliverable subscribers: %w", err)
	}
	defer rows.Close()
	return scanSubscribers(rows)
}

func (r *SubscriberRepo) SetMarker(ctx context.Context, subscriberID string, campaign domain.CampaignType, sentAt time.Time) error {
	q := fmt.Sprintf(`
		UPDATE subscribers SET %s = $1, updated_at = NOW()
		WHERE id = $2
	`, campaign.MarkerColumn())

	res, err := r.db.ExecContext(ctx, q, sentAt, subscriberID)
	if err != nil {
		return fmt.Errorf("set %s marker: %w", campaign, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrSubscriberNotFound
	}
	return nil
}

func (r *SubscriberRepo) GetByManageToken(ctx context.Context, token string) (*domain.Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE manage_token = $1
	`, token)

	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber by token: %w", err)
	}
	return sub, nil
}

func (r *SubscriberRepo) UpdatePreferences(ctx context.Context, subscriberID string, topics, areas []string, allAreas bool, status domain.SubscriptionStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers
		SET topics = $1, interest_areas = $2, all_areas = $3,
		    subscription_status = $4, updated_at = NOW()
		WHERE id = $5
	`, pq.Array(topics), pq.Array(areas), allAreas, status, subscriberID)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrSubscriberNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscriber(row rowScanner) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	err := row.Scan(
		&s.ID, &s.Email, &s.DisplayName,
		pq.Array(&s.Topics), pq.Array(&s.InterestAreas), &s.AllAreas,
		&s.SubscriptionStatus, &s.DeliveryStatus, &s.ManageToken,
		&s.LastStudyUpdateSentAt, &s.LastPublicationNewsletterSentAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSubscribers(rows *sql.Rows) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return out, nil
}
