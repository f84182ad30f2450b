package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/service/dispatch"
)

// SettingsRepo implements dispatch.SettingsRepository against PostgreSQL.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

func (r *SettingsRepo) CampaignSettings(ctx context.Context, campaign domain.CampaignType) (*domain.CampaignSettings, error) {
	s := &domain.CampaignSettings{}
	err := r.db.QueryRowContext(ctx, `
		SELECT campaign,
		       COALESCE(subject_template,''), COALESCE(intro_template,''),
		       COALESCE(empty_intro_template,''), COALESCE(outro_template,''),
		       COALESCE(signature,''),
		       window_mode, window_days, max_items, send_empty
		FROM campaign_settings
		WHERE campaign = $1
	`, campaign).Scan(
		&s.Campaign,
		&s.SubjectTemplate, &s.IntroTemplate,
		&s.EmptyIntroTemplate, &s.OutroTemplate,
		&s.Signature,
		&s.WindowMode, &s.WindowDays, &s.MaxItems, &s.SendEmpty,
	)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign settings: %w", err)
	}
	return s, nil
}

func (r *SettingsRepo) SaveCampaignSettings(ctx context.Context, s *domain.CampaignSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_settings
			(campaign, subject_template, intro_template, empty_intro_template,
			 outro_template, signature, window_mode, window_days, max_items,
			 send_empty, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (campaign) DO UPDATE SET
			subject_template = EXCLUDED.subject_template,
			intro_template = EXCLUDED.intro_template,
			empty_intro_template = EXCLUDED.empty_intro_template,
			outro_template = EXCLUDED.outro_template,
			signature = EXCLUDED.signature,
			window_mode = EXCLUDED.window_mode,
			window_days = EXCLUDED.window_days,
			max_items = EXCLUDED.max_items,
			send_empty = EXCLUDED.send_empty,
			updated_at = NOW()
	`, s.Campaign, s.SubjectTemplate, s.IntroTemplate, s.EmptyIntroTemplate,
		s.OutroTemplate, s.Signature, s.WindowMode, s.WindowDays, s.MaxItems,
		s.SendEmpty)
	if err != nil {
		return fmt.Errorf("save campaign settings: %w", err)
	}
	return nil
}

// TestMode reads the single-row safety-interlock config. A missing row is
// a disabled interlock, not an error.
func (r *SettingsRepo) TestMode(ctx context.Context) (*domain.TestModeConfig, error) {
	cfg := &domain.TestModeConfig{}
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled, recipients FROM test_mode_settings WHERE id = 1
	`).Scan(&cfg.Enabled, pq.Array(&cfg.Recipients))
	if err == sql.ErrNoRows {
		return &domain.TestModeConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get test mode: %w", err)
	}
	return cfg, nil
}

func (r *SettingsRepo) SaveTestMode(ctx context.Context, cfg *domain.TestModeConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO test_mode_settings (id, enabled, recipients, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			recipients = EXCLUDED.recipients,
			updated_at = NOW()
	`, cfg.Enabled, pq.Array(cfg.Recipients))
	if err != nil {
		return fmt.Errorf("save test mode: %w", err)
	}
	return nil
}
