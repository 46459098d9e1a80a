package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
)

type settingsRepository struct {
	q querier
}

func (r *settingsRepository) ByUser(ctx context.Context, userID string) (*models.AutomationSettings, error) {
	query := `
		SELECT
			user_id
		  , generate_resume
		  , verify_resume
		  , generate_cover_letter
		  , verify_cover_letter
		  , auto_apply
		  , auto_apply_delay_ms
		  , verification_window_ms
		  , follow_up_enabled
		  , auto_follow_up_email
		  , follow_up_interval_ms
		  , base_resume_ref
		FROM automation_settings
		WHERE user_id = $1
	`

	var (
		s                             models.AutomationSettings
		delayMs, windowMs, intervalMs int64
	)

	err := r.q.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.GenerateResume, &s.VerifyResume, &s.GenerateCoverLetter, &s.VerifyCoverLetter, &s.AutoApply,
		&delayMs, &windowMs, &s.FollowUpEnabled, &s.AutoFollowUpEmail, &intervalMs, &s.BaseResumeRef,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ByUser", "automation_settings", userID, persistence.ErrSettingsNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation settings: %w", err)
	}

	s.AutoApplyDelay = time.Duration(delayMs) * time.Millisecond
	s.VerificationWindow = time.Duration(windowMs) * time.Millisecond
	s.FollowUpInterval = time.Duration(intervalMs) * time.Millisecond

	return &s, nil
}

func (r *settingsRepository) Save(ctx context.Context, s *models.AutomationSettings) error {
	query := `
		INSERT INTO automation_settings (
			user_id, generate_resume, verify_resume, generate_cover_letter, verify_cover_letter, auto_apply,
			auto_apply_delay_ms, verification_window_ms, follow_up_enabled, auto_follow_up_email,
			follow_up_interval_ms, base_resume_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			generate_resume = EXCLUDED.generate_resume,
			verify_resume = EXCLUDED.verify_resume,
			generate_cover_letter = EXCLUDED.generate_cover_letter,
			verify_cover_letter = EXCLUDED.verify_cover_letter,
			auto_apply = EXCLUDED.auto_apply,
			auto_apply_delay_ms = EXCLUDED.auto_apply_delay_ms,
			verification_window_ms = EXCLUDED.verification_window_ms,
			follow_up_enabled = EXCLUDED.follow_up_enabled,
			auto_follow_up_email = EXCLUDED.auto_follow_up_email,
			follow_up_interval_ms = EXCLUDED.follow_up_interval_ms,
			base_resume_ref = EXCLUDED.base_resume_ref
	`

	_, err := r.q.ExecContext(ctx, query,
		s.UserID, s.GenerateResume, s.VerifyResume, s.GenerateCoverLetter, s.VerifyCoverLetter, s.AutoApply,
		s.AutoApplyDelay.Milliseconds(), s.VerificationWindow.Milliseconds(), s.FollowUpEnabled, s.AutoFollowUpEmail,
		s.FollowUpInterval.Milliseconds(), s.BaseResumeRef,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation settings: %w", err)
	}

	return nil
}

func (r *settingsRepository) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile

	query := `SELECT user_id, full_name, email, phone, location, linkedin_url FROM user_profiles WHERE user_id = $1`

	err := r.q.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.FullName, &p.Email, &p.Phone, &p.Location, &p.LinkedInURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("Profile", "user_profile", userID, persistence.ErrProfileNotFound)
		}

		return nil, fmt.Errorf("failed to scan user profile: %w", err)
	}

	return &p, nil
}

func (r *settingsRepository) SaveProfile(ctx context.Context, p *models.UserProfile) error {
	query := `
		INSERT INTO user_profiles (user_id, full_name, email, phone, location, linkedin_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			location = EXCLUDED.location,
			linkedin_url = EXCLUDED.linkedin_url
	`

	_, err := r.q.ExecContext(ctx, query, p.UserID, p.FullName, p.Email, p.Phone, p.Location, p.LinkedInURL)
	if err != nil {
		return fmt.Errorf("failed to save user profile: %w", err)
	}

	return nil
}

type followUpRepository struct {
	q querier
}

func (r *followUpRepository) ByApplication(ctx context.Context, applicationID string) (*models.FollowUpTracking, error) {
	var (
		t    models.FollowUpTracking
		last sql.NullTime
	)

	query := `
		SELECT application_id, user_id, follow_up_count, last_follow_up_at
		FROM follow_up_tracking
		WHERE application_id = $1
	`

	err := r.q.QueryRowContext(ctx, query, applicationID).Scan(&t.ApplicationID, &t.UserID, &t.FollowUpCount, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ByApplication", "follow_up_tracking", applicationID, persistence.ErrFollowUpNotFound)
		}

		return nil, fmt.Errorf("failed to scan follow-up tracking: %w", err)
	}

	t.LastFollowUpAt = nullTime(last)

	return &t, nil
}

func (r *followUpRepository) Save(ctx context.Context, t *models.FollowUpTracking) error {
	query := `
		INSERT INTO follow_up_tracking (application_id, user_id, follow_up_count, last_follow_up_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (application_id) DO UPDATE SET
			follow_up_count = EXCLUDED.follow_up_count,
			last_follow_up_at = EXCLUDED.last_follow_up_at
	`

	_, err := r.q.ExecContext(ctx, query, t.ApplicationID, t.UserID, t.FollowUpCount, t.LastFollowUpAt)
	if err != nil {
		return fmt.Errorf("failed to save follow-up tracking: %w", err)
	}

	return nil
}
