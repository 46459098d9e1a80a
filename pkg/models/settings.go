package models

import "time"

// AutomationSettings are a user's auto-apply preferences.
type AutomationSettings struct {
	UserID string `json:"user_id" yaml:"-"`

	GenerateResume      bool `json:"generate_resume" yaml:"generate_resume"`
	VerifyResume        bool `json:"verify_resume" yaml:"verify_resume"`
	GenerateCoverLetter bool `json:"generate_cover_letter" yaml:"generate_cover_letter"`
	VerifyCoverLetter   bool `json:"verify_cover_letter" yaml:"verify_cover_letter"`
	AutoApply           bool `json:"auto_apply" yaml:"auto_apply"`

	// AutoApplyDelay separates job acceptance from the first workflow step.
	AutoApplyDelay time.Duration `json:"auto_apply_delay" yaml:"auto_apply_delay" validate:"gte=0"`
	// VerificationWindow is how long a generated document waits for confirmation.
	VerificationWindow time.Duration `json:"verification_window" yaml:"verification_window" validate:"gt=0"`

	FollowUpEnabled   bool          `json:"follow_up_enabled" yaml:"follow_up_enabled"`
	AutoFollowUpEmail bool          `json:"auto_follow_up_email" yaml:"auto_follow_up_email"`
	FollowUpInterval  time.Duration `json:"follow_up_interval" yaml:"follow_up_interval" validate:"gt=0"`

	// BaseResumeRef is the user's uploaded resume that generation starts from.
	BaseResumeRef string `json:"base_resume_ref,omitempty" yaml:"-"`
}

// DefaultAutomationSettings is used for users that never saved settings.
func DefaultAutomationSettings(userID string) *AutomationSettings {
	return &AutomationSettings{
		UserID:              userID,
		GenerateResume:      true,
		VerifyResume:        true,
		GenerateCoverLetter: true,
		VerifyCoverLetter:   true,
		AutoApply:           true,
		AutoApplyDelay:      time.Minute,
		VerificationWindow:  5 * time.Minute,
		FollowUpEnabled:     true,
		AutoFollowUpEmail:   false,
		FollowUpInterval:    7 * 24 * time.Hour,
	}
}

// UserProfile is sent along with a submission.
type UserProfile struct {
	UserID      string `json:"user_id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Location    string `json:"location,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}
