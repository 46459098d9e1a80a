package models

import "time"

// MaxFollowUps caps the reminders sent for one application.
const MaxFollowUps = 3

// FollowUpTracking counts reminders sent for an application.
type FollowUpTracking struct {
	ApplicationID  string     `json:"application_id"`
	UserID         string     `json:"user_id"`
	FollowUpCount  int        `json:"follow_up_count"`
	LastFollowUpAt *time.Time `json:"last_follow_up_at,omitempty"`
}
