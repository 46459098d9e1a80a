package models

import "time"

// DocumentKind distinguishes generated resumes from cover letters.
type DocumentKind string

const (
	DocumentKindResume      DocumentKind = "resume"
	DocumentKindCoverLetter DocumentKind = "cover_letter"
)

// Document is a generated file referenced by one or more applications.
type Document struct {
	ID     string       `json:"id"`
	UserID string       `json:"user_id"`
	Kind   DocumentKind `json:"kind"`

	// StorageKey locates the file in document storage.
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
}
