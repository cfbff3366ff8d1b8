// Package model holds the records persisted by the lesson library.
package model

import "time"

// TeacherCredential is the single account allowed to upload. At most one
// exists per deployment.
type TeacherCredential struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	ApprovedAt   time.Time `json:"approved_at"`
}

// PendingRequest is a registration waiting for admin approval. The hash is
// computed when the request is submitted.
type PendingRequest struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Lesson describes one uploaded file.
type Lesson struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Subject     string    `json:"subject"`
	Filename    string    `json:"filename"`
	Downloads   int       `json:"downloads"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
