package models

import "time"

// Entrant is one immutable submission snapshot. Rows are created by the web
// platform when a user submits; the matchmaker only ever reads them. A user
// may own many entrants, but only their newest active one plays rated matches.
type Entrant struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string    `gorm:"index;not null;type:uuid" json:"user_id"`
	FilesHash      string    `gorm:"index;not null" json:"files_hash"`
	Active         bool      `gorm:"not null;default:true" json:"active"`
	SubmissionDate time.Time `gorm:"index;not null" json:"submission_date"`
}
