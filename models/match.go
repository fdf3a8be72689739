package models

import "time"

// Outcome is the runner's verdict for a single player slot.
type Outcome int

const (
	OutcomeWin  Outcome = 1
	OutcomeLoss Outcome = 2
	OutcomeDraw Outcome = 3
)

func (o Outcome) Valid() bool {
	return o == OutcomeWin || o == OutcomeLoss || o == OutcomeDraw
}

// Match groups the results of one automated game plus its replay recording.
// A match and its results are written together in one transaction and never
// modified afterwards.
type Match struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	MatchDate    time.Time `gorm:"index;not null" json:"match_date"`
	Recording    string    `gorm:"type:text" json:"recording"`
	RecordingKey *string   `json:"recording_key,omitempty"` // object-storage copy, nil when archival is off
	Results      []Result  `gorm:"constraint:OnDelete:CASCADE" json:"results"`
}

// Result is one entrant's outcome within one match.
type Result struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID     string  `gorm:"index;not null;type:uuid" json:"match_id"`
	EntrantID   string  `gorm:"index;not null;type:uuid" json:"entrant_id"`
	Outcome     Outcome `gorm:"not null" json:"outcome"`
	Healthy     bool    `gorm:"not null" json:"healthy"`
	PointsDelta float64 `gorm:"not null;default:0" json:"points_delta"`
	PlayerID    int     `json:"player_id"`
	Prints      string  `gorm:"type:text" json:"prints"`
	ResultCode  int     `json:"result_code"`
}
