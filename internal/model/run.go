package model

import "time"

// Run is the persisted record of one send run
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Template   string     `json:"template"`
	Subject    string     `json:"subject"`
	Total      int        `json:"total"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Phase      Phase      `json:"phase"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Delivery is the persisted outcome of one delivery attempt
type Delivery struct {
	RunID       string    `json:"runId"`
	Position    int       `json:"position"`
	Recipient   string    `json:"recipient"`
	Delivered   bool      `json:"delivered"`
	Error       *string   `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}
