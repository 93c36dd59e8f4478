package model

import "time"

// Phase identifies the kind of progress event emitted by a send run
type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseAttempt  Phase = "attempt"
	PhaseFinished Phase = "finished"
	PhaseStopped  Phase = "stopped"
	PhaseAborted  Phase = "aborted"
)

// Terminal reports whether no further events follow this phase
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseStopped || p == PhaseAborted
}

// Progress is emitted once when a run starts, after every delivery attempt,
// and once when the run ends.
type Progress struct {
	RunID      string    `json:"runId"`
	Phase      Phase     `json:"phase"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Percentage float64   `json:"percentage"`
	Recipient  string    `json:"recipient,omitempty"`
	Delivered  bool      `json:"delivered"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Percent computes the completion percentage for index out of total
func Percent(index, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(index) * 100 / float64(total)
}
