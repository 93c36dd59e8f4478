package bulkmail

import "time"

// Status is the last user-facing status message.
type Status struct {
	Message string `json:"message"`
	// Severity is one of info, success, warning or danger.
	Severity string `json:"severity"`
}

// State is the server's send state.
type State struct {
	Running     bool   `json:"running"`
	RunID       string `json:"runId,omitempty"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
	Recipients  int    `json:"recipients"`
	Source      string `json:"source,omitempty"`
	Template    string `json:"template"`
	AutoRefresh bool   `json:"autoRefresh"`
	Status      Status `json:"status"`
}

// Progress is one event of a send run.
type Progress struct {
	RunID      string    `json:"runId"`
	Phase      string    `json:"phase"`
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

// Terminal reports whether this is the last event of its run.
func (p Progress) Terminal() bool {
	return p.Phase == "finished" || p.Phase == "stopped" || p.Phase == "aborted"
}

// Recipients is the loaded recipient list.
type Recipients struct {
	Source     string   `json:"source"`
	Count      int      `json:"count"`
	Recipients []string `json:"recipients"`
}

// Run is a stored send run.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Template   string     `json:"template"`
	Subject    string     `json:"subject"`
	Total      int        `json:"total"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Phase      string     `json:"phase"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Delivery is one stored delivery attempt.
type Delivery struct {
	RunID       string    `json:"runId"`
	Position    int       `json:"position"`
	Recipient   string    `json:"recipient"`
	Delivered   bool      `json:"delivered"`
	Error       *string   `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// RunDetail is a run with its delivery attempts.
type RunDetail struct {
	Run        Run        `json:"run"`
	Deliveries []Delivery `json:"deliveries"`
}

type startResponse struct {
	RunID string `json:"runId"`
	State State  `json:"state"`
}
