package model

// Severity is the display level of a status message
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Status is the last user-facing status message
type Status struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// State is the send state shown by the presentation layer
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
