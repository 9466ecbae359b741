package schedule

import "time"

// RunResult is the outcome of auto-select for one provider in a pass.
type RunResult struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url,omitempty"`
	Switched bool   `json:"switched"`
	Error    string `json:"error,omitempty"`
}

// Run summarizes one scheduled pass.
type Run struct {
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Results    []RunResult `json:"results"`
}
