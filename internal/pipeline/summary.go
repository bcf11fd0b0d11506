package pipeline

import "time"

// RunSummary is what every driver returns, including under partial
// failure. A run failed only if Errors is non-empty.
type RunSummary struct {
	Mode               string    `json:"mode"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	DraftsPaired       int       `json:"drafts_paired,omitempty"`
	DraftsAnalyzed     int       `json:"drafts_analyzed,omitempty"`
	TurnsEvaluated     int       `json:"turns_evaluated,omitempty"`
	TurnsSkipped       int       `json:"turns_skipped,omitempty"`
	Flagged            int       `json:"flagged,omitempty"`
	CorrectionsCreated int       `json:"corrections_created,omitempty"`
	Errors             []string  `json:"errors"`
}

func (s RunSummary) Failed() bool { return len(s.Errors) > 0 }
