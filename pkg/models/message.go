package models

import "time"

// OutcomeMessage is the broker envelope for a ProcessingOutcome.
type OutcomeMessage struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Outcome   ProcessingOutcome `json:"outcome"`
	Metadata  Metadata          `json:"metadata"`
}

type Metadata struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
