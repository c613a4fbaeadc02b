package models

import "time"

// ProcessingOutcome is produced once per dispatched event. It is never sent
// back to the webhook caller.
type ProcessingOutcome struct {
	Success    bool                   `json:"success"`
	EventID    string                 `json:"event_id"`
	EventType  EventType              `json:"event_type"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Error      string                 `json:"error,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

func Succeeded(event InboundEvent, context map[string]interface{}) ProcessingOutcome {
	return ProcessingOutcome{
		Success:   true,
		EventID:   event.EventID,
		EventType: event.EventType,
		TenantID:  event.TenantID,
		Context:   context,
	}
}

func Failed(event InboundEvent, err error) ProcessingOutcome {
	outcome := ProcessingOutcome{
		EventID:   event.EventID,
		EventType: event.EventType,
		TenantID:  event.TenantID,
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	return outcome
}

func (o ProcessingOutcome) WithDuration(d time.Duration) ProcessingOutcome {
	o.DurationMS = d.Milliseconds()
	return o
}
