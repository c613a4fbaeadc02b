package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateInboundEvent checks the fields every dispatched event must carry.
func ValidateInboundEvent(e InboundEvent) error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "event ID is required"}
	}
	if e.EventType == "" {
		return &ValidationError{Field: "type", Message: "event type is required"}
	}
	if e.Payload == nil {
		return &ValidationError{Field: "payload", Message: "payload cannot be nil"}
	}
	return nil
}
