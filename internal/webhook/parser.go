package webhook

import (
	"encoding/json"
	"time"

	"hookbridge/pkg/errors"
	"hookbridge/pkg/models"
)

const envelopeTypeEventCallback = "event_callback"

// delivery is a parsed request body. Exactly one of challenge or event is
// meaningful, depending on isChallenge.
type delivery struct {
	isChallenge bool
	challenge   interface{}
	event       models.InboundEvent
}

// parseDelivery accepts two body shapes:
//
//	flat:     {"type":"ping","event_id":"e1","tenant_id":"T1","actor_id":"U1",...}
//	envelope: {"type":"event_callback","event_id":"Ev1","team_id":"T1","event":{"type":"message","user":"U1",...}}
//
// For flat bodies the whole object becomes the payload; for envelopes the
// inner event does.
func parseDelivery(body []byte, receivedAt time.Time) (*delivery, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.ErrInvalidJSON.WithCause(err)
	}
	if raw == nil {
		return nil, errors.ErrInvalidJSON.WithMessage("request body must be a JSON object")
	}

	outerType := stringField(raw, "type")
	if models.EventType(outerType) == models.EventTypeURLVerification {
		return &delivery{isChallenge: true, challenge: raw["challenge"]}, nil
	}

	builder := models.NewInboundEventBuilder().
		WithID(stringField(raw, "event_id")).
		WithReceivedAt(receivedAt)

	if outerType == envelopeTypeEventCallback {
		inner, ok := raw["event"].(map[string]interface{})
		if !ok {
			return nil, errors.ErrInvalidPayload.WithMessage("event_callback without an event object")
		}
		tenantID := stringField(raw, "team_id")
		if tenantID == "" {
			tenantID = stringField(inner, "team")
		}
		builder.
			WithType(models.EventType(stringField(inner, "type"))).
			WithTenant(tenantID).
			WithActor(stringField(inner, "user")).
			WithPayload(inner)
	} else {
		builder.
			WithType(models.EventType(outerType)).
			WithTenant(stringField(raw, "tenant_id")).
			WithActor(stringField(raw, "actor_id")).
			WithPayload(raw)
	}

	event := builder.Build()
	if err := models.ValidateInboundEvent(event); err != nil {
		return nil, errors.ErrInvalidPayload.WithCause(err)
	}

	return &delivery{event: event}, nil
}

func stringField(m map[string]interface{}, name string) string {
	s, _ := m[name].(string)
	return s
}
