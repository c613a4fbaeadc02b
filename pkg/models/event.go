package models

import "time"

type EventType string

const (
	EventTypePing                EventType = "ping"
	EventTypeURLVerification     EventType = "url_verification"
	EventTypeAppMention          EventType = "app_mention"
	EventTypeMessage             EventType = "message"
	EventTypeAppHomeOpened       EventType = "app_home_opened"
	EventTypeMemberJoinedChannel EventType = "member_joined_channel"
	EventTypeAppUninstalled      EventType = "app_uninstalled"
	EventTypeTokensRevoked       EventType = "tokens_revoked"
)

var knownEventTypes = map[EventType]struct{}{
	EventTypePing:                {},
	EventTypeURLVerification:     {},
	EventTypeAppMention:          {},
	EventTypeMessage:             {},
	EventTypeAppHomeOpened:       {},
	EventTypeMemberJoinedChannel: {},
	EventTypeAppUninstalled:      {},
	EventTypeTokensRevoked:       {},
}

func (t EventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

func (t EventType) String() string {
	return string(t)
}

// InboundEvent is one verified, parsed webhook delivery. It is built per
// request and handed to exactly one handler.
type InboundEvent struct {
	EventID    string                 `json:"event_id"`
	EventType  EventType              `json:"event_type"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
	ReceivedAt time.Time              `json:"received_at"`
}

func (e *InboundEvent) GetPayloadField(name string) (interface{}, bool) {
	if e.Payload == nil {
		return nil, false
	}
	value, ok := e.Payload[name]
	return value, ok
}

// PayloadString returns a top-level string field, or "" when absent or not
// a string.
func (e *InboundEvent) PayloadString(name string) string {
	v, ok := e.GetPayloadField(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
