package models

import "time"

type InboundEventBuilder struct {
	event InboundEvent
}

func NewInboundEventBuilder() *InboundEventBuilder {
	return &InboundEventBuilder{
		event: InboundEvent{Payload: make(map[string]interface{})},
	}
}

func (b *InboundEventBuilder) WithID(id string) *InboundEventBuilder {
	b.event.EventID = id
	return b
}

func (b *InboundEventBuilder) WithType(t EventType) *InboundEventBuilder {
	b.event.EventType = t
	return b
}

func (b *InboundEventBuilder) WithTenant(tenantID string) *InboundEventBuilder {
	b.event.TenantID = tenantID
	return b
}

func (b *InboundEventBuilder) WithActor(actorID string) *InboundEventBuilder {
	b.event.ActorID = actorID
	return b
}

func (b *InboundEventBuilder) WithPayload(payload map[string]interface{}) *InboundEventBuilder {
	if payload != nil {
		b.event.Payload = payload
	}
	return b
}

func (b *InboundEventBuilder) WithReceivedAt(t time.Time) *InboundEventBuilder {
	b.event.ReceivedAt = t
	return b
}

func (b *InboundEventBuilder) Build() InboundEvent {
	if b.event.ReceivedAt.IsZero() {
		b.event.ReceivedAt = time.Now()
	}
	return b.event
}
