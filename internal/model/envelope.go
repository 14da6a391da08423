package model

// SourceEventIDField is the correlation field added to every payload sent on the bus.
const SourceEventIDField = "sourceEventId"

// BusEvent is the message published to Kafka for every outbox row and consumed
// by the rule matcher.
type BusEvent struct {
	TenantID   int64          `json:"tenantId"`
	EventName  string         `json:"eventName"`
	EntityType string         `json:"entityType,omitempty"`
	EntityID   string         `json:"entityId,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// SourceEventID returns the outbox id carried in the payload, if any.
func (e BusEvent) SourceEventID() string {
	if e.Payload == nil {
		return ""
	}
	id, _ := e.Payload[SourceEventIDField].(string)
	return id
}
