package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names what happened to an entry.
type EventType string

const (
	EventUpserted EventType = "upserted"
	EventDeleted  EventType = "deleted"
)

// EntryEventMessage notifies consumers that an entry changed. Consumers
// re-read the entry by id; the message carries no figures.
type EntryEventMessage struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Date      string    `json:"date,omitempty"`
	Created   bool      `json:"created,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewUpsertedEvent(id, date string, created bool) *EntryEventMessage {
	return &EntryEventMessage{
		Type:      EventUpserted,
		ID:        id,
		Date:      date,
		Created:   created,
		Timestamp: time.Now().UTC(),
	}
}

func NewDeletedEvent(id string) *EntryEventMessage {
	return &EntryEventMessage{
		Type:      EventDeleted,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
}

func (m *EntryEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryEventMessageFromJSON decodes and checks a message body.
func EntryEventMessageFromJSON(data []byte) (*EntryEventMessage, error) {
	var msg EntryEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventUpserted, EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("event without id")
	}
	return &msg, nil
}
