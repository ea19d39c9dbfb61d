package amqp

import (
	"encoding/json"
	"time"

	"splitledger/internal/core"
)

// ActivityMessage is the wire form of an activity event. The API publishes
// one after a successful write; the activity worker persists it to the feed.
type ActivityMessage struct {
	Type      string                `json:"type"`
	GroupID   *string               `json:"groupId,omitempty"`
	Metadata  core.ActivityMetadata `json:"metadata"`
	Timestamp time.Time             `json:"timestamp"`
}

// NewActivityMessage wraps an activity event for publishing.
func NewActivityMessage(a core.Activity) *ActivityMessage {
	ts := a.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ActivityMessage{
		Type:      a.Type,
		GroupID:   a.GroupID,
		Metadata:  a.Metadata,
		Timestamp: ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON creates a message from JSON bytes
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ToActivity converts the message back to the domain event.
func (m *ActivityMessage) ToActivity() core.Activity {
	return core.Activity{
		Type:      m.Type,
		GroupID:   m.GroupID,
		Metadata:  m.Metadata,
		CreatedAt: m.Timestamp,
	}
}
