package amqp

import (
	"encoding/json"
	"time"
)

// NotificationMessage is the wire form of a user notification.
type NotificationMessage struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Year      int       `json:"year,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNotificationMessage(level, message string, year int) *NotificationMessage {
	return &NotificationMessage{
		Level:     level,
		Message:   message,
		Year:      year,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
