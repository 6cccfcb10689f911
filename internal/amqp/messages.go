package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MonthChangedMessage announces that the projection of one user month may
// differ from what was last exported. It carries no expense data; consumers
// re-project the month from the database.
type MonthChangedMessage struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMonthChangedMessage creates a message with a fresh id.
func NewMonthChangedMessage(userID int64, year, month int, reason string) *MonthChangedMessage {
	return &MonthChangedMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Year:      year,
		Month:     month,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *MonthChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MonthChangedMessageFromJSON decodes and checks a message.
func MonthChangedMessageFromJSON(data []byte) (*MonthChangedMessage, error) {
	var msg MonthChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID <= 0 {
		return nil, fmt.Errorf("message %s: missing user id", msg.ID)
	}
	if msg.Month < 1 || msg.Month > 12 {
		return nil, fmt.Errorf("message %s: invalid month %d", msg.ID, msg.Month)
	}
	return &msg, nil
}
