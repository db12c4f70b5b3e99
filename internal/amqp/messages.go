package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ExpenseCreatedMessage announces a newly saved expense.
// It carries only the ID; consumers load the full record from the database.
type ExpenseCreatedMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingID = errors.New("message has no expense id")

// NewExpenseCreatedMessage creates a message stamped with the current time
func NewExpenseCreatedMessage(id string) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseCreatedMessageFromJSON decodes a message. A blank ID is an error.
func ExpenseCreatedMessageFromJSON(data []byte) (*ExpenseCreatedMessage, error) {
	var msg ExpenseCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errMissingID
	}
	return &msg, nil
}
