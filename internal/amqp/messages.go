package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseCreatedMessage announces a newly materialized expense. It carries
// only identifiers; consumers fetch the full expense from storage.
type ExpenseCreatedMessage struct {
	ExpenseID  string    `json:"expense_id"`
	PropertyID string    `json:"property_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewExpenseCreatedMessage creates an announcement for one expense.
func NewExpenseCreatedMessage(expenseID, propertyID string) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		ExpenseID:  expenseID,
		PropertyID: propertyID,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseCreatedMessageFromJSON creates a message from JSON bytes.
func ExpenseCreatedMessageFromJSON(data []byte) (*ExpenseCreatedMessage, error) {
	var msg ExpenseCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
