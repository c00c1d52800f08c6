package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeKind names the write that produced a change message.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeSettled ChangeKind = "settled"
	ChangeCleared ChangeKind = "cleared"
)

// ChangeMessage announces a write to the expense store. It carries no expense
// data; consumers re-read the store. Year and Month identify the month the
// expense belongs to and are zero for cleared events.
type ChangeMessage struct {
	Kind      ChangeKind `json:"kind"`
	ExpenseID string     `json:"expense_id,omitempty"`
	Year      int        `json:"year,omitempty"`
	Month     int        `json:"month,omitempty"`
	Origin    string     `json:"origin"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewChangeMessage(kind ChangeKind, expenseID string, year, month int, origin string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      kind,
		ExpenseID: expenseID,
		Year:      year,
		Month:     month,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case ChangeCreated, ChangeSettled, ChangeCleared:
	default:
		return nil, fmt.Errorf("unknown change kind %q", msg.Kind)
	}
	return &msg, nil
}
