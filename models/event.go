package models

import (
	"encoding/json"
	"time"

	"goflare.io/chargeprocessor/models/enum"
)

// Event records a gateway event once it has been accepted. The normalized
// payload is kept until the event is processed so that a failed delivery can be
// handled again without the gateway resending it.
type Event struct {
	ID        string               `json:"id"`
	Type      enum.ChargeEventType `json:"type"`
	Processed bool                 `json:"processed"`
	Payload   json.RawMessage      `json:"payload,omitempty"`
	Attempts  int                  `json:"attempts"`
	LastError string               `json:"last_error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}
