package models

import (
	"time"

	"goflare.io/chargeprocessor/models/enum"
)

// ChargeRefund is an immutable snapshot of a (partial) reversal of a charge.
type ChargeRefund struct {
	ID          string            `json:"id"`
	ChargeID    string            `json:"charge_id"`
	Status      enum.RefundStatus `json:"status"`
	FlowOfFunds *FlowOfFunds      `json:"flow_of_funds"`
}

// Refund is the ledger row kept for every refund the gateway reports.
type Refund struct {
	ID        string            `json:"id"`
	ChargeID  string            `json:"charge_id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Status    enum.RefundStatus `json:"status"`
	Reason    string            `json:"reason"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type PartialRefund struct {
	ID        string
	ChargeID  *string
	Amount    *int64
	Currency  *string
	Status    *enum.RefundStatus
	Reason    *string
	CreatedAt *time.Time
}
