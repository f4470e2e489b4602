package models

import (
	"time"

	"goflare.io/chargeprocessor/models/enum"
)

type Dispute struct {
	ID                      string             `json:"id"`
	ChargeID                string             `json:"charge_id"`
	PurchaseID              string             `json:"purchase_id"`
	Amount                  int64              `json:"amount"`
	Currency                string             `json:"currency"`
	Status                  enum.DisputeStatus `json:"status"`
	Reason                  string             `json:"reason"`
	TransferReversalID      string             `json:"transfer_reversal_id,omitempty"`
	ReinstatementTransferID string             `json:"reinstatement_transfer_id,omitempty"`
	FundsWithdrawnAt        *time.Time         `json:"funds_withdrawn_at,omitempty"`
	FundsReinstatedAt       *time.Time         `json:"funds_reinstated_at,omitempty"`
	ClosedAt                *time.Time         `json:"closed_at,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

func NewDispute() *Dispute {
	return &Dispute{}
}

func (d *Dispute) FundsWithdrawn() bool {
	return d.FundsWithdrawnAt != nil
}

func (d *Dispute) FundsReinstated() bool {
	return d.FundsReinstatedAt != nil
}

type PartialDispute struct {
	ID         string
	ChargeID   *string
	PurchaseID *string
	Amount     *int64
	Currency   *string
	Status     *enum.DisputeStatus
	Reason     *string
	CreatedAt  *time.Time
}
