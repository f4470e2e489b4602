package models

import (
	"time"

	"goflare.io/chargeprocessor/models/enum"
)

// ChargeEvent is a gateway webhook notification normalized for reconciliation.
// ID is the gateway's own event id and is the idempotency key.
type ChargeEvent struct {
	ID                 string                `json:"id"`
	Type               enum.ChargeEventType  `json:"type"`
	GatewayType        string                `json:"gateway_type"`
	ChargeID           string                `json:"charge_id,omitempty"`
	PaymentIntentID    string                `json:"payment_intent_id,omitempty"`
	PurchaseReference  string                `json:"purchase_reference,omitempty"`
	DisputeID          string                `json:"dispute_id,omitempty"`
	RefundID           string                `json:"refund_id,omitempty"`
	RefundStatus       enum.RefundStatus     `json:"refund_status,omitempty"`
	Reason             string                `json:"reason,omitempty"`
	FailureCode        string                `json:"failure_code,omitempty"`
	CardCountry        string                `json:"card_country,omitempty"`
	OffSession         bool                  `json:"off_session,omitempty"`
	ConnectedAccountID string                `json:"connected_account_id,omitempty"`
	FlowOfFunds        *FlowOfFunds          `json:"flow_of_funds,omitempty"`
	EarlyFraudWarning  *EarlyFraudWarning    `json:"early_fraud_warning,omitempty"`
	Financing          *FinancingTransaction `json:"financing,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
}

// FinancingTransaction is a loan paydown reported by the gateway's financing product.
type FinancingTransaction struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Amount Money  `json:"amount"`

	// Automatic paydowns are withheld from a sale; DestinationPaymentID is the
	// payment on the connected account that was withheld from.
	Automatic            bool   `json:"automatic"`
	DestinationPaymentID string `json:"destination_payment_id,omitempty"`
}

const FinancingTypePaydown = "paydown"
