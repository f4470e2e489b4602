package models

import (
	"time"

	"goflare.io/chargeprocessor/models/enum"
)

// Purchase is the checkout's ledger row for one sale.
type Purchase struct {
	ID                string             `json:"id"`
	ExternalID        string             `json:"external_id"`
	SellerID          string             `json:"seller_id"`
	MerchantAccountID string             `json:"merchant_account_id"`
	ChargeID          string             `json:"charge_id"`
	CombinedChargeID  string             `json:"combined_charge_id,omitempty"`
	State             enum.PurchaseState `json:"state"`
	AmountCents       int64              `json:"amount_cents"`
	FeeCents          int64              `json:"fee_cents"`
	Currency          string             `json:"currency"`
	FailureCode       string             `json:"failure_code,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// MerchantCents is what the connected merchant receives for the sale.
func (p *Purchase) MerchantCents() int64 {
	return p.AmountCents - p.FeeCents
}

func (p *Purchase) InProgress() bool {
	return p.State == enum.PurchaseStateInProgress
}

// CombinedCharge aggregates several purchases paid with one gateway charge.
type CombinedCharge struct {
	ID          string    `json:"id"`
	ChargeID    string    `json:"charge_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}
