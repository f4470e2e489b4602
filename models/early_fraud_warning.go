package models

import "time"

// EarlyFraudWarning is an issuer fraud report attached to a purchase or to a
// combined charge, whichever owns the gateway charge.
type EarlyFraudWarning struct {
	ID                string    `json:"id"`
	ChargeID          string    `json:"charge_id"`
	FraudType         string    `json:"fraud_type"`
	Actionable        bool      `json:"actionable"`
	PurchaseID        string    `json:"purchase_id,omitempty"`
	CombinedChargeID  string    `json:"combined_charge_id,omitempty"`
	MerchantAccountID string    `json:"merchant_account_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
