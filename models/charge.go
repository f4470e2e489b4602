package models

import "time"

// Charge is an immutable snapshot of a completed transfer of money from the payer.
type Charge struct {
	ID                   string       `json:"id"`
	Amount               Money        `json:"amount"`
	AmountRefunded       int64        `json:"amount_refunded"`
	Refunded             bool         `json:"refunded"`
	Fee                  int64        `json:"fee"`
	FeeCurrency          string       `json:"fee_currency"`
	CardFingerprint      string       `json:"card_fingerprint"`
	CardLast4            string       `json:"card_last4"`
	CardExpiryMonth      int          `json:"card_expiry_month"`
	CardExpiryYear       int          `json:"card_expiry_year"`
	CardType             string       `json:"card_type"`
	CardCountry          string       `json:"card_country"`
	ZipCheckResult       string       `json:"zip_check_result"`
	RiskLevel            string       `json:"risk_level"`
	TransferID           string       `json:"transfer_id,omitempty"`
	DestinationAccountID string       `json:"destination_account_id,omitempty"`
	PurchaseReference    string       `json:"purchase_reference,omitempty"`
	FlowOfFunds          *FlowOfFunds `json:"flow_of_funds"`
	CreatedAt            time.Time    `json:"created_at"`
}

// RemainingRefundable is the part of the charge that has not been refunded yet.
func (c *Charge) RemainingRefundable() int64 {
	return c.Amount.Cents - c.AmountRefunded
}
