package models

import "time"

// BacktaxAgreement tracks an amount a merchant owes the platform and how much of
// it has been recovered by reversing past transfers.
type BacktaxAgreement struct {
	ID                string     `json:"id"`
	MerchantAccountID string     `json:"merchant_account_id"`
	CreditID          string     `json:"credit_id"`
	Owed              Money      `json:"owed"`
	CollectedCents    int64      `json:"collected_cents"`
	CollectedAt       *time.Time `json:"collected_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (a *BacktaxAgreement) Collected() bool {
	return a.CollectedAt != nil
}

// Outstanding is the owed amount not yet covered by reversals.
func (a *BacktaxAgreement) Outstanding() int64 {
	if r := a.Owed.Abs().Cents - a.CollectedCents; r > 0 {
		return r
	}
	return 0
}
