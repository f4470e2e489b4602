package models

import (
	"time"

	"goflare.io/chargeprocessor/models/enum"
)

// Credit is a balance adjustment for a merchant. Negative amounts are owed to the platform.
type Credit struct {
	ID                string          `json:"id"`
	MerchantAccountID string          `json:"merchant_account_id"`
	UserID            string          `json:"user_id"`
	Kind              enum.CreditKind `json:"kind"`
	Amount            Money           `json:"amount"`
	PurchaseID        string          `json:"purchase_id,omitempty"`
	PaydownID         string          `json:"paydown_id,omitempty"`
	AdminActorID      string          `json:"admin_actor_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}
