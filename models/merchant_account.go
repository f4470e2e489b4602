package models

import (
	"strings"
	"time"
)

// MerchantAccount is where a charge's proceeds end up: either the platform's own
// gateway account or a creator's connected account.
type MerchantAccount struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	GatewayAccountID string    `json:"gateway_account_id"`
	Currency         string    `json:"currency"`
	Country          string    `json:"country"`
	IsPlatform       bool      `json:"is_platform"`
	CreatedAt        time.Time `json:"created_at"`

	// ChargesOnMerchantAccount makes charges run directly on the connected
	// account with a cloned instrument instead of as destination charges.
	ChargesOnMerchantAccount bool `json:"charges_on_merchant_account"`
}

// IsConnected reports whether charges for this account move funds to a
// sub-account rather than the platform.
func (m *MerchantAccount) IsConnected() bool {
	return m != nil && !m.IsPlatform
}

func (m *MerchantAccount) HasGatewayAccount() bool {
	return m != nil && strings.TrimSpace(m.GatewayAccountID) != ""
}
