package models

import "goflare.io/chargeprocessor/models/enum"

// ChargeIntent wraps the gateway's asynchronous authorization object.
// Charge is only populated once Status is succeeded.
type ChargeIntent struct {
	ID                string            `json:"id"`
	ClientSecret      string            `json:"client_secret"`
	Status            enum.IntentStatus `json:"status"`
	MerchantAccountID string            `json:"merchant_account_id,omitempty"`
	Charge            *Charge           `json:"charge,omitempty"`
}

func (ci *ChargeIntent) RequiresAction() bool {
	return ci.Status == enum.IntentStatusRequiresAction
}

func (ci *ChargeIntent) Succeeded() bool {
	return ci.Status == enum.IntentStatusSucceeded
}

// SetupIntent validates an instrument for future off-session use without moving money.
type SetupIntent struct {
	ID                string            `json:"id"`
	ClientSecret      string            `json:"client_secret"`
	Status            enum.IntentStatus `json:"status"`
	PaymentMethodID   string            `json:"payment_method_id,omitempty"`
	MandateReference  string            `json:"mandate_reference,omitempty"`
	MerchantAccountID string            `json:"merchant_account_id,omitempty"`
}

func (si *SetupIntent) RequiresAction() bool {
	return si.Status == enum.IntentStatusRequiresAction
}

func (si *SetupIntent) Succeeded() bool {
	return si.Status == enum.IntentStatusSucceeded
}
