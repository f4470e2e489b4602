package models

import "goflare.io/chargeprocessor/models/enum"

// ChargeableSource is the raw instrument reference handed over by checkout.
type ChargeableSource struct {
	Variant             enum.ChargeableVariant `json:"variant"`
	Token               string                 `json:"token,omitempty"`
	PaymentMethodID     string                 `json:"payment_method_id,omitempty"`
	CustomerID          string                 `json:"customer_id,omitempty"`
	ZipCode             string                 `json:"zip_code,omitempty"`
	MerchantDestination *MerchantAccount       `json:"merchant_destination,omitempty"`
}

// CardDetails are the instrument attributes fetched from the gateway on prepare.
type CardDetails struct {
	Fingerprint    string `json:"fingerprint"`
	Last4          string `json:"last4"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	Type           string `json:"type"`
	Country        string `json:"country"`
	ZipCode        string `json:"zip_code"`
	ZipCheckResult string `json:"zip_check_result"`
}

// ChargeParams identify the instrument on the account the charge runs against.
type ChargeParams struct {
	CustomerReference      string
	PaymentMethodReference string
	// StripeAccount is set when the charge runs directly on a connected account.
	StripeAccount string
}

// User owns reusable tokens.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
