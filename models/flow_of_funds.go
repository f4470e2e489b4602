package models

import "errors"

var ErrIncompleteMerchantAmounts = errors.New("merchant gross and net amounts must be set together")

// FlowOfFunds describes how one monetary event is distributed between the payer,
// the platform and, for connected-account charges, the merchant.
type FlowOfFunds struct {
	IssuedAmount               Money  `json:"issued_amount"`
	SettledAmount              Money  `json:"settled_amount"`
	PlatformAmount             *Money `json:"platform_amount,omitempty"`
	MerchantAccountGrossAmount *Money `json:"merchant_account_gross_amount,omitempty"`
	MerchantAccountNetAmount   *Money `json:"merchant_account_net_amount,omitempty"`
}

func NewFlowOfFunds(issued, settled Money, platform, merchantGross, merchantNet *Money) (*FlowOfFunds, error) {
	if (merchantGross == nil) != (merchantNet == nil) {
		return nil, ErrIncompleteMerchantAmounts
	}
	return &FlowOfFunds{
		IssuedAmount:               issued,
		SettledAmount:              settled,
		PlatformAmount:             platform,
		MerchantAccountGrossAmount: merchantGross,
		MerchantAccountNetAmount:   merchantNet,
	}, nil
}

// BuildSimpleFlowOfFunds is used when nothing but the issued amount is known:
// every component equals m.
func BuildSimpleFlowOfFunds(m Money) *FlowOfFunds {
	platform := m
	return &FlowOfFunds{
		IssuedAmount:   m,
		SettledAmount:  m,
		PlatformAmount: &platform,
	}
}

func (f *FlowOfFunds) HasMerchantAmounts() bool {
	return f.MerchantAccountGrossAmount != nil && f.MerchantAccountNetAmount != nil
}

func (f *FlowOfFunds) Negate() *FlowOfFunds {
	out := &FlowOfFunds{
		IssuedAmount:  f.IssuedAmount.Negate(),
		SettledAmount: f.SettledAmount.Negate(),
	}
	out.PlatformAmount = negatePtr(f.PlatformAmount)
	out.MerchantAccountGrossAmount = negatePtr(f.MerchantAccountGrossAmount)
	out.MerchantAccountNetAmount = negatePtr(f.MerchantAccountNetAmount)
	return out
}

func negatePtr(m *Money) *Money {
	if m == nil {
		return nil
	}
	n := m.Negate()
	return &n
}
