package enum

import "slices"

// ChargeEventType is the closed set of webhook notifications the reconciliation
// layer understands. Gateway adapters map their own type strings onto it and use
// ChargeEventUnrecognized for anything else.
type ChargeEventType string

const (
	ChargeEventInformational          ChargeEventType = "informational"
	ChargeEventChargeSucceeded        ChargeEventType = "charge_succeeded"
	ChargeEventChargeFailed           ChargeEventType = "charge_failed"
	ChargeEventRefundUpdated          ChargeEventType = "refund_updated"
	ChargeEventDisputeFormalized      ChargeEventType = "dispute_formalized"
	ChargeEventDisputeFundsWithdrawn  ChargeEventType = "dispute_funds_withdrawn"
	ChargeEventDisputeFundsReinstated ChargeEventType = "dispute_funds_reinstated"
	ChargeEventDisputeWon             ChargeEventType = "dispute_won"
	ChargeEventDisputeLost            ChargeEventType = "dispute_lost"
	ChargeEventEarlyFraudWarning      ChargeEventType = "early_fraud_warning"
	ChargeEventFinancingTransaction   ChargeEventType = "financing_transaction"
	ChargeEventUnrecognized           ChargeEventType = "unrecognized"
)

// ActionableChargeEventTypes lists every type that has a reconciliation handler.
func ActionableChargeEventTypes() []ChargeEventType {
	return []ChargeEventType{
		ChargeEventChargeSucceeded,
		ChargeEventChargeFailed,
		ChargeEventRefundUpdated,
		ChargeEventDisputeFormalized,
		ChargeEventDisputeFundsWithdrawn,
		ChargeEventDisputeFundsReinstated,
		ChargeEventDisputeWon,
		ChargeEventDisputeLost,
		ChargeEventEarlyFraudWarning,
		ChargeEventFinancingTransaction,
	}
}

// IsActionable reports whether reconciliation has work for events of this type.
func (t ChargeEventType) IsActionable() bool {
	return slices.Contains(ActionableChargeEventTypes(), t)
}
