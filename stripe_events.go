package processor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

const (
	eventTypeFinancingCreated = stripe.EventType("capital.financing_transaction.created")
	eventTypeFinancingUpdated = stripe.EventType("capital.financing_transaction.updated")

	financingReasonAutomatic = "automatic_withholding"
)

// informationalStripeEvents are charge related notifications that carry no work
// beyond acknowledging them.
var informationalStripeEvents = map[stripe.EventType]struct{}{
	stripe.EventTypeChargeCaptured:              {},
	stripe.EventTypeChargeExpired:               {},
	stripe.EventTypeChargePending:               {},
	stripe.EventTypeChargeRefunded:              {},
	stripe.EventTypeChargeUpdated:               {},
	stripe.EventTypePaymentIntentCreated:        {},
	stripe.EventTypePaymentIntentSucceeded:      {},
	stripe.EventTypePaymentIntentProcessing:     {},
	stripe.EventTypePaymentIntentRequiresAction: {},
	stripe.EventTypePaymentIntentCanceled:       {},
	stripe.EventTypeSetupIntentSucceeded:        {},
	stripe.EventTypeSetupIntentSetupFailed:      {},
}

// ParseEvent verifies the Stripe-Signature header and normalizes the event.
func (sp *StripeProcessor) ParseEvent(payload []byte, signature string) (*models.ChargeEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, sp.options.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to verify webhook signature: %v", ErrInvalidRequest, err)
	}

	chargeEvent, err := normalizeStripeEvent(event)
	if err != nil {
		return nil, err
	}
	return chargeEvent, nil
}

func normalizeStripeEvent(event stripe.Event) (*models.ChargeEvent, error) {
	ev := &models.ChargeEvent{
		ID:                 event.ID,
		Type:               enum.ChargeEventUnrecognized,
		GatewayType:        string(event.Type),
		ConnectedAccountID: event.Account,
		CreatedAt:          time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return ev, nil
	}
	raw := event.Data.Raw

	switch event.Type {
	case stripe.EventTypeChargeSucceeded, stripe.EventTypeChargeFailed:
		ch := new(stripe.Charge)
		if err := json.Unmarshal(raw, ch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal charge event: %w", err)
		}
		ev.Type = enum.ChargeEventChargeSucceeded
		if event.Type == stripe.EventTypeChargeFailed {
			ev.Type = enum.ChargeEventChargeFailed
		}
		fillFromCharge(ev, ch)

	case stripe.EventTypePaymentIntentPaymentFailed:
		pi := new(stripe.PaymentIntent)
		if err := json.Unmarshal(raw, pi); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment intent event: %w", err)
		}
		ev.Type = enum.ChargeEventChargeFailed
		ev.PaymentIntentID = pi.ID
		ev.ChargeID = latestChargeID(pi)
		ev.PurchaseReference = pi.Metadata[metadataPurchase]
		ev.CardCountry = pi.Metadata[metadataCardCountry]
		ev.OffSession, _ = strconv.ParseBool(pi.Metadata[metadataOffSession])
		if pi.LastPaymentError != nil {
			ev.FailureCode = declineErrorCode(pi.LastPaymentError)
		}
		ev.FlowOfFunds = models.BuildSimpleFlowOfFunds(models.NewMoney(string(pi.Currency), pi.Amount))

	case stripe.EventTypeChargeRefundUpdated:
		refund := new(stripe.Refund)
		if err := json.Unmarshal(raw, refund); err != nil {
			return nil, fmt.Errorf("failed to unmarshal refund event: %w", err)
		}
		ev.Type = enum.ChargeEventRefundUpdated
		ev.RefundID = refund.ID
		ev.RefundStatus = refundStatusFromStripe(refund.Status)
		ev.Reason = string(refund.Reason)
		if refund.Charge != nil {
			ev.ChargeID = refund.Charge.ID
		}
		ev.FlowOfFunds = models.BuildSimpleFlowOfFunds(models.NewMoney(string(refund.Currency), -refund.Amount))

	case stripe.EventTypeChargeDisputeCreated,
		stripe.EventTypeChargeDisputeUpdated,
		stripe.EventTypeChargeDisputeFundsWithdrawn,
		stripe.EventTypeChargeDisputeFundsReinstated,
		stripe.EventTypeChargeDisputeClosed:
		dispute := new(stripe.Dispute)
		if err := json.Unmarshal(raw, dispute); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dispute event: %w", err)
		}
		ev.Type = disputeEventType(event.Type, dispute.Status)
		ev.DisputeID = dispute.ID
		ev.Reason = string(dispute.Reason)
		if dispute.Charge != nil {
			ev.ChargeID = dispute.Charge.ID
		}
		if dispute.PaymentIntent != nil {
			ev.PaymentIntentID = dispute.PaymentIntent.ID
		}
		ev.FlowOfFunds = models.BuildSimpleFlowOfFunds(models.NewMoney(string(dispute.Currency), -dispute.Amount))

	case stripe.EventTypeRadarEarlyFraudWarningCreated, stripe.EventTypeRadarEarlyFraudWarningUpdated:
		warning := new(stripe.RadarEarlyFraudWarning)
		if err := json.Unmarshal(raw, warning); err != nil {
			return nil, fmt.Errorf("failed to unmarshal early fraud warning event: %w", err)
		}
		ev.Type = enum.ChargeEventEarlyFraudWarning
		if warning.Charge != nil {
			ev.ChargeID = warning.Charge.ID
		}
		ev.EarlyFraudWarning = &models.EarlyFraudWarning{
			ID:         warning.ID,
			ChargeID:   ev.ChargeID,
			FraudType:  string(warning.FraudType),
			Actionable: warning.Actionable,
			CreatedAt:  time.Unix(warning.Created, 0).UTC(),
		}

	case eventTypeFinancingCreated, eventTypeFinancingUpdated:
		financing, err := parseFinancingTransaction(raw)
		if err != nil {
			return nil, err
		}
		ev.Type = enum.ChargeEventFinancingTransaction
		ev.Financing = financing

	default:
		if _, ok := informationalStripeEvents[event.Type]; ok {
			ev.Type = enum.ChargeEventInformational
		}
	}

	return ev, nil
}

func disputeEventType(eventType stripe.EventType, status stripe.DisputeStatus) enum.ChargeEventType {
	switch eventType {
	case stripe.EventTypeChargeDisputeCreated, stripe.EventTypeChargeDisputeUpdated:
		return enum.ChargeEventDisputeFormalized
	case stripe.EventTypeChargeDisputeFundsWithdrawn:
		return enum.ChargeEventDisputeFundsWithdrawn
	case stripe.EventTypeChargeDisputeFundsReinstated:
		return enum.ChargeEventDisputeFundsReinstated
	}

	switch status {
	case stripe.DisputeStatusWon:
		return enum.ChargeEventDisputeWon
	case stripe.DisputeStatusLost:
		return enum.ChargeEventDisputeLost
	default:
		// warning_closed and inquiries never moved funds.
		return enum.ChargeEventInformational
	}
}

func fillFromCharge(ev *models.ChargeEvent, ch *stripe.Charge) {
	ev.ChargeID = ch.ID
	if ch.PaymentIntent != nil {
		ev.PaymentIntentID = ch.PaymentIntent.ID
	}
	ev.PurchaseReference = ch.Metadata[metadataPurchase]
	ev.CardCountry = ch.Metadata[metadataCardCountry]
	if ev.CardCountry == "" && ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Card != nil {
		ev.CardCountry = ch.PaymentMethodDetails.Card.Country
	}
	ev.OffSession, _ = strconv.ParseBool(ch.Metadata[metadataOffSession])
	ev.FailureCode = ch.FailureCode
	ev.FlowOfFunds = models.BuildSimpleFlowOfFunds(models.NewMoney(string(ch.Currency), ch.Amount))
}

// stripeFinancingTransaction mirrors the Capital object, which stripe-go does
// not model.
type stripeFinancingTransaction struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Details struct {
		Currency    string `json:"currency"`
		TotalAmount int64  `json:"total_amount"`
		Reason      string `json:"reason"`
		Transaction *struct {
			Charge string `json:"charge"`
		} `json:"transaction"`
	} `json:"details"`
}

func parseFinancingTransaction(raw json.RawMessage) (*models.FinancingTransaction, error) {
	var ft stripeFinancingTransaction
	if err := json.Unmarshal(raw, &ft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal financing transaction event: %w", err)
	}

	financing := &models.FinancingTransaction{
		ID:     ft.ID,
		Type:   ft.Type,
		Amount: models.NewMoney(ft.Details.Currency, ft.Details.TotalAmount),
	}
	if ft.Details.Reason == financingReasonAutomatic && ft.Details.Transaction != nil && ft.Details.Transaction.Charge != "" {
		financing.Automatic = true
		financing.DestinationPaymentID = ft.Details.Transaction.Charge
	}
	return financing, nil
}
