package processor

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
)

const (
	stripeCodeResourceMissing        = "resource_missing"
	stripeCodeChargeAlreadyRefunded  = "charge_already_refunded"
	stripeCodeUnexpectedIntentState  = "payment_intent_unexpected_state"
	stripeCodeSetupIntentUnexpected  = "setup_intent_unexpected_state"
	stripeCodeAuthenticationRequired = "payment_intent_authentication_failure"
	stripeCodeCardDeclined           = "card_declined"
)

// translateStripeError maps a Stripe client error onto the processor's error kinds.
// Nothing is swallowed: every gateway error comes back as one of them.
func translateStripeError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// Transport failures never reach Stripe's error envelope.
		return fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	switch {
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.Type == stripe.ErrorTypeAPI:
		return fmt.Errorf("%w: %s", ErrProcessorUnavailable, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized,
		stripeErr.HTTPStatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrConfiguration, stripeErr.Msg)
	case string(stripeErr.Code) == stripeCodeChargeAlreadyRefunded:
		return fmt.Errorf("%w: %s", ErrAlreadyRefunded, stripeErr.Msg)
	case stripeErr.Type == stripe.ErrorTypeCard:
		return &CardDeclineError{
			ErrorCode: declineErrorCode(stripeErr),
			ChargeID:  stripeErr.ChargeID,
			Message:   stripeErr.Msg,
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, stripeErr.Msg)
	}
}

// declineErrorCode keeps the issuer's sub-reason, e.g. card_declined_fraudulent.
func declineErrorCode(stripeErr *stripe.Error) string {
	code := string(stripeErr.Code)
	if code == "" {
		code = stripeCodeCardDeclined
	}
	if stripeErr.DeclineCode != "" {
		return code + "_" + string(stripeErr.DeclineCode)
	}
	return code
}

func stripeErrorCode(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return string(stripeErr.Code)
	}
	return ""
}
