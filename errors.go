package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInstrument means the gateway rejected the token or payment method.
	ErrInvalidInstrument = errors.New("invalid payment instrument")

	// ErrInvalidRequest covers malformed or unknown identifiers and over-refunds.
	ErrInvalidRequest = errors.New("invalid request")

	ErrAlreadyRefunded = errors.New("charge already refunded")

	// ErrAlreadySettled is returned when canceling an intent that already succeeded.
	ErrAlreadySettled = errors.New("intent already settled")

	// ErrProcessorUnavailable is retryable: the caller should retry the purchase flow.
	ErrProcessorUnavailable = errors.New("charge processor unavailable")

	// ErrConfiguration is fatal: a connected merchant account lacks its gateway id.
	ErrConfiguration = errors.New("charge processor configuration error")
)

// CardDeclineError keeps the gateway's granular decline reason.
type CardDeclineError struct {
	ErrorCode string
	ChargeID  string
	Message   string
}

func (e *CardDeclineError) Error() string {
	if e.ChargeID != "" {
		return fmt.Sprintf("card declined (%s) for charge %s: %s", e.ErrorCode, e.ChargeID, e.Message)
	}
	return fmt.Sprintf("card declined (%s): %s", e.ErrorCode, e.Message)
}

// IsUserFacing reports whether err should be shown to the buyer as a structured
// rejection rather than a generic failure.
func IsUserFacing(err error) bool {
	var decline *CardDeclineError
	return errors.As(err, &decline) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidInstrument) ||
		errors.Is(err, ErrAlreadyRefunded) ||
		errors.Is(err, ErrAlreadySettled)
}
