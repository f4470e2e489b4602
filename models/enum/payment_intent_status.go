package enum

// IntentStatus is the gateway-independent state of a charge or setup intent.
type IntentStatus string

const (
	IntentStatusPending        IntentStatus = "pending"
	IntentStatusRequiresAction IntentStatus = "requires_action"
	IntentStatusSucceeded      IntentStatus = "succeeded"
	IntentStatusCanceled       IntentStatus = "canceled"
	IntentStatusFailed         IntentStatus = "failed"
)
