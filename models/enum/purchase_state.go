package enum

type PurchaseState string

const (
	PurchaseStateInProgress PurchaseState = "in_progress"
	PurchaseStateSuccessful PurchaseState = "successful"
	PurchaseStateFailed     PurchaseState = "failed"
)
