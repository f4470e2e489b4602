package processor

import (
	"context"
	"time"

	"goflare.io/chargeprocessor/models"
)

// ChargeProcessor is implemented once per payment gateway. Callers only ever see
// the normalized models; gateway types never leave the implementation.
type ChargeProcessor interface {
	// NewChargeable wraps raw checkout input. The result must be prepared
	// before it is charged.
	NewChargeable(source models.ChargeableSource) (Chargeable, error)

	CreatePaymentIntentOrCharge(ctx context.Context, req ChargeRequest) (*models.ChargeIntent, error)
	SetupFutureCharges(ctx context.Context, req SetupRequest) (*models.SetupIntent, error)
	ConfirmPaymentIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.ChargeIntent, error)
	CancelPaymentIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.ChargeIntent, error)
	CancelSetupIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.SetupIntent, error)

	Refund(ctx context.Context, req RefundRequest) (*models.ChargeRefund, error)

	// GetCharge reads the charge on the merchant's connected account when the
	// merchant charges there, and on the platform otherwise. A nil merchant
	// means the platform.
	GetCharge(ctx context.Context, merchant *models.MerchantAccount, chargeID string) (*models.Charge, error)
	GetChargeIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.ChargeIntent, error)
	GetSetupIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.SetupIntent, error)
	// SearchCharge returns nil without error when no charge exists for the purchase.
	SearchCharge(ctx context.Context, purchaseReference string) (*models.Charge, error)

	// ParseEvent verifies a webhook delivery and normalizes it.
	ParseEvent(payload []byte, signature string) (*models.ChargeEvent, error)
}

// TransferGateway moves money between the platform and connected accounts after
// the original charge. Reconciliation jobs depend on it.
type TransferGateway interface {
	// ReverseChargeTransfer pulls back the destination transfer of a charge
	// together with the application fee. Repeating the call with the same key
	// returns the reversal made the first time.
	ReverseChargeTransfer(ctx context.Context, chargeID string, idempotencyKey string) (*models.TransferReversal, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*models.Transfer, error)
	GetTransfer(ctx context.Context, transferID string) (*models.Transfer, error)
	ListTransfers(ctx context.Context, destinationAccountID string, createdAfter time.Time) ([]*models.Transfer, error)
	ReverseTransfer(ctx context.Context, req TransferReversalRequest) (*models.TransferReversal, error)
	// FindOriginatingChargeID follows a payment on a connected account back to
	// the platform charge that funded it.
	FindOriginatingChargeID(ctx context.Context, connectedAccountID, destinationPaymentID string) (string, error)
}

// ChargeRequest describes one attempt to take money from a buyer.
type ChargeRequest struct {
	MerchantAccount      *models.MerchantAccount
	Chargeable           Chargeable
	AmountCents          int64
	FeeCents             int64
	Currency             string
	Description          string
	OffSession           bool
	SetupFutureCharges   bool
	StatementDescription string

	// Reference is the purchase's external id; it also keys gateway idempotency.
	Reference string

	// MandateSubscriptionID is the stable id mandate references are derived from.
	MandateSubscriptionID string
}

type SetupRequest struct {
	MerchantAccount       *models.MerchantAccount
	Chargeable            Chargeable
	Owner                 *models.User
	Reference             string
	MandateSubscriptionID string
	MandateAmountCents    int64
	Currency              string
}

// RefundRequest refunds the remainder of the charge when AmountCents is nil.
type RefundRequest struct {
	ChargeID        string
	AmountCents     *int64
	MerchantAccount *models.MerchantAccount
	IsForFraud      bool
}

type TransferRequest struct {
	DestinationAccountID string
	Amount               models.Money
	Description          string
	Metadata             map[string]string
	IdempotencyKey       string
}

// TransferReversalRequest pulls part of a transfer back. Metadata is stored on
// the reversal so later runs can tell which reversals they already made.
type TransferReversalRequest struct {
	TransferID     string
	AmountCents    int64
	Metadata       map[string]string
	IdempotencyKey string
}
