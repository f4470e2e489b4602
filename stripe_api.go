package processor

import (
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// stripeAPI is the subset of the Stripe client the processor talks to.
type stripeAPI interface {
	NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	ConfirmPaymentIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)

	NewSetupIntent(params *stripe.SetupIntentParams) (*stripe.SetupIntent, error)
	GetSetupIntent(id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error)
	CancelSetupIntent(id string, params *stripe.SetupIntentCancelParams) (*stripe.SetupIntent, error)

	GetCharge(id string, params *stripe.ChargeParams) (*stripe.Charge, error)
	SearchCharges(params *stripe.ChargeSearchParams) ([]*stripe.Charge, error)

	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)

	NewPaymentMethod(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
	GetPaymentMethod(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	GetCustomer(id string, params *stripe.CustomerParams) (*stripe.Customer, error)

	NewTransfer(params *stripe.TransferParams) (*stripe.Transfer, error)
	GetTransfer(id string, params *stripe.TransferParams) (*stripe.Transfer, error)
	ListTransfers(params *stripe.TransferListParams) ([]*stripe.Transfer, error)
	NewTransferReversal(params *stripe.TransferReversalParams) (*stripe.TransferReversal, error)
	ListTransferReversals(params *stripe.TransferReversalListParams) ([]*stripe.TransferReversal, error)
}

var _ stripeAPI = (*stripeClient)(nil)

type stripeClient struct {
	api *client.API
}

func newStripeClient(secretKey string) *stripeClient {
	return &stripeClient{api: client.New(secretKey, nil)}
}

func (c *stripeClient) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.New(params)
}

func (c *stripeClient) GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Get(id, params)
}

func (c *stripeClient) ConfirmPaymentIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Confirm(id, params)
}

func (c *stripeClient) CancelPaymentIntent(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Cancel(id, params)
}

func (c *stripeClient) NewSetupIntent(params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	return c.api.SetupIntents.New(params)
}

func (c *stripeClient) GetSetupIntent(id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	return c.api.SetupIntents.Get(id, params)
}

func (c *stripeClient) CancelSetupIntent(id string, params *stripe.SetupIntentCancelParams) (*stripe.SetupIntent, error) {
	return c.api.SetupIntents.Cancel(id, params)
}

func (c *stripeClient) GetCharge(id string, params *stripe.ChargeParams) (*stripe.Charge, error) {
	return c.api.Charges.Get(id, params)
}

func (c *stripeClient) SearchCharges(params *stripe.ChargeSearchParams) ([]*stripe.Charge, error) {
	var charges []*stripe.Charge
	iter := c.api.Charges.Search(params)
	for iter.Next() {
		charges = append(charges, iter.Charge())
	}
	return charges, iter.Err()
}

func (c *stripeClient) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return c.api.Refunds.New(params)
}

func (c *stripeClient) NewPaymentMethod(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	return c.api.PaymentMethods.New(params)
}

func (c *stripeClient) GetPaymentMethod(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	return c.api.PaymentMethods.Get(id, params)
}

func (c *stripeClient) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return c.api.Customers.New(params)
}

func (c *stripeClient) GetCustomer(id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	return c.api.Customers.Get(id, params)
}

func (c *stripeClient) NewTransfer(params *stripe.TransferParams) (*stripe.Transfer, error) {
	return c.api.Transfers.New(params)
}

func (c *stripeClient) GetTransfer(id string, params *stripe.TransferParams) (*stripe.Transfer, error) {
	return c.api.Transfers.Get(id, params)
}

// ListTransfers walks every page of the listing.
func (c *stripeClient) ListTransfers(params *stripe.TransferListParams) ([]*stripe.Transfer, error) {
	var transfers []*stripe.Transfer
	iter := c.api.Transfers.List(params)
	for iter.Next() {
		transfers = append(transfers, iter.Transfer())
	}
	return transfers, iter.Err()
}

func (c *stripeClient) NewTransferReversal(params *stripe.TransferReversalParams) (*stripe.TransferReversal, error) {
	return c.api.TransferReversals.New(params)
}

func (c *stripeClient) ListTransferReversals(params *stripe.TransferReversalListParams) ([]*stripe.TransferReversal, error) {
	var reversals []*stripe.TransferReversal
	iter := c.api.TransferReversals.List(params)
	for iter.Next() {
		reversals = append(reversals, iter.TransferReversal())
	}
	return reversals, iter.Err()
}
