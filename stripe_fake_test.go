package processor

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/models"
)

// fakeStripeAPI keeps gateway objects in memory and records every request.
type fakeStripeAPI struct {
	mu sync.Mutex

	tokens         map[string]*stripe.PaymentMethod
	paymentMethods map[string]*stripe.PaymentMethod
	customers      map[string]*stripe.Customer
	charges        map[string]*stripe.Charge
	paymentIntents map[string]*stripe.PaymentIntent
	setupIntents   map[string]*stripe.SetupIntent
	transfers      map[string]*stripe.Transfer
	searchResults  []*stripe.Charge

	errs  map[string]error
	calls map[string]int

	paymentIntentParams []*stripe.PaymentIntentParams
	setupIntentParams   []*stripe.SetupIntentParams
	paymentMethodParams []*stripe.PaymentMethodParams
	customerParams      []*stripe.CustomerParams
	refundParams        []*stripe.RefundParams
	transferParams      []*stripe.TransferParams
	reversalParams      []*stripe.TransferReversalParams
	chargeParams        []*stripe.ChargeParams
}

var _ stripeAPI = (*fakeStripeAPI)(nil)

func newFakeStripeAPI() *fakeStripeAPI {
	return &fakeStripeAPI{
		tokens:         map[string]*stripe.PaymentMethod{},
		paymentMethods: map[string]*stripe.PaymentMethod{},
		customers:      map[string]*stripe.Customer{},
		charges:        map[string]*stripe.Charge{},
		paymentIntents: map[string]*stripe.PaymentIntent{},
		setupIntents:   map[string]*stripe.SetupIntent{},
		transfers:      map[string]*stripe.Transfer{},
		errs:           map[string]error{},
		calls:          map[string]int{},
	}
}

func (f *fakeStripeAPI) record(method string) error {
	f.calls[method]++
	return f.errs[method]
}

func resourceMissing(id string) error {
	return &stripe.Error{
		Type:           stripe.ErrorTypeInvalidRequest,
		Code:           stripe.ErrorCode(stripeCodeResourceMissing),
		HTTPStatusCode: http.StatusNotFound,
		Msg:            fmt.Sprintf("No such object: '%s'", id),
	}
}

func card(country, last4 string) *stripe.PaymentMethodCard {
	return &stripe.PaymentMethodCard{
		Brand:       stripe.PaymentMethodCardBrandVisa,
		Country:     country,
		ExpMonth:    12,
		ExpYear:     2030,
		Fingerprint: "fp_" + last4,
		Last4:       last4,
	}
}

func (f *fakeStripeAPI) addToken(token, paymentMethodID, country string) {
	pm := &stripe.PaymentMethod{ID: paymentMethodID, Card: card(country, "4242")}
	f.tokens[token] = pm
	f.paymentMethods[paymentMethodID] = pm
}

func (f *fakeStripeAPI) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentIntentParams = append(f.paymentIntentParams, params)
	if err := f.record("NewPaymentIntent"); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("pi_%d", len(f.paymentIntentParams))
	amount := stripe.Int64Value(params.Amount)
	currency := stripe.Currency(stripe.StringValue(params.Currency))
	ch := &stripe.Charge{
		ID:       fmt.Sprintf("ch_%d", len(f.paymentIntentParams)),
		Amount:   amount,
		Currency: currency,
		Metadata: params.Metadata,
		BalanceTransaction: &stripe.BalanceTransaction{
			Amount:   amount,
			Currency: currency,
			Fee:      59,
			Net:      amount - 59,
		},
		ApplicationFeeAmount: stripe.Int64Value(params.ApplicationFeeAmount),
	}
	if params.TransferData != nil {
		ch.TransferData = &stripe.ChargeTransferData{
			Amount:      stripe.Int64Value(params.TransferData.Amount),
			Destination: &stripe.Account{ID: stripe.StringValue(params.TransferData.Destination)},
		}
	}
	f.charges[ch.ID] = ch

	pi := &stripe.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       amount,
		Currency:     currency,
		Status:       stripe.PaymentIntentStatusSucceeded,
		LatestCharge: ch,
		Metadata:     params.Metadata,
	}
	f.paymentIntents[id] = pi
	return pi, nil
}

func (f *fakeStripeAPI) GetPaymentIntent(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetPaymentIntent"); err != nil {
		return nil, err
	}
	pi, ok := f.paymentIntents[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	return pi, nil
}

func (f *fakeStripeAPI) ConfirmPaymentIntent(id string, _ *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ConfirmPaymentIntent"); err != nil {
		return nil, err
	}
	pi, ok := f.paymentIntents[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	if pi.LatestCharge != nil {
		pi.Status = stripe.PaymentIntentStatusSucceeded
	} else {
		pi.Status = stripe.PaymentIntentStatusRequiresAction
	}
	return pi, nil
}

func (f *fakeStripeAPI) CancelPaymentIntent(id string, _ *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CancelPaymentIntent"); err != nil {
		return nil, err
	}
	pi, ok := f.paymentIntents[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	pi.Status = stripe.PaymentIntentStatusCanceled
	return pi, nil
}

func (f *fakeStripeAPI) NewSetupIntent(params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupIntentParams = append(f.setupIntentParams, params)
	if err := f.record("NewSetupIntent"); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("seti_%d", len(f.setupIntentParams))
	si := &stripe.SetupIntent{
		ID:            id,
		ClientSecret:  id + "_secret",
		Status:        stripe.SetupIntentStatusSucceeded,
		PaymentMethod: &stripe.PaymentMethod{ID: stripe.StringValue(params.PaymentMethod)},
		Metadata:      params.Metadata,
	}
	f.setupIntents[id] = si
	return si, nil
}

func (f *fakeStripeAPI) GetSetupIntent(id string, _ *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetSetupIntent"); err != nil {
		return nil, err
	}
	si, ok := f.setupIntents[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	return si, nil
}

func (f *fakeStripeAPI) CancelSetupIntent(id string, _ *stripe.SetupIntentCancelParams) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CancelSetupIntent"); err != nil {
		return nil, err
	}
	si, ok := f.setupIntents[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	si.Status = stripe.SetupIntentStatusCanceled
	return si, nil
}

func (f *fakeStripeAPI) GetCharge(id string, params *stripe.ChargeParams) (*stripe.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeParams = append(f.chargeParams, params)
	if err := f.record("GetCharge"); err != nil {
		return nil, err
	}
	ch, ok := f.charges[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	return ch, nil
}

func (f *fakeStripeAPI) SearchCharges(_ *stripe.ChargeSearchParams) ([]*stripe.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SearchCharges"); err != nil {
		return nil, err
	}
	return f.searchResults, nil
}

func (f *fakeStripeAPI) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundParams = append(f.refundParams, params)
	if err := f.record("NewRefund"); err != nil {
		return nil, err
	}

	id := stripe.StringValue(params.Charge)
	ch, ok := f.charges[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	amount := ch.Amount - ch.AmountRefunded
	if params.Amount != nil {
		amount = *params.Amount
	}
	ch.AmountRefunded += amount
	ch.Refunded = ch.AmountRefunded >= ch.Amount

	return &stripe.Refund{
		ID:       fmt.Sprintf("re_%d", len(f.refundParams)),
		Amount:   amount,
		Currency: ch.Currency,
		Charge:   &stripe.Charge{ID: ch.ID},
		Status:   stripe.RefundStatusSucceeded,
	}, nil
}

func (f *fakeStripeAPI) NewPaymentMethod(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentMethodParams = append(f.paymentMethodParams, params)
	if err := f.record("NewPaymentMethod"); err != nil {
		return nil, err
	}

	if params.PaymentMethod != nil {
		original, ok := f.paymentMethods[*params.PaymentMethod]
		if !ok {
			return nil, resourceMissing(*params.PaymentMethod)
		}
		clone := &stripe.PaymentMethod{ID: original.ID + "_clone", Card: original.Card}
		f.paymentMethods[clone.ID] = clone
		return clone, nil
	}

	token := stripe.StringValue(params.Card.Token)
	pm, ok := f.tokens[token]
	if !ok {
		return nil, resourceMissing(token)
	}
	return pm, nil
}

func (f *fakeStripeAPI) GetPaymentMethod(id string, _ *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetPaymentMethod"); err != nil {
		return nil, err
	}
	pm, ok := f.paymentMethods[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	return pm, nil
}

func (f *fakeStripeAPI) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerParams = append(f.customerParams, params)
	if err := f.record("NewCustomer"); err != nil {
		return nil, err
	}
	customer := &stripe.Customer{ID: fmt.Sprintf("cus_%d", len(f.customerParams))}
	f.customers[customer.ID] = customer
	return customer, nil
}

func (f *fakeStripeAPI) GetCustomer(id string, _ *stripe.CustomerParams) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetCustomer"); err != nil {
		return nil, err
	}
	customer, ok := f.customers[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	return customer, nil
}

func (f *fakeStripeAPI) NewTransfer(params *stripe.TransferParams) (*stripe.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferParams = append(f.transferParams, params)
	if err := f.record("NewTransfer"); err != nil {
		return nil, err
	}
	t := &stripe.Transfer{
		ID:          fmt.Sprintf("tr_%d", len(f.transferParams)),
		Amount:      stripe.Int64Value(params.Amount),
		Currency:    stripe.Currency(stripe.StringValue(params.Currency)),
		Destination: &stripe.Account{ID: stripe.StringValue(params.Destination)},
		Description: stripe.StringValue(params.Description),
	}
	f.transfers[t.ID] = t
	return t, nil
}

func (f *fakeStripeAPI) GetTransfer(id string, _ *stripe.TransferParams) (*stripe.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetTransfer"); err != nil {
		return nil, err
	}
	t, ok := f.transfers[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	return t, nil
}

func (f *fakeStripeAPI) ListTransfers(params *stripe.TransferListParams) ([]*stripe.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListTransfers"); err != nil {
		return nil, err
	}
	var out []*stripe.Transfer
	for _, t := range f.transfers {
		if t.Destination != nil && t.Destination.ID == stripe.StringValue(params.Destination) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStripeAPI) NewTransferReversal(params *stripe.TransferReversalParams) (*stripe.TransferReversal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reversalParams = append(f.reversalParams, params)
	if err := f.record("NewTransferReversal"); err != nil {
		return nil, err
	}
	id := stripe.StringValue(params.ID)
	t, ok := f.transfers[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	amount := t.Amount - t.AmountReversed
	if params.Amount != nil {
		amount = *params.Amount
	}
	t.AmountReversed += amount
	t.Reversed = t.AmountReversed >= t.Amount
	reversal := &stripe.TransferReversal{
		ID:       fmt.Sprintf("trr_%d", len(f.reversalParams)),
		Amount:   amount,
		Currency: t.Currency,
		Metadata: params.Metadata,
	}
	if t.Reversals == nil {
		t.Reversals = &stripe.TransferReversalList{}
	}
	t.Reversals.Data = append(t.Reversals.Data, reversal)
	return reversal, nil
}

func (f *fakeStripeAPI) ListTransferReversals(params *stripe.TransferReversalListParams) ([]*stripe.TransferReversal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListTransferReversals"); err != nil {
		return nil, err
	}
	id := stripe.StringValue(params.ID)
	t, ok := f.transfers[id]
	if !ok {
		return nil, resourceMissing(id)
	}
	if t.Reversals == nil {
		return nil, nil
	}
	return t.Reversals.Data, nil
}

var (
	platformMerchant  = &models.MerchantAccount{ID: "ma_platform", GatewayAccountID: "acct_platform", IsPlatform: true}
	connectedMerchant = &models.MerchantAccount{ID: "ma_connected", GatewayAccountID: "acct_merchant"}
	directMerchant    = &models.MerchantAccount{ID: "ma_direct", GatewayAccountID: "acct_direct", ChargesOnMerchantAccount: true}
)

func newTestProcessor(api *fakeStripeAPI) *StripeProcessor {
	return newStripeProcessor(api, StripeOptions{
		WebhookSecret:             "whsec_test",
		PlatformAccountID:         "acct_platform",
		StatementDescriptorPrefix: "GUM",
		MandatePolicy:             NewMandatePolicy([]string{"IN"}),
	}, zap.NewNop())
}
