package processor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/chargeprocessor/config"
	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

const (
	metadataPurchase       = "purchase"
	metadataCardCountry    = "card_country"
	metadataOffSession     = "off_session"
	metadataMandate        = "mandate_reference"
	metadataIdempotencyKey = "idempotency_key"
	refundReasonFraudulent = "fraudulent"
)

var (
	_ ChargeProcessor = (*StripeProcessor)(nil)
	_ TransferGateway = (*StripeProcessor)(nil)
)

// StripeOptions carries the account-level settings the processor needs.
type StripeOptions struct {
	WebhookSecret             string
	PlatformAccountID         string
	Currency                  string
	StatementDescriptorPrefix string
	MandatePolicy             MandatePolicy
}

type StripeProcessor struct {
	api     stripeAPI
	options StripeOptions
	logger  *zap.Logger
	now     func() time.Time
}

func NewStripeProcessor(config *config.Config, logger *zap.Logger) *StripeProcessor {
	return newStripeProcessor(newStripeClient(config.Stripe.SecretKey), StripeOptions{
		WebhookSecret:             config.Stripe.WebhookSecret,
		PlatformAccountID:         config.Stripe.PlatformAccountID,
		Currency:                  config.Stripe.Currency,
		StatementDescriptorPrefix: config.Stripe.StatementDescriptorPrefix,
		MandatePolicy:             NewMandatePolicy(config.Stripe.MandateCountries),
	}, logger)
}

func newStripeProcessor(api stripeAPI, options StripeOptions, logger *zap.Logger) *StripeProcessor {
	if options.Currency == "" {
		options.Currency = string(stripe.CurrencyUSD)
	}
	return &StripeProcessor{
		api:     api,
		options: options,
		logger:  logger,
		now:     time.Now,
	}
}

func (sp *StripeProcessor) NewChargeable(source models.ChargeableSource) (Chargeable, error) {
	return newStripeChargeable(sp.api, sp.options.PlatformAccountID, source)
}

// CreatePaymentIntentOrCharge creates and confirms a payment intent. Connected
// merchants receive amount minus fee through a destination transfer, or through
// a direct charge on their account when they are set up for it.
func (sp *StripeProcessor) CreatePaymentIntentOrCharge(ctx context.Context, req ChargeRequest) (*models.ChargeIntent, error) {
	if req.AmountCents <= 0 || req.FeeCents < 0 || req.FeeCents > req.AmountCents {
		return nil, fmt.Errorf("%w: amount %d with fee %d", ErrInvalidRequest, req.AmountCents, req.FeeCents)
	}
	if req.Chargeable == nil {
		return nil, fmt.Errorf("%w: no chargeable given", ErrInvalidInstrument)
	}

	merchant := req.MerchantAccount
	if merchant.IsConnected() && !merchant.HasGatewayAccount() {
		sp.logger.Error("Connected merchant account has no gateway account id", zap.String("merchant_account_id", merchant.ID))
		return nil, fmt.Errorf("%w: merchant account %s has no gateway account id", ErrConfiguration, merchant.ID)
	}

	if err := req.Chargeable.Prepare(ctx); err != nil {
		return nil, err
	}
	chargeParams, err := req.Chargeable.ChargeParams()
	if err != nil {
		return nil, err
	}
	card := req.Chargeable.Details()

	needsMandate := req.SetupFutureCharges && sp.options.MandatePolicy.RequiresMandate(card.Country)
	if needsMandate {
		if err = checkMandateSubscription(req.MandateSubscriptionID, card.Country); err != nil {
			return nil, err
		}
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = sp.options.Currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(currency),
		PaymentMethod:      stripe.String(chargeParams.PaymentMethodReference),
		PaymentMethodTypes: stripe.StringSlice([]string{string(stripe.PaymentMethodTypeCard)}),
		Confirm:            stripe.Bool(true),
	}
	if chargeParams.CustomerReference != "" {
		params.Customer = stripe.String(chargeParams.CustomerReference)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.OffSession {
		params.OffSession = stripe.Bool(true)
	} else if req.SetupFutureCharges {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}

	if merchant.IsConnected() {
		if merchant.ChargesOnMerchantAccount {
			if chargeParams.StripeAccount != merchant.GatewayAccountID {
				return nil, fmt.Errorf("%w: instrument was not prepared for merchant account %s", ErrInvalidInstrument, merchant.ID)
			}
			params.ApplicationFeeAmount = stripe.Int64(req.FeeCents)
			params.SetStripeAccount(merchant.GatewayAccountID)
		} else {
			params.TransferData = &stripe.PaymentIntentTransferDataParams{
				Destination: stripe.String(merchant.GatewayAccountID),
				Amount:      stripe.Int64(req.AmountCents - req.FeeCents),
			}
		}
	}

	if needsMandate {
		params.PaymentMethodOptions = &stripe.PaymentIntentPaymentMethodOptionsParams{
			Card: &stripe.PaymentIntentPaymentMethodOptionsCardParams{
				RequestThreeDSecure: stripe.String("any"),
				MandateOptions: &stripe.PaymentIntentPaymentMethodOptionsCardMandateOptionsParams{
					Reference:      stripe.String(MandateReference(req.MandateSubscriptionID)),
					Amount:         stripe.Int64(req.AmountCents),
					AmountType:     stripe.String("maximum"),
					Interval:       stripe.String("sporadic"),
					StartDate:      stripe.Int64(sp.now().Unix()),
					SupportedTypes: stripe.StringSlice([]string{"india"}),
				},
			},
		}
	}

	if suffix, ok := SanitizeStatementDescriptor(sp.options.StatementDescriptorPrefix, req.StatementDescription); ok {
		params.StatementDescriptorSuffix = stripe.String(suffix)
	}

	params.AddMetadata(metadataPurchase, req.Reference)
	params.AddMetadata(metadataCardCountry, card.Country)
	params.AddMetadata(metadataOffSession, strconv.FormatBool(req.OffSession))
	if req.Reference != "" {
		params.SetIdempotencyKey("charge-" + req.Reference)
	}
	expandLatestCharge(&params.Params)

	pi, err := sp.api.NewPaymentIntent(params)
	if err != nil {
		err = translateStripeError(err)
		sp.logger.Warn("Failed to create Stripe payment intent",
			zap.String("reference", req.Reference),
			zap.Error(err))
		return nil, err
	}

	sp.logger.Info("Stripe payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.String("reference", req.Reference),
		zap.String("status", string(pi.Status)))

	return sp.chargeIntentFromStripe(pi, merchant)
}

// SetupFutureCharges saves the instrument for off-session use without moving money.
func (sp *StripeProcessor) SetupFutureCharges(ctx context.Context, req SetupRequest) (*models.SetupIntent, error) {
	if req.Chargeable == nil {
		return nil, fmt.Errorf("%w: no chargeable given", ErrInvalidInstrument)
	}
	merchant := req.MerchantAccount
	if merchant.IsConnected() && !merchant.HasGatewayAccount() {
		return nil, fmt.Errorf("%w: merchant account %s has no gateway account id", ErrConfiguration, merchant.ID)
	}

	if err := req.Chargeable.Prepare(ctx); err != nil {
		return nil, err
	}
	chargeParams, err := req.Chargeable.ChargeParams()
	if err != nil {
		return nil, err
	}
	card := req.Chargeable.Details()

	needsMandate := sp.options.MandatePolicy.RequiresMandate(card.Country)
	if needsMandate {
		if err = checkMandateSubscription(req.MandateSubscriptionID, card.Country); err != nil {
			return nil, err
		}
	}

	if chargeParams.StripeAccount == "" && chargeParams.CustomerReference == "" {
		customerID, err := req.Chargeable.ReusableToken(ctx, req.Owner)
		if err != nil {
			return nil, err
		}
		chargeParams.CustomerReference = customerID
	}

	params := &stripe.SetupIntentParams{
		PaymentMethod:      stripe.String(chargeParams.PaymentMethodReference),
		PaymentMethodTypes: stripe.StringSlice([]string{string(stripe.PaymentMethodTypeCard)}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
		Confirm:            stripe.Bool(true),
	}
	if chargeParams.CustomerReference != "" {
		params.Customer = stripe.String(chargeParams.CustomerReference)
	}
	if chargeParams.StripeAccount != "" {
		params.SetStripeAccount(chargeParams.StripeAccount)
	}

	var mandateReference string
	if needsMandate {
		mandateReference = MandateReference(req.MandateSubscriptionID)
		currency := strings.ToLower(req.Currency)
		if currency == "" {
			currency = sp.options.Currency
		}
		params.PaymentMethodOptions = &stripe.SetupIntentPaymentMethodOptionsParams{
			Card: &stripe.SetupIntentPaymentMethodOptionsCardParams{
				RequestThreeDSecure: stripe.String("any"),
				MandateOptions: &stripe.SetupIntentPaymentMethodOptionsCardMandateOptionsParams{
					Reference:      stripe.String(mandateReference),
					Amount:         stripe.Int64(req.MandateAmountCents),
					AmountType:     stripe.String("maximum"),
					Currency:       stripe.String(currency),
					Interval:       stripe.String("sporadic"),
					StartDate:      stripe.Int64(sp.now().Unix()),
					SupportedTypes: stripe.StringSlice([]string{"india"}),
				},
			},
		}
		params.AddMetadata(metadataMandate, mandateReference)
	}

	params.AddMetadata(metadataPurchase, req.Reference)
	params.AddMetadata(metadataCardCountry, card.Country)
	if req.Reference != "" {
		params.SetIdempotencyKey("setup-" + req.Reference)
	}

	si, err := sp.api.NewSetupIntent(params)
	if err != nil {
		err = translateStripeError(err)
		sp.logger.Warn("Failed to create Stripe setup intent", zap.String("reference", req.Reference), zap.Error(err))
		return nil, err
	}

	sp.logger.Info("Stripe setup intent created",
		zap.String("setup_intent_id", si.ID),
		zap.String("status", string(si.Status)))

	return setupIntentFromStripe(si, merchant)
}

// ConfirmPaymentIntent finishes an intent after the buyer completed
// authentication on the client.
func (sp *StripeProcessor) ConfirmPaymentIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.ChargeIntent, error) {
	pi, err := sp.getPaymentIntent(merchant, intentID)
	if err != nil {
		return nil, err
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresConfirmation:
		params := &stripe.PaymentIntentConfirmParams{}
		if account := stripeAccountFor(merchant); account != "" {
			params.SetStripeAccount(account)
		}
		expandLatestCharge(&params.Params)

		pi, err = sp.api.ConfirmPaymentIntent(intentID, params)
		if err != nil {
			if stripeErrorCode(err) == stripeCodeAuthenticationRequired {
				return nil, &CardDeclineError{ErrorCode: stripeCodeAuthenticationRequired, Message: err.Error()}
			}
			return nil, translateStripeError(err)
		}
		if pi.Status == stripe.PaymentIntentStatusRequiresAction || pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
			return nil, authenticationFailure(pi)
		}
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return nil, authenticationFailure(pi)
	case stripe.PaymentIntentStatusCanceled:
		return nil, fmt.Errorf("%w: payment intent %s is canceled", ErrInvalidRequest, intentID)
	}

	return sp.chargeIntentFromStripe(pi, merchant)
}

func (sp *StripeProcessor) CancelPaymentIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.ChargeIntent, error) {
	pi, err := sp.getPaymentIntent(merchant, intentID)
	if err != nil {
		return nil, err
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return nil, fmt.Errorf("%w: payment intent %s", ErrAlreadySettled, intentID)
	case stripe.PaymentIntentStatusCanceled:
		return sp.chargeIntentFromStripe(pi, merchant)
	}

	params := &stripe.PaymentIntentCancelParams{}
	if account := stripeAccountFor(merchant); account != "" {
		params.SetStripeAccount(account)
	}
	canceled, err := sp.api.CancelPaymentIntent(intentID, params)
	if err != nil {
		if stripeErrorCode(err) == stripeCodeUnexpectedIntentState {
			return nil, fmt.Errorf("%w: payment intent %s", ErrAlreadySettled, intentID)
		}
		return nil, translateStripeError(err)
	}

	sp.logger.Info("Stripe payment intent canceled", zap.String("payment_intent_id", intentID))
	return sp.chargeIntentFromStripe(canceled, merchant)
}

func (sp *StripeProcessor) CancelSetupIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.SetupIntent, error) {
	si, err := sp.getSetupIntent(merchant, intentID)
	if err != nil {
		return nil, err
	}

	switch si.Status {
	case stripe.SetupIntentStatusSucceeded:
		return nil, fmt.Errorf("%w: setup intent %s", ErrAlreadySettled, intentID)
	case stripe.SetupIntentStatusCanceled:
		return setupIntentFromStripe(si, merchant)
	}

	params := &stripe.SetupIntentCancelParams{}
	if account := stripeAccountFor(merchant); account != "" {
		params.SetStripeAccount(account)
	}
	canceled, err := sp.api.CancelSetupIntent(intentID, params)
	if err != nil {
		if stripeErrorCode(err) == stripeCodeSetupIntentUnexpected {
			return nil, fmt.Errorf("%w: setup intent %s", ErrAlreadySettled, intentID)
		}
		return nil, translateStripeError(err)
	}

	sp.logger.Info("Stripe setup intent canceled", zap.String("setup_intent_id", intentID))
	return setupIntentFromStripe(canceled, merchant)
}

// Refund refunds all of the remaining amount when req.AmountCents is nil.
//
// Only a full refund reverses a destination transfer and the application fee.
// A partial refund leaves both in place and the difference with the connected
// account is settled separately.
func (sp *StripeProcessor) Refund(ctx context.Context, req RefundRequest) (*models.ChargeRefund, error) {
	if strings.TrimSpace(req.ChargeID) == "" {
		return nil, fmt.Errorf("%w: charge id is blank", ErrInvalidRequest)
	}

	account := stripeAccountFor(req.MerchantAccount)
	ch, err := sp.getStripeCharge(req.ChargeID, account)
	if err != nil {
		return nil, err
	}
	original, err := sp.chargeFromStripe(ch, account)
	if err != nil {
		return nil, err
	}

	if ch.Refunded || ch.AmountRefunded >= ch.Amount {
		return nil, fmt.Errorf("%w: charge %s", ErrAlreadyRefunded, ch.ID)
	}
	remaining := ch.Amount - ch.AmountRefunded
	amount := remaining
	if req.AmountCents != nil {
		if *req.AmountCents <= 0 || *req.AmountCents > remaining {
			return nil, fmt.Errorf("%w: refund of %d exceeds refundable %d on charge %s", ErrInvalidRequest, *req.AmountCents, remaining, ch.ID)
		}
		amount = *req.AmountCents
	}
	isFull := req.AmountCents == nil || (amount == ch.Amount && ch.AmountRefunded == 0)

	params := &stripe.RefundParams{Charge: stripe.String(ch.ID)}
	if req.AmountCents != nil {
		params.Amount = stripe.Int64(amount)
	}
	if req.IsForFraud {
		params.Reason = stripe.String(refundReasonFraudulent)
	}
	if isFull {
		if ch.Transfer != nil || ch.TransferData != nil {
			params.ReverseTransfer = stripe.Bool(true)
			params.RefundApplicationFee = stripe.Bool(true)
		} else if account != "" && ch.ApplicationFeeAmount > 0 {
			params.RefundApplicationFee = stripe.Bool(true)
		}
	}
	if account != "" {
		params.SetStripeAccount(account)
	}
	params.SetIdempotencyKey(fmt.Sprintf("refund-%s-%d-%d", ch.ID, ch.AmountRefunded, amount))
	params.AddExpand("balance_transaction")

	refund, err := sp.api.NewRefund(params)
	if err != nil {
		err = translateStripeError(err)
		sp.logger.Warn("Failed to create Stripe refund", zap.String("charge_id", ch.ID), zap.Error(err))
		return nil, err
	}

	sp.logger.Info("Stripe refund created",
		zap.String("refund_id", refund.ID),
		zap.String("charge_id", ch.ID),
		zap.Int64("amount", amount),
		zap.Bool("full", isFull))

	return &models.ChargeRefund{
		ID:          refund.ID,
		ChargeID:    ch.ID,
		Status:      refundStatusFromStripe(refund.Status),
		FlowOfFunds: refundFlowOfFunds(original, refund, ch.AmountRefunded, amount, isFull),
	}, nil
}

func (sp *StripeProcessor) GetCharge(ctx context.Context, merchant *models.MerchantAccount, chargeID string) (*models.Charge, error) {
	account := stripeAccountFor(merchant)
	ch, err := sp.getStripeCharge(chargeID, account)
	if err != nil {
		return nil, err
	}
	return sp.chargeFromStripe(ch, account)
}

func (sp *StripeProcessor) GetChargeIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.ChargeIntent, error) {
	pi, err := sp.getPaymentIntent(merchant, intentID)
	if err != nil {
		return nil, err
	}
	return sp.chargeIntentFromStripe(pi, merchant)
}

func (sp *StripeProcessor) GetSetupIntent(ctx context.Context, merchant *models.MerchantAccount, intentID string) (*models.SetupIntent, error) {
	si, err := sp.getSetupIntent(merchant, intentID)
	if err != nil {
		return nil, err
	}
	return setupIntentFromStripe(si, merchant)
}

func (sp *StripeProcessor) SearchCharge(ctx context.Context, purchaseReference string) (*models.Charge, error) {
	if strings.TrimSpace(purchaseReference) == "" {
		return nil, fmt.Errorf("%w: purchase reference is blank", ErrInvalidRequest)
	}

	params := &stripe.ChargeSearchParams{}
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", metadataPurchase, strings.ReplaceAll(purchaseReference, "'", `\'`))
	charges, err := sp.api.SearchCharges(params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	if len(charges) == 0 {
		return nil, nil
	}

	return sp.GetCharge(ctx, nil, charges[0].ID)
}

func (sp *StripeProcessor) ReverseChargeTransfer(ctx context.Context, chargeID string, idempotencyKey string) (*models.TransferReversal, error) {
	ch, err := sp.getStripeCharge(chargeID, "")
	if err != nil {
		return nil, err
	}
	if ch.Transfer == nil {
		return nil, fmt.Errorf("%w: charge %s has no destination transfer", ErrInvalidRequest, chargeID)
	}
	if ch.Transfer.Reversed || ch.Transfer.AmountReversed >= ch.Transfer.Amount {
		transfer, err := sp.transferFromStripe(ch.Transfer)
		if err != nil {
			return nil, err
		}
		previous := transfer.ReversalTagged(metadataIdempotencyKey, idempotencyKey)
		if idempotencyKey != "" && len(previous) > 0 {
			sp.logger.Info("Charge transfer was already reversed by this request",
				zap.String("charge_id", chargeID),
				zap.String("reversal_id", previous[0].ID))
			return previous[0], nil
		}
		return nil, fmt.Errorf("%w: transfer %s is already reversed", ErrAlreadyRefunded, ch.Transfer.ID)
	}

	params := &stripe.TransferReversalParams{
		ID:                   stripe.String(ch.Transfer.ID),
		RefundApplicationFee: stripe.Bool(true),
	}
	if idempotencyKey != "" {
		params.AddMetadata(metadataIdempotencyKey, idempotencyKey)
		params.SetIdempotencyKey(idempotencyKey)
	}

	reversal, err := sp.api.NewTransferReversal(params)
	if err != nil {
		return nil, translateStripeError(err)
	}

	sp.logger.Info("Reversed charge transfer",
		zap.String("charge_id", chargeID),
		zap.String("transfer_id", ch.Transfer.ID),
		zap.String("reversal_id", reversal.ID))

	return transferReversalFromStripe(reversal, ch.Transfer.ID), nil
}

func (sp *StripeProcessor) CreateTransfer(ctx context.Context, req TransferRequest) (*models.Transfer, error) {
	if req.DestinationAccountID == "" {
		return nil, fmt.Errorf("%w: transfer has no destination", ErrConfiguration)
	}
	if req.Amount.Cents <= 0 {
		return nil, fmt.Errorf("%w: transfer amount %s", ErrInvalidRequest, req.Amount)
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount.Cents),
		Currency:    stripe.String(req.Amount.Currency),
		Destination: stripe.String(req.DestinationAccountID),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	t, err := sp.api.NewTransfer(params)
	if err != nil {
		return nil, translateStripeError(err)
	}

	sp.logger.Info("Stripe transfer created",
		zap.String("transfer_id", t.ID),
		zap.String("destination", req.DestinationAccountID),
		zap.String("amount", req.Amount.String()))

	return sp.transferFromStripe(t)
}

func (sp *StripeProcessor) GetTransfer(ctx context.Context, transferID string) (*models.Transfer, error) {
	if strings.TrimSpace(transferID) == "" {
		return nil, fmt.Errorf("%w: transfer id is blank", ErrInvalidRequest)
	}
	t, err := sp.api.GetTransfer(transferID, nil)
	if err != nil {
		return nil, translateStripeError(err)
	}
	return sp.transferFromStripe(t)
}

func (sp *StripeProcessor) ListTransfers(ctx context.Context, destinationAccountID string, createdAfter time.Time) ([]*models.Transfer, error) {
	params := &stripe.TransferListParams{Destination: stripe.String(destinationAccountID)}
	params.Limit = stripe.Int64(100)
	if !createdAfter.IsZero() {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: createdAfter.Unix()}
	}

	transfers, err := sp.api.ListTransfers(params)
	if err != nil {
		return nil, translateStripeError(err)
	}

	out := make([]*models.Transfer, 0, len(transfers))
	for _, t := range transfers {
		transfer, err := sp.transferFromStripe(t)
		if err != nil {
			return nil, err
		}
		out = append(out, transfer)
	}
	return out, nil
}

func (sp *StripeProcessor) ReverseTransfer(ctx context.Context, req TransferReversalRequest) (*models.TransferReversal, error) {
	if strings.TrimSpace(req.TransferID) == "" {
		return nil, fmt.Errorf("%w: transfer id is blank", ErrInvalidRequest)
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: reversal amount %d", ErrInvalidRequest, req.AmountCents)
	}

	params := &stripe.TransferReversalParams{
		ID:     stripe.String(req.TransferID),
		Amount: stripe.Int64(req.AmountCents),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	reversal, err := sp.api.NewTransferReversal(params)
	if err != nil {
		return nil, translateStripeError(err)
	}

	sp.logger.Info("Stripe transfer reversed",
		zap.String("transfer_id", req.TransferID),
		zap.Int64("amount", req.AmountCents),
		zap.String("reversal_id", reversal.ID))

	return transferReversalFromStripe(reversal, req.TransferID), nil
}

// FindOriginatingChargeID follows destination payment -> source transfer ->
// source transaction.
func (sp *StripeProcessor) FindOriginatingChargeID(ctx context.Context, connectedAccountID, destinationPaymentID string) (string, error) {
	if destinationPaymentID == "" {
		return "", fmt.Errorf("%w: destination payment id is blank", ErrInvalidRequest)
	}

	params := &stripe.ChargeParams{}
	params.SetStripeAccount(connectedAccountID)
	payment, err := sp.api.GetCharge(destinationPaymentID, params)
	if err != nil {
		return "", translateStripeError(err)
	}
	if payment.SourceTransfer == nil || payment.SourceTransfer.ID == "" {
		return "", fmt.Errorf("%w: payment %s has no source transfer", ErrInvalidRequest, destinationPaymentID)
	}

	transfer, err := sp.api.GetTransfer(payment.SourceTransfer.ID, nil)
	if err != nil {
		return "", translateStripeError(err)
	}
	if transfer.SourceTransaction == nil || transfer.SourceTransaction.ID == "" {
		return "", fmt.Errorf("%w: transfer %s has no source transaction", ErrInvalidRequest, transfer.ID)
	}
	return transfer.SourceTransaction.ID, nil
}

func (sp *StripeProcessor) getPaymentIntent(merchant *models.MerchantAccount, intentID string) (*stripe.PaymentIntent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, fmt.Errorf("%w: payment intent id is blank", ErrInvalidRequest)
	}
	params := &stripe.PaymentIntentParams{}
	if account := stripeAccountFor(merchant); account != "" {
		params.SetStripeAccount(account)
	}
	expandLatestCharge(&params.Params)

	pi, err := sp.api.GetPaymentIntent(intentID, params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	return pi, nil
}

func (sp *StripeProcessor) getSetupIntent(merchant *models.MerchantAccount, intentID string) (*stripe.SetupIntent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, fmt.Errorf("%w: setup intent id is blank", ErrInvalidRequest)
	}
	params := &stripe.SetupIntentParams{}
	if account := stripeAccountFor(merchant); account != "" {
		params.SetStripeAccount(account)
	}

	si, err := sp.api.GetSetupIntent(intentID, params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	return si, nil
}

func (sp *StripeProcessor) getStripeCharge(chargeID, account string) (*stripe.Charge, error) {
	if strings.TrimSpace(chargeID) == "" {
		return nil, fmt.Errorf("%w: charge id is blank", ErrInvalidRequest)
	}
	params := &stripe.ChargeParams{}
	params.AddExpand("balance_transaction")
	params.AddExpand("transfer.destination_payment.balance_transaction")
	if account != "" {
		params.SetStripeAccount(account)
	}

	ch, err := sp.api.GetCharge(chargeID, params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	return ch, nil
}

func (sp *StripeProcessor) chargeIntentFromStripe(pi *stripe.PaymentIntent, merchant *models.MerchantAccount) (*models.ChargeIntent, error) {
	intent := &models.ChargeIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
	}
	if merchant != nil {
		intent.MerchantAccountID = merchant.ID
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		if pi.LatestCharge == nil {
			return nil, fmt.Errorf("%w: payment intent %s succeeded without a charge", ErrInvalidRequest, pi.ID)
		}
		account := stripeAccountFor(merchant)
		ch := pi.LatestCharge
		if ch.BalanceTransaction == nil {
			fetched, err := sp.getStripeCharge(ch.ID, account)
			if err != nil {
				return nil, err
			}
			ch = fetched
		}
		charge, err := sp.chargeFromStripe(ch, account)
		if err != nil {
			return nil, err
		}
		intent.Status = enum.IntentStatusSucceeded
		intent.Charge = charge
	case stripe.PaymentIntentStatusRequiresAction:
		intent.Status = enum.IntentStatusRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		intent.Status = enum.IntentStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return nil, declineFromPaymentError(pi.LastPaymentError, latestChargeID(pi))
		}
		intent.Status = enum.IntentStatusPending
	default:
		intent.Status = enum.IntentStatusPending
	}
	return intent, nil
}

func setupIntentFromStripe(si *stripe.SetupIntent, merchant *models.MerchantAccount) (*models.SetupIntent, error) {
	intent := &models.SetupIntent{
		ID:               si.ID,
		ClientSecret:     si.ClientSecret,
		MandateReference: si.Metadata[metadataMandate],
	}
	if merchant != nil {
		intent.MerchantAccountID = merchant.ID
	}
	if si.PaymentMethod != nil {
		intent.PaymentMethodID = si.PaymentMethod.ID
	}

	switch si.Status {
	case stripe.SetupIntentStatusSucceeded:
		intent.Status = enum.IntentStatusSucceeded
	case stripe.SetupIntentStatusRequiresAction:
		intent.Status = enum.IntentStatusRequiresAction
	case stripe.SetupIntentStatusCanceled:
		intent.Status = enum.IntentStatusCanceled
	case stripe.SetupIntentStatusRequiresPaymentMethod:
		if si.LastSetupError != nil {
			return nil, declineFromPaymentError(si.LastSetupError, "")
		}
		intent.Status = enum.IntentStatusPending
	default:
		intent.Status = enum.IntentStatusPending
	}
	return intent, nil
}

// chargeFromStripe builds the normalized charge. account is the connected
// account a direct charge lives on, empty for platform and destination charges.
func (sp *StripeProcessor) chargeFromStripe(ch *stripe.Charge, account string) (*models.Charge, error) {
	charge := &models.Charge{
		ID:                ch.ID,
		Amount:            models.NewMoney(string(ch.Currency), ch.Amount),
		AmountRefunded:    ch.AmountRefunded,
		Refunded:          ch.Refunded,
		PurchaseReference: ch.Metadata[metadataPurchase],
		CreatedAt:         time.Unix(ch.Created, 0).UTC(),
	}

	if ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Card != nil {
		card := ch.PaymentMethodDetails.Card
		charge.CardFingerprint = card.Fingerprint
		charge.CardLast4 = card.Last4
		charge.CardExpiryMonth = int(card.ExpMonth)
		charge.CardExpiryYear = int(card.ExpYear)
		charge.CardType = string(card.Brand)
		charge.CardCountry = card.Country
		if card.Checks != nil {
			charge.ZipCheckResult = string(card.Checks.AddressPostalCodeCheck)
		}
	}
	if ch.Outcome != nil {
		charge.RiskLevel = ch.Outcome.RiskLevel
	}

	issued := charge.Amount
	settled := issued
	if bt := ch.BalanceTransaction; bt != nil {
		settled = models.NewMoney(string(bt.Currency), bt.Amount)
		charge.Fee = bt.Fee
		charge.FeeCurrency = strings.ToLower(string(bt.Currency))
	}

	var (
		fof *models.FlowOfFunds
		err error
	)
	switch {
	case ch.Transfer != nil:
		charge.TransferID = ch.Transfer.ID
		if ch.Transfer.Destination != nil {
			charge.DestinationAccountID = ch.Transfer.Destination.ID
		}
		platform := models.NewMoney(settled.Currency, settled.Cents-ch.Transfer.Amount)
		gross := models.NewMoney(string(ch.Transfer.Currency), ch.Transfer.Amount)
		net := gross
		if dp := ch.Transfer.DestinationPayment; dp != nil && dp.BalanceTransaction != nil {
			gross = models.NewMoney(string(dp.BalanceTransaction.Currency), dp.BalanceTransaction.Amount)
			net = models.NewMoney(string(dp.BalanceTransaction.Currency), dp.BalanceTransaction.Net)
		}
		fof, err = models.NewFlowOfFunds(issued, settled, &platform, &gross, &net)
	case ch.TransferData != nil:
		// Transfer not created yet; the merchant share is known from the request.
		if ch.TransferData.Destination != nil {
			charge.DestinationAccountID = ch.TransferData.Destination.ID
		}
		platform := models.NewMoney(issued.Currency, ch.Amount-ch.TransferData.Amount)
		merchant := models.NewMoney(issued.Currency, ch.TransferData.Amount)
		fof, err = models.NewFlowOfFunds(issued, settled, &platform, &merchant, &merchant)
	case account != "":
		charge.DestinationAccountID = account
		platform := models.NewMoney(issued.Currency, ch.ApplicationFeeAmount)
		gross := settled
		net := settled
		if bt := ch.BalanceTransaction; bt != nil {
			net = models.NewMoney(string(bt.Currency), bt.Net)
		}
		fof, err = models.NewFlowOfFunds(issued, settled, &platform, &gross, &net)
	default:
		fof, err = models.NewFlowOfFunds(issued, settled, &settled, nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build flow of funds for charge %s: %w", ch.ID, err)
	}

	charge.FlowOfFunds = fof
	return charge, nil
}

// refundFlowOfFunds splits a refund the same way the charge was split. The
// platform share uses cumulative floors so that consecutive partial refunds add
// up to exactly the original platform amount.
func refundFlowOfFunds(original *models.Charge, refund *stripe.Refund, refundedBefore, amount int64, isFull bool) *models.FlowOfFunds {
	orig := original.Amount.Cents
	issued := models.NewMoney(original.Amount.Currency, -amount)

	settled := proportionalMoney(original.FlowOfFunds.SettledAmount, refundedBefore, amount, orig).Negate()
	if bt := refund.BalanceTransaction; bt != nil {
		settled = models.NewMoney(string(bt.Currency), bt.Amount)
	}

	fof := &models.FlowOfFunds{
		IssuedAmount:  issued,
		SettledAmount: settled,
	}
	if p := original.FlowOfFunds.PlatformAmount; p != nil {
		platform := proportionalMoney(*p, refundedBefore, amount, orig).Negate()
		fof.PlatformAmount = &platform
	}

	if original.FlowOfFunds.HasMerchantAmounts() {
		gross := models.NewMoney(original.FlowOfFunds.MerchantAccountGrossAmount.Currency, 0)
		net := models.NewMoney(original.FlowOfFunds.MerchantAccountNetAmount.Currency, 0)
		if isFull {
			gross = proportionalMoney(*original.FlowOfFunds.MerchantAccountGrossAmount, refundedBefore, amount, orig).Negate()
			net = proportionalMoney(*original.FlowOfFunds.MerchantAccountNetAmount, refundedBefore, amount, orig).Negate()
		}
		fof.MerchantAccountGrossAmount = &gross
		fof.MerchantAccountNetAmount = &net
	}
	return fof
}

// proportionalMoney is the share of total covered by refunding amount after
// before had already been refunded, out of an original amount orig.
func proportionalMoney(total models.Money, before, amount, orig int64) models.Money {
	if orig == 0 {
		return models.NewMoney(total.Currency, 0)
	}
	share := floorDiv(total.Cents*(before+amount), orig) - floorDiv(total.Cents*before, orig)
	return models.NewMoney(total.Currency, share)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func refundStatusFromStripe(status stripe.RefundStatus) enum.RefundStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return enum.RefundStatusSucceeded
	case stripe.RefundStatusFailed:
		return enum.RefundStatusFailed
	case stripe.RefundStatusCanceled:
		return enum.RefundStatusCanceled
	default:
		return enum.RefundStatusPending
	}
}

// transferFromStripe normalizes a transfer with every reversal made against it,
// paging through the reversal list when the embedded page is incomplete.
func (sp *StripeProcessor) transferFromStripe(t *stripe.Transfer) (*models.Transfer, error) {
	transfer := &models.Transfer{
		ID:             t.ID,
		Amount:         models.NewMoney(string(t.Currency), t.Amount),
		AmountReversed: t.AmountReversed,
		Description:    t.Description,
		CreatedAt:      time.Unix(t.Created, 0).UTC(),
	}
	if t.Destination != nil {
		transfer.DestinationAccountID = t.Destination.ID
	}

	if t.Reversals == nil {
		return transfer, nil
	}
	reversals := t.Reversals.Data
	if t.Reversals.HasMore {
		var err error
		if reversals, err = sp.api.ListTransferReversals(&stripe.TransferReversalListParams{ID: stripe.String(t.ID)}); err != nil {
			return nil, translateStripeError(err)
		}
	}
	for _, r := range reversals {
		transfer.Reversals = append(transfer.Reversals, transferReversalFromStripe(r, t.ID))
	}
	return transfer, nil
}

func transferReversalFromStripe(r *stripe.TransferReversal, transferID string) *models.TransferReversal {
	return &models.TransferReversal{
		ID:         r.ID,
		TransferID: transferID,
		Amount:     models.NewMoney(string(r.Currency), r.Amount),
		Metadata:   r.Metadata,
	}
}

func declineFromPaymentError(stripeErr *stripe.Error, chargeID string) error {
	if stripeErr.ChargeID != "" {
		chargeID = stripeErr.ChargeID
	}
	return &CardDeclineError{
		ErrorCode: declineErrorCode(stripeErr),
		ChargeID:  chargeID,
		Message:   stripeErr.Msg,
	}
}

func authenticationFailure(pi *stripe.PaymentIntent) error {
	return &CardDeclineError{
		ErrorCode: stripeCodeAuthenticationRequired,
		ChargeID:  latestChargeID(pi),
		Message:   "payment intent was not authenticated",
	}
}

func latestChargeID(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil {
		return pi.LatestCharge.ID
	}
	return ""
}

// stripeAccountFor is the connected account a request must run on, empty when
// it runs on the platform.
func stripeAccountFor(merchant *models.MerchantAccount) string {
	if merchant.IsConnected() && merchant.ChargesOnMerchantAccount {
		return merchant.GatewayAccountID
	}
	return ""
}

func expandLatestCharge(params *stripe.Params) {
	params.AddExpand("latest_charge.balance_transaction")
	params.AddExpand("latest_charge.transfer.destination_payment.balance_transaction")
}
