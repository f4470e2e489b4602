package processor

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

func tokenChargeable(t *testing.T, sp *StripeProcessor, token string, dest *models.MerchantAccount) Chargeable {
	t.Helper()
	chargeable, err := sp.NewChargeable(models.ChargeableSource{
		Variant:             enum.ChargeableToken,
		Token:               token,
		MerchantDestination: dest,
	})
	require.NoError(t, err)
	return chargeable
}

func TestCreatePaymentIntentOrCharge_DestinationCharge(t *testing.T) {
	api := newFakeStripeAPI()
	api.addToken("tok_us", "pm_us", "US")
	sp := newTestProcessor(api)

	intent, err := sp.CreatePaymentIntentOrCharge(context.Background(), ChargeRequest{
		MerchantAccount:      connectedMerchant,
		Chargeable:           tokenChargeable(t, sp, "tok_us", connectedMerchant),
		AmountCents:          1000,
		FeeCents:             100,
		Currency:             "USD",
		StatementDescription: "Josiah!@日本語 Carberry",
		Reference:            "ext_1",
	})
	require.NoError(t, err)

	assert.Equal(t, enum.IntentStatusSucceeded, intent.Status)
	assert.Equal(t, "ma_connected", intent.MerchantAccountID)
	require.NotNil(t, intent.Charge)
	assert.Equal(t, models.NewMoney("usd", 1000), intent.Charge.Amount)
	assert.Equal(t, int64(100), intent.Charge.FlowOfFunds.PlatformAmount.Cents)
	assert.Equal(t, int64(900), intent.Charge.FlowOfFunds.MerchantAccountGrossAmount.Cents)
	assert.Equal(t, "acct_merchant", intent.Charge.DestinationAccountID)

	require.Len(t, api.paymentIntentParams, 1)
	params := api.paymentIntentParams[0]
	assert.Equal(t, "usd", stripe.StringValue(params.Currency))
	assert.Equal(t, "pm_us", stripe.StringValue(params.PaymentMethod))
	require.NotNil(t, params.TransferData)
	assert.Equal(t, "acct_merchant", stripe.StringValue(params.TransferData.Destination))
	assert.Equal(t, int64(900), stripe.Int64Value(params.TransferData.Amount))
	assert.Nil(t, params.ApplicationFeeAmount)
	assert.Nil(t, params.StripeAccount)
	assert.Equal(t, "charge-ext_1", stripe.StringValue(params.IdempotencyKey))
	assert.Equal(t, "Josiah Carberry", stripe.StringValue(params.StatementDescriptorSuffix))
	assert.Equal(t, "ext_1", params.Metadata[metadataPurchase])
	assert.Equal(t, "US", params.Metadata[metadataCardCountry])
	assert.Equal(t, "false", params.Metadata[metadataOffSession])
	assert.Nil(t, params.PaymentMethodOptions)
}

func TestCreatePaymentIntentOrCharge_DirectChargeUsesClonedInstrument(t *testing.T) {
	api := newFakeStripeAPI()
	api.addToken("tok_us", "pm_us", "US")
	sp := newTestProcessor(api)

	intent, err := sp.CreatePaymentIntentOrCharge(context.Background(), ChargeRequest{
		MerchantAccount: directMerchant,
		Chargeable:      tokenChargeable(t, sp, "tok_us", directMerchant),
		AmountCents:     1000,
		FeeCents:        100,
		Reference:       "ext_2",
	})
	require.NoError(t, err)

	params := api.paymentIntentParams[0]
	assert.Equal(t, "pm_us_clone", stripe.StringValue(params.PaymentMethod))
	assert.Equal(t, "acct_direct", stripe.StringValue(params.StripeAccount))
	assert.Equal(t, int64(100), stripe.Int64Value(params.ApplicationFeeAmount))
	assert.Nil(t, params.TransferData)
	assert.Equal(t, int64(100), intent.Charge.FlowOfFunds.PlatformAmount.Cents)
	assert.Equal(t, "acct_direct", intent.Charge.DestinationAccountID)
}

func TestCreatePaymentIntentOrCharge_ForcesAuthenticationOnlyForMandateSetup(t *testing.T) {
	tests := []struct {
		name         string
		token        string
		setupFuture  bool
		wantMandated bool
	}{
		{"mandate country with setup", "tok_in", true, true},
		{"mandate country without setup", "tok_in", false, false},
		{"other country with setup", "tok_us", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeStripeAPI()
			api.addToken("tok_in", "pm_in", "IN")
			api.addToken("tok_us", "pm_us", "US")
			sp := newTestProcessor(api)

			_, err := sp.CreatePaymentIntentOrCharge(context.Background(), ChargeRequest{
				MerchantAccount:       platformMerchant,
				Chargeable:            tokenChargeable(t, sp, tt.token, platformMerchant),
				AmountCents:           500,
				FeeCents:              0,
				SetupFutureCharges:    tt.setupFuture,
				Reference:             "ext_sca",
				MandateSubscriptionID: "sub_1",
			})
			require.NoError(t, err)

			params := api.paymentIntentParams[0]
			if !tt.wantMandated {
				assert.Nil(t, params.PaymentMethodOptions)
				return
			}
			require.NotNil(t, params.PaymentMethodOptions)
			assert.Equal(t, "any", stripe.StringValue(params.PaymentMethodOptions.Card.RequestThreeDSecure))
			assert.Equal(t, MandateReference("sub_1"), stripe.StringValue(params.PaymentMethodOptions.Card.MandateOptions.Reference))
			assert.Equal(t, string(stripe.PaymentIntentSetupFutureUsageOffSession), stripe.StringValue(params.SetupFutureUsage))
		})
	}
}

func TestCreatePaymentIntentOrCharge_DeclineKeepsSubReason(t *testing.T) {
	api := newFakeStripeAPI()
	api.addToken("tok_us", "pm_us", "US")
	api.errs["NewPaymentIntent"] = &stripe.Error{
		Type:           stripe.ErrorTypeCard,
		Code:           stripe.ErrorCode(stripeCodeCardDeclined),
		DeclineCode:    stripe.DeclineCode("fraudulent"),
		ChargeID:       "ch_declined",
		HTTPStatusCode: http.StatusPaymentRequired,
		Msg:            "Your card was declined.",
	}
	sp := newTestProcessor(api)

	_, err := sp.CreatePaymentIntentOrCharge(context.Background(), ChargeRequest{
		MerchantAccount: platformMerchant,
		Chargeable:      tokenChargeable(t, sp, "tok_us", platformMerchant),
		AmountCents:     1000,
		Reference:       "ext_1",
	})

	var decline *CardDeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "card_declined_fraudulent", decline.ErrorCode)
	assert.Equal(t, "ch_declined", decline.ChargeID)
	assert.True(t, IsUserFacing(err))
}

func TestCreatePaymentIntentOrCharge_TransportFailureIsRetryable(t *testing.T) {
	api := newFakeStripeAPI()
	api.addToken("tok_us", "pm_us", "US")
	api.errs["NewPaymentIntent"] = errors.New("dial tcp: i/o timeout")
	sp := newTestProcessor(api)

	_, err := sp.CreatePaymentIntentOrCharge(context.Background(), ChargeRequest{
		MerchantAccount: platformMerchant,
		Chargeable:      tokenChargeable(t, sp, "tok_us", platformMerchant),
		AmountCents:     1000,
	})

	assert.ErrorIs(t, err, ErrProcessorUnavailable)
	assert.False(t, IsUserFacing(err))
}

func TestCreatePaymentIntentOrCharge_RejectsBeforeCallingGateway(t *testing.T) {
	api := newFakeStripeAPI()
	api.addToken("tok_us", "pm_us", "US")
	sp := newTestProcessor(api)
	unlinked := &models.MerchantAccount{ID: "ma_unlinked"}

	tests := []struct {
		name    string
		req     ChargeRequest
		wantErr error
	}{
		{"zero amount", ChargeRequest{MerchantAccount: platformMerchant, AmountCents: 0}, ErrInvalidRequest},
		{"negative fee", ChargeRequest{MerchantAccount: platformMerchant, AmountCents: 100, FeeCents: -1}, ErrInvalidRequest},
		{"fee above amount", ChargeRequest{MerchantAccount: platformMerchant, AmountCents: 100, FeeCents: 101}, ErrInvalidRequest},
		{"missing chargeable", ChargeRequest{MerchantAccount: platformMerchant, AmountCents: 100}, ErrInvalidInstrument},
		{"connected without gateway account", ChargeRequest{
			MerchantAccount: unlinked,
			Chargeable:      tokenChargeable(t, sp, "tok_us", unlinked),
			AmountCents:     100,
			FeeCents:        10,
		}, ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sp.CreatePaymentIntentOrCharge(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, api.calls["NewPaymentIntent"])
	assert.Zero(t, api.calls["NewPaymentMethod"])
}

func TestSetupFutureCharges_ReusesMandateForSubscription(t *testing.T) {
	api := newFakeStripeAPI()
	api.addToken("tok_in", "pm_in", "IN")
	sp := newTestProcessor(api)

	setup := func(reference string) *models.SetupIntent {
		intent, err := sp.SetupFutureCharges(context.Background(), SetupRequest{
			MerchantAccount:       platformMerchant,
			Chargeable:            tokenChargeable(t, sp, "tok_in", platformMerchant),
			Owner:                 &models.User{ID: "user_1", Email: "buyer@example.com"},
			Reference:             reference,
			MandateSubscriptionID: "sub_1",
			MandateAmountCents:    5000,
			Currency:              "inr",
		})
		require.NoError(t, err)
		return intent
	}

	first := setup("ext_1")
	second := setup("ext_2")

	assert.Equal(t, MandateReference("sub_1"), first.MandateReference)
	assert.Equal(t, first.MandateReference, second.MandateReference)
	assert.Equal(t, enum.IntentStatusSucceeded, first.Status)
	assert.Equal(t, "pm_in", first.PaymentMethodID)

	require.Len(t, api.setupIntentParams, 2)
	params := api.setupIntentParams[0]
	assert.Equal(t, "any", stripe.StringValue(params.PaymentMethodOptions.Card.RequestThreeDSecure))
	assert.Equal(t, "inr", stripe.StringValue(params.PaymentMethodOptions.Card.MandateOptions.Currency))
	assert.Equal(t, "cus_1", stripe.StringValue(params.Customer))
	assert.Equal(t, "setup-ext_1", stripe.StringValue(params.IdempotencyKey))
	assert.Equal(t, "buyer@example.com", stripe.StringValue(api.customerParams[0].Email))
}

func TestMandateSetupRequiresSubscriptionID(t *testing.T) {
	api := newFakeStripeAPI()
	api.addToken("tok_in", "pm_in", "IN")
	api.addToken("tok_us", "pm_us", "US")
	sp := newTestProcessor(api)

	_, err := sp.CreatePaymentIntentOrCharge(context.Background(), ChargeRequest{
		MerchantAccount:       platformMerchant,
		Chargeable:            tokenChargeable(t, sp, "tok_in", platformMerchant),
		AmountCents:           500,
		SetupFutureCharges:    true,
		Reference:             "ext_blank",
		MandateSubscriptionID: "  ",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, api.calls["NewPaymentIntent"])

	_, err = sp.SetupFutureCharges(context.Background(), SetupRequest{
		MerchantAccount: platformMerchant,
		Chargeable:      tokenChargeable(t, sp, "tok_in", platformMerchant),
		Owner:           &models.User{ID: "user_1", Email: "buyer@example.com"},
		Reference:       "ext_blank",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, api.calls["NewSetupIntent"])
	assert.Zero(t, api.calls["NewCustomer"])

	_, err = sp.SetupFutureCharges(context.Background(), SetupRequest{
		MerchantAccount: platformMerchant,
		Chargeable:      tokenChargeable(t, sp, "tok_us", platformMerchant),
		Owner:           &models.User{ID: "user_1", Email: "buyer@example.com"},
		Reference:       "ext_us",
	})
	require.NoError(t, err)
	assert.Nil(t, api.setupIntentParams[0].PaymentMethodOptions)
}

func TestConfirmPaymentIntent_UnauthenticatedIsDecline(t *testing.T) {
	api := newFakeStripeAPI()
	api.paymentIntents["pi_auth"] = &stripe.PaymentIntent{ID: "pi_auth", Status: stripe.PaymentIntentStatusRequiresAction}
	sp := newTestProcessor(api)

	_, err := sp.ConfirmPaymentIntent(context.Background(), platformMerchant, "pi_auth")

	var decline *CardDeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "payment_intent_authentication_failure", decline.ErrorCode)
	assert.Zero(t, api.calls["ConfirmPaymentIntent"])
}

func TestCancelPaymentIntent(t *testing.T) {
	api := newFakeStripeAPI()
	api.paymentIntents["pi_done"] = &stripe.PaymentIntent{ID: "pi_done", Status: stripe.PaymentIntentStatusSucceeded}
	api.paymentIntents["pi_gone"] = &stripe.PaymentIntent{ID: "pi_gone", Status: stripe.PaymentIntentStatusCanceled}
	api.paymentIntents["pi_open"] = &stripe.PaymentIntent{ID: "pi_open", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}
	sp := newTestProcessor(api)
	ctx := context.Background()

	_, err := sp.CancelPaymentIntent(ctx, platformMerchant, "pi_done")
	assert.ErrorIs(t, err, ErrAlreadySettled)

	intent, err := sp.CancelPaymentIntent(ctx, platformMerchant, "pi_gone")
	require.NoError(t, err)
	assert.Equal(t, enum.IntentStatusCanceled, intent.Status)
	assert.Zero(t, api.calls["CancelPaymentIntent"])

	intent, err = sp.CancelPaymentIntent(ctx, platformMerchant, "pi_open")
	require.NoError(t, err)
	assert.Equal(t, enum.IntentStatusCanceled, intent.Status)
	assert.Equal(t, 1, api.calls["CancelPaymentIntent"])
}

func TestCancelSetupIntent_AfterSuccessIsSettled(t *testing.T) {
	api := newFakeStripeAPI()
	api.setupIntents["seti_done"] = &stripe.SetupIntent{ID: "seti_done", Status: stripe.SetupIntentStatusSucceeded}
	sp := newTestProcessor(api)

	_, err := sp.CancelSetupIntent(context.Background(), platformMerchant, "seti_done")

	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func destinationCharge() *stripe.Charge {
	return &stripe.Charge{
		ID:       "ch_dest",
		Amount:   1000,
		Currency: stripe.CurrencyUSD,
		Transfer: &stripe.Transfer{
			ID:          "tr_dest",
			Amount:      970,
			Currency:    stripe.CurrencyUSD,
			Destination: &stripe.Account{ID: "acct_merchant"},
		},
	}
}

func TestRefund_PartialRefundsSplitPlatformShareWithCumulativeFloor(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["ch_dest"] = destinationCharge()
	sp := newTestProcessor(api)
	ctx := context.Background()
	half := int64(500)

	first, err := sp.Refund(ctx, RefundRequest{ChargeID: "ch_dest", AmountCents: &half})
	require.NoError(t, err)
	second, err := sp.Refund(ctx, RefundRequest{ChargeID: "ch_dest", AmountCents: &half})
	require.NoError(t, err)

	assert.Equal(t, int64(-15), first.FlowOfFunds.PlatformAmount.Cents)
	assert.Equal(t, int64(-15), second.FlowOfFunds.PlatformAmount.Cents)
	assert.Equal(t, models.NewMoney("usd", -500), first.FlowOfFunds.IssuedAmount)
	assert.Equal(t, enum.RefundStatusSucceeded, first.Status)

	// Partial refunds leave the destination transfer in place.
	assert.Zero(t, first.FlowOfFunds.MerchantAccountGrossAmount.Cents)
	assert.Zero(t, second.FlowOfFunds.MerchantAccountNetAmount.Cents)
	for _, params := range api.refundParams {
		assert.Nil(t, params.ReverseTransfer)
		assert.Nil(t, params.RefundApplicationFee)
	}

	_, err = sp.Refund(ctx, RefundRequest{ChargeID: "ch_dest"})
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
}

func TestRefund_UnevenPartialsSumToPlatformShare(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["ch_dest"] = destinationCharge()
	sp := newTestProcessor(api)
	ctx := context.Background()

	var total int64
	for _, amount := range []int64{333, 333, 334} {
		amount := amount
		refund, err := sp.Refund(ctx, RefundRequest{ChargeID: "ch_dest", AmountCents: &amount})
		require.NoError(t, err)
		total += refund.FlowOfFunds.PlatformAmount.Cents
	}

	assert.Equal(t, int64(-30), total)
}

func TestRefund_FullRefundReversesTransfer(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["ch_dest"] = destinationCharge()
	sp := newTestProcessor(api)

	refund, err := sp.Refund(context.Background(), RefundRequest{ChargeID: "ch_dest", IsForFraud: true})
	require.NoError(t, err)

	params := api.refundParams[0]
	assert.Nil(t, params.Amount)
	assert.True(t, stripe.BoolValue(params.ReverseTransfer))
	assert.True(t, stripe.BoolValue(params.RefundApplicationFee))
	assert.Equal(t, refundReasonFraudulent, stripe.StringValue(params.Reason))
	assert.Equal(t, "refund-ch_dest-0-1000", stripe.StringValue(params.IdempotencyKey))

	fof := refund.FlowOfFunds
	assert.Equal(t, int64(-1000), fof.IssuedAmount.Cents)
	assert.Equal(t, int64(-30), fof.PlatformAmount.Cents)
	assert.Equal(t, int64(-970), fof.MerchantAccountGrossAmount.Cents)
	assert.Equal(t, int64(-970), fof.MerchantAccountNetAmount.Cents)
}

func TestRefund_ExplicitFullAmountCountsAsFull(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["ch_dest"] = destinationCharge()
	sp := newTestProcessor(api)
	all := int64(1000)

	refund, err := sp.Refund(context.Background(), RefundRequest{ChargeID: "ch_dest", AmountCents: &all})
	require.NoError(t, err)

	assert.True(t, stripe.BoolValue(api.refundParams[0].ReverseTransfer))
	assert.Equal(t, int64(-970), refund.FlowOfFunds.MerchantAccountGrossAmount.Cents)
}

func TestRefund_RejectsOverRefund(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["ch_dest"] = destinationCharge()
	sp := newTestProcessor(api)
	tooMuch := int64(1001)

	_, err := sp.Refund(context.Background(), RefundRequest{ChargeID: "ch_dest", AmountCents: &tooMuch})

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, api.calls["NewRefund"])
}

func TestRefund_GatewayAlreadyRefunded(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["ch_dest"] = destinationCharge()
	api.errs["NewRefund"] = &stripe.Error{
		Type:           stripe.ErrorTypeInvalidRequest,
		Code:           stripe.ErrorCode(stripeCodeChargeAlreadyRefunded),
		HTTPStatusCode: http.StatusBadRequest,
		Msg:            "Charge ch_dest has already been refunded.",
	}
	sp := newTestProcessor(api)

	_, err := sp.Refund(context.Background(), RefundRequest{ChargeID: "ch_dest"})

	assert.ErrorIs(t, err, ErrAlreadyRefunded)
}

func TestLookups_BlankAndUnknownIDsAreInvalidRequests(t *testing.T) {
	api := newFakeStripeAPI()
	sp := newTestProcessor(api)
	ctx := context.Background()

	_, err := sp.GetCharge(ctx, nil, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = sp.GetCharge(ctx, platformMerchant, "ch_missing")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = sp.GetChargeIntent(ctx, platformMerchant, "  ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = sp.GetSetupIntent(ctx, platformMerchant, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = sp.Refund(ctx, RefundRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = sp.SearchCharge(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetCharge_ReadsDirectChargeOnMerchantAccount(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["ch_dest"] = destinationCharge()
	sp := newTestProcessor(api)
	ctx := context.Background()

	_, err := sp.GetCharge(ctx, directMerchant, "ch_dest")
	require.NoError(t, err)
	_, err = sp.GetCharge(ctx, connectedMerchant, "ch_dest")
	require.NoError(t, err)

	require.Len(t, api.chargeParams, 2)
	assert.Equal(t, "acct_direct", stripe.StringValue(api.chargeParams[0].StripeAccount))
	assert.Nil(t, api.chargeParams[1].StripeAccount)
}

func TestSearchCharge(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["ch_dest"] = destinationCharge()
	sp := newTestProcessor(api)
	ctx := context.Background()

	charge, err := sp.SearchCharge(ctx, "ext_none")
	require.NoError(t, err)
	assert.Nil(t, charge)

	api.searchResults = []*stripe.Charge{{ID: "ch_dest"}}
	charge, err = sp.SearchCharge(ctx, "ext_1")
	require.NoError(t, err)
	require.NotNil(t, charge)
	assert.Equal(t, "ch_dest", charge.ID)
	assert.Equal(t, "tr_dest", charge.TransferID)
}

func TestReverseChargeTransfer(t *testing.T) {
	api := newFakeStripeAPI()
	ch := destinationCharge()
	api.charges["ch_dest"] = ch
	api.transfers["tr_dest"] = ch.Transfer
	sp := newTestProcessor(api)
	ctx := context.Background()

	reversal, err := sp.ReverseChargeTransfer(ctx, "ch_dest", "dispute-reversal-dp_1")
	require.NoError(t, err)
	assert.Equal(t, "tr_dest", reversal.TransferID)
	assert.Equal(t, int64(970), reversal.Amount.Cents)
	assert.True(t, stripe.BoolValue(api.reversalParams[0].RefundApplicationFee))
	assert.Equal(t, "dispute-reversal-dp_1", stripe.StringValue(api.reversalParams[0].IdempotencyKey))

	assert.Equal(t, "dispute-reversal-dp_1", api.reversalParams[0].Metadata["idempotency_key"])

	again, err := sp.ReverseChargeTransfer(ctx, "ch_dest", "dispute-reversal-dp_1")
	require.NoError(t, err)
	assert.Equal(t, reversal.ID, again.ID)
	assert.Len(t, api.reversalParams, 1)

	_, err = sp.ReverseChargeTransfer(ctx, "ch_dest", "dispute-reversal-dp_2")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
}

func TestGetTransfer_PagesThroughReversals(t *testing.T) {
	api := newFakeStripeAPI()
	api.transfers["tr_1"] = &stripe.Transfer{
		ID:       "tr_1",
		Amount:   1000,
		Currency: stripe.CurrencyUSD,
		Reversals: &stripe.TransferReversalList{
			ListMeta: stripe.ListMeta{HasMore: true},
			Data: []*stripe.TransferReversal{
				{ID: "trr_a", Amount: 100, Currency: stripe.CurrencyUSD, Metadata: map[string]string{"backtax_agreement": "bta_1"}},
				{ID: "trr_b", Amount: 200, Currency: stripe.CurrencyUSD},
			},
		},
	}
	sp := newTestProcessor(api)

	transfer, err := sp.GetTransfer(context.Background(), "tr_1")

	require.NoError(t, err)
	assert.Equal(t, 1, api.calls["ListTransferReversals"])
	require.Len(t, transfer.Reversals, 2)
	tagged := transfer.ReversalTagged("backtax_agreement", "bta_1")
	require.Len(t, tagged, 1)
	assert.Equal(t, "trr_a", tagged[0].ID)
	assert.Equal(t, "tr_1", tagged[0].TransferID)
}

func TestReverseTransfer_TagsReversal(t *testing.T) {
	api := newFakeStripeAPI()
	api.transfers["tr_1"] = &stripe.Transfer{ID: "tr_1", Amount: 1000, Currency: stripe.CurrencyUSD}
	sp := newTestProcessor(api)
	ctx := context.Background()

	reversal, err := sp.ReverseTransfer(ctx, TransferReversalRequest{
		TransferID:     "tr_1",
		AmountCents:    400,
		Metadata:       map[string]string{"backtax_agreement": "bta_1"},
		IdempotencyKey: "backtax-bta_1-tr_1-0",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(400), reversal.Amount.Cents)
	assert.Equal(t, "bta_1", reversal.Metadata["backtax_agreement"])
	assert.Equal(t, "backtax-bta_1-tr_1-0", stripe.StringValue(api.reversalParams[0].IdempotencyKey))

	_, err = sp.ReverseTransfer(ctx, TransferReversalRequest{TransferID: "tr_1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateTransfer(t *testing.T) {
	api := newFakeStripeAPI()
	sp := newTestProcessor(api)
	ctx := context.Background()

	transfer, err := sp.CreateTransfer(ctx, TransferRequest{
		DestinationAccountID: "acct_merchant",
		Amount:               models.NewMoney("usd", 900),
		Description:          "Dispute dp_1 reinstated",
		Metadata:             map[string]string{"dispute": "dp_1"},
		IdempotencyKey:       "dispute-reinstatement-dp_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "acct_merchant", transfer.DestinationAccountID)
	assert.Equal(t, models.NewMoney("usd", 900), transfer.Amount)
	assert.Equal(t, "dp_1", api.transferParams[0].Metadata["dispute"])

	_, err = sp.CreateTransfer(ctx, TransferRequest{Amount: models.NewMoney("usd", 900)})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = sp.CreateTransfer(ctx, TransferRequest{DestinationAccountID: "acct_merchant", Amount: models.NewMoney("usd", 0)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFindOriginatingChargeID(t *testing.T) {
	api := newFakeStripeAPI()
	api.charges["py_1"] = &stripe.Charge{ID: "py_1", SourceTransfer: &stripe.Transfer{ID: "tr_src"}}
	api.transfers["tr_src"] = &stripe.Transfer{ID: "tr_src", SourceTransaction: &stripe.Charge{ID: "ch_origin"}}
	sp := newTestProcessor(api)

	chargeID, err := sp.FindOriginatingChargeID(context.Background(), "acct_merchant", "py_1")

	require.NoError(t, err)
	assert.Equal(t, "ch_origin", chargeID)
}

func TestTranslateStripeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"server error", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError}, ErrProcessorUnavailable},
		{"rate limited", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusTooManyRequests}, ErrProcessorUnavailable},
		{"bad key", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusUnauthorized}, ErrConfiguration},
		{"unknown id", resourceMissing("ch_x"), ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateStripeError(tt.err), tt.want)
		})
	}
	assert.NoError(t, translateStripeError(nil))
}
