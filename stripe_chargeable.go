package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"

	"goflare.io/chargeprocessor/models"
	"goflare.io/chargeprocessor/models/enum"
)

// Chargeable is a payment instrument reference for a single charge attempt.
type Chargeable interface {
	Variant() enum.ChargeableVariant
	// Prepare fetches the instrument from the gateway and, when the charge runs
	// on a connected account, clones it there. Calling it again is a no-op.
	Prepare(ctx context.Context) error
	// ReusableToken returns a platform-owned customer reference for off-session use.
	ReusableToken(ctx context.Context, owner *models.User) (string, error)
	ChargeParams() (models.ChargeParams, error)
	Details() models.CardDetails
	MerchantDestination() *models.MerchantAccount
}

var _ Chargeable = (*StripeChargeable)(nil)

type StripeChargeable struct {
	api               stripeAPI
	platformAccountID string
	source            models.ChargeableSource

	prepared              bool
	paymentMethodID       string
	customerID            string
	clonedPaymentMethodID string
	reusableCustomerID    string
	details               models.CardDetails
}

func newStripeChargeable(api stripeAPI, platformAccountID string, source models.ChargeableSource) (*StripeChargeable, error) {
	if !source.Variant.Valid() {
		return nil, fmt.Errorf("%w: unknown variant %q", ErrInvalidInstrument, source.Variant)
	}

	switch source.Variant {
	case enum.ChargeableToken:
		if strings.TrimSpace(source.Token) == "" {
			return nil, fmt.Errorf("%w: token is blank", ErrInvalidInstrument)
		}
	case enum.ChargeableStoredPaymentMethod:
		if strings.TrimSpace(source.PaymentMethodID) == "" {
			return nil, fmt.Errorf("%w: payment method id is blank", ErrInvalidInstrument)
		}
	case enum.ChargeableReusableCustomer:
		if strings.TrimSpace(source.CustomerID) == "" {
			return nil, fmt.Errorf("%w: customer id is blank", ErrInvalidInstrument)
		}
	}

	return &StripeChargeable{
		api:               api,
		platformAccountID: platformAccountID,
		source:            source,
		customerID:        source.CustomerID,
	}, nil
}

func (sc *StripeChargeable) Variant() enum.ChargeableVariant {
	return sc.source.Variant
}

func (sc *StripeChargeable) MerchantDestination() *models.MerchantAccount {
	return sc.source.MerchantDestination
}

func (sc *StripeChargeable) Details() models.CardDetails {
	return sc.details
}

func (sc *StripeChargeable) Prepare(ctx context.Context) error {
	if sc.prepared {
		return nil
	}

	pm, err := sc.fetchPaymentMethod()
	if err != nil {
		return instrumentError(err)
	}

	sc.paymentMethodID = pm.ID
	if pm.Customer != nil && pm.Customer.ID != "" {
		sc.customerID = pm.Customer.ID
	}
	sc.details = cardDetailsFromPaymentMethod(pm, sc.source.ZipCode)

	if sc.runsOnMerchantAccount() {
		if err := sc.cloneOntoMerchantAccount(); err != nil {
			return err
		}
	}

	sc.prepared = true
	return nil
}

func (sc *StripeChargeable) fetchPaymentMethod() (*stripe.PaymentMethod, error) {
	switch sc.source.Variant {
	case enum.ChargeableToken:
		params := &stripe.PaymentMethodParams{
			Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
			Card: &stripe.PaymentMethodCardParams{Token: stripe.String(sc.source.Token)},
		}
		if sc.source.ZipCode != "" {
			params.BillingDetails = &stripe.PaymentMethodBillingDetailsParams{
				Address: &stripe.AddressParams{PostalCode: stripe.String(sc.source.ZipCode)},
			}
		}
		return sc.api.NewPaymentMethod(params)

	case enum.ChargeableStoredPaymentMethod:
		return sc.api.GetPaymentMethod(sc.source.PaymentMethodID, nil)

	default:
		paymentMethodID := sc.source.PaymentMethodID
		if paymentMethodID == "" {
			params := &stripe.CustomerParams{}
			params.AddExpand("invoice_settings.default_payment_method")
			customer, err := sc.api.GetCustomer(sc.source.CustomerID, params)
			if err != nil {
				return nil, err
			}
			if customer.InvoiceSettings == nil || customer.InvoiceSettings.DefaultPaymentMethod == nil {
				return nil, fmt.Errorf("%w: customer %s has no default payment method", ErrInvalidInstrument, customer.ID)
			}
			paymentMethodID = customer.InvoiceSettings.DefaultPaymentMethod.ID
		}
		return sc.api.GetPaymentMethod(paymentMethodID, nil)
	}
}

func (sc *StripeChargeable) runsOnMerchantAccount() bool {
	dest := sc.source.MerchantDestination
	return dest.IsConnected() && dest.ChargesOnMerchantAccount && dest.GatewayAccountID != sc.platformAccountID
}

func (sc *StripeChargeable) cloneOntoMerchantAccount() error {
	dest := sc.source.MerchantDestination
	if !dest.HasGatewayAccount() {
		return fmt.Errorf("%w: merchant account %s has no gateway account id", ErrConfiguration, dest.ID)
	}

	params := &stripe.PaymentMethodParams{PaymentMethod: stripe.String(sc.paymentMethodID)}
	if sc.customerID != "" {
		params.Customer = stripe.String(sc.customerID)
	}
	params.SetStripeAccount(dest.GatewayAccountID)

	cloned, err := sc.api.NewPaymentMethod(params)
	if err != nil {
		return instrumentError(err)
	}
	sc.clonedPaymentMethodID = cloned.ID
	return nil
}

func (sc *StripeChargeable) ReusableToken(ctx context.Context, owner *models.User) (string, error) {
	if sc.reusableCustomerID != "" {
		return sc.reusableCustomerID, nil
	}
	if err := sc.Prepare(ctx); err != nil {
		return "", err
	}
	if sc.customerID != "" {
		sc.reusableCustomerID = sc.customerID
		return sc.reusableCustomerID, nil
	}

	// The platform customer is always built from the original instrument,
	// never from a clone living on a connected account.
	params := &stripe.CustomerParams{
		PaymentMethod: stripe.String(sc.paymentMethodID),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(sc.paymentMethodID),
		},
	}
	if owner != nil {
		params.Email = stripe.String(owner.Email)
		params.Description = stripe.String(owner.ID)
	}
	params.SetIdempotencyKey("customer-" + sc.paymentMethodID)

	customer, err := sc.api.NewCustomer(params)
	if err != nil {
		return "", instrumentError(err)
	}

	sc.customerID = customer.ID
	sc.reusableCustomerID = customer.ID
	return sc.reusableCustomerID, nil
}

func (sc *StripeChargeable) ChargeParams() (models.ChargeParams, error) {
	if !sc.prepared {
		return models.ChargeParams{}, fmt.Errorf("%w: chargeable has not been prepared", ErrInvalidInstrument)
	}
	if sc.clonedPaymentMethodID != "" {
		return models.ChargeParams{
			PaymentMethodReference: sc.clonedPaymentMethodID,
			StripeAccount:          sc.source.MerchantDestination.GatewayAccountID,
		}, nil
	}
	return models.ChargeParams{
		CustomerReference:      sc.customerID,
		PaymentMethodReference: sc.paymentMethodID,
	}, nil
}

// instrumentError reports a rejected instrument while keeping outages retryable.
func instrumentError(err error) error {
	if errors.Is(err, ErrInvalidInstrument) {
		return err
	}
	translated := translateStripeError(err)
	if errors.Is(translated, ErrProcessorUnavailable) || errors.Is(translated, ErrConfiguration) {
		return translated
	}
	return fmt.Errorf("%w: %v", ErrInvalidInstrument, translated)
}

func cardDetailsFromPaymentMethod(pm *stripe.PaymentMethod, zipCode string) models.CardDetails {
	details := models.CardDetails{ZipCode: zipCode}
	if pm.BillingDetails != nil && pm.BillingDetails.Address != nil && pm.BillingDetails.Address.PostalCode != "" {
		details.ZipCode = pm.BillingDetails.Address.PostalCode
	}
	if pm.Card == nil {
		return details
	}

	details.Fingerprint = pm.Card.Fingerprint
	details.Last4 = pm.Card.Last4
	details.ExpiryMonth = int(pm.Card.ExpMonth)
	details.ExpiryYear = int(pm.Card.ExpYear)
	details.Type = string(pm.Card.Brand)
	details.Country = pm.Card.Country
	if pm.Card.Checks != nil {
		details.ZipCheckResult = string(pm.Card.Checks.AddressPostalCodeCheck)
	}
	return details
}
