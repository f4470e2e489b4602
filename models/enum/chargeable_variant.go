package enum

// ChargeableVariant tags the concrete source of a payment instrument.
type ChargeableVariant string

const (
	ChargeableToken               ChargeableVariant = "token"
	ChargeableStoredPaymentMethod ChargeableVariant = "stored_payment_method"
	ChargeableReusableCustomer    ChargeableVariant = "reusable_customer"
)

func (v ChargeableVariant) Valid() bool {
	switch v {
	case ChargeableToken, ChargeableStoredPaymentMethod, ChargeableReusableCustomer:
		return true
	}
	return false
}
