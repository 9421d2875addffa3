package enums

import "fmt"

// PaymentMethod identifies how the buyer settles an order.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodOnline         PaymentMethod = "online_payment"
)

// paymentMethodStart maps each method to the payment status a new order
// starts in.
var paymentMethodStart = map[PaymentMethod]PaymentStatus{
	PaymentMethodCashOnDelivery: PaymentStatusNotApplicable,
	PaymentMethodOnline:         PaymentStatusPending,
}

func (p PaymentMethod) String() string { return string(p) }

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	_, ok := paymentMethodStart[p]
	return ok
}

// SettlesOnline reports whether the method goes through the payment gateway.
func (p PaymentMethod) SettlesOnline() bool {
	return p == PaymentMethodOnline
}

// InitialPaymentStatus is the payment status of a freshly placed order.
// Cash orders have no payment to track until delivery.
func (p PaymentMethod) InitialPaymentStatus() PaymentStatus {
	if status, ok := paymentMethodStart[p]; ok {
		return status
	}
	return PaymentStatusNotApplicable
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if p := PaymentMethod(value); p.IsValid() {
		return p, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
