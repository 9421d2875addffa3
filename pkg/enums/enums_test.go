package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemStatusEdges(t *testing.T) {
	assert.True(t, ItemStatusPending.CanTransitionTo(ItemStatusAccepted))
	assert.True(t, ItemStatusPending.CanTransitionTo(ItemStatusDeclined))
	assert.True(t, ItemStatusAccepted.CanTransitionTo(ItemStatusDelivered))

	assert.False(t, ItemStatusPending.CanTransitionTo(ItemStatusDelivered))
	assert.False(t, ItemStatusAccepted.CanTransitionTo(ItemStatusDeclined))
	assert.False(t, ItemStatusDeclined.CanTransitionTo(ItemStatusAccepted))
	assert.False(t, ItemStatusDelivered.CanTransitionTo(ItemStatusPending))

	assert.True(t, ItemStatusDeclined.IsTerminal())
	assert.True(t, ItemStatusDelivered.IsTerminal())
	assert.False(t, ItemStatusAccepted.IsTerminal())
}

func TestOrderStatusPredicates(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusProcessing, OrderStatusConfirmed, OrderStatusPartiallyConfirmed} {
		assert.True(t, s.AwaitingSellers(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	assert.False(t, OrderStatusShipped.AwaitingSellers())
	assert.False(t, OrderStatusShipped.IsTerminal())
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
}

func TestParsers(t *testing.T) {
	status, err := ParseOrderStatus("partially_confirmed")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPartiallyConfirmed, status)

	_, err = ParseOrderStatus("Shipped")
	assert.Error(t, err)

	decision, err := ParseItemDecision("decline")
	require.NoError(t, err)
	assert.Equal(t, ItemStatusDeclined, decision.TargetStatus())

	_, err = ParseItemDecision("maybe")
	assert.Error(t, err)

	_, err = ParseRole("system")
	assert.Error(t, err, "system is not a token role")

	method, err := ParsePaymentMethod("online_payment")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodOnline, method)

	tx, err := ParseTransactionStatus("completed")
	require.NoError(t, err)
	assert.True(t, tx.IsTerminal())
	assert.False(t, TransactionStatusPending.IsTerminal())
}

func TestPaymentMethodStartStatus(t *testing.T) {
	assert.Equal(t, PaymentStatusPending, PaymentMethodOnline.InitialPaymentStatus())
	assert.Equal(t, PaymentStatusNotApplicable, PaymentMethodCashOnDelivery.InitialPaymentStatus())
	assert.True(t, PaymentMethodOnline.SettlesOnline())
	assert.False(t, PaymentMethodCashOnDelivery.SettlesOnline())

	_, err := ParsePaymentMethod("card")
	assert.Error(t, err)
}
