package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/checkout/intake"
	"github.com/angelmondragon/farmlink-backend/internal/inventory"
	"github.com/angelmondragon/farmlink-backend/internal/ordernumber"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/internal/products"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
)

// scriptedNumbers hands out fixed numbers without consulting the checker,
// which lets a test force a collision at insert time.
type scriptedNumbers struct {
	numbers  []string
	attempts int
	calls    int
}

func (s *scriptedNumbers) GenerateFor(_ context.Context, _ ordernumber.Checker) (string, error) {
	if s.calls >= len(s.numbers) {
		return s.numbers[len(s.numbers)-1], nil
	}
	n := s.numbers[s.calls]
	s.calls++
	return n, nil
}

func (s *scriptedNumbers) MaxAttempts() int { return s.attempts }

type stubInitiator struct {
	calls []payments.InitiateInput
	err   error
}

func (s *stubInitiator) Initiate(_ context.Context, input payments.InitiateInput) (*payments.InitiateResult, error) {
	s.calls = append(s.calls, input)
	if s.err != nil {
		return nil, s.err
	}
	return &payments.InitiateResult{RedirectURL: "https://pay.example/session"}, nil
}

type checkoutFixture struct {
	conn     *gorm.DB
	svc      Service
	numbers  *scriptedNumbers
	payments *stubInitiator
	buyer    uuid.UUID
	apples   models.Product
	pears    models.Product
}

func newCheckoutFixture(t *testing.T, numbers ...string) *checkoutFixture {
	t.Helper()
	conn := dbtest.Open(t)
	if len(numbers) == 0 {
		numbers = []string{"ORD-20261019-AAAA"}
	}
	f := &checkoutFixture{
		conn:     conn,
		numbers:  &scriptedNumbers{numbers: numbers, attempts: 3},
		payments: &stubInitiator{},
		buyer:    uuid.New(),
		apples:   dbtest.SeedProduct(t, conn, uuid.New(), "Apples", 100, 5),
		pears:    dbtest.SeedProduct(t, conn, uuid.New(), "Pears", 50, 2),
	}
	svc, err := NewService(Config{DeliveryFeeCents: 100}, Deps{
		Tx:        db.NewFromConn(conn),
		Orders:    orders.NewRepository(conn),
		Validator: intake.NewValidator(products.NewRepository(conn), 50),
		Stock:     inventory.NewLedger(),
		Numbers:   f.numbers,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Payments:  f.payments,
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *checkoutFixture) input(method enums.PaymentMethod, items ...intake.ItemRequest) intake.Input {
	return intake.Input{
		BuyerID: f.buyer,
		Role:    enums.RoleBuyer,
		Request: intake.OrderRequest{
			Items: items,
			Shipping: intake.ShippingRequest{
				Address:    "12 Orchard Lane",
				City:       "Springfield",
				State:      "IL",
				PostalCode: "62704",
			},
			PaymentMethod: method,
		},
	}
}

func item(p models.Product, qty int) intake.ItemRequest {
	return intake.ItemRequest{ProductID: p.ID.String(), Quantity: qty}
}

func stockOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	qty, _ := dbtest.Stock(t, conn, id)
	return qty
}

func TestCheckoutCashOnDelivery(t *testing.T) {
	f := newCheckoutFixture(t)

	res, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodCashOnDelivery, item(f.apples, 2), item(f.pears, 1)))
	require.NoError(t, err)
	order := res.Order
	assert.Equal(t, "ORD-20261019-AAAA", order.OrderNumber)
	assert.Equal(t, int64(250), order.SubtotalCents)
	assert.Equal(t, int64(350), order.TotalCents)
	assert.Equal(t, enums.OrderStatusProcessing, order.Status)
	assert.Equal(t, enums.PaymentStatusNotApplicable, order.PaymentStatus)
	assert.Empty(t, res.PaymentRedirectURL)
	assert.Empty(t, f.payments.calls)

	assert.Equal(t, 3, stockOf(t, f.conn, f.apples.ID))
	assert.Equal(t, 1, stockOf(t, f.conn, f.pears.ID))

	var stored models.Order
	require.NoError(t, f.conn.Preload("Items").First(&stored, "id = ?", order.ID).Error)
	require.Len(t, stored.Items, 2)
	var sum int64
	for _, it := range stored.Items {
		assert.Equal(t, enums.ItemStatusPending, it.Status)
		sum += it.SubtotalCents
	}
	assert.Equal(t, stored.TotalCents, sum+stored.DeliveryFeeCents)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated}, dbtest.OutboxTypes(t, f.conn))
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodCashOnDelivery, item(f.apples, 2), item(f.pears, 3)))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	// bypass the advisory check so the ledger is the one that refuses
	validated := &intake.ValidatedOrder{
		BuyerID:       f.buyer,
		PaymentMethod: enums.PaymentMethodCashOnDelivery,
		Lines: []intake.Line{
			{ProductID: f.apples.ID, SellerID: f.apples.SellerID, ProductName: "Apples", Quantity: 2, UnitPriceCents: 100},
			{ProductID: f.pears.ID, SellerID: f.pears.SellerID, ProductName: "Pears", Quantity: 3, UnitPriceCents: 50},
		},
	}
	_, err = f.svc.Create(context.Background(), validated)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	assert.Equal(t, 5, stockOf(t, f.conn, f.apples.ID), "earlier reservation rolled back")
	assert.Equal(t, 2, stockOf(t, f.conn, f.pears.ID))
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, dbtest.OutboxTypes(t, f.conn))
}

func TestCreateRetriesOrderNumberTakenAtInsert(t *testing.T) {
	f := newCheckoutFixture(t, "ORD-DUP", "ORD-FRESH")
	existing := dbtest.SeedOrder(t, f.conn, uuid.New(), enums.PaymentMethodCashOnDelivery, dbtest.Line{Product: f.apples, Quantity: 1})
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", existing.ID).Update("order_number", "ORD-DUP").Error)

	res, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodCashOnDelivery, item(f.apples, 2)))
	require.NoError(t, err)
	assert.Equal(t, "ORD-FRESH", res.Order.OrderNumber)
	assert.Equal(t, 2, f.numbers.calls)
	assert.Equal(t, 2, stockOf(t, f.conn, f.apples.ID), "failed attempt must not keep its reservation")
}

func TestCreateExhaustsOrderNumbers(t *testing.T) {
	f := newCheckoutFixture(t, "ORD-DUP")
	existing := dbtest.SeedOrder(t, f.conn, uuid.New(), enums.PaymentMethodCashOnDelivery, dbtest.Line{Product: f.apples, Quantity: 1})
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", existing.ID).Update("order_number", "ORD-DUP").Error)

	_, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodCashOnDelivery, item(f.apples, 1)))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGenerationExhausted))
	assert.Equal(t, 4, stockOf(t, f.conn, f.apples.ID))
}

func TestCheckoutOnlineInitiatesAfterCommit(t *testing.T) {
	f := newCheckoutFixture(t)

	res, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodOnline, item(f.pears, 2)))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, res.Order.PaymentStatus)
	assert.Equal(t, "https://pay.example/session", res.PaymentRedirectURL)
	assert.NoError(t, res.PaymentError)
	require.Len(t, f.payments.calls, 1)
	assert.Equal(t, res.Order.ID, f.payments.calls[0].OrderID)
	assert.Equal(t, f.buyer, f.payments.calls[0].BuyerID)
}

func TestCheckoutOnlineGatewayFailureKeepsOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.payments.err = pkgerrors.Wrap(pkgerrors.CodeGateway, errors.New("timeout"), "payment gateway unavailable")

	res, err := f.svc.Checkout(context.Background(), f.input(enums.PaymentMethodOnline, item(f.apples, 1)))
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.True(t, pkgerrors.IsCode(res.PaymentError, pkgerrors.CodeGateway))
	assert.Equal(t, enums.PaymentStatusFailed, res.Order.PaymentStatus)
	assert.Equal(t, 4, stockOf(t, f.conn, f.apples.ID))
}

func TestCheckoutRejectsInvalidRequestBeforeReserving(t *testing.T) {
	f := newCheckoutFixture(t)
	in := f.input(enums.PaymentMethodCashOnDelivery, item(f.apples, 1))
	in.Role = enums.RoleSeller

	_, err := f.svc.Checkout(context.Background(), in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, 5, stockOf(t, f.conn, f.apples.ID))
	assert.Zero(t, f.numbers.calls)
}
