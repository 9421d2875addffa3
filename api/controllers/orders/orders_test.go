package orders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/api/middleware"
	"github.com/angelmondragon/farmlink-backend/internal/checkout"
	"github.com/angelmondragon/farmlink-backend/internal/checkout/intake"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

type fakeCheckout struct {
	input  intake.Input
	result *checkout.Result
	err    error
}

func (f *fakeCheckout) Checkout(ctx context.Context, input intake.Input) (*checkout.Result, error) {
	f.input = input
	return f.result, f.err
}

func (f *fakeCheckout) Create(ctx context.Context, validated *intake.ValidatedOrder) (*checkout.Result, error) {
	return f.result, f.err
}

type fakeOrders struct {
	decideInput     orders.DecideInput
	transitionInput orders.TransitionInput
	listInput       orders.ListInput
	order           *models.Order
	list            *orders.OrderList
	decide          *orders.DecideResult
	err             error
}

func (f *fakeOrders) Decide(ctx context.Context, input orders.DecideInput) (*orders.DecideResult, error) {
	f.decideInput = input
	return f.decide, f.err
}

func (f *fakeOrders) Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error) {
	f.transitionInput = input
	return f.order, f.err
}

func (f *fakeOrders) Get(ctx context.Context, orderID, actorID uuid.UUID, role enums.Role) (*models.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) List(ctx context.Context, input orders.ListInput) (*orders.OrderList, error) {
	f.listInput = input
	return f.list, f.err
}

func (f *fakeOrders) ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return 0, nil
}

type fakePayments struct {
	reconciled string
	txn        *models.PaymentTransaction
	err        error
}

func (f *fakePayments) Initiate(ctx context.Context, input payments.InitiateInput) (*payments.InitiateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &payments.InitiateResult{Transaction: f.txn, RedirectURL: "https://pay.example/cs_1"}, nil
}

func (f *fakePayments) Reconcile(ctx context.Context, transactionID string, outcome *payments.Outcome) (*models.PaymentTransaction, error) {
	f.reconciled = transactionID
	return f.txn, f.err
}

func (f *fakePayments) ReconcilePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func request(method, target, body string, userID uuid.UUID, role enums.Role, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := req.Context()
	if userID != uuid.Nil {
		ctx = middleware.WithActor(ctx, userID, role)
	}
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	return req.WithContext(ctx)
}

func sampleOrder(buyerID, sellerA, sellerB uuid.UUID) *models.Order {
	orderID := uuid.New()
	return &models.Order{
		ID:               orderID,
		OrderNumber:      "FL-20261019-0001",
		BuyerID:          buyerID,
		Status:           enums.OrderStatusProcessing,
		PaymentMethod:    enums.PaymentMethodCashOnDelivery,
		PaymentStatus:    enums.PaymentStatusNotApplicable,
		SubtotalCents:    1250,
		DeliveryFeeCents: 500,
		TotalCents:       1750,
		Items: []models.OrderItem{
			{ID: uuid.New(), OrderID: orderID, SellerID: sellerA, ProductName: "Tomatoes", Quantity: 2, UnitPriceCents: 350, SubtotalCents: 700, Status: enums.ItemStatusPending},
			{ID: uuid.New(), OrderID: orderID, SellerID: sellerB, ProductName: "Kale", Quantity: 1, UnitPriceCents: 550, SubtotalCents: 550, Status: enums.ItemStatusPending},
		},
	}
}

const createBody = `{
	"items": [{"product_id": "6f1c1ee4-7a4b-4a4a-9a33-0c1c3c5b9d11", "quantity": 2}],
	"shipping": {"address": "1 Farm Rd", "city": "Salinas", "state": "CA", "postal_code": "93901"},
	"payment_method": "online_payment"
}`

func TestCreateOrderReturnsCreatedWithPaymentError(t *testing.T) {
	buyerID := uuid.New()
	svc := &fakeCheckout{result: &checkout.Result{
		Order:        sampleOrder(buyerID, uuid.New(), uuid.New()),
		PaymentError: pkgerrors.New(pkgerrors.CodeGateway, "gateway timeout"),
	}}

	rec := httptest.NewRecorder()
	CreateOrder(svc, testLogger())(rec, request(http.MethodPost, "/api/v1/orders", createBody, buyerID, enums.RoleBuyer, nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, buyerID, svc.input.BuyerID)
	assert.Equal(t, enums.RoleBuyer, svc.input.Role)
	assert.Equal(t, enums.PaymentMethodOnline, svc.input.Request.PaymentMethod)

	var envelope struct {
		Data struct {
			Order struct {
				OrderNumber string `json:"order_number"`
				Total       string `json:"total"`
				Items       []any  `json:"items"`
			} `json:"order"`
			PaymentError string `json:"payment_error"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "FL-20261019-0001", envelope.Data.Order.OrderNumber)
	assert.Equal(t, "17.50", envelope.Data.Order.Total)
	assert.Len(t, envelope.Data.Order.Items, 2)
	assert.Equal(t, string(pkgerrors.CodeGateway), envelope.Data.PaymentError)
}

func TestCreateOrderRejectsUnknownFields(t *testing.T) {
	svc := &fakeCheckout{}
	rec := httptest.NewRecorder()
	CreateOrder(svc, testLogger())(rec, request(http.MethodPost, "/api/v1/orders", `{"cart_id":"x"}`, uuid.New(), enums.RoleBuyer, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderSurfacesStockConflict(t *testing.T) {
	svc := &fakeCheckout{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")}
	rec := httptest.NewRecorder()
	CreateOrder(svc, testLogger())(rec, request(http.MethodPost, "/api/v1/orders", createBody, uuid.New(), enums.RoleBuyer, nil))
	assert.Equal(t, pkgerrors.MetadataFor(pkgerrors.CodeInsufficientStock).HTTPStatus, rec.Code)
}

func TestGetOrderScopesItemsForSeller(t *testing.T) {
	buyerID, sellerA, sellerB := uuid.New(), uuid.New(), uuid.New()
	order := sampleOrder(buyerID, sellerA, sellerB)
	svc := &fakeOrders{order: order}

	rec := httptest.NewRecorder()
	GetOrder(svc, testLogger())(rec, request(http.MethodGet, "/api/v1/orders/"+order.ID.String(), "", sellerA, enums.RoleSeller, map[string]string{"orderId": order.ID.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data struct {
			Items []struct {
				SellerID uuid.UUID `json:"seller_id"`
			} `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Items, 1)
	assert.Equal(t, sellerA, envelope.Data.Items[0].SellerID)
}

func TestGetOrderInvalidID(t *testing.T) {
	rec := httptest.NewRecorder()
	GetOrder(&fakeOrders{}, testLogger())(rec, request(http.MethodGet, "/api/v1/orders/nope", "", uuid.New(), enums.RoleBuyer, map[string]string{"orderId": "nope"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderRequiresIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	GetOrder(&fakeOrders{}, testLogger())(rec, request(http.MethodGet, "/api/v1/orders/x", "", uuid.Nil, "", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOrdersPassesFiltersAndPages(t *testing.T) {
	buyerID := uuid.New()
	svc := &fakeOrders{list: &orders.OrderList{
		Orders:     []models.Order{*sampleOrder(buyerID, uuid.New(), uuid.New())},
		NextCursor: "cursor-2",
	}}

	rec := httptest.NewRecorder()
	ListOrders(svc, 20, testLogger())(rec, request(http.MethodGet, "/api/v1/orders?status=shipped&cursor=cursor-1", "", buyerID, enums.RoleBuyer, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 20, svc.listInput.Limit)
	assert.Equal(t, "cursor-1", svc.listInput.Cursor)
	require.NotNil(t, svc.listInput.Filters.Status)
	assert.Equal(t, enums.OrderStatusShipped, *svc.listInput.Filters.Status)
	assert.Nil(t, svc.listInput.Filters.PaymentStatus)

	var envelope struct {
		Data []any `json:"data"`
		Meta struct {
			NextCursor string `json:"next_cursor"`
			Limit      int    `json:"limit"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 1)
	assert.Equal(t, "cursor-2", envelope.Meta.NextCursor)
	assert.Equal(t, 20, envelope.Meta.Limit)
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	ListOrders(&fakeOrders{}, 20, testLogger())(rec, request(http.MethodGet, "/api/v1/orders?status=lost", "", uuid.New(), enums.RoleBuyer, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionOrderForwardsActor(t *testing.T) {
	sellerID := uuid.New()
	order := sampleOrder(uuid.New(), sellerID, uuid.New())
	order.Status = enums.OrderStatusShipped
	svc := &fakeOrders{order: order}

	rec := httptest.NewRecorder()
	TransitionOrder(svc, testLogger())(rec, request(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/status",
		`{"target_status":"shipped"}`, sellerID, enums.RoleSeller, map[string]string{"orderId": order.ID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, order.ID, svc.transitionInput.OrderID)
	assert.Equal(t, sellerID, svc.transitionInput.ActorID)
	assert.Equal(t, enums.RoleSeller, svc.transitionInput.Role)
	assert.Equal(t, enums.OrderStatusShipped, svc.transitionInput.Target)
}

func TestTransitionOrderRejectsUnknownTarget(t *testing.T) {
	orderID := uuid.NewString()
	rec := httptest.NewRecorder()
	TransitionOrder(&fakeOrders{}, testLogger())(rec, request(http.MethodPost, "/api/v1/orders/"+orderID+"/status",
		`{"target_status":"returned"}`, uuid.New(), enums.RoleBuyer, map[string]string{"orderId": orderID}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionOrderMapsForbidden(t *testing.T) {
	orderID := uuid.NewString()
	svc := &fakeOrders{err: pkgerrors.New(pkgerrors.CodeForbidden, "buyer cannot ship")}
	rec := httptest.NewRecorder()
	TransitionOrder(svc, testLogger())(rec, request(http.MethodPost, "/api/v1/orders/"+orderID+"/status",
		`{"target_status":"shipped"}`, uuid.New(), enums.RoleBuyer, map[string]string{"orderId": orderID}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDecideItem(t *testing.T) {
	sellerID := uuid.New()
	order := sampleOrder(uuid.New(), sellerID, uuid.New())
	item := order.Items[0]
	item.Status = enums.ItemStatusDeclined
	svc := &fakeOrders{decide: &orders.DecideResult{Item: &item, OrderStatus: enums.OrderStatusProcessing}}

	rec := httptest.NewRecorder()
	DecideItem(svc, testLogger())(rec, request(http.MethodPost, "/api/v1/orders/items/"+item.ID.String()+"/decision",
		`{"decision":"decline","notes":"out of season"}`, sellerID, enums.RoleSeller, map[string]string{"itemId": item.ID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, item.ID, svc.decideInput.ItemID)
	assert.Equal(t, sellerID, svc.decideInput.SellerID)
	assert.Equal(t, enums.ItemDecisionDecline, svc.decideInput.Decision)
	require.NotNil(t, svc.decideInput.Notes)
	assert.Equal(t, "out of season", *svc.decideInput.Notes)

	var envelope struct {
		Data struct {
			Item struct {
				Status string `json:"status"`
			} `json:"item"`
			OrderStatus string `json:"order_status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "declined", envelope.Data.Item.Status)
	assert.Equal(t, "processing", envelope.Data.OrderStatus)
}

func TestDecideItemRejectsUnknownDecision(t *testing.T) {
	itemID := uuid.NewString()
	rec := httptest.NewRecorder()
	DecideItem(&fakeOrders{}, testLogger())(rec, request(http.MethodPost, "/api/v1/orders/items/"+itemID+"/decision",
		`{"decision":"maybe"}`, uuid.New(), enums.RoleSeller, map[string]string{"itemId": itemID}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiatePayment(t *testing.T) {
	orderID := uuid.New()
	svc := &fakePayments{txn: &models.PaymentTransaction{
		ID:            uuid.New(),
		TransactionID: "TXN-FL-1-abc",
		OrderID:       orderID,
		AmountCents:   1750,
		Currency:      "usd",
		PaymentMethod: enums.PaymentMethodOnline,
		Status:        enums.TransactionStatusPending,
	}}

	rec := httptest.NewRecorder()
	InitiatePayment(svc, testLogger())(rec, request(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/payments", "", uuid.New(), enums.RoleBuyer, map[string]string{"orderId": orderID.String()}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var envelope struct {
		Data struct {
			RedirectURL string `json:"redirect_url"`
			Transaction struct {
				Amount string `json:"amount"`
				Status string `json:"status"`
			} `json:"transaction"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "https://pay.example/cs_1", envelope.Data.RedirectURL)
	assert.Equal(t, "17.50", envelope.Data.Transaction.Amount)
	assert.Equal(t, "pending", envelope.Data.Transaction.Status)
}

func TestInitiatePaymentDisabled(t *testing.T) {
	orderID := uuid.NewString()
	rec := httptest.NewRecorder()
	InitiatePayment(nil, testLogger())(rec, request(http.MethodPost, "/api/v1/orders/"+orderID+"/payments", "", uuid.New(), enums.RoleBuyer, map[string]string{"orderId": orderID}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReconcilePayment(t *testing.T) {
	svc := &fakePayments{txn: &models.PaymentTransaction{TransactionID: "TXN-1", Status: enums.TransactionStatusCompleted}}
	rec := httptest.NewRecorder()
	ReconcilePayment(svc, testLogger())(rec, request(http.MethodPost, "/api/v1/payments/reconcile", `{"transaction_id":" TXN-1 "}`, uuid.New(), enums.RoleBuyer, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "TXN-1", svc.reconciled)
}
