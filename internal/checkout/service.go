// Package checkout turns a validated order request into a committed order:
// stock is reserved, the order number assigned, the order and its items
// inserted and the creation event queued, all in one transaction.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/checkout/intake"
	"github.com/angelmondragon/farmlink-backend/internal/ordernumber"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
)

const orderNumberConstraint = "orders_order_number_key"

var errOrderNumberTaken = errors.New("order number taken at insert")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type numberGenerator interface {
	GenerateFor(ctx context.Context, checker ordernumber.Checker) (string, error)
	MaxAttempts() int
}

type orderValidator interface {
	Validate(ctx context.Context, in intake.Input) (*intake.ValidatedOrder, error)
}

// PaymentInitiator starts an online payment for a committed order.
type PaymentInitiator interface {
	Initiate(ctx context.Context, input payments.InitiateInput) (*payments.InitiateResult, error)
}

// Result is the committed order plus the gateway redirect for online
// payments. PaymentError is set when the order committed but payment could
// not be started.
type Result struct {
	Order              *models.Order
	PaymentRedirectURL string
	PaymentError       error
}

// Config carries the pricing inputs of order creation.
type Config struct {
	DeliveryFeeCents int64
}

// Service executes checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, input intake.Input) (*Result, error)
	Create(ctx context.Context, validated *intake.ValidatedOrder) (*Result, error)
}

type service struct {
	cfg       Config
	tx        txRunner
	repo      orders.Repository
	validator orderValidator
	stock     stockReserver
	numbers   numberGenerator
	outbox    outbox.Emitter
	payments  PaymentInitiator
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

// Deps groups the collaborators of the checkout service.
type Deps struct {
	Tx        txRunner
	Orders    orders.Repository
	Validator orderValidator
	Stock     stockReserver
	Numbers   numberGenerator
	Outbox    outbox.Emitter
	Payments  PaymentInitiator
	Logger    *logger.Logger
	Metrics   *metrics.OrderMetrics
}

// NewService builds the checkout service. Payments may be nil when online
// payment is disabled.
func NewService(cfg Config, deps Deps) (Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("order validator required")
	}
	if deps.Stock == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if deps.Numbers == nil {
		return nil, fmt.Errorf("order number generator required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if cfg.DeliveryFeeCents < 0 {
		return nil, fmt.Errorf("delivery fee must be non-negative")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		cfg:       cfg,
		tx:        deps.Tx,
		repo:      deps.Orders,
		validator: deps.Validator,
		stock:     deps.Stock,
		numbers:   deps.Numbers,
		outbox:    deps.Outbox,
		payments:  deps.Payments,
		logg:      logg,
		metrics:   deps.Metrics,
		now:       time.Now,
	}, nil
}

func (s *service) Checkout(ctx context.Context, input intake.Input) (*Result, error) {
	validated, err := s.validator.Validate(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, validated)
}

// Create commits the order. An insert that loses the order number race is
// retried with a fresh number inside the generator's attempt budget. For
// online payment the gateway is contacted only after commit.
func (s *service) Create(ctx context.Context, validated *intake.ValidatedOrder) (*Result, error) {
	if validated == nil || len(validated.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}

	var order *models.Order
	attempts := s.numbers.MaxAttempts()
	for attempt := 1; ; attempt++ {
		created, err := s.createOnce(ctx, validated)
		if err == nil {
			order = created
			break
		}
		if !errors.Is(err, errOrderNumberTaken) {
			if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
				s.metrics.IncStockRejection()
			}
			return nil, err
		}
		if attempt >= attempts {
			exhausted := pkgerrors.Newf(pkgerrors.CodeGenerationExhausted, "order number generation exhausted after %d attempts", attempts)
			s.logg.Error(ctx, "order number conflicts exhausted", exhausted)
			return nil, exhausted
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "order number conflict on insert")
	}

	s.metrics.IncCreated(string(order.PaymentMethod))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"buyer_id":     order.BuyerID.String(),
		"total_cents":  order.TotalCents,
	})
	s.logg.Info(logCtx, "order created")

	result := &Result{Order: order}
	if !order.PaymentMethod.SettlesOnline() || s.payments == nil {
		return result, nil
	}

	initiated, err := s.payments.Initiate(ctx, payments.InitiateInput{OrderID: order.ID, BuyerID: order.BuyerID})
	if err != nil {
		s.logg.Error(logCtx, "payment initiation failed after order commit", err)
		result.PaymentError = err
		if pkgerrors.IsCode(err, pkgerrors.CodeGateway) {
			order.PaymentStatus = enums.PaymentStatusFailed
		}
		return result, nil
	}
	result.PaymentRedirectURL = initiated.RedirectURL
	return result, nil
}

func (s *service) createOnce(ctx context.Context, validated *intake.ValidatedOrder) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		for _, line := range validated.Lines {
			if err := s.stock.Reserve(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		number, err := s.numbers.GenerateFor(ctx, repo)
		if err != nil {
			return err
		}

		built, err := s.buildOrder(validated, number)
		if err != nil {
			return err
		}
		if err := repo.CreateOrder(ctx, built); err != nil {
			if db.IsUniqueViolation(err, orderNumberConstraint) || db.IsUniqueViolation(err, "orders.order_number") {
				return fmt.Errorf("%w: %s", errOrderNumberTaken, number)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   built.ID,
			Actor:         &outbox.ActorRef{UserID: built.BuyerID, Role: enums.RoleBuyer},
			OccurredAt:    built.CreatedAt,
			Data: payloads.OrderCreatedEvent{
				OrderID:       built.ID,
				OrderNumber:   built.OrderNumber,
				BuyerID:       built.BuyerID,
				SellerIDs:     built.SellerIDs(),
				SubtotalCents: built.SubtotalCents,
				DeliveryCents: built.DeliveryFeeCents,
				TotalCents:    built.TotalCents,
				PaymentMethod: built.PaymentMethod,
				PaymentStatus: built.PaymentStatus,
				ItemCount:     len(built.Items),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
		}

		order = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) buildOrder(validated *intake.ValidatedOrder, number string) (*models.Order, error) {
	now := s.now().UTC()
	paymentStatus := validated.PaymentMethod.InitialPaymentStatus()

	order := &models.Order{
		ID:                 uuid.New(),
		OrderNumber:        number,
		BuyerID:            validated.BuyerID,
		Status:             enums.OrderStatusProcessing,
		PaymentMethod:      validated.PaymentMethod,
		PaymentStatus:      paymentStatus,
		DeliveryFeeCents:   s.cfg.DeliveryFeeCents,
		ShippingAddress:    validated.Shipping.Address,
		ShippingCity:       validated.Shipping.City,
		ShippingState:      validated.Shipping.State,
		ShippingPostalCode: validated.Shipping.PostalCode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if validated.Notes != "" {
		notes := validated.Notes
		order.Notes = &notes
	}

	order.Items = make([]models.OrderItem, 0, len(validated.Lines))
	for _, line := range validated.Lines {
		subtotal := line.SubtotalCents()
		order.SubtotalCents += subtotal
		order.Items = append(order.Items, models.OrderItem{
			OrderID:        order.ID,
			ProductID:      line.ProductID,
			SellerID:       line.SellerID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  subtotal,
			Status:         enums.ItemStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	order.TotalCents = order.SubtotalCents + order.DeliveryFeeCents

	var sum int64
	for _, item := range order.Items {
		sum += item.SubtotalCents
	}
	if order.TotalCents != sum+order.DeliveryFeeCents {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order total does not match item subtotals")
	}
	return order, nil
}
