package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

type stubCatalog struct {
	products map[uuid.UUID]models.Product
	err      error
	calls    int
}

func (s *stubCatalog) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := map[uuid.UUID]models.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func product(seller uuid.UUID, name string, price int64, stock int) models.Product {
	return models.Product{
		ID:          uuid.New(),
		SellerID:    seller,
		Name:        name,
		PriceCents:  price,
		StockQty:    stock,
		IsAvailable: stock > 0,
		IsActive:    true,
	}
}

func newCatalog(products ...models.Product) *stubCatalog {
	c := &stubCatalog{products: map[uuid.UUID]models.Product{}}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func validRequest(items ...ItemRequest) OrderRequest {
	return OrderRequest{
		Items: items,
		Shipping: ShippingRequest{
			Address:    "12 Orchard Lane",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62704",
		},
		PaymentMethod: enums.PaymentMethodCashOnDelivery,
	}
}

func TestValidateBuildsPriceSnapshot(t *testing.T) {
	seller := uuid.New()
	p := product(seller, "Tomatoes", 100, 5)
	q := product(seller, "Basil", 50, 2)
	v := NewValidator(newCatalog(p, q), 50)

	out, err := v.Validate(context.Background(), Input{
		BuyerID: uuid.New(),
		Role:    enums.RoleBuyer,
		Request: validRequest(
			ItemRequest{ProductID: p.ID.String(), Quantity: 2},
			ItemRequest{ProductID: " " + q.ID.String() + " ", Quantity: 1},
		),
	})
	require.NoError(t, err)
	require.Len(t, out.Lines, 2)
	assert.Equal(t, int64(100), out.Lines[0].UnitPriceCents)
	assert.Equal(t, seller, out.Lines[1].SellerID)
	assert.Equal(t, int64(250), out.SubtotalCents())
	assert.Equal(t, "Springfield", out.Shipping.City)
}

func TestValidateRejectsNonBuyerBeforeCatalog(t *testing.T) {
	catalog := newCatalog()
	v := NewValidator(catalog, 50)

	for _, role := range []enums.Role{enums.RoleSeller, enums.RoleAgent, ""} {
		_, err := v.Validate(context.Background(), Input{BuyerID: uuid.New(), Role: role, Request: validRequest()})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "role %q", role)
	}
	assert.Zero(t, catalog.calls)
}

func TestValidateStructuralFailures(t *testing.T) {
	p := product(uuid.New(), "Eggs", 300, 10)
	cases := map[string]func(*OrderRequest){
		"empty items":       func(r *OrderRequest) { r.Items = nil },
		"zero quantity":     func(r *OrderRequest) { r.Items[0].Quantity = 0 },
		"negative quantity": func(r *OrderRequest) { r.Items[0].Quantity = -1 },
		"missing city":      func(r *OrderRequest) { r.Shipping.City = "   " },
		"missing postal":    func(r *OrderRequest) { r.Shipping.PostalCode = "" },
		"bad method":        func(r *OrderRequest) { r.PaymentMethod = "barter" },
		"bad product id":    func(r *OrderRequest) { r.Items[0].ProductID = "nope" },
		"duplicate product": func(r *OrderRequest) {
			r.Items = append(r.Items, ItemRequest{ProductID: p.ID.String(), Quantity: 1})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			catalog := newCatalog(p)
			req := validRequest(ItemRequest{ProductID: p.ID.String(), Quantity: 1})
			mutate(&req)
			_, err := NewValidator(catalog, 50).Validate(context.Background(), Input{BuyerID: uuid.New(), Role: enums.RoleBuyer, Request: req})
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
			assert.Zero(t, catalog.calls)
		})
	}
}

func TestValidateMaxItems(t *testing.T) {
	a := product(uuid.New(), "A", 1, 5)
	b := product(uuid.New(), "B", 1, 5)
	_, err := NewValidator(newCatalog(a, b), 1).Validate(context.Background(), Input{
		BuyerID: uuid.New(),
		Role:    enums.RoleBuyer,
		Request: validRequest(
			ItemRequest{ProductID: a.ID.String(), Quantity: 1},
			ItemRequest{ProductID: b.ID.String(), Quantity: 1},
		),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestValidateCatalogViolations(t *testing.T) {
	buyer := uuid.New()
	inactive := product(uuid.New(), "Old", 100, 5)
	inactive.IsActive = false
	soldOut := product(uuid.New(), "Gone", 100, 0)
	scarce := product(uuid.New(), "Rare", 100, 1)
	own := product(buyer, "Mine", 100, 5)
	unknown := uuid.New()

	cases := map[string]struct {
		item   ItemRequest
		reason string
	}{
		"unknown":     {ItemRequest{ProductID: unknown.String(), Quantity: 1}, reasonUnknown},
		"inactive":    {ItemRequest{ProductID: inactive.ID.String(), Quantity: 1}, reasonUnavailable},
		"unavailable": {ItemRequest{ProductID: soldOut.ID.String(), Quantity: 1}, reasonUnavailable},
		"over stock":  {ItemRequest{ProductID: scarce.ID.String(), Quantity: 2}, reasonInsufficient},
		"own listing": {ItemRequest{ProductID: own.ID.String(), Quantity: 1}, reasonOwnProduct},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := NewValidator(newCatalog(inactive, soldOut, scarce, own), 50)
			_, err := v.Validate(context.Background(), Input{BuyerID: buyer, Role: enums.RoleBuyer, Request: validRequest(tc.item)})
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			details := typed.Details().(map[string]any)
			violations := details["items"].([]ItemViolation)
			require.Len(t, violations, 1)
			assert.Equal(t, tc.reason, violations[0].Reason)
			assert.Equal(t, tc.item.ProductID, violations[0].ProductID)
		})
	}
}

func TestValidateCatalogFailureIsDependencyError(t *testing.T) {
	p := product(uuid.New(), "Eggs", 300, 10)
	catalog := newCatalog(p)
	catalog.err = errors.New("db down")
	_, err := NewValidator(catalog, 50).Validate(context.Background(), Input{
		BuyerID: uuid.New(),
		Role:    enums.RoleBuyer,
		Request: validRequest(ItemRequest{ProductID: p.ID.String(), Quantity: 1}),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestValidateRequiresBuyerID(t *testing.T) {
	_, err := NewValidator(newCatalog(), 50).Validate(context.Background(), Input{Role: enums.RoleBuyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
