// Package intake validates checkout requests against the catalog before any
// inventory is touched.
package intake

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/internal/products"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/validation"
)

const (
	reasonUnknown      = "product_not_found"
	reasonUnavailable  = "product_unavailable"
	reasonInsufficient = "insufficient_stock"
	reasonOwnProduct   = "own_product"
)

func init() {
	validation.RegisterStructValidation(uniqueProducts, OrderRequest{})
}

func uniqueProducts(sl validator.StructLevel) {
	req := sl.Current().Interface().(OrderRequest)
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		key := strings.ToLower(strings.TrimSpace(item.ProductID))
		if _, dup := seen[key]; dup {
			sl.ReportError(req.Items, "items", "Items", "unique_products", "")
			return
		}
		seen[key] = struct{}{}
	}
}

// Validator performs structural and catalog checks. It never mutates.
type Validator struct {
	catalog  products.Catalog
	maxItems int
}

func NewValidator(catalog products.Catalog, maxItems int) *Validator {
	return &Validator{catalog: catalog, maxItems: maxItems}
}

func (v *Validator) Validate(ctx context.Context, in Input) (*ValidatedOrder, error) {
	if in.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if in.Role != enums.RoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can place orders")
	}

	req := normalize(in.Request)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if v.maxItems > 0 && len(req.Items) > v.maxItems {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "an order may contain at most %d items", v.maxItems)
	}

	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		id, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
		}
		ids = append(ids, id)
	}

	catalog, err := v.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	lines := make([]Line, 0, len(req.Items))
	var violations []ItemViolation
	for i, item := range req.Items {
		product, ok := catalog[ids[i]]
		switch {
		case !ok:
			violations = append(violations, ItemViolation{ProductID: item.ProductID, Reason: reasonUnknown})
			continue
		case !product.IsActive || !product.IsAvailable:
			violations = append(violations, ItemViolation{ProductID: item.ProductID, Reason: reasonUnavailable})
			continue
		case item.Quantity > product.StockQty:
			available := product.StockQty
			violations = append(violations, ItemViolation{
				ProductID: item.ProductID,
				Reason:    reasonInsufficient,
				Requested: item.Quantity,
				Available: &available,
			})
			continue
		case product.SellerID == in.BuyerID:
			violations = append(violations, ItemViolation{ProductID: item.ProductID, Reason: reasonOwnProduct})
			continue
		}
		lines = append(lines, Line{
			ProductID:      product.ID,
			SellerID:       product.SellerID,
			ProductName:    product.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: product.PriceCents,
		})
	}
	if len(violations) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d item(s) cannot be ordered", len(violations))).
			WithDetails(map[string]any{"items": violations})
	}

	return &ValidatedOrder{
		BuyerID: in.BuyerID,
		Lines:   lines,
		Shipping: Shipping{
			Address:    req.Shipping.Address,
			City:       req.Shipping.City,
			State:      req.Shipping.State,
			PostalCode: req.Shipping.PostalCode,
		},
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}, nil
}

func normalize(req OrderRequest) OrderRequest {
	out := req
	out.Items = make([]ItemRequest, len(req.Items))
	for i, item := range req.Items {
		out.Items[i] = ItemRequest{ProductID: strings.TrimSpace(item.ProductID), Quantity: item.Quantity}
	}
	out.Shipping = ShippingRequest{
		Address:    strings.TrimSpace(req.Shipping.Address),
		City:       strings.TrimSpace(req.Shipping.City),
		State:      strings.TrimSpace(req.Shipping.State),
		PostalCode: strings.TrimSpace(req.Shipping.PostalCode),
	}
	out.PaymentMethod = enums.PaymentMethod(strings.TrimSpace(string(req.PaymentMethod)))
	out.Notes = validation.Sanitize(req.Notes, 1000)
	return out
}
