package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOrderSellerIDsAreDistinct(t *testing.T) {
	sellerA := uuid.New()
	sellerB := uuid.New()
	order := Order{Items: []OrderItem{
		{SellerID: sellerA},
		{SellerID: sellerB},
		{SellerID: sellerA},
	}}

	assert.Equal(t, []uuid.UUID{sellerA, sellerB}, order.SellerIDs())
	assert.True(t, order.HasSeller(sellerB))
	assert.False(t, order.HasSeller(uuid.New()))
}

func TestProductSellable(t *testing.T) {
	assert.True(t, (&Product{IsActive: true, IsAvailable: true, StockQty: 1}).Sellable())
	assert.False(t, (&Product{IsActive: true, IsAvailable: true, StockQty: 0}).Sellable())
	assert.False(t, (&Product{IsActive: false, IsAvailable: true, StockQty: 3}).Sellable())
	assert.False(t, (&Product{IsActive: true, IsAvailable: false, StockQty: 3}).Sellable())
}
