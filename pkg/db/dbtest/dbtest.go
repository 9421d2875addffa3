// Package dbtest opens isolated in-memory sqlite databases for repository and
// service tests.
package dbtest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Open returns a fresh shared-cache sqlite database migrated with every model.
// The pool is capped at one connection so concurrent callers serialize the
// way row locks would on postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentTransaction{},
		&models.Notification{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// SeedProduct inserts an active product with the given stock and price.
func SeedProduct(t testing.TB, conn *gorm.DB, sellerID uuid.UUID, name string, priceCents int64, stock int) models.Product {
	t.Helper()
	product := models.Product{
		SellerID:    sellerID,
		Name:        name,
		PriceCents:  priceCents,
		StockQty:    stock,
		IsAvailable: stock > 0,
		IsActive:    true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// Stock reads the current stock and availability of a product.
func Stock(t testing.TB, conn *gorm.DB, productID uuid.UUID) (int, bool) {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.StockQty, product.IsAvailable
}

// Line describes one item of a seeded order.
type Line struct {
	Product  models.Product
	Quantity int
}

// SeedOrder inserts a processing order for buyerID with pending items and
// takes the item quantities out of product stock, mirroring a committed
// checkout. Delivery fee is fixed at 100 cents.
func SeedOrder(t testing.TB, conn *gorm.DB, buyerID uuid.UUID, method enums.PaymentMethod, lines ...Line) models.Order {
	t.Helper()
	paymentStatus := method.InitialPaymentStatus()
	order := models.Order{
		OrderNumber:        "ORD-TEST-" + strings.ToUpper(uuid.NewString()[:8]),
		BuyerID:            buyerID,
		Status:             enums.OrderStatusProcessing,
		PaymentMethod:      method,
		PaymentStatus:      paymentStatus,
		DeliveryFeeCents:   100,
		ShippingAddress:    "12 Orchard Lane",
		ShippingCity:       "Springfield",
		ShippingState:      "IL",
		ShippingPostalCode: "62704",
	}
	for _, line := range lines {
		subtotal := int64(line.Quantity) * line.Product.PriceCents
		order.SubtotalCents += subtotal
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      line.Product.ID,
			SellerID:       line.Product.SellerID,
			ProductName:    line.Product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.Product.PriceCents,
			SubtotalCents:  subtotal,
			Status:         enums.ItemStatusPending,
		})
		if err := conn.Exec("UPDATE products SET stock_qty = stock_qty - ? WHERE id = ?", line.Quantity, line.Product.ID).Error; err != nil {
			t.Fatalf("take stock: %v", err)
		}
	}
	order.TotalCents = order.SubtotalCents + order.DeliveryFeeCents
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// OutboxTypes lists the event types written to the outbox in insertion order.
func OutboxTypes(t testing.TB, conn *gorm.DB) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	if err := conn.Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	out := make([]enums.OutboxEventType, len(rows))
	for i, row := range rows {
		out[i] = row.EventType
	}
	return out
}
