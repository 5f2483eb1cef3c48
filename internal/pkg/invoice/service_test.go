// internal/pkg/invoice/service_test.go
package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/promotion"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0", formatAmount(0))
	assert.Equal(t, "500", formatAmount(500))
	assert.Equal(t, "7,500", formatAmount(7500))
	assert.Equal(t, "1,234,567", formatAmount(1234567))
	assert.Equal(t, "-2,000", formatAmount(-2000))
}

func TestGenerateHTMLIncludesPromotionBreakdown(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{
			CompanyName:    "Storefront",
			CompanyAddress: "1-2-3 Ginza, Tokyo",
			CompanyEmail:   "billing@example.com",
		},
	}
	svc := NewService(cfg)

	o := &order.Order{
		OrderNumber:    "ORD-20260615-00042",
		Email:          "buyer@example.com",
		Status:         order.OrderStatusConfirmed,
		PaymentStatus:  order.PaymentStatusPaid,
		SubtotalAmount: 20000,
		DiscountAmount: 2500,
		ShippingAmount: 500,
		TotalAmount:    18000,
		Currency:       "JPY",
		CreatedAt:      time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
		Items: []order.OrderItem{
			{SKU: "SHIRT-1", Name: "Shirt", Quantity: 2, Price: 10000, TotalPrice: 20000},
		},
		Promotions: []order.OrderPromotion{
			{Code: "WELCOME10", Kind: promotion.KindPercentage, DiscountAmount: 2000},
			{Code: "FLAT500", Kind: promotion.KindFixedAmount, DiscountAmount: 500},
		},
	}

	html, err := svc.generateHTML(InvoiceData{
		InvoiceNumber: "INV-ORD-20260615-00042",
		InvoiceDate:   "June 15, 2026",
		DueDate:       "July 15, 2026",
		Order:         o,
		Company: CompanyInfo{
			Name:  cfg.App.CompanyName,
			Email: cfg.App.CompanyEmail,
		},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "INV-ORD-20260615-00042")
	assert.Contains(t, html, "WELCOME10")
	assert.Contains(t, html, "-2,000")
	assert.Contains(t, html, "FLAT500")
	assert.Contains(t, html, "-500")
	assert.Contains(t, html, "20,000")
	assert.Contains(t, html, "18,000")
}
