// internal/domain/order/service.go
package order

import (
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/promotion"
	"gorm.io/gorm"
)

// Service handles order business logic
type Service struct {
	db               *gorm.DB
	config           *config.Config
	cartService      *cart.Service
	promotionService *promotion.Service
	productService   *product.Service
}

// NewService creates a new order service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Service {
	return &Service{
		db:               db,
		config:           cfg,
		cartService:      cart.NewService(db, redisClient, cfg),
		promotionService: promotion.NewService(db, redisClient, cfg),
		productService:   product.NewService(db, cfg),
	}
}

// CreateOrderRequest represents order creation data
type CreateOrderRequest struct {
	Email           string   `json:"email"` // Required for guest orders
	ShippingAddress Address  `json:"shipping_address" binding:"required"`
	BillingAddress  *Address `json:"billing_address,omitempty"` // Optional, defaults to shipping
	PaymentMethod   string   `json:"payment_method" binding:"required"`
	Notes           string   `json:"notes,omitempty"`
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page      int         `form:"page,default=1"`
	Limit     int         `form:"limit,default=20"`
	Status    OrderStatus `form:"status"`
	UserID    uint        `form:"user_id"`
	SortBy    string      `form:"sort_by,default=created_at"`
	SortOrder string      `form:"sort_order,default=desc"`
	DateFrom  string      `form:"date_from"`
	DateTo    string      `form:"date_to"`
}

// OrderResponse represents order response with pagination
type OrderResponse struct {
	Orders     []Order            `json:"orders"`
	Pagination product.Pagination `json:"pagination"`
}

// CreateOrder places an order from the session's cart. The cart is repriced
// against the applied-promotion set inside the transaction, so the stored
// totals are the engine's totals at placement time, and each applied
// promotion is redeemed exactly once.
func (s *Service) CreateOrder(userID *uint, sessionID string, req *CreateOrderRequest) (*Order, error) {
	cartResponse, err := s.cartService.GetCart(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve cart: %w", err)
	}
	if len(cartResponse.Items) == 0 {
		return nil, fmt.Errorf("cart is empty")
	}
	if err := s.validateCartItems(cartResponse.Items); err != nil {
		return nil, fmt.Errorf("cart validation failed: %w", err)
	}

	email := req.Email
	if userID != nil {
		var u struct{ Email string }
		if err := s.db.Table("users").Select("email").Where("id = ?", *userID).First(&u).Error; err != nil {
			return nil, fmt.Errorf("failed to get user email: %w", err)
		}
		email = u.Email
	}
	if email == "" {
		return nil, fmt.Errorf("email is required for guest orders")
	}

	// Authoritative pricing at placement time
	snapshot := cartResponse.Snapshot()
	appliedSet := s.promotionService.GetAppliedSet(userID, sessionID)
	priced := s.promotionService.Engine().PriceCart(snapshot, appliedSet)
	shippingCost := s.shippingCostFor(priced.Subtotal)

	billingAddress := req.ShippingAddress
	if req.BillingAddress != nil {
		billingAddress = *req.BillingAddress
	}

	order := Order{
		UserID:          userID,
		Email:           email,
		Status:          OrderStatusPending,
		PaymentStatus:   PaymentStatusPending,
		PaymentMethod:   req.PaymentMethod,
		SubtotalAmount:  priced.Subtotal,
		DiscountAmount:  priced.DiscountAmount,
		ShippingAmount:  shippingCost,
		TotalAmount:     priced.FinalAmount + shippingCost,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billingAddress,
		Currency:        s.config.Pricing.Currency,
		Notes:           req.Notes,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		order.OrderNumber = GenerateOrderNumber(order.ID, time.Now().UTC())
		if err := tx.Model(&order).Update("order_number", order.OrderNumber).Error; err != nil {
			return fmt.Errorf("failed to update order number: %w", err)
		}

		for _, cartItem := range cartResponse.Items {
			orderItem := OrderItem{
				OrderID:    order.ID,
				ProductID:  cartItem.ProductID,
				SKU:        cartItem.Product.SKU,
				Name:       cartItem.Product.Name,
				Quantity:   cartItem.Quantity,
				Price:      cartItem.Price,
				TotalPrice: cartItem.Price * int64(cartItem.Quantity),
			}
			if err := tx.Create(&orderItem).Error; err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}

			if err := s.productService.DecrementStock(tx, cartItem.ProductID, cartItem.Quantity); err != nil {
				return err
			}
		}

		// Freeze each promotion's slice and redeem it, once per promotion
		for _, applied := range priced.AppliedPromotions {
			orderPromotion := OrderPromotion{
				OrderID:        order.ID,
				PromotionID:    applied.PromotionID,
				Code:           applied.Code,
				Kind:           applied.Kind,
				DiscountAmount: applied.Amount,
			}
			if err := tx.Create(&orderPromotion).Error; err != nil {
				return fmt.Errorf("failed to create order promotion: %w", err)
			}

			if err := s.promotionService.RecordRedemption(tx, applied.PromotionID, userID, order.ID, applied.Code, applied.Amount); err != nil {
				return err
			}
		}

		statusHistory := OrderStatusHistory{
			OrderID:   order.ID,
			Status:    OrderStatusPending,
			Comment:   "Order created",
			CreatedAt: time.Now().UTC(),
		}
		if userID != nil {
			statusHistory.CreatedBy = *userID
		}
		if err := tx.Create(&statusHistory).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// The cart (and its applied-promotion set, which ClearCart drops with
	// it) is session state; losing it after commit costs nothing but a
	// stale cart, so a failure here only warns
	if err := s.cartService.ClearCart(userID, sessionID); err != nil {
		log.Printf("Warning: failed to clear cart after order %s: %v", order.OrderNumber, err)
	}

	return s.GetOrder(order.ID)
}

// shippingCostFor mirrors the checkout's shipping rule
func (s *Service) shippingCostFor(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	if s.config.Pricing.FreeShippingThreshold > 0 && subtotal >= s.config.Pricing.FreeShippingThreshold {
		return 0
	}
	return s.config.Pricing.ShippingCost
}

// GetOrders retrieves orders with filtering and pagination
func (s *Service) GetOrders(req *OrderListRequest) (*OrderResponse, error) {
	var orders []Order
	var total int64

	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := s.db.Model(&Order{}).
		Preload("Items").
		Preload("Promotions")

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.DateFrom != "" {
		query = query.Where("created_at >= ?", req.DateFrom)
	}
	if req.DateTo != "" {
		query = query.Where("created_at <= ?", req.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	query = query.Order(s.buildOrderClause(req.SortBy, req.SortOrder))

	offset := (req.Page - 1) * req.Limit
	if err := query.Offset(offset).Limit(req.Limit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &OrderResponse{
		Orders: orders,
		Pagination: product.Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// GetOrder retrieves a single order by ID
func (s *Service) GetOrder(id uint) (*Order, error) {
	var order Order
	result := s.db.
		Preload("Items").
		Preload("Promotions").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		First(&order, id)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("order not found")
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", result.Error)
	}

	return &order, nil
}

// GetOrderByNumber retrieves a single order by order number
func (s *Service) GetOrderByNumber(orderNumber string) (*Order, error) {
	var order Order
	result := s.db.
		Preload("Items").
		Preload("Promotions").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		Where("order_number = ?", orderNumber).
		First(&order)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("order not found")
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", result.Error)
	}

	return &order, nil
}

// GetUserOrders retrieves orders for a specific user
func (s *Service) GetUserOrders(userID uint, page, limit int) (*OrderResponse, error) {
	return s.GetOrders(&OrderListRequest{
		Page:   page,
		Limit:  limit,
		UserID: userID,
	})
}

// UpdateOrderStatus updates order status
func (s *Service) UpdateOrderStatus(orderID uint, status OrderStatus, comment string, updatedBy uint) error {
	var order Order
	if err := s.db.First(&order, orderID).Error; err != nil {
		return fmt.Errorf("order not found: %w", err)
	}

	if !s.isValidStatusTransition(order.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", order.Status, status)
	}

	updates := map[string]interface{}{
		"status": status,
	}

	now := time.Now().UTC()
	switch status {
	case OrderStatusProcessing:
		updates["processed_at"] = now
	case OrderStatusShipped:
		updates["shipped_at"] = now
	case OrderStatusDelivered:
		updates["delivered_at"] = now
	}

	if err := s.db.Model(&order).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	statusHistory := OrderStatusHistory{
		OrderID:   orderID,
		Status:    status,
		Comment:   comment,
		CreatedBy: updatedBy,
		CreatedAt: now,
	}
	if err := s.db.Create(&statusHistory).Error; err != nil {
		return fmt.Errorf("failed to create status history: %w", err)
	}

	return nil
}

// CancelOrder cancels an order and restores inventory
func (s *Service) CancelOrder(orderID uint, reason string, cancelledBy uint) error {
	var order Order
	if err := s.db.First(&order, orderID).Error; err != nil {
		return fmt.Errorf("order not found: %w", err)
	}

	if !order.CanBeCancelled() {
		return fmt.Errorf("order cannot be cancelled in current status: %s", order.Status)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.restoreInventory(tx, orderID); err != nil {
			return fmt.Errorf("failed to restore inventory: %w", err)
		}

		if err := tx.Model(&order).Update("status", OrderStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		statusHistory := OrderStatusHistory{
			OrderID:   orderID,
			Status:    OrderStatusCancelled,
			Comment:   fmt.Sprintf("Order cancelled: %s", reason),
			CreatedBy: cancelledBy,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&statusHistory).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}

		return nil
	})
}

// Private helper methods

func (s *Service) validateCartItems(items []cart.CartItemResponse) error {
	for _, item := range items {
		if item.Product == nil {
			return fmt.Errorf("product %d not found", item.ProductID)
		}
		if !item.Product.IsActive {
			return fmt.Errorf("product '%s' is no longer available", item.Product.Name)
		}
		if item.Product.TrackQuantity && item.Product.Quantity < item.Quantity {
			return fmt.Errorf("insufficient inventory for product '%s'. Available: %d, Requested: %d",
				item.Product.Name, item.Product.Quantity, item.Quantity)
		}
	}
	return nil
}

func (s *Service) restoreInventory(tx *gorm.DB, orderID uint) error {
	var orderItems []OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&orderItems).Error; err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}

	for _, item := range orderItems {
		err := tx.Model(&product.Product{}).
			Where("id = ? AND track_quantity = ?", item.ProductID, true).
			UpdateColumn("quantity", gorm.Expr("quantity + ?", item.Quantity)).Error
		if err != nil {
			return fmt.Errorf("failed to restore product inventory: %w", err)
		}
	}
	return nil
}

func (s *Service) isValidStatusTransition(from, to OrderStatus) bool {
	validTransitions := map[OrderStatus][]OrderStatus{
		OrderStatusPending: {
			OrderStatusConfirmed,
			OrderStatusCancelled,
		},
		OrderStatusConfirmed: {
			OrderStatusProcessing,
			OrderStatusCancelled,
		},
		OrderStatusProcessing: {
			OrderStatusShipped,
		},
		OrderStatusShipped: {
			OrderStatusDelivered,
		},
		OrderStatusDelivered: {
			OrderStatusCompleted,
		},
	}

	for _, status := range validTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

func (s *Service) buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"total_amount": true,
		"status":       true,
		"order_number": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return fmt.Sprintf("%s %s", sortBy, sortOrder)
}
