// internal/domain/cart/service.go
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/promotion"
	"gorm.io/gorm"
)

// Service handles cart business logic
type Service struct {
	db               *gorm.DB
	redisClient      *redis.Client
	config           *config.Config
	promotionService *promotion.Service
}

// NewService creates a new cart service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Service {
	return &Service{
		db:               db,
		redisClient:      redisClient,
		config:           cfg,
		promotionService: promotion.NewService(db, redisClient, cfg),
	}
}

// CartItemResponse represents a cart item with product details
type CartItemResponse struct {
	ProductID uint             `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     int64            `json:"price"`
	Product   *product.Product `json:"product,omitempty"`
	AddedAt   time.Time        `json:"added_at"`
}

// CartResponse represents a shopping cart with items and summary
type CartResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	UserID    *uint              `json:"user_id,omitempty"`
	Items     []CartItemResponse `json:"items"`
	Totals    CartTotals         `json:"totals"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// GetCart retrieves cart for user or session
func (s *Service) GetCart(userID *uint, sessionID string) (*CartResponse, error) {
	var cartItems []CartItemResponse
	var createdAt, updatedAt time.Time

	if userID != nil {
		var dbItems []CartItem
		err := s.db.Where("user_id = ?", *userID).Order("id ASC").Find(&dbItems).Error
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve user cart: %w", err)
		}

		cartItems = make([]CartItemResponse, len(dbItems))
		for i, item := range dbItems {
			cartItems[i] = CartItemResponse{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				AddedAt:   item.CreatedAt,
			}
		}

		if len(dbItems) > 0 {
			createdAt = dbItems[0].CreatedAt
			updatedAt = dbItems[0].UpdatedAt
		} else {
			createdAt = time.Now().UTC()
			updatedAt = time.Now().UTC()
		}
	} else {
		sessionCart, err := s.getGuestCart(sessionID)
		if err != nil {
			return nil, err
		}

		cartItems = make([]CartItemResponse, len(sessionCart.Items))
		for i, item := range sessionCart.Items {
			cartItems[i] = CartItemResponse{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				AddedAt:   item.AddedAt,
			}
		}

		createdAt = sessionCart.CreatedAt
		updatedAt = sessionCart.UpdatedAt
	}

	if err := s.loadProductDetails(cartItems); err != nil {
		return nil, err
	}

	return &CartResponse{
		SessionID: sessionID,
		UserID:    userID,
		Items:     cartItems,
		Totals:    s.calculateTotals(cartItems),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// Snapshot builds the read-only cart view the pricing engine works on.
// Line items carry the category id so category-restricted promotions can
// match without further lookups.
func (s *Service) Snapshot(userID *uint, sessionID string) (promotion.CartSnapshot, error) {
	cartResponse, err := s.GetCart(userID, sessionID)
	if err != nil {
		return promotion.CartSnapshot{}, err
	}
	return cartResponse.Snapshot(), nil
}

// Snapshot converts a loaded cart into the engine's line-item view
func (c *CartResponse) Snapshot() promotion.CartSnapshot {
	items := make([]promotion.LineItem, 0, len(c.Items))
	for _, item := range c.Items {
		line := promotion.LineItem{
			ProductID: item.ProductID,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
		}
		if item.Product != nil {
			line.CategoryID = item.Product.CategoryID
		}
		items = append(items, line)
	}
	return promotion.CartSnapshot{Items: items}
}

// AddToCart adds an item to the cart
func (s *Service) AddToCart(userID *uint, sessionID string, req *AddToCartRequest) (*CartResponse, error) {
	// Validate product exists and is active
	var prod product.Product
	result := s.db.Where("id = ? AND is_active = ?", req.ProductID, true).First(&prod)
	if result.Error != nil {
		return nil, fmt.Errorf("product not found or inactive")
	}

	if prod.TrackQuantity && prod.Quantity < req.Quantity {
		return nil, fmt.Errorf("insufficient inventory. Available: %d", prod.Quantity)
	}

	if userID != nil {
		if err := s.addToUserCart(*userID, req.ProductID, req.Quantity, prod.Price, prod.Quantity, prod.TrackQuantity); err != nil {
			return nil, err
		}
	} else {
		if err := s.addToGuestCart(sessionID, req.ProductID, req.Quantity, prod.Price, prod.Quantity, prod.TrackQuantity); err != nil {
			return nil, err
		}
	}

	return s.GetCart(userID, sessionID)
}

// UpdateCartItem updates quantity of a cart item. Quantity zero removes it.
func (s *Service) UpdateCartItem(userID *uint, sessionID string, productID uint, req *UpdateCartItemRequest) (*CartResponse, error) {
	if req.Quantity < 0 {
		return nil, fmt.Errorf("quantity cannot be negative")
	}

	if req.Quantity > 0 {
		var prod product.Product
		if err := s.db.Where("id = ?", productID).First(&prod).Error; err != nil {
			return nil, fmt.Errorf("product not found")
		}
		if prod.TrackQuantity && prod.Quantity < req.Quantity {
			return nil, fmt.Errorf("insufficient inventory. Available: %d", prod.Quantity)
		}
	}

	if userID != nil {
		if err := s.updateUserCartItem(*userID, productID, req.Quantity); err != nil {
			return nil, err
		}
	} else {
		if err := s.updateGuestCartItem(sessionID, productID, req.Quantity); err != nil {
			return nil, err
		}
	}

	return s.GetCart(userID, sessionID)
}

// RemoveFromCart removes an item from the cart
func (s *Service) RemoveFromCart(userID *uint, sessionID string, productID uint) (*CartResponse, error) {
	return s.UpdateCartItem(userID, sessionID, productID, &UpdateCartItemRequest{Quantity: 0})
}

// ClearCart removes all items from the cart and drops the session's
// applied-promotion set. An emptied cart must never stay pre-discounted.
func (s *Service) ClearCart(userID *uint, sessionID string) error {
	if userID != nil {
		if err := s.db.Where("user_id = ?", *userID).Delete(&CartItem{}).Error; err != nil {
			return err
		}
	} else {
		ctx := context.Background()
		cartKey := fmt.Sprintf("cart:session:%s", sessionID)
		if err := s.redisClient.Del(ctx, cartKey).Err(); err != nil {
			return err
		}
	}

	// An unreadable applied set already degrades to "no discount", so a
	// failed delete here only warns
	if err := s.promotionService.ClearApplied(userID, sessionID); err != nil {
		log.Printf("Warning: failed to clear applied promotions: %v", err)
	}
	return nil
}

// GetCartItemCount returns the total quantity across the cart
func (s *Service) GetCartItemCount(userID *uint, sessionID string) (int, error) {
	cartResponse, err := s.GetCart(userID, sessionID)
	if err != nil {
		return 0, nil // Return 0 if cart doesn't exist
	}

	totalItems := 0
	for _, item := range cartResponse.Items {
		totalItems += item.Quantity
	}
	return totalItems, nil
}

// MergeGuestCartToUser merges guest cart to user cart when user logs in
func (s *Service) MergeGuestCartToUser(userID uint, sessionID string) error {
	guestCart, err := s.getGuestCart(sessionID)
	if err != nil || len(guestCart.Items) == 0 {
		return nil // No guest cart to merge
	}

	for _, guestItem := range guestCart.Items {
		var existingItem CartItem
		result := s.db.Where("user_id = ? AND product_id = ?", userID, guestItem.ProductID).First(&existingItem)

		switch {
		case result.Error == gorm.ErrRecordNotFound:
			newItem := CartItem{
				UserID:    &userID,
				ProductID: guestItem.ProductID,
				Quantity:  guestItem.Quantity,
				Price:     guestItem.Price,
			}
			if err := s.db.Create(&newItem).Error; err != nil {
				return fmt.Errorf("failed to merge cart item: %w", err)
			}
		case result.Error != nil:
			return fmt.Errorf("failed to load cart item: %w", result.Error)
		default:
			existingItem.Quantity += guestItem.Quantity
			if err := s.db.Save(&existingItem).Error; err != nil {
				return fmt.Errorf("failed to merge cart item: %w", err)
			}
		}
	}

	return s.ClearCart(nil, sessionID)
}

// Private helper methods

func (s *Service) addToUserCart(userID, productID uint, quantity int, price int64, availableQuantity int, trackQuantity bool) error {
	var existingItem CartItem
	result := s.db.Where("user_id = ? AND product_id = ?", userID, productID).First(&existingItem)

	if result.Error == gorm.ErrRecordNotFound {
		newItem := CartItem{
			UserID:    &userID,
			ProductID: productID,
			Quantity:  quantity,
			Price:     price,
		}
		return s.db.Create(&newItem).Error
	}

	newQuantity := existingItem.Quantity + quantity
	if trackQuantity && availableQuantity < newQuantity {
		return fmt.Errorf("insufficient inventory for total quantity. Available: %d", availableQuantity)
	}

	existingItem.Quantity = newQuantity
	existingItem.Price = price // Update price in case it changed
	return s.db.Save(&existingItem).Error
}

func (s *Service) addToGuestCart(sessionID string, productID uint, quantity int, price int64, availableQuantity int, trackQuantity bool) error {
	sessionCart, err := s.getGuestCart(sessionID)
	if err != nil {
		return err
	}

	itemExists := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == productID {
			newQuantity := sessionCart.Items[i].Quantity + quantity
			if trackQuantity && availableQuantity < newQuantity {
				return fmt.Errorf("insufficient inventory for total quantity. Available: %d", availableQuantity)
			}

			sessionCart.Items[i].Quantity = newQuantity
			sessionCart.Items[i].Price = price // Update price in case it changed
			itemExists = true
			break
		}
	}

	if !itemExists {
		sessionCart.Items = append(sessionCart.Items, SessionCartItem{
			ProductID: productID,
			Quantity:  quantity,
			Price:     price,
			AddedAt:   time.Now().UTC(),
		})
	}

	sessionCart.UpdatedAt = time.Now().UTC()
	return s.saveGuestCart(sessionID, sessionCart)
}

func (s *Service) updateUserCartItem(userID, productID uint, quantity int) error {
	if quantity == 0 {
		return s.db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&CartItem{}).Error
	}
	return s.db.Model(&CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity).Error
}

func (s *Service) updateGuestCartItem(sessionID string, productID uint, quantity int) error {
	sessionCart, err := s.getGuestCart(sessionID)
	if err != nil {
		return err
	}

	itemFound := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == productID {
			if quantity == 0 {
				sessionCart.Items = append(sessionCart.Items[:i], sessionCart.Items[i+1:]...)
			} else {
				sessionCart.Items[i].Quantity = quantity
			}
			itemFound = true
			break
		}
	}

	if !itemFound {
		return fmt.Errorf("item not found in cart")
	}

	sessionCart.UpdatedAt = time.Now().UTC()
	return s.saveGuestCart(sessionID, sessionCart)
}

func (s *Service) getGuestCart(sessionID string) (*SessionCart, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID required for guest cart")
	}

	ctx := context.Background()
	cartKey := fmt.Sprintf("cart:session:%s", sessionID)

	cartData, err := s.redisClient.Get(ctx, cartKey).Result()
	if err == redis.Nil {
		return &SessionCart{
			SessionID: sessionID,
			Items:     []SessionCartItem{},
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
		}, nil
	} else if err != nil {
		return nil, err
	}

	var sessionCart SessionCart
	if err := json.Unmarshal([]byte(cartData), &sessionCart); err != nil {
		return nil, err
	}

	return &sessionCart, nil
}

func (s *Service) saveGuestCart(sessionID string, cart *SessionCart) error {
	ctx := context.Background()
	cartKey := fmt.Sprintf("cart:session:%s", sessionID)

	cartData, err := json.Marshal(cart)
	if err != nil {
		return err
	}

	// Set cart with 24 hour expiration
	return s.redisClient.Set(ctx, cartKey, cartData, 24*time.Hour).Err()
}

func (s *Service) loadProductDetails(cartItems []CartItemResponse) error {
	for i := range cartItems {
		var prod product.Product
		err := s.db.Preload("Category").
			Where("id = ?", cartItems[i].ProductID).First(&prod).Error
		if err != nil {
			continue // Skip if product not found
		}
		cartItems[i].Product = &prod
	}
	return nil
}

func (s *Service) calculateTotals(cartItems []CartItemResponse) CartTotals {
	var totals CartTotals

	totals.ItemCount = len(cartItems)
	for _, item := range cartItems {
		totals.TotalQuantity += item.Quantity
		totals.SubTotal += item.Price * int64(item.Quantity)
	}

	return totals
}
