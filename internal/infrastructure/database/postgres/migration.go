// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"
	"time"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/promotion"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Models in dependency order
	models := []interface{}{
		&user.User{},

		&product.Category{},
		&product.Product{},

		&promotion.Promotion{},
		&promotion.Redemption{},

		&cart.CartItem{},

		&order.Order{},
		&order.OrderItem{},
		&order.OrderPromotion{},
		&order.OrderStatusHistory{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_email_active ON users(email, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at DESC)",

		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_category_active ON products(category_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_featured ON products(is_featured, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_price ON products(price)",
		"CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC)",

		// Category indexes
		"CREATE INDEX IF NOT EXISTS idx_categories_sort_order ON categories(sort_order)",

		// Promotion indexes
		"CREATE INDEX IF NOT EXISTS idx_promotions_active_window ON promotions(is_active, starts_at, ends_at)",
		"CREATE INDEX IF NOT EXISTS idx_promotion_redemptions_promo_user ON promotion_redemptions(promotion_id, user_id)",
		"CREATE INDEX IF NOT EXISTS idx_promotion_redemptions_order ON promotion_redemptions(order_id)",

		// Cart indexes
		"CREATE INDEX IF NOT EXISTS idx_cart_items_user_product ON cart_items(user_id, product_id)",

		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(email)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",

		// Order items / promotions indexes
		"CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_promotions_order ON order_promotions(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_promotions_promotion ON order_promotions(promotion_id)",

		// Order status history indexes
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedCategories(); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}

	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := m.seedProducts(); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	if err := m.seedPromotions(); err != nil {
		return fmt.Errorf("failed to seed promotions: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

// seedCategories creates default product categories
func (m *Migration) seedCategories() error {
	log.Println("🏷️ Seeding categories...")

	categories := []product.Category{
		{
			Name:        "Electronics",
			Slug:        "electronics",
			Description: "Electronic devices, gadgets, and accessories",
			SortOrder:   1,
			IsActive:    true,
		},
		{
			Name:        "Clothing",
			Slug:        "clothing",
			Description: "Fashion, apparel, and accessories",
			SortOrder:   2,
			IsActive:    true,
		},
		{
			Name:        "Books",
			Slug:        "books",
			Description: "Books, eBooks, and educational materials",
			SortOrder:   3,
			IsActive:    true,
		},
		{
			Name:        "Home & Garden",
			Slug:        "home-garden",
			Description: "Home improvement, furniture, and garden supplies",
			SortOrder:   4,
			IsActive:    true,
		},
	}

	for _, category := range categories {
		var existing product.Category
		result := m.db.Where("slug = ?", category.Slug).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&category).Error; err != nil {
				return err
			}
			log.Printf("✅ Created category: %s", category.Name)
		} else {
			log.Printf("⏭️ Category already exists: %s", category.Name)
		}
	}

	return nil
}

func (m *Migration) seedAdminUser() error {
	log.Println("👤 Seeding admin user...")

	var existing user.User
	result := m.db.Where("email = ?", "admin@example.com").First(&existing)
	if result.Error == nil {
		log.Printf("⏭️ Admin user already exists with ID: %d", existing.ID)
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), 10)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	adminUser := user.User{
		Email:     "admin@example.com",
		Password:  string(hashedPassword),
		FirstName: "Admin",
		LastName:  "User",
		IsActive:  true,
		IsAdmin:   true,
	}

	if err := m.db.Create(&adminUser).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.Println("✅ Created admin user: admin@example.com (password: admin123)")
	return nil
}

// seedProducts creates sample products for development
func (m *Migration) seedProducts() error {
	log.Println("🛍️ Seeding products...")

	var productCount int64
	m.db.Model(&product.Product{}).Count(&productCount)
	if productCount > 0 {
		log.Println("⏭️ Products already exist")
		return nil
	}

	products := []product.Product{
		{
			SKU:               "ELEC-LAPTOP-001",
			Name:              "Gaming Laptop",
			Slug:              "gaming-laptop",
			Description:       "High-performance laptop with dedicated graphics for gaming and content creation.",
			ShortDesc:         "High-performance gaming laptop",
			Price:             199900,
			CategoryID:        1,
			IsActive:          true,
			IsFeatured:        true,
			TrackQuantity:     true,
			Quantity:          25,
			LowStockThreshold: 5,
		},
		{
			SKU:               "ELEC-MOUSE-001",
			Name:              "Wireless Mouse",
			Slug:              "wireless-mouse",
			Description:       "Ergonomic wireless mouse with a high-precision sensor.",
			ShortDesc:         "Wireless mouse with precision sensor",
			Price:             7900,
			CategoryID:        1,
			IsActive:          true,
			TrackQuantity:     true,
			Quantity:          50,
			LowStockThreshold: 10,
		},
		{
			SKU:               "CLTH-SHIRT-001",
			Name:              "Cotton T-Shirt",
			Slug:              "cotton-t-shirt",
			Description:       "Plain cotton t-shirt, pre-shrunk and machine washable.",
			ShortDesc:         "Plain cotton t-shirt",
			Price:             2900,
			CategoryID:        2,
			IsActive:          true,
			TrackQuantity:     true,
			Quantity:          100,
			LowStockThreshold: 20,
		},
		{
			SKU:               "BOOK-GOPL-001",
			Name:              "The Go Programming Language",
			Slug:              "the-go-programming-language",
			Description:       "The authoritative resource for writing clear and idiomatic Go.",
			ShortDesc:         "Go programming reference",
			Price:             4900,
			CategoryID:        3,
			IsActive:          true,
			TrackQuantity:     true,
			Quantity:          40,
			LowStockThreshold: 10,
		},
	}

	for _, prod := range products {
		var existing product.Product
		result := m.db.Where("sku = ?", prod.SKU).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&prod).Error; err != nil {
				log.Printf("⚠️ Failed to create product %s: %v", prod.SKU, err)
			} else {
				log.Printf("✅ Created product: %s", prod.Name)
			}
		}
	}

	return nil
}

// seedPromotions creates sample promotions for development
func (m *Migration) seedPromotions() error {
	log.Println("🎟️ Seeding promotions...")

	var promoCount int64
	m.db.Model(&promotion.Promotion{}).Count(&promoCount)
	if promoCount > 0 {
		log.Println("⏭️ Promotions already exist")
		return nil
	}

	now := time.Now().UTC()
	promotions := []promotion.Promotion{
		{
			Code:          "WELCOME10",
			Name:          "Welcome 10% Off",
			Description:   "10% off your first order over 10,000",
			Kind:          promotion.KindPercentage,
			Value:         10,
			MinCartAmount: 10000,
			PerUserLimit:  1,
			StartsAt:      now.AddDate(0, -1, 0),
			EndsAt:        now.AddDate(1, 0, 0),
			Stackable:     true,
			IsActive:      true,
		},
		{
			Code:          "FLAT500",
			Name:          "500 Off",
			Description:   "Flat 500 off orders over 5,000",
			Kind:          promotion.KindFixedAmount,
			Value:         500,
			MinCartAmount: 5000,
			StartsAt:      now.AddDate(0, -1, 0),
			EndsAt:        now.AddDate(0, 3, 0),
			Stackable:     true,
			IsActive:      true,
		},
		{
			Code:        "FREESHIP",
			Name:        "Free Shipping",
			Description: "Shipping on us, any order",
			Kind:        promotion.KindFreeShipping,
			StartsAt:    now.AddDate(0, -1, 0),
			EndsAt:      now.AddDate(0, 6, 0),
			Stackable:   true,
			IsActive:    true,
		},
	}

	for _, promo := range promotions {
		if err := promo.Validate(); err != nil {
			log.Printf("⚠️ Skipping invalid seed promotion %s: %v", promo.Code, err)
			continue
		}
		if err := m.db.Create(&promo).Error; err != nil {
			log.Printf("⚠️ Failed to create promotion %s: %v", promo.Code, err)
		} else {
			log.Printf("✅ Created promotion: %s", promo.Code)
		}
	}

	return nil
}

// DropAllTables drops all tables (use with extreme caution)
func (m *Migration) DropAllTables() error {
	log.Println("⚠️ WARNING: Dropping all database tables...")

	// Reverse dependency order
	tables := []string{
		"order_status_history",
		"order_promotions",
		"order_items",
		"orders",
		"cart_items",
		"promotion_redemptions",
		"promotions",
		"products",
		"categories",
		"users",
	}

	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			log.Printf("⚠️ Failed to drop table %s: %v", table, err)
		} else {
			log.Printf("🗑️ Dropped table: %s", table)
		}
	}

	log.Println("✅ All tables dropped successfully")
	return nil
}
