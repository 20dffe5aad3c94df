package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type seedProduct struct {
	name        string
	description string
	price       string
	original    *string
	image       string
	category    string
	stock       int
	rating      float64
	reviews     int
}

func strPtr(s string) *string { return &s }

var demoCatalog = []seedProduct{
	{"Wireless Earbuds", "Bluetooth 5.3 earbuds with charging case", "299.00", strPtr("399.00"), "/images/earbuds.jpg", "electronics", 120, 4.6, 842},
	{"Mechanical Keyboard", "87-key hot-swappable keyboard", "459.00", nil, "/images/keyboard.jpg", "electronics", 45, 4.8, 311},
	{"Running Shoes", "Lightweight road running shoes", "569.00", strPtr("699.00"), "/images/shoes.jpg", "sports", 80, 4.4, 529},
	{"Yoga Mat", "6mm non-slip yoga mat", "129.00", nil, "/images/yoga-mat.jpg", "sports", 200, 4.5, 1204},
	{"Pour-over Kettle", "Gooseneck kettle with thermometer", "219.00", nil, "/images/kettle.jpg", "home", 35, 4.7, 96},
	{"Linen Bedding Set", "Queen size washed linen set", "899.00", strPtr("1099.00"), "/images/bedding.jpg", "home", 20, 4.3, 58},
}

// SeedCatalog inserts the demo catalog. Products are keyed by a name-derived
// UUID, so running it again leaves existing rows untouched.
func SeedCatalog(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	logger.Info("Seeding demo catalog...")

	query := `
		INSERT INTO products (id, name, description, price, original_price, image, category, stock, rating, review_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	inserted := 0
	for _, p := range demoCatalog {
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("storefront/product/"+p.name))

		result, err := db.ExecContext(ctx, query,
			id, p.name, p.description, p.price, p.original, p.image, p.category, p.stock, p.rating, p.reviews,
		)
		if err != nil {
			return fmt.Errorf("failed to seed product %q: %w", p.name, err)
		}

		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}

	logger.Info("Seeding complete", zap.Int("inserted", inserted), zap.Int("catalog_size", len(demoCatalog)))
	return nil
}
