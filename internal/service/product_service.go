package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// ListProductsInput holds the catalog listing parameters
type ListProductsInput struct {
	Category  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ProductPage is one page of a catalog listing
type ProductPage struct {
	Products   []*domain.Product `json:"products"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

// ProductInput carries product fields for create and update. On update nil fields are left as they are.
type ProductInput struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	OriginalPrice *decimal.Decimal
	Image         *string
	Category      *string
	Stock         *int
	Rating        *float64
	ReviewCount   *int
}

// ProductService defines the interface for catalog business logic
type ProductService interface {
	ListProducts(ctx context.Context, in ListProductsInput) (*ProductPage, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

type productService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewProductService creates a new instance of ProductService
func NewProductService(store repository.Store, logger *zap.Logger) ProductService {
	return &productService{store: store, logger: logger}
}

// ListProducts returns one page of the catalog
func (s *productService) ListProducts(ctx context.Context, in ListProductsInput) (*ProductPage, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	pageSize := in.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	sortBy := in.SortBy
	if sortBy == "createdAt" {
		sortBy = "created_at"
	}

	products, total, err := s.store.Products().List(ctx, repository.ProductFilter{
		Category:  in.Category,
		Query:     in.Search,
		Page:      page,
		PageSize:  pageSize,
		SortBy:    sortBy,
		SortOrder: repository.SortOrder(strings.ToUpper(in.SortOrder)),
	})
	if err != nil {
		return nil, passThrough(err, "list products")
	}

	return &ProductPage{
		Products:   products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// GetProduct retrieves a product by ID
func (s *productService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.store.Products().FindByID(ctx, id)
	if err != nil {
		return nil, passThrough(err, "get product")
	}
	return product, nil
}

func applyProductInput(p *domain.Product, in ProductInput) {
	setIfPresent(&p.Name, in.Name)
	setIfPresent(&p.Description, in.Description)
	setIfPresent(&p.Image, in.Image)
	setIfPresent(&p.Category, in.Category)
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.OriginalPrice != nil {
		p.OriginalPrice = decimal.NewNullDecimal(*in.OriginalPrice)
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Rating != nil {
		p.Rating = in.Rating
	}
	if in.ReviewCount != nil {
		p.ReviewCount = in.ReviewCount
	}
}

func validateProduct(p *domain.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	case strings.TrimSpace(p.Category) == "":
		return fmt.Errorf("%w: category is required", domain.ErrInvalidInput)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price cannot be negative", domain.ErrInvalidInput)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock cannot be negative", domain.ErrInvalidInput)
	case p.Rating != nil && (*p.Rating < 0 || *p.Rating > 5):
		return fmt.Errorf("%w: rating must be between 0 and 5", domain.ErrInvalidInput)
	}
	return nil
}

// CreateProduct adds a product to the catalog
func (s *productService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	now := time.Now()
	product := &domain.Product{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyProductInput(product, in)

	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.store.Products().Create(ctx, product); err != nil {
		return nil, passThrough(err, "create product")
	}

	logger.FromContext(ctx, s.logger).Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("name", product.Name),
	)

	return product, nil
}

// UpdateProduct applies a partial update to a product
func (s *productService) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*domain.Product, error) {
	var product *domain.Product
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		product, err = tx.Products().LockByID(ctx, id)
		if err != nil {
			return err
		}

		applyProductInput(product, in)
		if err := validateProduct(product); err != nil {
			return err
		}

		return tx.Products().Update(ctx, product)
	})
	if err != nil {
		return nil, passThrough(err, "update product")
	}

	return product, nil
}

// DeleteProduct removes a product from the catalog
func (s *productService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Products().Delete(ctx, id); err != nil {
		return passThrough(err, "delete product")
	}

	logger.FromContext(ctx, s.logger).Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

// ListCategories returns the catalog categories with their product counts
func (s *productService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.store.Categories().List(ctx)
	if err != nil {
		return nil, passThrough(err, "list categories")
	}
	return categories, nil
}
