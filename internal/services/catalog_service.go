package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product could not be located.
	ErrCatalogNotFound = errors.New("catalog: product not found")
	// ErrCatalogConflict indicates a conflicting catalog write.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogStockExhausted indicates a stock adjustment would go negative.
	ErrCatalogStockExhausted = errors.New("catalog: stock exhausted")
)

const productIDPrefix = "prd_"

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, mapCatalogRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product := cmd.Product
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}

	now := s.clock()
	if strings.TrimSpace(product.ID) == "" {
		product.ID = productIDPrefix + s.newID()
		product.CreatedAt = now
	} else if product.CreatedAt.IsZero() {
		if existing, err := s.products.FindByID(ctx, product.ID); err == nil {
			product.CreatedAt = existing.CreatedAt
		} else {
			product.CreatedAt = now
		}
	}
	product.UpdatedAt = now

	stored, err := s.products.Upsert(ctx, product)
	if err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}

	s.logger(ctx, "catalog.product.upserted", map[string]any{
		"product": stored.ID,
		"actor":   cmd.ActorID,
	})
	return stored, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{
		"product": productID,
		"actor":   cmd.ActorID,
	})
	return nil
}

func (s *catalogService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Product, error) {
	if strings.TrimSpace(cmd.ProductID) == "" || strings.TrimSpace(cmd.SKU) == "" {
		return Product{}, fmt.Errorf("%w: product id and sku are required", ErrCatalogInvalidInput)
	}
	if cmd.Delta == 0 {
		return Product{}, fmt.Errorf("%w: stock delta cannot be zero", ErrCatalogInvalidInput)
	}

	product, err := s.products.AdjustStock(ctx, cmd.ProductID, cmd.SKU, cmd.Delta)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Product{}, fmt.Errorf("%w: %s", ErrCatalogStockExhausted, cmd.SKU)
		}
		return Product{}, mapCatalogRepositoryError(err)
	}

	s.logger(ctx, "catalog.stock.adjusted", map[string]any{
		"product": cmd.ProductID,
		"sku":     cmd.SKU,
		"delta":   cmd.Delta,
		"actor":   cmd.ActorID,
	})
	return product, nil
}

func validateProduct(product Product) error {
	switch {
	case strings.TrimSpace(product.Name) == "":
		return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	case strings.TrimSpace(product.Category) == "":
		return fmt.Errorf("%w: category is required", ErrCatalogInvalidInput)
	case product.BasePrice < 0:
		return fmt.Errorf("%w: base price cannot be negative", ErrCatalogInvalidInput)
	case product.DiscountPercent < 0 || product.DiscountPercent > 100:
		return fmt.Errorf("%w: discount percent must be within [0,100]", ErrCatalogInvalidInput)
	case len(product.Variants) == 0:
		return fmt.Errorf("%w: at least one variant is required", ErrCatalogInvalidInput)
	}

	seen := make(map[string]struct{}, len(product.Variants))
	for _, variant := range product.Variants {
		sku := strings.TrimSpace(variant.SKU)
		if sku == "" {
			return fmt.Errorf("%w: variant sku is required", ErrCatalogInvalidInput)
		}
		if _, dup := seen[sku]; dup {
			return fmt.Errorf("%w: duplicate variant sku %s", ErrCatalogInvalidInput, sku)
		}
		seen[sku] = struct{}{}
		if variant.Stock < 0 {
			return fmt.Errorf("%w: variant %s stock cannot be negative", ErrCatalogInvalidInput, sku)
		}
		if product.BasePrice+variant.PriceDelta < 0 {
			return fmt.Errorf("%w: variant %s price cannot be negative", ErrCatalogInvalidInput, sku)
		}
	}
	return nil
}

func mapCatalogRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}
