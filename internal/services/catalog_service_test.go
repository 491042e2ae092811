package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/adunni-couture/api/internal/domain"
)

func newTestCatalogService(t *testing.T, products *memoryProductRepo) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    products,
		Clock:       fixedClock(testInstant),
		IDGenerator: sequenceIDs("id"),
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestUpsertProductAssignsIDAndTimestamps(t *testing.T) {
	products := newMemoryProductRepo()
	svc := newTestCatalogService(t, products)

	product := ankaraProduct()
	product.ID = ""
	stored, err := svc.UpsertProduct(context.Background(), UpsertProductCommand{Product: product, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if !strings.HasPrefix(stored.ID, "prd_") {
		t.Fatalf("expected a prd_ id, got %q", stored.ID)
	}
	if !stored.CreatedAt.Equal(testInstant) || !stored.UpdatedAt.Equal(testInstant) {
		t.Fatalf("expected timestamps stamped, got %v / %v", stored.CreatedAt, stored.UpdatedAt)
	}
}

func TestUpsertProductValidation(t *testing.T) {
	svc := newTestCatalogService(t, newMemoryProductRepo())

	cases := []struct {
		name   string
		mutate func(*domain.Product)
	}{
		{"missing name", func(p *domain.Product) { p.Name = "" }},
		{"missing category", func(p *domain.Product) { p.Category = "" }},
		{"negative price", func(p *domain.Product) { p.BasePrice = -1 }},
		{"discount out of range", func(p *domain.Product) { p.DiscountPercent = 101 }},
		{"no variants", func(p *domain.Product) { p.Variants = nil }},
		{"duplicate sku", func(p *domain.Product) {
			p.Variants = append(p.Variants, p.Variants[0])
		}},
		{"negative stock", func(p *domain.Product) { p.Variants[0].Stock = -1 }},
		{"negative variant price", func(p *domain.Product) { p.Variants[0].PriceDelta = -99999 }},
	}

	for _, tc := range cases {
		product := ankaraProduct()
		tc.mutate(&product)
		if _, err := svc.UpsertProduct(context.Background(), UpsertProductCommand{Product: product}); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Errorf("%s: expected ErrCatalogInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestListProductsPublishedOnly(t *testing.T) {
	published := ankaraProduct()
	draft := ankaraProduct()
	draft.ID = "prd_draft"
	draft.IsPublished = false
	svc := newTestCatalogService(t, newMemoryProductRepo(published, draft))

	page, err := svc.ListProducts(context.Background(), ProductListFilter{PublishedOnly: true})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "prd_ankara" {
		t.Fatalf("expected only the published product, got %+v", page.Items)
	}
}

func TestAdjustStock(t *testing.T) {
	products := newMemoryProductRepo(ankaraProduct())
	svc := newTestCatalogService(t, products)

	product, err := svc.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID: "prd_ankara",
		SKU:       "ANK-M-RED",
		Delta:     -2,
		ActorID:   "admin-1",
	})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if product.Variants[0].Stock != 3 {
		t.Fatalf("expected stock 3, got %d", product.Variants[0].Stock)
	}

	_, err = svc.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID: "prd_ankara",
		SKU:       "ANK-M-RED",
		Delta:     -10,
	})
	if !errors.Is(err, ErrCatalogStockExhausted) {
		t.Fatalf("expected ErrCatalogStockExhausted, got %v", err)
	}
}

func TestDeleteProduct(t *testing.T) {
	products := newMemoryProductRepo(ankaraProduct())
	svc := newTestCatalogService(t, products)

	if err := svc.DeleteProduct(context.Background(), DeleteProductCommand{ProductID: "prd_ankara"}); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, err := svc.GetProduct(context.Background(), "prd_ankara"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound after delete, got %v", err)
	}
}
