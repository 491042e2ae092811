package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/adunni-couture/api/internal/domain"
	pfirestore "github.com/adunni-couture/api/internal/platform/firestore"
	"github.com/adunni-couture/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository stores catalog products with their variants embedded.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection)
	return &ProductRepository{base: base, provider: provider}, nil
}

// Upsert writes the full product document.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, pfirestore.WrapError("products.upsert", status.Error(codes.InvalidArgument, "product id is required"))
	}
	if _, err := r.base.Set(ctx, product.ID, fromDomainProduct(product)); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return pfirestore.WrapError("products.delete", status.Error(codes.InvalidArgument, "product id is required"))
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc.ID, doc.Data), nil
}

// List returns catalog products newest-first with optional filters. Keyword
// matching uses the stored keywords array, so admins control what a product is
// findable by.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := clampPageSize(filter.Pagination.PageSize)
	cursor, err := decodePageCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", status.Error(codes.InvalidArgument, err.Error()))
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			query = query.Where("category", "==", category)
		}
		if keyword := strings.ToLower(strings.TrimSpace(filter.Keyword)); keyword != "" {
			query = query.Where("keywords", "array-contains", keyword)
		}
		if filter.PublishedOnly {
			query = query.Where("isPublished", "==", true)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			query = query.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, toDomainProduct(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.Product]{Items: products}
	if len(products) > pageSize {
		page.Items = products[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := encodePageCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// AdjustStock applies a delta to one variant's stock inside a transaction. A
// delta that would take stock below zero fails with a conflict.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, sku string, delta int) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, pfirestore.WrapError("products.adjustStock", status.Error(codes.InvalidArgument, "product id is required"))
	}

	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored productDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}

		idx := -1
		wanted := strings.TrimSpace(sku)
		if wanted == "" && len(stored.Variants) == 1 {
			idx = 0
		} else {
			for i, variant := range stored.Variants {
				if variant.SKU == wanted {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			return status.Errorf(codes.NotFound, "variant %s not found on product %s", wanted, id)
		}

		next := stored.Variants[idx].Stock + delta
		if next < 0 {
			return status.Errorf(codes.FailedPrecondition, "variant %s has %d units, cannot apply %d", stored.Variants[idx].SKU, stored.Variants[idx].Stock, delta)
		}
		stored.Variants[idx].Stock = next
		stored.UpdatedAt = time.Now().UTC()
		updated = toDomainProduct(id, stored)
		return tx.Set(ref, stored)
	})
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.adjustStock", err)
	}
	return updated, nil
}

type productDocument struct {
	Name            string                   `firestore:"name"`
	Description     string                   `firestore:"description,omitempty"`
	Category        string                   `firestore:"category"`
	BasePrice       int64                    `firestore:"basePrice"`
	DiscountPercent int                      `firestore:"discountPercent"`
	ImagePaths      []string                 `firestore:"imagePaths"`
	Keywords        []string                 `firestore:"keywords"`
	IsPublished     bool                     `firestore:"isPublished"`
	Variants        []productVariantDocument `firestore:"variants"`
	CreatedAt       time.Time                `firestore:"createdAt"`
	UpdatedAt       time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	SKU        string `firestore:"sku"`
	Size       string `firestore:"size"`
	Color      string `firestore:"color"`
	PriceDelta int64  `firestore:"priceDelta"`
	Stock      int    `firestore:"stock"`
}

func fromDomainProduct(product domain.Product) productDocument {
	doc := productDocument{
		Name:            product.Name,
		Description:     product.Description,
		Category:        product.Category,
		BasePrice:       product.BasePrice,
		DiscountPercent: product.DiscountPercent,
		ImagePaths:      product.ImagePaths,
		Keywords:        make([]string, 0, len(product.Keywords)),
		IsPublished:     product.IsPublished,
		Variants:        make([]productVariantDocument, 0, len(product.Variants)),
		CreatedAt:       product.CreatedAt.UTC(),
		UpdatedAt:       product.UpdatedAt.UTC(),
	}
	for _, keyword := range product.Keywords {
		trimmed := strings.ToLower(strings.TrimSpace(keyword))
		if trimmed != "" {
			doc.Keywords = append(doc.Keywords, trimmed)
		}
	}
	for _, variant := range product.Variants {
		doc.Variants = append(doc.Variants, productVariantDocument{
			SKU:        variant.SKU,
			Size:       variant.Size,
			Color:      variant.Color,
			PriceDelta: variant.PriceDelta,
			Stock:      variant.Stock,
		})
	}
	return doc
}

func toDomainProduct(docID string, doc productDocument) domain.Product {
	product := domain.Product{
		ID:              docID,
		Name:            doc.Name,
		Description:     doc.Description,
		Category:        doc.Category,
		BasePrice:       doc.BasePrice,
		DiscountPercent: doc.DiscountPercent,
		ImagePaths:      doc.ImagePaths,
		Keywords:        doc.Keywords,
		IsPublished:     doc.IsPublished,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	for _, variant := range doc.Variants {
		product.Variants = append(product.Variants, domain.ProductVariant{
			SKU:        variant.SKU,
			Size:       variant.Size,
			Color:      variant.Color,
			PriceDelta: variant.PriceDelta,
			Stock:      variant.Stock,
		})
	}
	return product
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
