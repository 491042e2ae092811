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

const cartCollection = "carts"

// CartRepository persists one cart document per user. The document ID is the
// owning user ID so lookups never need a query.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)
	return &CartRepository{base: base, provider: provider}, nil
}

// UpsertCart writes the full cart state. When expectedUpdate is non-nil the
// write runs in a transaction and aborts with a conflict if the stored
// updatedAt no longer matches, so concurrent edits from two devices cannot
// silently overwrite each other.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, pfirestore.WrapError("carts.upsert", status.Error(codes.InvalidArgument, "cart user id is required"))
	}

	doc := fromDomainCart(cart)

	if expectedUpdate == nil {
		if _, err := r.base.Set(ctx, userID, doc); err != nil {
			return domain.Cart{}, err
		}
		return cart, nil
	}

	expected := expectedUpdate.UTC()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored cartDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		if !stored.UpdatedAt.UTC().Equal(expected) {
			return status.Error(codes.Aborted, "cart was modified concurrently")
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.upsert", err)
	}
	return cart, nil
}

// GetCart loads the cart owned by the given user.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(userID)
	if id == "" {
		return domain.Cart{}, pfirestore.WrapError("carts.get", status.Error(codes.InvalidArgument, "user id is required"))
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	return toDomainCart(doc.ID, doc.Data), nil
}

// ClearCart removes the cart document. Missing carts are not an error.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(userID)
	if id == "" {
		return pfirestore.WrapError("carts.clear", status.Error(codes.InvalidArgument, "user id is required"))
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return pfirestore.WrapError("carts.clear", err)
	}
	return nil
}

type cartDocument struct {
	CartID          string                 `firestore:"cartId"`
	UserID          string                 `firestore:"userId"`
	Currency        string                 `firestore:"currency"`
	DeliveryAddress *addressDocument       `firestore:"deliveryAddress,omitempty"`
	Promotion       *cartPromotionDocument `firestore:"promotion,omitempty"`
	Items           []cartItemDocument     `firestore:"items"`
	Estimate        *cartEstimateDocument  `firestore:"estimate,omitempty"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
}

type cartPromotionDocument struct {
	Code       string `firestore:"code"`
	PercentOff int    `firestore:"percentOff"`
	Applied    bool   `firestore:"applied"`
}

type cartItemDocument struct {
	ID              string     `firestore:"id"`
	ProductID       string     `firestore:"productId"`
	VariantSKU      string     `firestore:"variantSku"`
	Name            string     `firestore:"name"`
	Size            string     `firestore:"size"`
	Color           string     `firestore:"color"`
	Quantity        int        `firestore:"quantity"`
	UnitPrice       int64      `firestore:"unitPrice"`
	DiscountPercent int        `firestore:"discountPercent"`
	ImagePath       string     `firestore:"imagePath"`
	AddedAt         time.Time  `firestore:"addedAt"`
	UpdatedAt       *time.Time `firestore:"updatedAt,omitempty"`
}

type cartEstimateDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

func fromDomainCart(cart domain.Cart) cartDocument {
	doc := cartDocument{
		CartID:          cart.ID,
		UserID:          cart.UserID,
		Currency:        cart.Currency,
		DeliveryAddress: fromDomainAddress(cart.DeliveryAddress),
		Items:           make([]cartItemDocument, 0, len(cart.Items)),
		CreatedAt:       cart.CreatedAt.UTC(),
		UpdatedAt:       cart.UpdatedAt.UTC(),
	}
	if cart.Promotion != nil {
		doc.Promotion = &cartPromotionDocument{
			Code:       cart.Promotion.Code,
			PercentOff: cart.Promotion.PercentOff,
			Applied:    cart.Promotion.Applied,
		}
	}
	if cart.Estimate != nil {
		doc.Estimate = &cartEstimateDocument{
			Subtotal: cart.Estimate.Subtotal,
			Discount: cart.Estimate.Discount,
			Shipping: cart.Estimate.Shipping,
			Total:    cart.Estimate.Total,
		}
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:              item.ID,
			ProductID:       item.ProductID,
			VariantSKU:      item.VariantSKU,
			Name:            item.Name,
			Size:            item.Size,
			Color:           item.Color,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			ImagePath:       item.ImagePath,
			AddedAt:         item.AddedAt.UTC(),
			UpdatedAt:       item.UpdatedAt,
		})
	}
	return doc
}

func toDomainCart(docID string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		ID:              doc.CartID,
		UserID:          doc.UserID,
		Currency:        doc.Currency,
		DeliveryAddress: toDomainAddress(doc.DeliveryAddress),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	if cart.UserID == "" {
		cart.UserID = docID
	}
	if doc.Promotion != nil {
		cart.Promotion = &domain.CartPromotion{
			Code:       doc.Promotion.Code,
			PercentOff: doc.Promotion.PercentOff,
			Applied:    doc.Promotion.Applied,
		}
	}
	if doc.Estimate != nil {
		cart.Estimate = &domain.CartEstimate{
			Subtotal: doc.Estimate.Subtotal,
			Discount: doc.Estimate.Discount,
			Shipping: doc.Estimate.Shipping,
			Total:    doc.Estimate.Total,
		}
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:              item.ID,
			ProductID:       item.ProductID,
			VariantSKU:      item.VariantSKU,
			Name:            item.Name,
			Size:            item.Size,
			Color:           item.Color,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			ImagePath:       item.ImagePath,
			AddedAt:         item.AddedAt,
			UpdatedAt:       item.UpdatedAt,
		})
	}
	return cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)
