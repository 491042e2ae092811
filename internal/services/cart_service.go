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
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the referenced cart item does not exist.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductUnavailable indicates the product or variant cannot be added.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
	// ErrCartInsufficientStock indicates the requested quantity exceeds stock.
	ErrCartInsufficientStock = errors.New("cart: insufficient stock")
	// ErrCartPromotionRejected indicates the promotion code is not eligible.
	ErrCartPromotionRejected = errors.New("cart: promotion rejected")
	// ErrCartConflict indicates a concurrent cart write won.
	ErrCartConflict = errors.New("cart: conflict")
)

const cartIDPrefix = "crt_"

// promotionValidator is the slice of PromotionService the cart needs.
type promotionValidator interface {
	ValidatePromotion(ctx context.Context, cmd ValidatePromotionCommand) (PromotionResult, error)
}

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Promotions  promotionValidator
	Pricing     *PricingEngine
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	promotions promotionValidator
	pricing    *PricingEngine
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("cart service: pricing engine is required")
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

	return &cartService{
		carts:      deps.Carts,
		products:   deps.Products,
		promotions: deps.Promotions,
		pricing:    deps.Pricing,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !isNotFound(err) {
		return Cart{}, mapCartRepositoryError(err)
	}

	now := s.clock()
	cart = Cart{
		ID:        cartIDPrefix + s.newID(),
		UserID:    userID,
		Currency:  "NGN",
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, err := s.carts.UpsertCart(ctx, cart, nil)
	if err != nil {
		return Cart{}, mapCartRepositoryError(err)
	}
	return stored, nil
}

func (s *cartService) AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	if strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least one", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	product, err := s.products.FindByID(ctx, cmd.ProductID)
	if err != nil {
		if isNotFound(err) {
			return Cart{}, fmt.Errorf("%w: product %s", ErrCartProductUnavailable, cmd.ProductID)
		}
		return Cart{}, mapCartRepositoryError(err)
	}
	if !product.IsPublished {
		return Cart{}, fmt.Errorf("%w: product %s is not published", ErrCartProductUnavailable, product.ID)
	}

	variant, err := findVariant(product, cmd.VariantSKU)
	if err != nil {
		return Cart{}, err
	}
	if variant.Stock < cmd.Quantity {
		return Cart{}, fmt.Errorf("%w: %d of %s available", ErrCartInsufficientStock, variant.Stock, variant.SKU)
	}

	now := s.clock()
	item := domain.CartItem{
		ProductID:       product.ID,
		VariantSKU:      variant.SKU,
		Name:            product.Name,
		Size:            variant.Size,
		Color:           variant.Color,
		Quantity:        cmd.Quantity,
		UnitPrice:       product.BasePrice + variant.PriceDelta,
		DiscountPercent: product.DiscountPercent,
		ImagePath:       firstImagePath(product),
		AddedAt:         now,
	}

	replaced := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID && cart.Items[i].VariantSKU == item.VariantSKU {
			item.ID = cart.Items[i].ID
			item.AddedAt = cart.Items[i].AddedAt
			item.UpdatedAt = &now
			cart.Items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		item.ID = "itm_" + s.newID()
		cart.Items = append(cart.Items, item)
	}

	return s.persist(ctx, cart, now)
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	itemID := strings.TrimSpace(cmd.ItemID)
	kept := cart.Items[:0]
	found := false
	for _, item := range cart.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}
	cart.Items = kept

	return s.persist(ctx, cart, s.clock())
}

func (s *cartService) SetDeliveryAddress(ctx context.Context, cmd SetCartAddressCommand) (Cart, error) {
	if err := validateAddress(cmd.Address); err != nil {
		return Cart{}, err
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}
	cart.DeliveryAddress = cloneAddress(&cmd.Address)

	return s.persist(ctx, cart, s.clock())
}

func (s *cartService) ApplyPromotion(ctx context.Context, cmd CartPromotionCommand) (Cart, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return Cart{}, fmt.Errorf("%w: promotion code is required", ErrCartInvalidInput)
	}
	if s.promotions == nil {
		return Cart{}, fmt.Errorf("%w: promotions are not enabled", ErrCartPromotionRejected)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	result, err := s.promotions.ValidatePromotion(ctx, ValidatePromotionCommand{Code: code})
	if err != nil {
		return Cart{}, err
	}
	if !result.Eligible {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartPromotionRejected, result.Reason)
	}

	cart.Promotion = &domain.CartPromotion{
		Code:       result.Code,
		PercentOff: result.PercentOff,
		Applied:    true,
	}

	return s.persist(ctx, cart, s.clock())
}

func (s *cartService) RemovePromotion(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if cart.Promotion == nil {
		return cart, nil
	}
	cart.Promotion = nil

	return s.persist(ctx, cart, s.clock())
}

func (s *cartService) Estimate(ctx context.Context, userID string) (CartEstimate, error) {
	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return CartEstimate{}, err
	}
	if len(cart.Items) == 0 {
		return CartEstimate{}, nil
	}

	breakdown, err := s.estimate(ctx, cart)
	if err != nil {
		return CartEstimate{}, err
	}
	return CartEstimate{
		Subtotal: breakdown.Subtotal,
		Discount: breakdown.Discount,
		Shipping: breakdown.Shipping,
		Total:    breakdown.Total,
	}, nil
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		return mapCartRepositoryError(err)
	}
	return nil
}

// persist recomputes the stored estimate and writes the cart guarded by the
// previous UpdatedAt timestamp.
func (s *cartService) persist(ctx context.Context, cart Cart, now time.Time) (Cart, error) {
	expected := cart.UpdatedAt
	cart.UpdatedAt = now

	if len(cart.Items) == 0 {
		cart.Estimate = nil
	} else {
		breakdown, err := s.estimate(ctx, cart)
		if err != nil {
			return Cart{}, err
		}
		cart.Estimate = &domain.CartEstimate{
			Subtotal: breakdown.Subtotal,
			Discount: breakdown.Discount,
			Shipping: breakdown.Shipping,
			Total:    breakdown.Total,
		}
	}

	stored, err := s.carts.UpsertCart(ctx, cart, &expected)
	if err != nil {
		return Cart{}, mapCartRepositoryError(err)
	}
	return stored, nil
}

func (s *cartService) estimate(ctx context.Context, cart Cart) (PricingBreakdown, error) {
	lines := make([]QuoteLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		discount := item.DiscountPercent
		if cart.Promotion != nil && cart.Promotion.Applied && cart.Promotion.PercentOff > discount {
			discount = cart.Promotion.PercentOff
		}
		lines = append(lines, QuoteLine{
			ProductRef:      item.ProductID,
			VariantSKU:      item.VariantSKU,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: discount,
			Quantity:        item.Quantity,
		})
	}

	state := ""
	if cart.DeliveryAddress != nil {
		state = cart.DeliveryAddress.State
	}
	return s.pricing.Quote(ctx, lines, state)
}

func findVariant(product Product, sku string) (domain.ProductVariant, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		if len(product.Variants) == 1 {
			return product.Variants[0], nil
		}
		return domain.ProductVariant{}, fmt.Errorf("%w: variant sku is required", ErrCartInvalidInput)
	}
	for _, variant := range product.Variants {
		if variant.SKU == sku {
			return variant, nil
		}
	}
	return domain.ProductVariant{}, fmt.Errorf("%w: variant %s", ErrCartProductUnavailable, sku)
}

func firstImagePath(product Product) string {
	if len(product.ImagePaths) == 0 {
		return ""
	}
	return product.ImagePaths[0]
}

func validateAddress(addr Address) error {
	switch {
	case strings.TrimSpace(addr.Recipient) == "":
		return fmt.Errorf("%w: address recipient is required", ErrCartInvalidInput)
	case strings.TrimSpace(addr.Line1) == "":
		return fmt.Errorf("%w: address line1 is required", ErrCartInvalidInput)
	case strings.TrimSpace(addr.City) == "":
		return fmt.Errorf("%w: address city is required", ErrCartInvalidInput)
	case strings.TrimSpace(addr.State) == "":
		return fmt.Errorf("%w: address state is required", ErrCartInvalidInput)
	}
	return nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func mapCartRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartItemNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("cart: repository unavailable: %w", err)
		}
	}
	return err
}
