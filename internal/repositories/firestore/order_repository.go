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

const orderCollection = "orders"

// OrderRepository stores order headers with their line-item snapshots embedded.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document. A duplicate ID surfaces as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return pfirestore.WrapError("orders.insert", status.Error(codes.InvalidArgument, "order id is required"))
	}
	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update rewrites the order document. With a non-nil expectedStatus the write
// runs in a transaction that aborts when the stored status differs, which keeps
// concurrent status transitions from double-applying.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedStatus *domain.OrderStatus) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return pfirestore.WrapError("orders.update", status.Error(codes.InvalidArgument, "order id is required"))
	}

	doc := fromDomainOrder(order)

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if expectedStatus != nil {
			var stored orderDocument
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			if stored.Status != string(*expectedStatus) {
				return status.Errorf(codes.FailedPrecondition, "order %s is %s, expected %s", order.ID, stored.Status, *expectedStatus)
			}
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// FindByPaymentReference resolves the order that owns a gateway reference.
func (r *OrderRepository) FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return domain.Order{}, pfirestore.WrapError("orders.findByReference", status.Error(codes.InvalidArgument, "payment reference is required"))
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("paymentReference", "==", ref).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByReference", status.Errorf(codes.NotFound, "no order for reference %s", ref))
	}
	return toDomainOrder(docs[0].ID, docs[0].Data), nil
}

// List returns orders newest-first, filtered for the user or admin surface.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := clampPageSize(filter.Pagination.PageSize)
	cursor, err := decodePageCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", status.Error(codes.InvalidArgument, err.Error()))
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			query = query.Where("userId", "==", userID)
		}
		if len(filter.Status) == 1 {
			query = query.Where("status", "==", filter.Status[0])
		} else if len(filter.Status) > 1 {
			query = query.Where("status", "in", filter.Status)
		}
		if filter.DateRange.From != nil {
			query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			query = query.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if len(orders) > pageSize {
		page.Items = orders[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := encodePageCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

type orderDocument struct {
	OrderNumber      string              `firestore:"orderNumber"`
	UserID           string              `firestore:"userId"`
	Status           string              `firestore:"status"`
	Currency         string              `firestore:"currency"`
	Items            []orderItemDocument `firestore:"items"`
	Subtotal         int64               `firestore:"subtotal"`
	Discount         int64               `firestore:"discount"`
	Shipping         int64               `firestore:"shipping"`
	Total            int64               `firestore:"total"`
	Promotion        *cartPromotionDocument `firestore:"promotion,omitempty"`
	DeliveryAddress  *addressDocument    `firestore:"deliveryAddress,omitempty"`
	Coordinates      *geoPointDocument   `firestore:"coordinates,omitempty"`
	ContactEmail     string              `firestore:"contactEmail,omitempty"`
	ContactPhone     string              `firestore:"contactPhone,omitempty"`
	PaymentReference *string             `firestore:"paymentReference,omitempty"`
	CancelReason     *string             `firestore:"cancelReason,omitempty"`
	CreatedBy        *string             `firestore:"createdBy,omitempty"`
	UpdatedBy        *string             `firestore:"updatedBy,omitempty"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
	PaidAt           *time.Time          `firestore:"paidAt,omitempty"`
	ShippedAt        *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt      *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductRef      string `firestore:"productRef"`
	VariantSKU      string `firestore:"variantSku"`
	Name            string `firestore:"name"`
	Size            string `firestore:"size"`
	Color           string `firestore:"color"`
	Quantity        int    `firestore:"quantity"`
	UnitPrice       int64  `firestore:"unitPrice"`
	DiscountPercent int    `firestore:"discountPercent"`
	ImagePath       string `firestore:"imagePath"`
	LineTotal       int64  `firestore:"lineTotal"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		Status:           string(order.Status),
		Currency:         order.Currency,
		Items:            make([]orderItemDocument, 0, len(order.Items)),
		Subtotal:         order.Totals.Subtotal,
		Discount:         order.Totals.Discount,
		Shipping:         order.Totals.Shipping,
		Total:            order.Totals.Total,
		DeliveryAddress:  fromDomainAddress(order.DeliveryAddress),
		Coordinates:      fromDomainGeoPoint(order.Coordinates),
		PaymentReference: order.PaymentReference,
		CancelReason:     order.CancelReason,
		CreatedBy:        order.Audit.CreatedBy,
		UpdatedBy:        order.Audit.UpdatedBy,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
		PaidAt:           order.PaidAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
	}
	if order.Promotion != nil {
		doc.Promotion = &cartPromotionDocument{
			Code:       order.Promotion.Code,
			PercentOff: order.Promotion.PercentOff,
			Applied:    order.Promotion.Applied,
		}
	}
	if order.Contact != nil {
		doc.ContactEmail = order.Contact.Email
		doc.ContactPhone = order.Contact.Phone
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductRef:      item.ProductRef,
			VariantSKU:      item.VariantSKU,
			Name:            item.Name,
			Size:            item.Size,
			Color:           item.Color,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			ImagePath:       item.ImagePath,
			LineTotal:       item.LineTotal,
		})
	}
	return doc
}

func toDomainOrder(docID string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:          docID,
		OrderNumber: doc.OrderNumber,
		UserID:      doc.UserID,
		Status:      domain.OrderStatus(doc.Status),
		Currency:    doc.Currency,
		Totals: domain.OrderTotals{
			Subtotal: doc.Subtotal,
			Discount: doc.Discount,
			Shipping: doc.Shipping,
			Total:    doc.Total,
		},
		DeliveryAddress:  toDomainAddress(doc.DeliveryAddress),
		Coordinates:      toDomainGeoPoint(doc.Coordinates),
		PaymentReference: doc.PaymentReference,
		CancelReason:     doc.CancelReason,
		Audit:            domain.OrderAudit{CreatedBy: doc.CreatedBy, UpdatedBy: doc.UpdatedBy},
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		PaidAt:           doc.PaidAt,
		ShippedAt:        doc.ShippedAt,
		DeliveredAt:      doc.DeliveredAt,
		CancelledAt:      doc.CancelledAt,
	}
	if doc.Promotion != nil {
		order.Promotion = &domain.CartPromotion{
			Code:       doc.Promotion.Code,
			PercentOff: doc.Promotion.PercentOff,
			Applied:    doc.Promotion.Applied,
		}
	}
	if doc.ContactEmail != "" || doc.ContactPhone != "" {
		order.Contact = &domain.OrderContact{Email: doc.ContactEmail, Phone: doc.ContactPhone}
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderLineItem{
			ProductRef:      item.ProductRef,
			VariantSKU:      item.VariantSKU,
			Name:            item.Name,
			Size:            item.Size,
			Color:           item.Color,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			ImagePath:       item.ImagePath,
			LineTotal:       item.LineTotal,
		})
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
