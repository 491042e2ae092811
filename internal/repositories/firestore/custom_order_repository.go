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

const customOrderCollection = "custom_orders"

// CustomOrderRepository stores bespoke tailoring requests with both the
// workflow and delivery status axes on one document.
type CustomOrderRepository struct {
	base     *pfirestore.BaseRepository[customOrderDocument]
	provider *pfirestore.Provider
}

// NewCustomOrderRepository constructs a Firestore-backed custom order repository.
func NewCustomOrderRepository(provider *pfirestore.Provider) (*CustomOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("custom order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customOrderDocument](provider, customOrderCollection)
	return &CustomOrderRepository{base: base, provider: provider}, nil
}

// Insert creates the custom order document. A duplicate ID surfaces as a conflict.
func (r *CustomOrderRepository) Insert(ctx context.Context, order domain.CustomOrder) error {
	if r == nil || r.base == nil {
		return errors.New("custom order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return pfirestore.WrapError("customOrders.insert", status.Error(codes.InvalidArgument, "custom order id is required"))
	}
	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainCustomOrder(order)); err != nil {
		return pfirestore.WrapError("customOrders.insert", err)
	}
	return nil
}

// Update rewrites the document, optionally guarded by the stored workflow status.
func (r *CustomOrderRepository) Update(ctx context.Context, order domain.CustomOrder, expectedStatus *domain.CustomOrderStatus) error {
	if r == nil || r.base == nil {
		return errors.New("custom order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return pfirestore.WrapError("customOrders.update", status.Error(codes.InvalidArgument, "custom order id is required"))
	}

	doc := fromDomainCustomOrder(order)

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
			var stored customOrderDocument
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			if stored.Status != string(*expectedStatus) {
				return status.Errorf(codes.FailedPrecondition, "custom order %s is %s, expected %s", order.ID, stored.Status, *expectedStatus)
			}
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("customOrders.update", err)
	}
	return nil
}

// FindByID loads a single custom order.
func (r *CustomOrderRepository) FindByID(ctx context.Context, orderID string) (domain.CustomOrder, error) {
	if r == nil || r.base == nil {
		return domain.CustomOrder{}, errors.New("custom order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.CustomOrder{}, err
	}
	return toDomainCustomOrder(doc.ID, doc.Data), nil
}

// List returns custom orders newest-first for a user or the admin surface.
func (r *CustomOrderRepository) List(ctx context.Context, filter repositories.CustomOrderListFilter) (domain.CursorPage[domain.CustomOrder], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.CustomOrder]{}, errors.New("custom order repository not initialised")
	}

	pageSize := clampPageSize(filter.Pagination.PageSize)
	cursor, err := decodePageCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.CustomOrder]{}, pfirestore.WrapError("customOrders.list", status.Error(codes.InvalidArgument, err.Error()))
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
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			query = query.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.CustomOrder]{}, err
	}

	orders := make([]domain.CustomOrder, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainCustomOrder(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.CustomOrder]{Items: orders}
	if len(orders) > pageSize {
		page.Items = orders[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := encodePageCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.CustomOrder]{}, pfirestore.WrapError("customOrders.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

type customOrderDocument struct {
	UserID          string            `firestore:"userId"`
	ContactName     string            `firestore:"contactName"`
	ContactEmail    string            `firestore:"contactEmail,omitempty"`
	ContactPhone    string            `firestore:"contactPhone,omitempty"`
	Fabric          string            `firestore:"fabric"`
	Style           string            `firestore:"style"`
	Measurements    map[string]string `firestore:"measurements"`
	Notes           string            `firestore:"notes,omitempty"`
	DeliveryAddress *addressDocument  `firestore:"deliveryAddress,omitempty"`
	Status          string            `firestore:"status"`
	DeliveryStatus  string            `firestore:"deliveryStatus"`
	Price           *int64            `firestore:"price,omitempty"`
	Deposit         int64             `firestore:"deposit"`
	InvoiceRef      *string           `firestore:"invoiceRef,omitempty"`
	CreatedBy       *string           `firestore:"createdBy,omitempty"`
	UpdatedBy       *string           `firestore:"updatedBy,omitempty"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
}

func fromDomainCustomOrder(order domain.CustomOrder) customOrderDocument {
	return customOrderDocument{
		UserID:          order.UserID,
		ContactName:     order.Contact.Name,
		ContactEmail:    order.Contact.Email,
		ContactPhone:    order.Contact.Phone,
		Fabric:          order.Fabric,
		Style:           order.Style,
		Measurements:    order.Measurements,
		Notes:           order.Notes,
		DeliveryAddress: fromDomainAddress(order.DeliveryAddress),
		Status:          string(order.Status),
		DeliveryStatus:  string(order.DeliveryStatus),
		Price:           order.Price,
		Deposit:         order.Deposit,
		InvoiceRef:      order.InvoiceRef,
		CreatedBy:       order.Audit.CreatedBy,
		UpdatedBy:       order.Audit.UpdatedBy,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
}

func toDomainCustomOrder(docID string, doc customOrderDocument) domain.CustomOrder {
	return domain.CustomOrder{
		ID:     docID,
		UserID: doc.UserID,
		Contact: domain.CustomOrderContact{
			Name:  doc.ContactName,
			Email: doc.ContactEmail,
			Phone: doc.ContactPhone,
		},
		Fabric:          doc.Fabric,
		Style:           doc.Style,
		Measurements:    doc.Measurements,
		Notes:           doc.Notes,
		DeliveryAddress: toDomainAddress(doc.DeliveryAddress),
		Status:          domain.CustomOrderStatus(doc.Status),
		DeliveryStatus:  domain.DeliveryStatus(doc.DeliveryStatus),
		Price:           doc.Price,
		Deposit:         doc.Deposit,
		InvoiceRef:      doc.InvoiceRef,
		Audit:           domain.OrderAudit{CreatedBy: doc.CreatedBy, UpdatedBy: doc.UpdatedBy},
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

var _ repositories.CustomOrderRepository = (*CustomOrderRepository)(nil)
