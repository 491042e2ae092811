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

const (
	invoiceCollection     = "invoices"
	invoiceLinkCollection = "invoice_links"
)

// InvoiceRepository stores write-once invoices. A link document keyed by the
// custom order ID is created in the same transaction as the invoice, so a
// second invoice for the same custom order always fails with a conflict.
type InvoiceRepository struct {
	base     *pfirestore.BaseRepository[invoiceDocument]
	provider *pfirestore.Provider
}

type invoiceLinkDocument struct {
	InvoiceID string    `firestore:"invoiceId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[invoiceDocument](provider, invoiceCollection)
	return &InvoiceRepository{base: base, provider: provider}, nil
}

// Insert creates the invoice and its custom-order link atomically.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.base == nil {
		return errors.New("invoice repository not initialised")
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return pfirestore.WrapError("invoices.insert", status.Error(codes.InvalidArgument, "invoice id is required"))
	}
	customOrderID := strings.TrimSpace(invoice.CustomOrderRef)
	if customOrderID == "" {
		return pfirestore.WrapError("invoices.insert", status.Error(codes.InvalidArgument, "custom order ref is required"))
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		invoiceRef, err := r.base.DocumentRef(ctx, invoice.ID)
		if err != nil {
			return err
		}
		linkRef := client.Collection(invoiceLinkCollection).Doc(customOrderID)
		if err := tx.Create(linkRef, invoiceLinkDocument{InvoiceID: invoice.ID, CreatedAt: invoice.CreatedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(invoiceRef, fromDomainInvoice(invoice))
	})
	if err != nil {
		return pfirestore.WrapError("invoices.insert", err)
	}
	return nil
}

// MarkPaid flips the paid flag and stamps the settlement time.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, invoiceID string, paidAt time.Time) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	id := strings.TrimSpace(invoiceID)
	if id == "" {
		return domain.Invoice{}, pfirestore.WrapError("invoices.markPaid", status.Error(codes.InvalidArgument, "invoice id is required"))
	}
	when := paidAt.UTC()
	if _, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "paid", Value: true},
		{Path: "paidAt", Value: when},
	}); err != nil {
		return domain.Invoice{}, err
	}
	return r.FindByID(ctx, id)
}

// FindByID loads a single invoice.
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(invoiceID))
	if err != nil {
		return domain.Invoice{}, err
	}
	return toDomainInvoice(doc.ID, doc.Data), nil
}

// FindByCustomOrder resolves the invoice issued for a custom order.
func (r *InvoiceRepository) FindByCustomOrder(ctx context.Context, customOrderID string) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	id := strings.TrimSpace(customOrderID)
	if id == "" {
		return domain.Invoice{}, pfirestore.WrapError("invoices.findByCustomOrder", status.Error(codes.InvalidArgument, "custom order id is required"))
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("customOrderRef", "==", id).Limit(1)
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	if len(docs) == 0 {
		return domain.Invoice{}, pfirestore.WrapError("invoices.findByCustomOrder", status.Errorf(codes.NotFound, "no invoice for custom order %s", id))
	}
	return toDomainInvoice(docs[0].ID, docs[0].Data), nil
}

// ListByUser returns a user's invoices newest-first.
func (r *InvoiceRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Invoice], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Invoice]{}, errors.New("invoice repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Invoice]{}, pfirestore.WrapError("invoices.list", status.Error(codes.InvalidArgument, "user id is required"))
	}

	pageSize := clampPageSize(pager.PageSize)
	cursor, err := decodePageCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Invoice]{}, pfirestore.WrapError("invoices.list", status.Error(codes.InvalidArgument, err.Error()))
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("userId", "==", uid).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			query = query.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Invoice]{}, err
	}

	invoices := make([]domain.Invoice, 0, len(docs))
	for _, doc := range docs {
		invoices = append(invoices, toDomainInvoice(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.Invoice]{Items: invoices}
	if len(invoices) > pageSize {
		page.Items = invoices[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := encodePageCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Invoice]{}, pfirestore.WrapError("invoices.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

type invoiceDocument struct {
	CustomOrderRef string     `firestore:"customOrderRef"`
	UserID         string     `firestore:"userId"`
	Amount         int64      `firestore:"amount"`
	Deposit        int64      `firestore:"deposit"`
	Paid           bool       `firestore:"paid"`
	PDFURL         string     `firestore:"pdfUrl,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	PaidAt         *time.Time `firestore:"paidAt,omitempty"`
}

func fromDomainInvoice(invoice domain.Invoice) invoiceDocument {
	return invoiceDocument{
		CustomOrderRef: invoice.CustomOrderRef,
		UserID:         invoice.UserID,
		Amount:         invoice.Amount,
		Deposit:        invoice.Deposit,
		Paid:           invoice.Paid,
		PDFURL:         invoice.PDFURL,
		CreatedAt:      invoice.CreatedAt.UTC(),
		PaidAt:         invoice.PaidAt,
	}
}

func toDomainInvoice(docID string, doc invoiceDocument) domain.Invoice {
	return domain.Invoice{
		ID:             docID,
		CustomOrderRef: doc.CustomOrderRef,
		UserID:         doc.UserID,
		Amount:         doc.Amount,
		Deposit:        doc.Deposit,
		Paid:           doc.Paid,
		PDFURL:         doc.PDFURL,
		CreatedAt:      doc.CreatedAt,
		PaidAt:         doc.PaidAt,
	}
}

var _ repositories.InvoiceRepository = (*InvoiceRepository)(nil)
