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
	receiptCollection          = "receipts"
	receiptReferenceCollection = "receipt_references"
)

// ReceiptRepository stores write-once payment receipts. A reference document
// keyed by the gateway payment reference is created in the same transaction as
// the receipt, so two verifications of the same charge can never both settle.
type ReceiptRepository struct {
	base     *pfirestore.BaseRepository[receiptDocument]
	provider *pfirestore.Provider
}

type receiptReferenceDocument struct {
	ReceiptID string    `firestore:"receiptId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// NewReceiptRepository constructs a Firestore-backed receipt repository.
func NewReceiptRepository(provider *pfirestore.Provider) (*ReceiptRepository, error) {
	if provider == nil {
		return nil, errors.New("receipt repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[receiptDocument](provider, receiptCollection)
	return &ReceiptRepository{base: base, provider: provider}, nil
}

// Insert creates the receipt and claims its payment reference atomically.
func (r *ReceiptRepository) Insert(ctx context.Context, receipt domain.Receipt) error {
	if r == nil || r.base == nil {
		return errors.New("receipt repository not initialised")
	}
	if strings.TrimSpace(receipt.ID) == "" {
		return pfirestore.WrapError("receipts.insert", status.Error(codes.InvalidArgument, "receipt id is required"))
	}
	reference := strings.TrimSpace(receipt.PaymentReference)
	if reference == "" {
		return pfirestore.WrapError("receipts.insert", status.Error(codes.InvalidArgument, "payment reference is required"))
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		receiptRef, err := r.base.DocumentRef(ctx, receipt.ID)
		if err != nil {
			return err
		}
		claimRef := client.Collection(receiptReferenceCollection).Doc(reference)
		if err := tx.Create(claimRef, receiptReferenceDocument{ReceiptID: receipt.ID, CreatedAt: receipt.CreatedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(receiptRef, fromDomainReceipt(receipt))
	})
	if err != nil {
		return pfirestore.WrapError("receipts.insert", err)
	}
	return nil
}

// FindByPaymentReference resolves the receipt issued for a gateway reference.
func (r *ReceiptRepository) FindByPaymentReference(ctx context.Context, reference string) (domain.Receipt, error) {
	if r == nil || r.base == nil {
		return domain.Receipt{}, errors.New("receipt repository not initialised")
	}
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return domain.Receipt{}, pfirestore.WrapError("receipts.findByReference", status.Error(codes.InvalidArgument, "payment reference is required"))
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("paymentReference", "==", ref).Limit(1)
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	if len(docs) == 0 {
		return domain.Receipt{}, pfirestore.WrapError("receipts.findByReference", status.Errorf(codes.NotFound, "no receipt for reference %s", ref))
	}
	return toDomainReceipt(docs[0].ID, docs[0].Data), nil
}

// ListByUser returns a user's receipts newest-first.
func (r *ReceiptRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Receipt], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Receipt]{}, errors.New("receipt repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Receipt]{}, pfirestore.WrapError("receipts.list", status.Error(codes.InvalidArgument, "user id is required"))
	}

	pageSize := clampPageSize(pager.PageSize)
	cursor, err := decodePageCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Receipt]{}, pfirestore.WrapError("receipts.list", status.Error(codes.InvalidArgument, err.Error()))
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
		return domain.CursorPage[domain.Receipt]{}, err
	}

	receipts := make([]domain.Receipt, 0, len(docs))
	for _, doc := range docs {
		receipts = append(receipts, toDomainReceipt(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.Receipt]{Items: receipts}
	if len(receipts) > pageSize {
		page.Items = receipts[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := encodePageCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Receipt]{}, pfirestore.WrapError("receipts.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

type receiptDocument struct {
	OrderRef         *string   `firestore:"orderRef,omitempty"`
	InvoiceRef       *string   `firestore:"invoiceRef,omitempty"`
	UserID           string    `firestore:"userId"`
	Amount           int64     `firestore:"amount"`
	PaymentReference string    `firestore:"paymentReference"`
	PDFURL           string    `firestore:"pdfUrl,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

func fromDomainReceipt(receipt domain.Receipt) receiptDocument {
	return receiptDocument{
		OrderRef:         receipt.OrderRef,
		InvoiceRef:       receipt.InvoiceRef,
		UserID:           receipt.UserID,
		Amount:           receipt.Amount,
		PaymentReference: receipt.PaymentReference,
		PDFURL:           receipt.PDFURL,
		CreatedAt:        receipt.CreatedAt.UTC(),
	}
}

func toDomainReceipt(docID string, doc receiptDocument) domain.Receipt {
	return domain.Receipt{
		ID:               docID,
		OrderRef:         doc.OrderRef,
		InvoiceRef:       doc.InvoiceRef,
		UserID:           doc.UserID,
		Amount:           doc.Amount,
		PaymentReference: doc.PaymentReference,
		PDFURL:           doc.PDFURL,
		CreatedAt:        doc.CreatedAt,
	}
}

var _ repositories.ReceiptRepository = (*ReceiptRepository)(nil)
