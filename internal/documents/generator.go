package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/storage"
)

// ErrDocumentGeneration wraps renderer and upload failures. Callers treat the
// document as optional: a missing PDF never blocks the payment or order flow.
var ErrDocumentGeneration = errors.New("documents: generation failed")

// Logger defines the logging contract for document operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Renderer turns a named template plus data into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// ObjectStore persists rendered documents.
type ObjectStore interface {
	UploadObject(ctx context.Context, bucket, object, contentType string, data []byte) error
}

// Generator renders invoice and receipt PDFs and stores them for later download.
type Generator struct {
	renderer Renderer
	store    ObjectStore
	bucket   string
	timeout  time.Duration
	clock    func() time.Time
	logger   Logger
}

// GeneratorDeps lists the collaborators required by NewGenerator.
type GeneratorDeps struct {
	Renderer Renderer
	Store    ObjectStore
	Bucket   string
	Timeout  time.Duration
	Clock    func() time.Time
	Logger   Logger
}

// NewGenerator validates dependencies and constructs a Generator.
func NewGenerator(deps GeneratorDeps) (*Generator, error) {
	if deps.Renderer == nil {
		return nil, errors.New("documents: renderer is required")
	}
	if deps.Store == nil {
		return nil, errors.New("documents: object store is required")
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errors.New("documents: bucket is required")
	}

	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Generator{
		renderer: deps.Renderer,
		store:    deps.Store,
		bucket:   bucket,
		timeout:  timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GenerateInvoice renders the invoice PDF and uploads it. It returns the
// storage path of the uploaded object.
func (g *Generator) GenerateInvoice(ctx context.Context, invoice domain.Invoice) (string, error) {
	if g == nil {
		return "", fmt.Errorf("%w: generator is nil", ErrDocumentGeneration)
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return "", fmt.Errorf("%w: invoice id is required", ErrDocumentGeneration)
	}

	objectPath, err := storage.BuildObjectPath(storage.PurposeInvoice, storage.PathParams{
		DocumentID: invoice.ID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDocumentGeneration, err)
	}

	data := map[string]any{
		"invoiceId":      invoice.ID,
		"customOrderRef": invoice.CustomOrderRef,
		"amount":         invoice.Amount,
		"deposit":        invoice.Deposit,
		"balance":        invoice.Amount - invoice.Deposit,
		"paid":           invoice.Paid,
		"issuedAt":       invoice.CreatedAt.UTC().Format(time.RFC3339),
		"generatedAt":    g.clock().Format(time.RFC3339),
	}

	return g.renderAndStore(ctx, "invoice", invoice.ID, objectPath, data)
}

// GenerateReceipt renders the receipt PDF and uploads it. It returns the
// storage path of the uploaded object.
func (g *Generator) GenerateReceipt(ctx context.Context, receipt domain.Receipt) (string, error) {
	if g == nil {
		return "", fmt.Errorf("%w: generator is nil", ErrDocumentGeneration)
	}
	if strings.TrimSpace(receipt.ID) == "" {
		return "", fmt.Errorf("%w: receipt id is required", ErrDocumentGeneration)
	}

	objectPath, err := storage.BuildObjectPath(storage.PurposeReceipt, storage.PathParams{
		DocumentID: receipt.ID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDocumentGeneration, err)
	}

	data := map[string]any{
		"receiptId":        receipt.ID,
		"amount":           receipt.Amount,
		"paymentReference": receipt.PaymentReference,
		"issuedAt":         receipt.CreatedAt.UTC().Format(time.RFC3339),
		"generatedAt":      g.clock().Format(time.RFC3339),
	}
	if receipt.OrderRef != nil {
		data["orderRef"] = *receipt.OrderRef
	}
	if receipt.InvoiceRef != nil {
		data["invoiceRef"] = *receipt.InvoiceRef
	}

	return g.renderAndStore(ctx, "receipt", receipt.ID, objectPath, data)
}

func (g *Generator) renderAndStore(ctx context.Context, template, documentID, objectPath string, data map[string]any) (string, error) {
	renderCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pdf, err := g.renderer.Render(renderCtx, RenderRequest{
		Template: template,
		Data:     data,
	})
	if err != nil {
		g.logger(ctx, "documents.render.failed", map[string]any{
			"template":   template,
			"documentId": documentID,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("%w: render %s: %v", ErrDocumentGeneration, template, err)
	}

	if err := g.store.UploadObject(ctx, g.bucket, objectPath, "application/pdf", pdf); err != nil {
		g.logger(ctx, "documents.upload.failed", map[string]any{
			"template":   template,
			"documentId": documentID,
			"object":     objectPath,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("%w: upload %s: %v", ErrDocumentGeneration, template, err)
	}

	g.logger(ctx, "documents.generated", map[string]any{
		"template":   template,
		"documentId": documentID,
		"object":     objectPath,
	})
	return objectPath, nil
}
