package storage

import (
	"fmt"
	"strings"
)

// ObjectPurpose selects the bucket layout for a stored object.
type ObjectPurpose string

const (
	PurposeProductImage ObjectPurpose = "product-image"
	PurposeInvoice      ObjectPurpose = "invoice"
	PurposeReceipt      ObjectPurpose = "receipt"
)

// PathParams carry the identifiers an object key is built from.
type PathParams struct {
	ProductID  string
	OrderID    string
	DocumentID string
	FileName   string
}

// BuildObjectPath resolves the object key for the given purpose.
func BuildObjectPath(purpose ObjectPurpose, params PathParams) (string, error) {
	switch purpose {
	case PurposeProductImage:
		productID, err := cleanSegment("productID", params.ProductID)
		if err != nil {
			return "", err
		}
		fileName, err := cleanSegment("fileName", params.FileName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("catalog/products/%s/images/%s", productID, fileName), nil
	case PurposeInvoice:
		return documentPath("invoices", params)
	case PurposeReceipt:
		return documentPath("receipts", params)
	default:
		return "", fmt.Errorf("storage: unsupported object purpose %q", purpose)
	}
}

func documentPath(kind string, params PathParams) (string, error) {
	documentID, err := cleanSegment("documentID", params.DocumentID)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(params.FileName)
	if name == "" {
		name = documentID + ".pdf"
	}
	fileName, err := cleanSegment("fileName", name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("documents/%s/%s", kind, fileName), nil
}

// cleanSegment rejects separators and traversal sequences so identifiers
// from the request can never escape their prefix.
func cleanSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	return value, nil
}
