package storage

import "testing"

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "prd123",
		FileName:  "front.png",
	})
	if err != nil {
		t.Fatalf("BuildObjectPath returned error: %v", err)
	}
	expected := "catalog/products/prd123/images/front.png"
	if path != expected {
		t.Fatalf("expected %q got %q", expected, path)
	}
}

func TestBuildInvoicePathDefaultsFileName(t *testing.T) {
	path, err := BuildObjectPath(PurposeInvoice, PathParams{
		DocumentID: "inv789",
	})
	if err != nil {
		t.Fatalf("BuildObjectPath returned error: %v", err)
	}
	expected := "documents/invoices/inv789.pdf"
	if path != expected {
		t.Fatalf("expected %q got %q", expected, path)
	}
}

func TestBuildReceiptPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeReceipt, PathParams{
		DocumentID: "rcp42",
		FileName:   "rcp42.pdf",
	})
	if err != nil {
		t.Fatalf("BuildObjectPath returned error: %v", err)
	}
	expected := "documents/receipts/rcp42.pdf"
	if path != expected {
		t.Fatalf("expected %q got %q", expected, path)
	}
}

func TestBuildObjectPathRejectsTraversal(t *testing.T) {
	if _, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "../bad",
		FileName:  "x.png",
	}); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestBuildObjectPathUnknownPurpose(t *testing.T) {
	if _, err := BuildObjectPath(ObjectPurpose("zip"), PathParams{}); err == nil {
		t.Fatal("expected unsupported purpose error")
	}
}
