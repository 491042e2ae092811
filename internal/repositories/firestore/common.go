package firestore

import (
	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/platform/pagination"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func clampPageSize(size int) int {
	return pagination.Clamp(size, defaultPageSize, maxPageSize)
}

// pageCursor marks the last returned row for createdAt-descending listings.
type pageCursor = pagination.Cursor

func encodePageCursor(cursor pageCursor) (string, error) {
	return pagination.EncodeCursor(cursor)
}

func decodePageCursor(encoded string) (*pageCursor, error) {
	return pagination.DecodeCursor(encoded)
}

type addressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      string  `firestore:"state"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

func fromDomainAddress(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func toDomainAddress(doc *addressDocument) *domain.Address {
	if doc == nil {
		return nil
	}
	return &domain.Address{
		Recipient:  doc.Recipient,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		State:      doc.State,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		Phone:      doc.Phone,
	}
}

type geoPointDocument struct {
	Latitude  float64 `firestore:"latitude"`
	Longitude float64 `firestore:"longitude"`
}

func fromDomainGeoPoint(point *domain.GeoPoint) *geoPointDocument {
	if point == nil {
		return nil
	}
	return &geoPointDocument{Latitude: point.Latitude, Longitude: point.Longitude}
}

func toDomainGeoPoint(doc *geoPointDocument) *domain.GeoPoint {
	if doc == nil {
		return nil
	}
	return &domain.GeoPoint{Latitude: doc.Latitude, Longitude: doc.Longitude}
}
