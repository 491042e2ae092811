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

const shippingRateCollection = "shipping_rates"

// ShippingRateRepository stores flat delivery fees per state zone. States are
// persisted lowercase so lookups are case-insensitive.
type ShippingRateRepository struct {
	base     *pfirestore.BaseRepository[shippingRateDocument]
	provider *pfirestore.Provider
}

// NewShippingRateRepository constructs a Firestore-backed shipping rate repository.
func NewShippingRateRepository(provider *pfirestore.Provider) (*ShippingRateRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping rate repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[shippingRateDocument](provider, shippingRateCollection)
	return &ShippingRateRepository{base: base, provider: provider}, nil
}

// Upsert writes the full rate document.
func (r *ShippingRateRepository) Upsert(ctx context.Context, rate domain.ShippingRate) (domain.ShippingRate, error) {
	if r == nil || r.base == nil {
		return domain.ShippingRate{}, errors.New("shipping rate repository not initialised")
	}
	if strings.TrimSpace(rate.ID) == "" {
		return domain.ShippingRate{}, pfirestore.WrapError("shippingRates.upsert", status.Error(codes.InvalidArgument, "rate id is required"))
	}
	if _, err := r.base.Set(ctx, rate.ID, fromDomainShippingRate(rate)); err != nil {
		return domain.ShippingRate{}, err
	}
	return rate, nil
}

// Delete removes the rate document.
func (r *ShippingRateRepository) Delete(ctx context.Context, rateID string) error {
	if r == nil || r.base == nil {
		return errors.New("shipping rate repository not initialised")
	}
	id := strings.TrimSpace(rateID)
	if id == "" {
		return pfirestore.WrapError("shippingRates.delete", status.Error(codes.InvalidArgument, "rate id is required"))
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("shippingRates.delete", err)
	}
	return nil
}

// FindByState resolves the rate whose zone covers the given state. Active and
// inactive rates are both returned; callers decide how to treat inactive zones.
func (r *ShippingRateRepository) FindByState(ctx context.Context, state string) (domain.ShippingRate, error) {
	if r == nil || r.base == nil {
		return domain.ShippingRate{}, errors.New("shipping rate repository not initialised")
	}
	normalized := strings.ToLower(strings.TrimSpace(state))
	if normalized == "" {
		return domain.ShippingRate{}, pfirestore.WrapError("shippingRates.findByState", status.Error(codes.InvalidArgument, "state is required"))
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("states", "array-contains", normalized).Limit(1)
	})
	if err != nil {
		return domain.ShippingRate{}, err
	}
	if len(docs) == 0 {
		return domain.ShippingRate{}, pfirestore.WrapError("shippingRates.findByState", status.Errorf(codes.NotFound, "no shipping rate covers state %s", normalized))
	}
	return toDomainShippingRate(docs[0].ID, docs[0].Data), nil
}

// List returns all configured rates ordered by zone.
func (r *ShippingRateRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.ShippingRate], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.ShippingRate]{}, errors.New("shipping rate repository not initialised")
	}

	pageSize := clampPageSize(pager.PageSize)

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.OrderBy("zone", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if token := strings.TrimSpace(pager.PageToken); token != "" {
			query = query.StartAfter(token)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.ShippingRate]{}, err
	}

	rates := make([]domain.ShippingRate, 0, len(docs))
	for _, doc := range docs {
		rates = append(rates, toDomainShippingRate(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.ShippingRate]{Items: rates}
	if len(rates) > pageSize {
		page.Items = rates[:pageSize]
		page.NextPageToken = page.Items[len(page.Items)-1].Zone
	}
	return page, nil
}

type shippingRateDocument struct {
	Zone      string    `firestore:"zone"`
	States    []string  `firestore:"states"`
	Fee       int64     `firestore:"fee"`
	IsActive  bool      `firestore:"isActive"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func fromDomainShippingRate(rate domain.ShippingRate) shippingRateDocument {
	doc := shippingRateDocument{
		Zone:      strings.ToLower(strings.TrimSpace(rate.Zone)),
		States:    make([]string, 0, len(rate.States)),
		Fee:       rate.Fee,
		IsActive:  rate.IsActive,
		UpdatedAt: rate.UpdatedAt.UTC(),
	}
	for _, state := range rate.States {
		trimmed := strings.ToLower(strings.TrimSpace(state))
		if trimmed != "" {
			doc.States = append(doc.States, trimmed)
		}
	}
	return doc
}

func toDomainShippingRate(docID string, doc shippingRateDocument) domain.ShippingRate {
	return domain.ShippingRate{
		ID:        docID,
		Zone:      doc.Zone,
		States:    doc.States,
		Fee:       doc.Fee,
		IsActive:  doc.IsActive,
		UpdatedAt: doc.UpdatedAt,
	}
}

var _ repositories.ShippingRateRepository = (*ShippingRateRepository)(nil)
