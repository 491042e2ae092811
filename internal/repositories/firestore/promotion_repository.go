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

const promotionCollection = "promotions"

// PromotionRepository stores percentage promotion windows.
type PromotionRepository struct {
	base     *pfirestore.BaseRepository[promotionDocument]
	provider *pfirestore.Provider
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promotionDocument](provider, promotionCollection)
	return &PromotionRepository{base: base, provider: provider}, nil
}

// Upsert writes the full promotion document.
func (r *PromotionRepository) Upsert(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	if strings.TrimSpace(promotion.ID) == "" {
		return domain.Promotion{}, pfirestore.WrapError("promotions.upsert", status.Error(codes.InvalidArgument, "promotion id is required"))
	}
	if _, err := r.base.Set(ctx, promotion.ID, fromDomainPromotion(promotion)); err != nil {
		return domain.Promotion{}, err
	}
	return promotion, nil
}

// Delete removes the promotion document.
func (r *PromotionRepository) Delete(ctx context.Context, promotionID string) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promotionID)
	if id == "" {
		return pfirestore.WrapError("promotions.delete", status.Error(codes.InvalidArgument, "promotion id is required"))
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("promotions.delete", err)
	}
	return nil
}

// FindByCode resolves a promotion by its customer-facing code.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Promotion{}, pfirestore.WrapError("promotions.findByCode", status.Error(codes.InvalidArgument, "promotion code is required"))
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, pfirestore.WrapError("promotions.findByCode", status.Errorf(codes.NotFound, "no promotion with code %s", normalized))
	}
	return toDomainPromotion(docs[0].ID, docs[0].Data), nil
}

// List returns promotions newest-first.
func (r *PromotionRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Promotion], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Promotion]{}, errors.New("promotion repository not initialised")
	}

	pageSize := clampPageSize(pager.PageSize)
	cursor, err := decodePageCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Promotion]{}, pfirestore.WrapError("promotions.list", status.Error(codes.InvalidArgument, err.Error()))
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			query = query.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Promotion]{}, err
	}

	promotions := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		promotions = append(promotions, toDomainPromotion(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.Promotion]{Items: promotions}
	if len(promotions) > pageSize {
		page.Items = promotions[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := encodePageCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Promotion]{}, pfirestore.WrapError("promotions.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

type promotionDocument struct {
	Code       string    `firestore:"code"`
	Name       string    `firestore:"name"`
	PercentOff int       `firestore:"percentOff"`
	Category   string    `firestore:"category,omitempty"`
	StartsAt   time.Time `firestore:"startsAt"`
	EndsAt     time.Time `firestore:"endsAt"`
	IsActive   bool      `firestore:"isActive"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func fromDomainPromotion(promotion domain.Promotion) promotionDocument {
	return promotionDocument{
		Code:       strings.ToUpper(strings.TrimSpace(promotion.Code)),
		Name:       promotion.Name,
		PercentOff: promotion.PercentOff,
		Category:   promotion.Category,
		StartsAt:   promotion.StartsAt.UTC(),
		EndsAt:     promotion.EndsAt.UTC(),
		IsActive:   promotion.IsActive,
		CreatedAt:  promotion.CreatedAt.UTC(),
		UpdatedAt:  promotion.UpdatedAt.UTC(),
	}
}

func toDomainPromotion(docID string, doc promotionDocument) domain.Promotion {
	return domain.Promotion{
		ID:         docID,
		Code:       doc.Code,
		Name:       doc.Name,
		PercentOff: doc.PercentOff,
		Category:   doc.Category,
		StartsAt:   doc.StartsAt,
		EndsAt:     doc.EndsAt,
		IsActive:   doc.IsActive,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)
