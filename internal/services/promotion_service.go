package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/repositories"
)

var (
	// ErrPromotionInvalidInput signals the caller provided invalid data.
	ErrPromotionInvalidInput = errors.New("promotion: invalid input")
	// ErrPromotionNotFound indicates the promotion could not be located.
	ErrPromotionNotFound = errors.New("promotion: not found")
	// ErrPromotionConflict indicates a duplicate code or concurrent write.
	ErrPromotionConflict = errors.New("promotion: conflict")
)

const promotionIDPrefix = "promo_"

// PromotionServiceDeps bundles collaborators required to construct the promotion service.
type PromotionServiceDeps struct {
	Promotions  repositories.PromotionRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type promotionService struct {
	promotions repositories.PromotionRepository
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewPromotionService wires dependencies into a concrete PromotionService implementation.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: promotion repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &promotionService{
		promotions: deps.Promotions,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// ValidatePromotion evaluates eligibility without mutating anything. An
// ineligible code is a normal result, not an error.
func (s *promotionService) ValidatePromotion(ctx context.Context, cmd ValidatePromotionCommand) (PromotionResult, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return PromotionResult{}, fmt.Errorf("%w: code is required", ErrPromotionInvalidInput)
	}

	promo, err := s.promotions.FindByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return PromotionResult{Code: code, Eligible: false, Reason: "unknown code"}, nil
		}
		return PromotionResult{}, mapPromotionRepositoryError(err)
	}

	now := s.clock()
	switch {
	case !promo.IsActive:
		return PromotionResult{Code: code, Eligible: false, Reason: "promotion is inactive"}, nil
	case now.Before(promo.StartsAt):
		return PromotionResult{Code: code, Eligible: false, Reason: "promotion has not started"}, nil
	case now.After(promo.EndsAt):
		return PromotionResult{Code: code, Eligible: false, Reason: "promotion has expired"}, nil
	case promo.Category != "" && cmd.Category != "" && !strings.EqualFold(promo.Category, cmd.Category):
		return PromotionResult{Code: code, Eligible: false, Reason: "promotion does not apply to this category"}, nil
	}

	return PromotionResult{
		Code:       code,
		Eligible:   true,
		PercentOff: promo.PercentOff,
	}, nil
}

func (s *promotionService) ListPromotions(ctx context.Context, pager Pagination) (domain.CursorPage[Promotion], error) {
	page, err := s.promotions.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Promotion]{}, mapPromotionRepositoryError(err)
	}
	return page, nil
}

func (s *promotionService) UpsertPromotion(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promo := cmd.Promotion
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	if err := validatePromotion(promo); err != nil {
		return Promotion{}, err
	}

	// A code may only belong to one promotion.
	if existing, err := s.promotions.FindByCode(ctx, promo.Code); err == nil && existing.ID != promo.ID {
		return Promotion{}, fmt.Errorf("%w: code %s is already in use", ErrPromotionConflict, promo.Code)
	} else if err != nil && !isNotFound(err) {
		return Promotion{}, mapPromotionRepositoryError(err)
	}

	now := s.clock()
	if strings.TrimSpace(promo.ID) == "" {
		promo.ID = promotionIDPrefix + s.newID()
		promo.CreatedAt = now
	}
	promo.UpdatedAt = now

	stored, err := s.promotions.Upsert(ctx, promo)
	if err != nil {
		return Promotion{}, mapPromotionRepositoryError(err)
	}

	s.logger(ctx, "promotion.upserted", map[string]any{
		"promotion": stored.ID,
		"code":      stored.Code,
		"actor":     cmd.ActorID,
	})
	return stored, nil
}

func (s *promotionService) DeletePromotion(ctx context.Context, promotionID string) error {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return fmt.Errorf("%w: promotion id is required", ErrPromotionInvalidInput)
	}
	if err := s.promotions.Delete(ctx, promotionID); err != nil {
		return mapPromotionRepositoryError(err)
	}
	return nil
}

func validatePromotion(promo Promotion) error {
	switch {
	case promo.Code == "":
		return fmt.Errorf("%w: code is required", ErrPromotionInvalidInput)
	case strings.TrimSpace(promo.Name) == "":
		return fmt.Errorf("%w: name is required", ErrPromotionInvalidInput)
	case promo.PercentOff < 1 || promo.PercentOff > 100:
		return fmt.Errorf("%w: percent off must be within [1,100]", ErrPromotionInvalidInput)
	case promo.StartsAt.IsZero() || promo.EndsAt.IsZero():
		return fmt.Errorf("%w: start and end times are required", ErrPromotionInvalidInput)
	case !promo.EndsAt.After(promo.StartsAt):
		return fmt.Errorf("%w: end time must be after start time", ErrPromotionInvalidInput)
	}
	return nil
}

func mapPromotionRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPromotionNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPromotionConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("promotion: repository unavailable: %w", err)
		}
	}
	return err
}
