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
	// ErrShippingInvalidInput signals the caller provided invalid data.
	ErrShippingInvalidInput = errors.New("shipping: invalid input")
	// ErrShippingRateNotFound indicates the rate could not be located.
	ErrShippingRateNotFound = errors.New("shipping: rate not found")
)

const shippingRateIDPrefix = "shp_"

// ShippingServiceDeps bundles collaborators required to construct the shipping service.
type ShippingServiceDeps struct {
	Rates       repositories.ShippingRateRepository
	Pricing     *PricingEngine
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shippingService struct {
	rates   repositories.ShippingRateRepository
	pricing *PricingEngine
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewShippingService wires dependencies into a concrete ShippingService implementation.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Rates == nil {
		return nil, errors.New("shipping service: shipping rate repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("shipping service: pricing engine is required")
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

	return &shippingService{
		rates:   deps.Rates,
		pricing: deps.Pricing,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *shippingService) QuoteForState(ctx context.Context, state string) (ShippingQuote, error) {
	if strings.TrimSpace(state) == "" {
		return ShippingQuote{}, fmt.Errorf("%w: state is required", ErrShippingInvalidInput)
	}
	return s.pricing.ShippingFee(ctx, state)
}

func (s *shippingService) ListRates(ctx context.Context, pager Pagination) (domain.CursorPage[ShippingRate], error) {
	page, err := s.rates.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[ShippingRate]{}, mapShippingRepositoryError(err)
	}
	return page, nil
}

func (s *shippingService) UpsertRate(ctx context.Context, cmd UpsertShippingRateCommand) (ShippingRate, error) {
	rate := cmd.Rate
	rate.Zone = strings.ToLower(strings.TrimSpace(rate.Zone))
	if rate.Zone == "" {
		return ShippingRate{}, fmt.Errorf("%w: zone is required", ErrShippingInvalidInput)
	}
	if len(rate.States) == 0 {
		return ShippingRate{}, fmt.Errorf("%w: at least one state is required", ErrShippingInvalidInput)
	}
	if rate.Fee < 0 {
		return ShippingRate{}, fmt.Errorf("%w: fee cannot be negative", ErrShippingInvalidInput)
	}

	states := make([]string, 0, len(rate.States))
	for _, state := range rate.States {
		state = strings.ToLower(strings.TrimSpace(state))
		if state == "" {
			return ShippingRate{}, fmt.Errorf("%w: empty state name", ErrShippingInvalidInput)
		}
		states = append(states, state)
	}
	rate.States = states

	if strings.TrimSpace(rate.ID) == "" {
		rate.ID = shippingRateIDPrefix + s.newID()
	}
	rate.UpdatedAt = s.clock()

	stored, err := s.rates.Upsert(ctx, rate)
	if err != nil {
		return ShippingRate{}, mapShippingRepositoryError(err)
	}

	s.logger(ctx, "shipping.rate.upserted", map[string]any{
		"rate":  stored.ID,
		"zone":  stored.Zone,
		"actor": cmd.ActorID,
	})
	return stored, nil
}

func (s *shippingService) DeleteRate(ctx context.Context, rateID string) error {
	rateID = strings.TrimSpace(rateID)
	if rateID == "" {
		return fmt.Errorf("%w: rate id is required", ErrShippingInvalidInput)
	}
	if err := s.rates.Delete(ctx, rateID); err != nil {
		return mapShippingRepositoryError(err)
	}
	return nil
}

func mapShippingRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrShippingRateNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("shipping: repository unavailable: %w", err)
		}
	}
	return err
}
