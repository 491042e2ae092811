package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/adunni-couture/api/internal/domain"
)

func newTestShippingService(t *testing.T, rates *memoryShippingRateRepo) ShippingService {
	t.Helper()
	engine, err := NewPricingEngine(PricingEngineDeps{
		Rates:      rates,
		DefaultFee: 2000,
		Clock:      fixedClock(testInstant),
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	svc, err := NewShippingService(ShippingServiceDeps{
		Rates:       rates,
		Pricing:     engine,
		Clock:       fixedClock(testInstant),
		IDGenerator: sequenceIDs("id"),
	})
	if err != nil {
		t.Fatalf("NewShippingService: %v", err)
	}
	return svc
}

func TestQuoteForStateUsesConfiguredRate(t *testing.T) {
	rates := newMemoryShippingRateRepo(domain.ShippingRate{
		ID:       "rate_lagos",
		Zone:     "lagos-mainland",
		States:   []string{"lagos"},
		Fee:      1500,
		IsActive: true,
	})
	svc := newTestShippingService(t, rates)

	quote, err := svc.QuoteForState(context.Background(), "Lagos")
	if err != nil {
		t.Fatalf("QuoteForState: %v", err)
	}
	if quote.Fee != 1500 || quote.Zone != "lagos-mainland" {
		t.Fatalf("unexpected quote %+v", quote)
	}

	if _, err := svc.QuoteForState(context.Background(), "  "); !errors.Is(err, ErrShippingInvalidInput) {
		t.Fatalf("expected ErrShippingInvalidInput, got %v", err)
	}
}

func TestUpsertRateNormalizesStates(t *testing.T) {
	rates := newMemoryShippingRateRepo()
	svc := newTestShippingService(t, rates)

	stored, err := svc.UpsertRate(context.Background(), UpsertShippingRateCommand{
		Rate: domain.ShippingRate{
			Zone:     "South-West",
			States:   []string{" Lagos ", "OYO"},
			Fee:      1200,
			IsActive: true,
		},
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("UpsertRate: %v", err)
	}
	if stored.Zone != "south-west" {
		t.Fatalf("expected lowercased zone, got %q", stored.Zone)
	}
	if stored.States[0] != "lagos" || stored.States[1] != "oyo" {
		t.Fatalf("expected normalized states, got %v", stored.States)
	}
	if stored.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if !stored.UpdatedAt.Equal(testInstant) {
		t.Fatalf("expected UpdatedAt stamped")
	}
}

func TestUpsertRateValidation(t *testing.T) {
	svc := newTestShippingService(t, newMemoryShippingRateRepo())

	if _, err := svc.UpsertRate(context.Background(), UpsertShippingRateCommand{
		Rate: domain.ShippingRate{Zone: "zone", Fee: 100},
	}); !errors.Is(err, ErrShippingInvalidInput) {
		t.Fatalf("expected ErrShippingInvalidInput for no states, got %v", err)
	}
	if _, err := svc.UpsertRate(context.Background(), UpsertShippingRateCommand{
		Rate: domain.ShippingRate{Zone: "zone", States: []string{"lagos"}, Fee: -1},
	}); !errors.Is(err, ErrShippingInvalidInput) {
		t.Fatalf("expected ErrShippingInvalidInput for negative fee, got %v", err)
	}
}

func TestDeleteRate(t *testing.T) {
	rates := newMemoryShippingRateRepo(domain.ShippingRate{ID: "rate_1", Zone: "z", States: []string{"lagos"}, Fee: 100})
	svc := newTestShippingService(t, rates)

	if err := svc.DeleteRate(context.Background(), "rate_1"); err != nil {
		t.Fatalf("DeleteRate: %v", err)
	}
	if err := svc.DeleteRate(context.Background(), "rate_1"); !errors.Is(err, ErrShippingRateNotFound) {
		t.Fatalf("expected ErrShippingRateNotFound, got %v", err)
	}
}
