package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/adunni-couture/api/internal/domain"
)

func activePromotion() domain.Promotion {
	return domain.Promotion{
		ID:         "promo_1",
		Code:       "ADIRE10",
		Name:       "Adire launch",
		PercentOff: 10,
		StartsAt:   testInstant.Add(-24 * time.Hour),
		EndsAt:     testInstant.Add(24 * time.Hour),
		IsActive:   true,
		CreatedAt:  testInstant.Add(-48 * time.Hour),
	}
}

func newTestPromotionService(t *testing.T, repo *memoryPromotionRepo) PromotionService {
	t.Helper()
	svc, err := NewPromotionService(PromotionServiceDeps{
		Promotions:  repo,
		Clock:       fixedClock(testInstant),
		IDGenerator: sequenceIDs("id"),
	})
	if err != nil {
		t.Fatalf("NewPromotionService: %v", err)
	}
	return svc
}

func TestValidatePromotionEligible(t *testing.T) {
	svc := newTestPromotionService(t, newMemoryPromotionRepo(activePromotion()))

	result, err := svc.ValidatePromotion(context.Background(), ValidatePromotionCommand{Code: "adire10"})
	if err != nil {
		t.Fatalf("ValidatePromotion: %v", err)
	}
	if !result.Eligible || result.PercentOff != 10 {
		t.Fatalf("expected eligible with 10%%, got %+v", result)
	}
	if result.Code != "ADIRE10" {
		t.Fatalf("expected normalized code, got %q", result.Code)
	}
}

func TestValidatePromotionIneligibleCases(t *testing.T) {
	expired := activePromotion()
	expired.ID = "promo_expired"
	expired.Code = "OLD"
	expired.EndsAt = testInstant.Add(-time.Hour)

	inactive := activePromotion()
	inactive.ID = "promo_inactive"
	inactive.Code = "PAUSED"
	inactive.IsActive = false

	future := activePromotion()
	future.ID = "promo_future"
	future.Code = "SOON"
	future.StartsAt = testInstant.Add(time.Hour)

	scoped := activePromotion()
	scoped.ID = "promo_scoped"
	scoped.Code = "GELE5"
	scoped.Category = "accessories"

	svc := newTestPromotionService(t, newMemoryPromotionRepo(expired, inactive, future, scoped))

	cases := []struct {
		code     string
		category string
	}{
		{"OLD", ""},
		{"PAUSED", ""},
		{"SOON", ""},
		{"GELE5", "dresses"},
		{"MISSING", ""},
	}
	for _, tc := range cases {
		result, err := svc.ValidatePromotion(context.Background(), ValidatePromotionCommand{Code: tc.code, Category: tc.category})
		if err != nil {
			t.Fatalf("ValidatePromotion %s: %v", tc.code, err)
		}
		if result.Eligible {
			t.Errorf("%s: expected ineligible, got %+v", tc.code, result)
		}
		if result.Reason == "" {
			t.Errorf("%s: expected a reason", tc.code)
		}
	}
}

func TestUpsertPromotionRejectsDuplicateCode(t *testing.T) {
	svc := newTestPromotionService(t, newMemoryPromotionRepo(activePromotion()))

	_, err := svc.UpsertPromotion(context.Background(), UpsertPromotionCommand{Promotion: domain.Promotion{
		Code:       "adire10",
		Name:       "Second adire",
		PercentOff: 15,
		StartsAt:   testInstant,
		EndsAt:     testInstant.Add(time.Hour),
		IsActive:   true,
	}})
	if !errors.Is(err, ErrPromotionConflict) {
		t.Fatalf("expected ErrPromotionConflict, got %v", err)
	}
}

func TestUpsertPromotionValidation(t *testing.T) {
	svc := newTestPromotionService(t, newMemoryPromotionRepo())

	promo := activePromotion()
	promo.PercentOff = 0
	if _, err := svc.UpsertPromotion(context.Background(), UpsertPromotionCommand{Promotion: promo}); !errors.Is(err, ErrPromotionInvalidInput) {
		t.Fatalf("expected ErrPromotionInvalidInput for zero percent, got %v", err)
	}

	promo = activePromotion()
	promo.EndsAt = promo.StartsAt
	if _, err := svc.UpsertPromotion(context.Background(), UpsertPromotionCommand{Promotion: promo}); !errors.Is(err, ErrPromotionInvalidInput) {
		t.Fatalf("expected ErrPromotionInvalidInput for empty window, got %v", err)
	}
}

func TestUpsertPromotionCreatesWithGeneratedID(t *testing.T) {
	repo := newMemoryPromotionRepo()
	svc := newTestPromotionService(t, repo)

	stored, err := svc.UpsertPromotion(context.Background(), UpsertPromotionCommand{Promotion: domain.Promotion{
		Code:       "ankara20",
		Name:       "Ankara week",
		PercentOff: 20,
		StartsAt:   testInstant,
		EndsAt:     testInstant.Add(7 * 24 * time.Hour),
		IsActive:   true,
	}})
	if err != nil {
		t.Fatalf("UpsertPromotion: %v", err)
	}
	if stored.ID == "" || stored.Code != "ANKARA20" {
		t.Fatalf("expected generated id and normalized code, got %+v", stored)
	}
}
