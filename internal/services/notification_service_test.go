package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/adunni-couture/api/internal/domain"
)

func newTestNotificationService(t *testing.T, repo *memoryNotificationRepo) NotificationService {
	t.Helper()
	svc, err := NewNotificationService(NotificationServiceDeps{Notifications: repo})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	return svc
}

func TestListForUserScopesByOwner(t *testing.T) {
	repo := newMemoryNotificationRepo(
		domain.Notification{ID: "ntf_1", UserID: "user-1", Message: "Order update", CreatedAt: testInstant},
		domain.Notification{ID: "ntf_2", UserID: "user-2", Message: "Other update", CreatedAt: testInstant},
	)
	svc := newTestNotificationService(t, repo)

	page, err := svc.ListForUser(context.Background(), "user-1", Pagination{})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "ntf_1" {
		t.Fatalf("expected only the owner's rows, got %+v", page.Items)
	}
}

func TestMarkReadOnlyForRecipient(t *testing.T) {
	repo := newMemoryNotificationRepo(
		domain.Notification{ID: "ntf_1", UserID: "user-1", Message: "Order update", CreatedAt: testInstant},
	)
	svc := newTestNotificationService(t, repo)

	row, err := svc.MarkRead(context.Background(), MarkNotificationReadCommand{UserID: "user-1", NotificationID: "ntf_1"})
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !row.Read {
		t.Fatalf("expected notification marked read")
	}

	_, err = svc.MarkRead(context.Background(), MarkNotificationReadCommand{UserID: "user-2", NotificationID: "ntf_1"})
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("another user's row must read as not found, got %v", err)
	}
}
