package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/repositories"
)

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification does not exist or
	// belongs to another user.
	ErrNotificationNotFound = errors.New("notification: not found")
)

// NotificationServiceDeps bundles collaborators for the in-app feed.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
}

type notificationService struct {
	notifications repositories.NotificationRepository
}

// NewNotificationService wires dependencies into a concrete NotificationService.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	return &notificationService{notifications: deps.Notifications}, nil
}

func (s *notificationService) ListForUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Notification], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[Notification]{}, fmt.Errorf("%w: user id is required", ErrNotificationInvalidInput)
	}
	page, err := s.notifications.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[Notification]{}, mapNotificationRepositoryError(err)
	}
	return page, nil
}

// MarkRead flips the read flag. Only the recipient may do this; the repository
// scopes the lookup by user so another user's row reads as not found.
func (s *notificationService) MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error) {
	userID := strings.TrimSpace(cmd.UserID)
	notificationID := strings.TrimSpace(cmd.NotificationID)
	if userID == "" || notificationID == "" {
		return Notification{}, fmt.Errorf("%w: user id and notification id are required", ErrNotificationInvalidInput)
	}
	row, err := s.notifications.MarkRead(ctx, userID, notificationID)
	if err != nil {
		return Notification{}, mapNotificationRepositoryError(err)
	}
	return row, nil
}

func mapNotificationRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("notification: repository unavailable: %w", err)
		}
	}
	return err
}
