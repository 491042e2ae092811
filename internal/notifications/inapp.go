package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adunni-couture/api/internal/domain"
	"github.com/adunni-couture/api/internal/repositories"
)

// InAppChannel records the message as a notification row the customer sees in
// their account feed.
type InAppChannel struct {
	notifications repositories.NotificationRepository
	idGenerator   func() string
	clock         func() time.Time
}

// InAppChannelDeps lists the collaborators required by NewInAppChannel.
type InAppChannelDeps struct {
	Notifications repositories.NotificationRepository
	IDGenerator   func() string
	Clock         func() time.Time
}

// NewInAppChannel validates dependencies and constructs an in-app channel.
func NewInAppChannel(deps InAppChannelDeps) (*InAppChannel, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notifications: notification repository is required")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("notifications: id generator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &InAppChannel{
		notifications: deps.Notifications,
		idGenerator:   deps.IDGenerator,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Name identifies the channel in dispatch results and logs.
func (c *InAppChannel) Name() string { return "in_app" }

// Send appends an unread notification row for the recipient.
func (c *InAppChannel) Send(ctx context.Context, msg Message) error {
	if c == nil {
		return errors.New("notifications: in-app channel is nil")
	}
	userID := strings.TrimSpace(msg.UserID)
	if userID == "" {
		return nil
	}

	notification := domain.Notification{
		ID:        c.idGenerator(),
		UserID:    userID,
		Message:   msg.Body,
		Read:      false,
		CreatedAt: c.clock(),
	}
	if err := c.notifications.Insert(ctx, notification); err != nil {
		return fmt.Errorf("notifications: insert in-app row: %w", err)
	}
	return nil
}
