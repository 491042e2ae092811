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

const notificationCollection = "notifications"

// NotificationRepository stores in-app notification rows.
type NotificationRepository struct {
	base     *pfirestore.BaseRepository[notificationDocument]
	provider *pfirestore.Provider
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationCollection)
	return &NotificationRepository{base: base, provider: provider}, nil
}

// Insert appends a notification row.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return pfirestore.WrapError("notifications.insert", status.Error(codes.InvalidArgument, "notification id is required"))
	}
	ref, err := r.base.DocumentRef(ctx, notification.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainNotification(notification)); err != nil {
		return pfirestore.WrapError("notifications.insert", err)
	}
	return nil
}

// MarkRead flips the read flag. Rows owned by other users read as missing so
// recipients cannot read each other's inboxes.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, notificationID string) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(notificationID)
	if uid == "" || id == "" {
		return domain.Notification{}, pfirestore.WrapError("notifications.markRead", status.Error(codes.InvalidArgument, "user id and notification id are required"))
	}

	var updated domain.Notification
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored notificationDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		if stored.UserID != uid {
			return status.Errorf(codes.NotFound, "notification %s not found", id)
		}
		stored.Read = true
		updated = toDomainNotification(id, stored)
		return tx.Set(ref, stored)
	})
	if err != nil {
		return domain.Notification{}, pfirestore.WrapError("notifications.markRead", err)
	}
	return updated, nil
}

// ListByUser returns a user's notifications newest-first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", status.Error(codes.InvalidArgument, "user id is required"))
	}

	pageSize := clampPageSize(pager.PageSize)
	cursor, err := decodePageCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", status.Error(codes.InvalidArgument, err.Error()))
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("userId", "==", uid).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			query = query.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	rows := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, toDomainNotification(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.Notification]{Items: rows}
	if len(rows) > pageSize {
		page.Items = rows[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := encodePageCursor(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

type notificationDocument struct {
	UserID    string    `firestore:"userId"`
	Message   string    `firestore:"message"`
	Read      bool      `firestore:"read"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func fromDomainNotification(notification domain.Notification) notificationDocument {
	return notificationDocument{
		UserID:    notification.UserID,
		Message:   notification.Message,
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt.UTC(),
	}
}

func toDomainNotification(docID string, doc notificationDocument) domain.Notification {
	return domain.Notification{
		ID:        docID,
		UserID:    doc.UserID,
		Message:   doc.Message,
		Read:      doc.Read,
		CreatedAt: doc.CreatedAt,
	}
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
