package notification

import (
	"context"
)

// Repository defines the notification repository interface
type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	CreateBatch(ctx context.Context, notifications []*Notification) error
	GetByRecipient(ctx context.Context, recipientIDs []string, q ListQuery) ([]*Notification, int, error)
	GetUnreadCount(ctx context.Context, recipientIDs []string) (int, error)
	MarkAsRead(ctx context.Context, ids []string, recipientIDs []string) error
}
