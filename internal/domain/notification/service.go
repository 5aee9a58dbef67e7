package notification

import (
	"context"
)

// Service defines the notification service interface
type Service interface {
	// Queue notification (async processing via background workers)
	QueueNotification(ctx context.Context, req CreateNotificationRequest) error

	// Direct operations
	GetNotifications(ctx context.Context, recipientIDs []string, q ListQuery) (*NotificationListResponse, error)
	MarkAsRead(ctx context.Context, recipientIDs []string, req MarkAsReadRequest) error

	// SSE subscription
	Subscribe(ctx context.Context, recipientIDs []string) (<-chan SSEEvent, func())

	// Lifecycle
	Stop()
}
