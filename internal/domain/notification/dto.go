package notification

import (
	"fmt"
	"time"

	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
)

const (
	maxMarkAsRead   = 100 // ids per mark-as-read call
	defaultPageSize = 20
	maxPageSize     = 100
)

// ============= Request DTOs =============

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	RecipientID string
	SenderID    *string
	Type        NotificationType
	Title       string
	Message     string
	Data        map[string]interface{}
}

// MarkAsReadRequest marks notifications in the caller's inboxes as read
type MarkAsReadRequest struct {
	NotificationIDs []string `json:"notification_ids"`
}

func (r *MarkAsReadRequest) Validate() error {
	var errs validator.ValidationErrors

	switch {
	case len(r.NotificationIDs) == 0:
		errs = append(errs, validator.ValidationError{Field: "notification_ids", Message: "is required"})
	case len(r.NotificationIDs) > maxMarkAsRead:
		errs = append(errs, validator.ValidationError{Field: "notification_ids", Message: fmt.Sprintf("must contain at most %d ids", maxMarkAsRead)})
	}
	for i, id := range r.NotificationIDs {
		if validator.IsEmpty(id) {
			errs = append(errs, validator.ValidationError{Field: fmt.Sprintf("notification_ids[%d]", i), Message: "must not be empty"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ListQuery selects one page of a caller's inboxes. Type narrows the page to
// a single event type.
type ListQuery struct {
	Page       int
	PageSize   int
	UnreadOnly bool
	Type       *NotificationType
}

// Normalize falls back to the first page and the default size when the
// requested paging is out of range.
func (q *ListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > maxPageSize {
		q.PageSize = defaultPageSize
	}
}

func (q *ListQuery) Validate() error {
	if q.Type != nil && !q.Type.IsValid() {
		return validator.ValidationErrors{{Field: "type", Message: "unknown notification type"}}
	}
	return nil
}

// ============= Response DTOs =============

// NotificationResponse is one inbox entry. RecipientID tells a caller with
// several inboxes (own user, staff record, office) where it landed.
type NotificationResponse struct {
	ID          string                 `json:"id"`
	RecipientID string                 `json:"recipient_id"`
	SenderID    *string                `json:"sender_id,omitempty"`
	Type        NotificationType       `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data,omitempty"`
	IsRead      bool                   `json:"is_read"`
	ReadAt      *time.Time             `json:"read_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NotificationListResponse is one inbox page. Paging travels in the
// response meta, so only the items and unread badge are serialized.
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
	Total         int                    `json:"-"`
	Page          int                    `json:"-"`
	PageSize      int                    `json:"-"`
}

// SSETokenResponse represents the SSE token response
type SSETokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// SSEEvent is one frame pushed to a stream subscriber
type SSEEvent struct {
	Event string
	Data  NotificationResponse
}
