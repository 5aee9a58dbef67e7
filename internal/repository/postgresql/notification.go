package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type notificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) notification.Repository {
	return &notificationRepository{db: db}
}

var notificationCopyColumns = []string{
	"id", "recipient_id", "sender_id", "type", "title", "message", "data", "is_read", "created_at",
}

const notificationColumns = `id, recipient_id, sender_id, type, title, message, data, is_read, read_at, created_at`

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	var dataJSON []byte
	var notifType string

	if err := row.Scan(
		&n.ID, &n.RecipientID, &n.SenderID, &notifType, &n.Title,
		&n.Message, &dataJSON, &n.IsRead, &n.ReadAt, &n.CreatedAt,
	); err != nil {
		return nil, err
	}

	n.Type = notification.NotificationType(notifType)
	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification data: %w", err)
		}
	}
	return &n, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return r.CreateBatch(ctx, []*notification.Notification{n})
}

// CreateBatch streams the notifications with COPY; one worker flush is one
// round trip regardless of batch size.
func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []*notification.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)

	rows := make([][]interface{}, 0, len(notifications))
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.Must(uuid.NewV7()).String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now()
		}

		var dataJSON []byte
		if n.Data != nil {
			var err error
			if dataJSON, err = json.Marshal(n.Data); err != nil {
				return fmt.Errorf("failed to marshal notification data: %w", err)
			}
		}

		rows = append(rows, []interface{}{
			n.ID, n.RecipientID, n.SenderID, string(n.Type), n.Title,
			n.Message, dataJSON, n.IsRead, n.CreatedAt,
		})
	}

	copied, err := q.CopyFrom(ctx, pgx.Identifier{"notifications"}, notificationCopyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy notifications: %w", err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("copied %d of %d notifications", copied, len(rows))
	}
	return nil
}

// GetByRecipient pages through every inbox in recipientIDs, newest first.
func (r *notificationRepository) GetByRecipient(ctx context.Context, recipientIDs []string, lq notification.ListQuery) ([]*notification.Notification, int, error) {
	q := GetQuerier(ctx, r.db)

	var notifType *string
	if lq.Type != nil {
		t := string(*lq.Type)
		notifType = &t
	}

	where := `WHERE recipient_id = ANY($1)
		AND ($2::boolean = FALSE OR NOT is_read)
		AND ($3::text IS NULL OR type = $3)`

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM notifications `+where, recipientIDs, lq.UnreadOnly, notifType).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, recipientIDs, lq.UnreadOnly, notifType, lq.PageSize, (lq.Page-1)*lq.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, total, rows.Err()
}

func (r *notificationRepository) GetUnreadCount(ctx context.Context, recipientIDs []string) (int, error) {
	q := GetQuerier(ctx, r.db)

	var count int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = ANY($1) AND NOT is_read`, recipientIDs).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkAsRead only touches ids that belong to one of recipientIDs. read_at
// keeps the first read time.
func (r *notificationRepository) MarkAsRead(ctx context.Context, ids []string, recipientIDs []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE recipient_id = ANY($1) AND id = ANY($2) AND NOT is_read
	`, recipientIDs, ids)
	if err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return nil
}
