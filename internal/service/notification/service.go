package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/pkg/sse"
	"github.com/dairycoop/settlement-backend/internal/pkg/webhook"
	"github.com/google/uuid"
)

// Config holds notification service configuration
type Config struct {
	BatchSize     int           // default: 100
	FlushInterval time.Duration // default: 5 seconds
	WorkerCount   int           // default: 2
	QueueSize     int           // default: 1000
}

// WebhookSender forwards persisted notifications to an external endpoint.
type WebhookSender interface {
	Send(ctx context.Context, events []webhook.Event) error
}

type service struct {
	repo    notification.Repository
	hub     *sse.Hub
	webhook WebhookSender
	config  Config
	log     *slog.Logger

	queue  chan notification.CreateNotificationRequest
	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// NewNotificationService creates a new notification service with background
// workers. hook may be nil.
func NewNotificationService(repo notification.Repository, hub *sse.Hub, hook WebhookSender, cfg Config) notification.Service {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1000
	}

	s := &service{
		repo:    repo,
		hub:     hub,
		webhook: hook,
		config:  cfg,
		log:     slog.Default().With("component", "notification"),
		queue:   make(chan notification.CreateNotificationRequest, cfg.QueueSize),
		stopCh:  make(chan struct{}),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.log.Info("notification service started",
		"workers", cfg.WorkerCount, "batch_size", cfg.BatchSize, "flush_interval", cfg.FlushInterval,
		"webhook_enabled", hook != nil)

	return s
}

func (s *service) worker(id int) {
	defer s.wg.Done()

	batch := make([]notification.CreateNotificationRequest, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		notifications := make([]*notification.Notification, len(batch))
		for i, req := range batch {
			notifications[i] = newNotification(req)
		}

		if err := s.repo.CreateBatch(ctx, notifications); err != nil {
			s.log.Error("failed to batch insert notifications", "worker", id, "count", len(notifications), "error", err)
		} else {
			s.log.Debug("inserted notifications", "worker", id, "count", len(notifications))
			s.deliver(ctx, notifications)
		}

		batch = batch[:0]
	}

	for {
		select {
		case req := <-s.queue:
			batch = append(batch, req)
			if len(batch) >= s.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			// drain what is already queued before exiting
			for {
				select {
				case req := <-s.queue:
					batch = append(batch, req)
					if len(batch) >= s.config.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func newNotification(req notification.CreateNotificationRequest) *notification.Notification {
	return &notification.Notification{
		ID:          uuid.Must(uuid.NewV7()).String(),
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		Type:        req.Type,
		Title:       req.Title,
		Message:     req.Message,
		Data:        req.Data,
		IsRead:      false,
		CreatedAt:   time.Now(),
	}
}

// deliver pushes persisted notifications to stream subscribers and the webhook
func (s *service) deliver(ctx context.Context, notifications []*notification.Notification) {
	events := make([]webhook.Event, 0, len(notifications))
	for _, n := range notifications {
		s.hub.Publish(n.RecipientID, sse.Event{
			Event: string(n.Type),
			Data:  toResponse(n),
		})
		events = append(events, webhook.Event{
			ID:          n.ID,
			Type:        string(n.Type),
			RecipientID: n.RecipientID,
			Title:       n.Title,
			Message:     n.Message,
			Data:        n.Data,
			OccurredAt:  n.CreatedAt,
		})
	}

	if s.webhook == nil {
		return
	}
	if err := s.webhook.Send(ctx, events); err != nil {
		s.log.Warn("failed to deliver notification webhook", "count", len(events), "error", err)
	}
}

// QueueNotification queues a notification for async processing
func (s *service) QueueNotification(ctx context.Context, req notification.CreateNotificationRequest) error {
	select {
	case s.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Queue full, insert directly
		return s.directInsert(ctx, req)
	}
}

func (s *service) directInsert(ctx context.Context, req notification.CreateNotificationRequest) error {
	n := newNotification(req)
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	s.deliver(ctx, []*notification.Notification{n})
	return nil
}

func toResponse(n *notification.Notification) notification.NotificationResponse {
	return notification.NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		Data:        n.Data,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
	}
}

// GetNotifications retrieves paginated notifications across the caller's channels
func (s *service) GetNotifications(ctx context.Context, recipientIDs []string, q notification.ListQuery) (*notification.NotificationListResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.Normalize()

	notifications, total, err := s.repo.GetByRecipient(ctx, recipientIDs, q)
	if err != nil {
		return nil, err
	}

	unreadCount, err := s.repo.GetUnreadCount(ctx, recipientIDs)
	if err != nil {
		return nil, err
	}

	responses := make([]notification.NotificationResponse, len(notifications))
	for i, n := range notifications {
		responses[i] = toResponse(n)
	}

	return &notification.NotificationListResponse{
		Notifications: responses,
		UnreadCount:   unreadCount,
		Total:         total,
		Page:          q.Page,
		PageSize:      q.PageSize,
	}, nil
}

// MarkAsRead marks specified notifications as read
func (s *service) MarkAsRead(ctx context.Context, recipientIDs []string, req notification.MarkAsReadRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.repo.MarkAsRead(ctx, req.NotificationIDs, recipientIDs)
}

// Subscribe creates an SSE subscription over the given channels
func (s *service) Subscribe(ctx context.Context, recipientIDs []string) (<-chan notification.SSEEvent, func()) {
	ch, cleanup := s.hub.Subscribe(recipientIDs...)

	out := make(chan notification.SSEEvent, 10)

	go func() {
		defer close(out)
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				resp, ok := event.Data.(notification.NotificationResponse)
				if !ok {
					continue
				}
				select {
				case out <- notification.SSEEvent{Event: event.Event, Data: resp}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cleanup
}

// Stop flushes queued notifications and waits for the workers
func (s *service) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.log.Info("notification service stopped")
	})
}
