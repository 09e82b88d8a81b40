package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dispatchly/backend/internal/metrics"
	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/realtime"
	repo "github.com/dispatchly/backend/internal/repository"
)

const notifyTimeout = 10 * time.Second

// Notice is one user-facing notification. It is stored, pushed, optionally
// emailed or texted, and published to the user's realtime room as Event.
type Notice struct {
	UserID  string
	Type    models.NotificationType
	Title   string
	Message string
	Data    map[string]any
	Email   bool
	SMS     bool

	// Event names the realtime event; empty means "notification".
	Event   string
	Payload any
}

type PushSender interface {
	SendPush(ctx context.Context, userID, title, body string, data map[string]any) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Submitter runs jobs in the background. TrySubmit must not wait for a
// queue slot.
type Submitter interface {
	TrySubmit(func()) error
}

// LogSender stands in for push, email and SMS providers by logging what
// would have been sent.
type LogSender struct{ Log *slog.Logger }

func (s LogSender) SendPush(ctx context.Context, userID, title, _ string, _ map[string]any) error {
	s.Log.DebugContext(ctx, "push", "user_id", userID, "title", title)
	return nil
}

func (s LogSender) SendEmail(ctx context.Context, to, subject, _ string) error {
	s.Log.DebugContext(ctx, "email", "to", to, "subject", subject)
	return nil
}

func (s LogSender) SendSMS(ctx context.Context, to, _ string) error {
	s.Log.DebugContext(ctx, "sms", "to", to)
	return nil
}

// NotificationService delivers lifecycle events off the request path. No
// delivery failure is ever returned to the caller that raised the event.
type NotificationService struct {
	store repo.Store
	pool  Submitter
	pub   realtime.Publisher
	push  PushSender
	email EmailSender
	sms   SMSSender
	log   *slog.Logger
}

type NotificationDeps struct {
	Store repo.Store
	Pool  Submitter
	Pub   realtime.Publisher
	Push  PushSender
	Email EmailSender
	SMS   SMSSender
}

func NewNotificationService(d NotificationDeps, log *slog.Logger) *NotificationService {
	log = log.With("svc", "notifications")
	fallback := LogSender{Log: log}
	s := &NotificationService{
		store: d.Store,
		pool:  d.Pool,
		pub:   d.Pub,
		push:  d.Push,
		email: d.Email,
		sms:   d.SMS,
		log:   log,
	}
	if s.push == nil {
		s.push = fallback
	}
	if s.email == nil {
		s.email = fallback
	}
	if s.sms == nil {
		s.sms = fallback
	}
	return s
}

// detach keeps ctx values (request logger, ids) but drops its cancellation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
}

func (s *NotificationService) submit(ctx context.Context, what string, job func(context.Context)) {
	err := s.pool.TrySubmit(func() {
		jctx, cancel := detach(ctx)
		defer cancel()
		job(jctx)
	})
	if err != nil {
		s.log.WarnContext(ctx, "dropping background job", "job", what, "err", err)
	}
}

// Notify queues n for delivery and returns immediately.
func (s *NotificationService) Notify(ctx context.Context, n Notice) {
	s.submit(ctx, "notify", func(ctx context.Context) { s.deliver(ctx, n) })
}

// Publish queues a realtime event and returns immediately.
func (s *NotificationService) Publish(ctx context.Context, room, event string, payload any) {
	s.submit(ctx, "publish", func(ctx context.Context) {
		s.publish(ctx, room, event, payload)
	})
}

func (s *NotificationService) publish(ctx context.Context, room, event string, payload any) {
	if err := s.pub.Publish(ctx, room, event, payload); err != nil {
		s.failed(ctx, "realtime", err, "room", room, "event", event)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("realtime", "ok").Inc()
}

func (s *NotificationService) failed(ctx context.Context, channel string, err error, args ...any) {
	metrics.NotificationsTotal.WithLabelValues(channel, "error").Inc()
	s.log.WarnContext(ctx, "notification delivery failed", append([]any{"channel", channel, "err", err}, args...)...)
}

func (s *NotificationService) deliver(ctx context.Context, n Notice) {
	r := s.store.Repos()
	saved, err := r.Notifications.Create(ctx, models.Notification{
		UserID:  n.UserID,
		Type:    n.Type,
		Title:   n.Title,
		Message: n.Message,
		Data:    n.Data,
	})
	if err != nil {
		s.failed(ctx, "store", err, "user_id", n.UserID)
	}

	if err := s.push.SendPush(ctx, n.UserID, n.Title, n.Message, n.Data); err != nil {
		s.failed(ctx, "push", err, "user_id", n.UserID)
	} else {
		metrics.NotificationsTotal.WithLabelValues("push", "ok").Inc()
	}

	if n.Email || n.SMS {
		u, err := r.Users.GetByID(ctx, n.UserID)
		if err != nil {
			s.failed(ctx, "lookup", err, "user_id", n.UserID)
		} else {
			if n.Email {
				if err := s.email.SendEmail(ctx, u.Email, n.Title, n.Message); err != nil {
					s.failed(ctx, "email", err, "user_id", n.UserID)
				} else {
					metrics.NotificationsTotal.WithLabelValues("email", "ok").Inc()
				}
			}
			if n.SMS && u.Phone != "" {
				if err := s.sms.SendSMS(ctx, u.Phone, n.Message); err != nil {
					s.failed(ctx, "sms", err, "user_id", n.UserID)
				} else {
					metrics.NotificationsTotal.WithLabelValues("sms", "ok").Inc()
				}
			}
		}
	}

	event, payload := n.Event, n.Payload
	if event == "" {
		event, payload = "notification", saved
	}
	s.publish(ctx, realtime.UserRoom(n.UserID), event, payload)
}

func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	return s.store.Repos().Notifications.ListByUser(ctx, userID, unreadOnly)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (models.Notification, error) {
	n, err := s.store.Repos().Notifications.MarkRead(ctx, userID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.Repos().Notifications.MarkAllRead(ctx, userID)
}
