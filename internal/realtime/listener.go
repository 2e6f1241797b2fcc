package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

// Channel задаёт канал NOTIFY, в который пишет триггер таблицы admin_notifications.
const Channel = "admin_notifications_changes"

const (
	minRetryDelay = time.Second
	maxRetryDelay = 30 * time.Second
	closeTimeout  = 5 * time.Second
)

// NotificationSource загружает уведомление администратора по идентификатору.
type NotificationSource interface {
	GetAdminNotification(ctx context.Context, id uuid.UUID) (*model.Notification, error)
}

// Event описывает сообщение, отправляемое клиентам ленты.
type Event struct {
	Operation    string            `json:"operation"`
	Notification NotificationEvent `json:"notification"`
}

// NotificationEvent описывает уведомление в сообщении ленты.
type NotificationEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// subscription владеет соединением, на котором выполнен LISTEN.
// Соединение закрывается целиком и в пул не возвращается.
type subscription interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type changePayload struct {
	Operation string    `json:"operation"`
	ID        uuid.UUID `json:"id"`
}

// Listener подписывается на канал изменений ленты администратора и рассылает
// изменённые уведомления через Hub.
type Listener struct {
	connect func(ctx context.Context) (subscription, error)
	source  NotificationSource
	hub     *Hub
	logger  *zap.Logger
}

// NewListener создаёт Listener.
func NewListener(pool *pgxpool.Pool, source NotificationSource, hub *Hub, logger *zap.Logger) *Listener {
	connect := func(ctx context.Context) (subscription, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return conn.Hijack(), nil
	}
	return &Listener{connect: connect, source: source, hub: hub, logger: logger}
}

// Run слушает канал до отмены контекста. При потере соединения подписка
// восстанавливается с растущей задержкой.
func (l *Listener) Run(ctx context.Context) error {
	delay := minRetryDelay
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("notification listener disconnected", zap.Error(err), zap.Duration("retryIn", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.connect(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := conn.Close(closeCtx); err != nil {
			l.logger.Warn("close listener connection", zap.Error(err))
		}
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("listening for admin notification changes", zap.String("channel", Channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		if err := l.handle(ctx, n.Payload); err != nil {
			l.logger.Error("handle notification change", zap.Error(err), zap.String("payload", n.Payload))
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload string) error {
	var change changePayload
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	n, err := l.source.GetAdminNotification(ctx, change.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}

	return l.hub.Broadcast(Event{
		Operation: change.Operation,
		Notification: NotificationEvent{
			ID:        n.ID,
			Type:      string(n.Type),
			Category:  string(n.Type.Category()),
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		},
	})
}
