package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

// NotificationQuery задаёт выборку из ленты уведомлений.
type NotificationQuery struct {
	Feed       model.Feed
	ProfileID  *uuid.UUID
	UnreadOnly bool
	Types      []model.NotificationType
	Limit      int
	Offset     int
}

// feedTable возвращает таблицу ленты и имя колонки признака прочтения.
func feedTable(f model.Feed) (table, readColumn string) {
	switch f {
	case model.FeedAdmin:
		return "admin_notifications", "read"
	case model.FeedCustomer:
		return "notifications", "is_read"
	}
	return "notifications", "is_read"
}

// feedScope возвращает условие принадлежности записи ленте и его аргументы.
func feedScope(f model.Feed, profileID *uuid.UUID) (string, []any) {
	if f == model.FeedAdmin || profileID == nil {
		return "TRUE", nil
	}
	return "profile_id = $1", []any{*profileID}
}

// InsertNotification добавляет запись в ленту. Для ленты администраторов ProfileID игнорируется.
func (r *PostgresRepository) InsertNotification(ctx context.Context, feed model.Feed, n *model.Notification) error {
	var err error
	switch feed {
	case model.FeedAdmin:
		err = r.pool.QueryRow(ctx,
			`INSERT INTO admin_notifications (type, title, message, link)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			string(n.Type), n.Title, n.Message, n.Link,
		).Scan(&n.ID, &n.CreatedAt)
	case model.FeedCustomer:
		if n.ProfileID == nil {
			return fmt.Errorf("customer notification without profile")
		}
		err = r.pool.QueryRow(ctx,
			`INSERT INTO notifications (profile_id, type, title, message, link)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, created_at`,
			*n.ProfileID, string(n.Type), n.Title, n.Message, n.Link,
		).Scan(&n.ID, &n.CreatedAt)
	default:
		return fmt.Errorf("unknown feed %q", feed)
	}
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications возвращает страницу ленты, новые записи первыми, и общее число записей под фильтром.
func (r *PostgresRepository) ListNotifications(ctx context.Context, q NotificationQuery) ([]model.Notification, int, error) {
	table, readCol := feedTable(q.Feed)
	where, args := feedScope(q.Feed, q.ProfileID)

	if q.UnreadOnly {
		where += " AND NOT " + readCol
	}
	if len(q.Types) > 0 {
		types := make([]string, 0, len(q.Types))
		for _, t := range q.Types {
			types = append(types, string(t))
		}
		args = append(args, types)
		where += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s`, table, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	profileCol := "profile_id"
	if q.Feed == model.FeedAdmin {
		profileCol = "NULL::uuid"
	}
	args = append(args, q.Limit, q.Offset)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, %s, type, title, message, link, %s, read_at, created_at
		 FROM %s WHERE %s
		 ORDER BY created_at DESC, id
		 LIMIT $%d OFFSET $%d`, profileCol, readCol, table, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var (
			n model.Notification
			t string
		)
		if err := rows.Scan(&n.ID, &n.ProfileID, &t, &n.Title, &n.Message, &n.Link, &n.Read, &n.ReadAt,
			&n.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(t)
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return res, total, nil
}

// SetNotificationRead меняет признак прочтения одной записи.
// changed = false, если запись уже находилась в состоянии read.
func (r *PostgresRepository) SetNotificationRead(ctx context.Context, feed model.Feed, profileID *uuid.UUID, id uuid.UUID, read bool) (bool, error) {
	table, readCol := feedTable(feed)
	where, args := feedScope(feed, profileID)
	args = append(args, id, read)
	idArg, readArg := len(args)-1, len(args)

	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %[1]s
		 SET %[2]s = $%[4]d, read_at = CASE WHEN $%[4]d THEN now() ELSE NULL END
		 WHERE %[3]s AND id = $%[5]d AND %[2]s <> $%[4]d`, table, readCol, where, readArg, idArg),
		args...)
	if err != nil {
		return false, fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s AND id = $%d)`, table, where, idArg),
		args[:idArg]...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// MarkAllNotificationsRead помечает прочитанными все записи ленты и возвращает их число.
func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, feed model.Feed, profileID *uuid.UUID) (int64, error) {
	table, readCol := feedTable(feed)
	where, args := feedScope(feed, profileID)

	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = TRUE, read_at = now() WHERE %s AND NOT %s`, table, readCol, where, readCol),
		args...)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountUnreadNotifications возвращает число непрочитанных записей ленты.
func (r *PostgresRepository) CountUnreadNotifications(ctx context.Context, feed model.Feed, profileID *uuid.UUID) (int, error) {
	table, readCol := feedTable(feed)
	where, args := feedScope(feed, profileID)

	var n int
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s AND NOT %s`, table, where, readCol), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// GetAdminNotification возвращает запись ленты администраторов для рассылки по websocket.
func (r *PostgresRepository) GetAdminNotification(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var (
		n model.Notification
		t string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, type, title, message, link, read, read_at, created_at FROM admin_notifications WHERE id = $1`, id,
	).Scan(&n.ID, &t, &n.Title, &n.Message, &n.Link, &n.Read, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin notification: %w", err)
	}
	n.Type = model.NotificationType(t)
	return &n, nil
}
