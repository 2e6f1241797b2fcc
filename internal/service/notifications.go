package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

// NotificationPage описывает страницу ленты уведомлений.
type NotificationPage struct {
	Items       []model.Notification
	Page        int
	PageSize    int
	Total       int
	TotalPages  int
	UnreadCount int
}

// feedScope возвращает ленту и владельца для пользователя. Лента администраторов общая.
func feedScope(actor *model.Profile, feed model.Feed) (*uuid.UUID, error) {
	switch feed {
	case model.FeedCustomer:
		id := actor.ID
		return &id, nil
	case model.FeedAdmin:
		if !actor.IsAdmin() {
			return nil, ErrForbidden
		}
		return nil, nil
	}
	return nil, invalid("feed", "unknown feed")
}

// ListNotifications возвращает страницу ленты. Фильтр применяется только к ленте клиента.
func (s *Service) ListNotifications(ctx context.Context, actor *model.Profile, feed model.Feed, filter model.NotificationFilter, page int) (*NotificationPage, error) {
	owner, err := feedScope(actor, feed)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	q := repository.NotificationQuery{
		Feed:      feed,
		ProfileID: owner,
		Limit:     feed.PageSize(),
		Offset:    (page - 1) * feed.PageSize(),
	}
	if feed == model.FeedCustomer {
		if filter == "" {
			filter = model.FilterAll
		}
		if !filter.Valid() {
			return nil, invalid("filter", "unknown filter")
		}
		if filter == model.FilterUnread {
			q.UnreadOnly = true
		}
		if c, ok := filter.Category(); ok {
			q.Types = model.NotificationTypesIn(c)
		}
	}

	items, total, err := s.repo.ListNotifications(ctx, q)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnreadNotifications(ctx, feed, owner)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Notification{}
	}

	size := feed.PageSize()
	return &NotificationPage{
		Items:       items,
		Page:        page,
		PageSize:    size,
		Total:       total,
		TotalPages:  (total + size - 1) / size,
		UnreadCount: unread,
	}, nil
}

// SetNotificationRead меняет признак прочтения записи и возвращает новое число непрочитанных.
// Повторная установка того же значения счётчик не меняет.
func (s *Service) SetNotificationRead(ctx context.Context, actor *model.Profile, feed model.Feed, id uuid.UUID, read bool) (int, error) {
	owner, err := feedScope(actor, feed)
	if err != nil {
		return 0, err
	}
	if _, err := s.repo.SetNotificationRead(ctx, feed, owner, id, read); err != nil {
		return 0, err
	}
	return s.repo.CountUnreadNotifications(ctx, feed, owner)
}

// MarkAllNotificationsRead отмечает прочитанными все записи ленты.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, actor *model.Profile, feed model.Feed) (int64, error) {
	owner, err := feedScope(actor, feed)
	if err != nil {
		return 0, err
	}
	return s.repo.MarkAllNotificationsRead(ctx, feed, owner)
}

// UnreadCount возвращает число непрочитанных записей ленты.
func (s *Service) UnreadCount(ctx context.Context, actor *model.Profile, feed model.Feed) (int, error) {
	owner, err := feedScope(actor, feed)
	if err != nil {
		return 0, err
	}
	return s.repo.CountUnreadNotifications(ctx, feed, owner)
}
