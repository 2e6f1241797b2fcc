package handler

import (
	"net/http"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

// ListNotifications возвращает страницу ленты. Параметр filter учитывается только в ленте клиента.
func (h *Handler) ListNotifications(feed model.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := model.FilterAll
		if f := r.URL.Query().Get("filter"); f != "" && feed == model.FeedCustomer {
			filter = model.NotificationFilter(f)
			if !filter.Valid() {
				writeErr(w, http.StatusUnprocessableEntity, "validation_failed",
					"filter must be one of: all unread payments invoices system", "filter")
				return
			}
		}

		page, err := h.service.ListNotifications(r.Context(), actor(r), feed, filter, queryPage(r))
		if err != nil {
			h.fail(w, r, "list notifications", err)
			return
		}
		writeJSON(w, http.StatusOK, toNotificationPage(page))
	}
}

// UnreadCount возвращает число непрочитанных записей ленты.
func (h *Handler) UnreadCount(feed model.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.service.UnreadCount(r.Context(), actor(r), feed)
		if err != nil {
			h.fail(w, r, "unread count", err)
			return
		}
		writeJSON(w, http.StatusOK, unreadResponse{UnreadCount: n})
	}
}

// SetNotificationRead отмечает запись прочитанной или непрочитанной и возвращает новое число непрочитанных.
func (h *Handler) SetNotificationRead(feed model.Feed, read bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		n, err := h.service.SetNotificationRead(r.Context(), actor(r), feed, id, read)
		if err != nil {
			h.fail(w, r, "set notification read", err)
			return
		}
		writeJSON(w, http.StatusOK, unreadResponse{UnreadCount: n})
	}
}

// MarkAllNotificationsRead отмечает прочитанными все записи ленты.
func (h *Handler) MarkAllNotificationsRead(feed model.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.service.MarkAllNotificationsRead(r.Context(), actor(r), feed); err != nil {
			h.fail(w, r, "mark all notifications read", err)
			return
		}
		writeJSON(w, http.StatusOK, unreadResponse{UnreadCount: 0})
	}
}
