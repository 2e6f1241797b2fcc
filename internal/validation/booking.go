// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ошибки разбора ссылки на страницу подтверждения бронирования.
var (
	ErrLegacyLink = errors.New("outdated booking link")
	ErrMissingID  = errors.New("booking id is missing")
	ErrInvalidID  = errors.New("booking id is invalid")
)

// DateLayout задаёт формат календарной даты в запросах.
const DateLayout = "2006-01-02"

// BookingID извлекает идентификатор бронирования из параметров ссылки подтверждения.
// Ссылки старого формата с параметром data отклоняются до любой проверки id.
func BookingID(q url.Values) (uuid.UUID, error) {
	if q.Has("data") {
		return uuid.Nil, ErrLegacyLink
	}

	raw := strings.TrimSpace(q.Get("id"))
	if raw == "" {
		return uuid.Nil, ErrMissingID
	}

	id, err := uuid.Parse(raw)
	if err != nil || id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// ParseDate разбирает календарную дату вида 2006-01-02. Пустая строка даёт nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
