// Package formrelay пересылает заявки соискателей во внешний сервис обработки форм.
package formrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// ErrNotConfigured возвращается, если адрес сервиса форм не задан.
var ErrNotConfigured = errors.New("form relay not configured")

// Application описывает анкету соискателя.
type Application struct {
	FormType         string   `json:"form_type"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone"`
	City             string   `json:"city,omitempty"`
	Position         string   `json:"position,omitempty"`
	Experience       string   `json:"experience,omitempty"`
	Availability     []string `json:"availability,omitempty"`
	HasTransport     bool     `json:"has_transportation"`
	AuthorizedToWork bool     `json:"authorized_to_work"`
	Message          string   `json:"message,omitempty"`
}

// Client отправляет анкеты в сервис форм.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient создаёт клиент сервиса форм. При пустом endpoint отправка возвращает ErrNotConfigured.
func NewClient(endpoint string) *Client {
	httpClient := cleanhttp.DefaultClient()
	httpClient.Timeout = 10 * time.Second

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

// Submit отправляет анкету. Ответ сервиса с кодом вне 2xx считается ошибкой.
func (c *Client) Submit(ctx context.Context, app Application) error {
	if c == nil || c.endpoint == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
