// Package botcheck проверяет токены защиты публичных форм от ботов (Cloudflare Turnstile).
package botcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultVerifyURL адрес проверки токенов Turnstile.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// ErrRejected возвращается, если сервис проверки не подтвердил токен.
var ErrRejected = errors.New("bot check failed")

// Client инкапсулирует HTTP-взаимодействие с сервисом проверки токенов.
type Client struct {
	verifyURL  string
	secret     string
	httpClient *http.Client
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// NewClient создаёт клиент проверки. При пустом secret принимается любой токен.
func NewClient(verifyURL, secret string) *Client {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	httpClient := cleanhttp.DefaultClient()
	httpClient.Timeout = 5 * time.Second

	return &Client{
		verifyURL:  strings.TrimRight(verifyURL, "/"),
		secret:     secret,
		httpClient: httpClient,
	}
}

// Verify проверяет токен формы. remoteIP передаётся сервису проверки, если известен.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) error {
	if c == nil || c.secret == "" {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: missing token", ErrRejected)
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(result.ErrorCodes, ","))
	}
	return nil
}
