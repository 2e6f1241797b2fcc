// Package middleware содержит HTTP middleware портала.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	profileKey  contextKey = "profile"
)

// SessionCookieName задаёт cookie, в которой провайдер аутентификации хранит токен сессии.
const SessionCookieName = "portal_session"

var errNoSession = errors.New("no session")

// Claims описывает поля токена провайдера аутентификации, используемые порталом.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет токен сессии, выданный внешним провайдером аутентификации.
type AuthMiddleware struct {
	secretKey []byte
	loginURL  string
}

// NewAuthMiddleware создаёт AuthMiddleware с секретом подписи HS256 и адресом страницы входа.
func NewAuthMiddleware(secret, loginURL string) *AuthMiddleware {
	if loginURL == "" {
		loginURL = "/auth/login"
	}
	return &AuthMiddleware{
		secretKey: []byte(secret),
		loginURL:  loginURL,
	}
}

// Middleware проверяет токен из заголовка Authorization или cookie сессии и добавляет
// удостоверение пользователя в контекст. Навигация браузера без сессии перенаправляется
// на страницу входа, остальные запросы получают 401.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identity(r)
		if err != nil {
			a.unauthorized(w, r)
			return
		}

		ctx := WithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken подписывает токен сессии. Используется в тестах и локальной разработке.
func (a *AuthMiddleware) IssueToken(id model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

// Parse проверяет подпись и срок действия токена и возвращает удостоверение пользователя.
func (a *AuthMiddleware) Parse(raw string) (model.Identity, error) {
	if len(a.secretKey) == 0 || raw == "" {
		return model.Identity{}, errNoSession
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return model.Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return model.Identity{}, errNoSession
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Identity{}, err
	}
	return model.Identity{UserID: userID, Email: claims.Email}, nil
}

func (a *AuthMiddleware) identity(r *http.Request) (model.Identity, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return a.Parse(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return a.Parse(c.Value)
	}
	// браузер не может передать заголовок при открытии websocket
	if t := r.URL.Query().Get("access_token"); t != "" && isWebsocket(r) {
		return a.Parse(t)
	}
	return model.Identity{}, errNoSession
}

func (a *AuthMiddleware) unauthorized(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		target := a.loginURL + "?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	WriteError(w, http.StatusUnauthorized, "unauthorized", "Please sign in to continue.")
}

// WriteError пишет ошибку в формате {code, message}.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// WithIdentity добавляет удостоверение пользователя в контекст.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext извлекает удостоверение пользователя из контекста запроса.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}

// WithProfile добавляет профиль пользователя в контекст.
func WithProfile(ctx context.Context, p *model.Profile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// ProfileFromContext извлекает профиль пользователя из контекста запроса.
func ProfileFromContext(ctx context.Context) (*model.Profile, bool) {
	p, ok := ctx.Value(profileKey).(*model.Profile)
	return p, ok && p != nil
}
