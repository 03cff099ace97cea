// Package middleware содержит HTTP middleware сервиса бонусов филиалов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 30 * 24 * time.Hour
)

// AuthMiddleware проверяет подписанный cookie менеджера филиала.
type AuthMiddleware struct {
	secretKey []byte
	secure    bool
}

// NewAuthMiddleware создаёт AuthMiddleware. При пустом секрете генерируется случайный ключ,
// и выданные cookie перестают действовать после перезапуска.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("middleware: generate auth key: " + err.Error())
		}
	}

	return &AuthMiddleware{secretKey: key}
}

// WithSecureCookie включает флаг Secure у выдаваемых cookie.
func (a *AuthMiddleware) WithSecureCookie(secure bool) *AuthMiddleware {
	a.secure = secure
	return a
}

// Middleware пропускает запрос дальше только с валидным cookie и кладёт идентификатор
// пользователя в контекст.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
			return
		}

		userID, ok := a.parseToken(cookie.Value)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid auth token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie выдаёт cookie авторизации для пользователя userID.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, userID int64) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    a.token(userID),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookie удаляет cookie авторизации.
func (a *AuthMiddleware) ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) token(userID int64) string {
	id := strconv.FormatInt(userID, 10)
	return id + "." + a.sign(id)
}

func (a *AuthMiddleware) parseToken(value string) (int64, bool) {
	id, signature, found := strings.Cut(value, ".")
	if !found || id == "" {
		return 0, false
	}

	if !hmac.Equal([]byte(signature), []byte(a.sign(id))) {
		return 0, false
	}

	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}

	return userID, true
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// WithUserID кладёт идентификатор пользователя в контекст.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
