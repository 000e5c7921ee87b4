package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const sessionIDKey contextKey = "sessionID"

const (
	sessionCookieName = "cart_session"
	sessionCookieTTL  = 90 * 24 * time.Hour
)

// Session выдаёт браузеру анонимный идентификатор сессии и добавляет его в
// контекст запроса. Идентификатор связывает корзину и отложенный маркер
// покупки с конкретным браузером независимо от аутентификации.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			if _, err := uuid.Parse(cookie.Value); err == nil {
				sid = cookie.Value
			}
		}

		if sid == "" {
			sid = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    sid,
				Path:     "/",
				Expires:  time.Now().Add(sessionCookieTTL),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionIDFromContext извлекает идентификатор сессии из контекста запроса.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDKey).(string)
	return sid, ok
}
