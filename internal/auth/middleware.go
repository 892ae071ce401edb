package auth

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

type contextKey string

const usernameKey contextKey = "username"

// Gate resolves a session token to the username it belongs to.
type Gate interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// TokenFromRequest returns the session token carried by the request cookie.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// RequireSession rejects requests without an active session. The handler
// passed as onFail renders the rejection.
func RequireSession(gate Gate, onFail func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logrus.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"ip":     r.RemoteAddr,
			})

			username, err := gate.Authenticate(r.Context(), TokenFromRequest(r))
			if err != nil {
				log.WithError(err).Debug("auth middleware: request rejected")
				onFail(w, r, err)
				return
			}

			ctx := WithUsername(r.Context(), username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}
