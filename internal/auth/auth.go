package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUser      = errors.New("username already exists")
)

// CookieName is the cookie that carries the signed session token.
const CookieName = "privacyx_session"

// Claims identify a session: Subject is the username, ID the session id.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is how long an issued token stays valid.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

func (t *TokenIssuer) Generate(username, sessionID string) (string, error) {
	logrus.WithField("username", username).Debug("generating session token")

	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"username": username,
			"error":    err,
		}).Error("failed to sign session token")
		return "", err
	}
	return signed, nil
}

// Validate parses a token and returns its claims. Any failure is reported as
// ErrNotAuthenticated.
func (t *TokenIssuer) Validate(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrNotAuthenticated
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		logrus.WithError(err).Debug("failed to parse session token")
		return nil, ErrNotAuthenticated
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		logrus.Warn("session token carries invalid claims")
		return nil, ErrNotAuthenticated
	}
	return claims, nil
}
