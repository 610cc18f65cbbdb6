package http

import (
	"errors"
	"net/http"
	"time"

	"crqbank/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookieName = "crqbank_session"
	sessionIDKey      = "sessionID"
)

// SessionCookie signs the session id into an HS256 token so that a client
// cannot pick another browser's session.
type SessionCookie struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

func NewSessionCookie(secret string, ttl time.Duration, secure bool) *SessionCookie {
	return &SessionCookie{secret: []byte(secret), ttl: ttl, secure: secure}
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

func (s *SessionCookie) Encode(sessionID string, now time.Time) (string, error) {
	claims := sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  sessionID,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *SessionCookie) Decode(value string) (string, error) {
	token, err := jwt.ParseWithClaims(value, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid session token")
	}
	return claims.Subject, nil
}

// Middleware resolves the session id from the cookie, issuing a new one when
// the cookie is missing or fails verification.
func (s *SessionCookie) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, err := c.Cookie(sessionCookieName); err == nil {
			if id, err := s.Decode(raw); err == nil {
				c.Set(sessionIDKey, id)
				c.Next()
				return
			}
		}

		id := app.NewSessionID()
		value, err := s.Encode(id, time.Now())
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookieName, value, int(s.ttl/time.Second), "/", "", s.secure, true)
		c.Set(sessionIDKey, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
