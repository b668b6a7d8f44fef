package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

var ErrBadToken = errors.New("invalid token")

type ctxKey string

const (
	userIDKey    ctxKey = "uid"
	requestIDKey ctxKey = "request_id"
)

// Claims токен доступа; Subject - ID пользователя
type Claims struct {
	jwt.RegisteredClaims
}

// MakeToken выпускает токен доступа для пользователя
func MakeToken(userID int64, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// ParseToken проверяет подпись и срок токена и возвращает ID пользователя
func ParseToken(raw, secret string) (int64, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// только HMAC
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, err
	}

	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return 0, ErrBadToken
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrBadToken
	}

	return userID, nil
}

// Authenticate пропускает только запросы с валидным Bearer-токеном.
// Websocket-клиенты могут передать токен в параметре access_token.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			raw = r.URL.Query().Get("access_token")
		}

		if raw == "" {
			s.writeError(w, r, apperr.New(apperr.KindUnauthorized, "authorization token required"))
			return
		}

		userID, err := ParseToken(raw, s.secret)
		if err != nil {
			s.writeError(w, r, apperr.New(apperr.KindUnauthorized, "invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFrom достаёт ID пользователя, положенный Authenticate
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
