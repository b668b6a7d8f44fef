package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 3 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter ограничивает частоту запросов отдельно для каждого пользователя
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[int64]*limiterEntry
	r         rate.Limit
	burst     int
	lastSweep time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		clients:   make(map[int64]*limiterEntry),
		r:         rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Allow расходует один токен пользователя
func (rl *RateLimiter) Allow(userID int64) bool {
	return rl.get(userID).Allow()
}

func (rl *RateLimiter) get(userID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > time.Minute {
		for id, c := range rl.clients {
			if now.Sub(c.seen) > limiterIdle {
				delete(rl.clients, id)
			}
		}
		rl.lastSweep = now
	}

	if c, ok := rl.clients[userID]; ok {
		c.seen = now
		return c.lim
	}

	l := rate.NewLimiter(rl.r, rl.burst)
	rl.clients[userID] = &limiterEntry{lim: l, seen: now}
	return l
}

// RateLimit отвечает 429, если пользователь исчерпал лимит
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFrom(r.Context())
		if !s.limiter.Allow(userID) {
			s.writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Code:    "RATE_LIMITED",
				Message: "too many requests, try again later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
