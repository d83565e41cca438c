package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type ipWindow struct {
	count int
	start time.Time
}

// RateLimiter ограничивает число запросов с одного IP в фиксированном окне
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests map[string]*ipWindow
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	limiter := &RateLimiter{
		limit:    limit,
		window:   window,
		requests: make(map[string]*ipWindow),
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

// cleanup удаляет окна, которые давно закончились
func (r *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			now := r.now()
			for ip, w := range r.requests {
				if now.Sub(w.start) > r.window {
					delete(r.requests, ip)
				}
			}
			r.mu.Unlock()
		}
	}
}

// Stop останавливает фоновую очистку
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *RateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.requests[ip]
	if !ok || now.Sub(w.start) >= r.window {
		r.requests[ip] = &ipWindow{count: 1, start: now}
		return true
	}
	if w.count >= r.limit {
		return false
	}
	w.count++
	return true
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip := clientIP(req)
		if !r.Allow(ip) {
			logrus.Warnf("Rate limit exceeded for IP: %s", ip)
			WriteError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		next.ServeHTTP(w, req)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
