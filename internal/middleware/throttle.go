package middleware

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	visitorIdle   = 10 * time.Minute
	sweepInterval = 5 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle ограничивает частоту запросов с одного адреса
type Throttle struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
	logger    *zap.Logger
}

// NewThrottle создаёт Throttle: rps запросов в секунду с пиком burst
func NewThrottle(rps float64, burst int, logger *zap.Logger) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		visitors:  make(map[string]*visitor),
		rate:      rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
		logger:    logger,
	}
}

// limiter возвращает ограничитель адреса, создавая его при необходимости.
// Заодно удаляет давно не появлявшиеся адреса.
func (t *Throttle) limiter(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastSweep) > sweepInterval {
		for key, v := range t.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(t.visitors, key)
			}
		}
		t.lastSweep = now
	}

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Middleware отклоняет запросы сверх лимита кодом 429
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetClientIP(r)
		if !t.limiter(ip).AllowN(t.now(), 1) {
			t.logger.Debug("Request throttled", zap.String("client_ip", ip), zap.String("uri", r.RequestURI))
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
