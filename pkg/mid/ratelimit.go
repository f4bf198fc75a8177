package mid

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long a client's limiter is kept after its last request.
const idleTTL = 10 * time.Minute

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimit throttles each client IP to rps requests per second with the
// given burst. Throttled requests get 429. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
		sweep   time.Time
	)
	limiter := func(key string, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(sweep) > idleTTL {
			for k, c := range clients {
				if now.Sub(c.seen) > idleTTL {
					delete(clients, k)
				}
			}
			sweep = now
		}
		c, ok := clients[key]
		if !ok {
			c = &clientLimiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[key] = c
		}
		c.seen = now
		return c.lim
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter(clientIP(r), time.Now()).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
