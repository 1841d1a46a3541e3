package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkosyakov/authcore/internal/handlers/render"
)

// RateLimit applies a token-bucket limit per client IP. Meant for the
// credential endpoints, where unlimited guessing is the attack.
func RateLimit(burst int, perSecond int) func(http.Handler) http.Handler {
	type bucket struct {
		lim  *rate.Limiter
		seen time.Time
	}

	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
	)

	const ttl = 5 * time.Minute

	// Drop buckets idle longer than the TTL so the map stays bounded
	go func() {
		for range time.Tick(time.Minute) {
			mu.Lock()
			now := time.Now()
			for k, b := range buckets {
				if now.Sub(b.seen) > ttl {
					delete(buckets, k)
				}
			}
			mu.Unlock()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			mu.Lock()
			b, ok := buckets[ip]
			if !ok {
				b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
				buckets[ip] = b
			}
			b.seen = time.Now()
			mu.Unlock()

			if !b.lim.Allow() {
				render.ServiceError(w, "Too many requests", http.StatusTooManyRequests)
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
