package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmattdonk/solrock-eventsub/internal/auth"
)

// authMiddleware checks the bearer token against the API secret.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := auth.Authenticate(r, s.config.APISecret)
		if err != nil {
			s.logger.Warn("admin request rejected", "path", r.URL.Path, "error", err)
			s.writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// rateLimitMiddleware applies the registration token bucket of the calling
// client. It runs before authentication so it also slows down secret
// guessing, and one client cannot exhaust another's bucket.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiters.allow(clientKey(r), time.Now()) {
			s.metrics.RateLimited()
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller. RealIP has already replaced RemoteAddr
// when a proxy header is present; otherwise the port is stripped.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

const (
	maxTrackedClients = 1024
	clientIdleTTL     = 10 * time.Minute
)

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters keeps one token bucket per client key.
type clientLimiters struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimit
}

func newClientLimiters(limit rate.Limit, burst int) *clientLimiters {
	return &clientLimiters{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimit),
	}
}

func (c *clientLimiters) allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.clients[key]
	if !ok {
		if len(c.clients) >= maxTrackedClients {
			c.pruneLocked(now)
		}
		cl = &clientLimit{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// pruneLocked drops idle clients. Fresh buckets are full, so forgetting an
// idle client never makes it stricter.
func (c *clientLimiters) pruneLocked(now time.Time) {
	for key, cl := range c.clients {
		if now.Sub(cl.lastSeen) > clientIdleTTL {
			delete(c.clients, key)
		}
	}
}
