package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"opschat/auth"
	"opschat/domain"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const identityKey = "identity"

// Authenticated validates the bearer token and injects the identity into
// the request context. The websocket handshake cannot set headers from a
// browser, so a ?token= query parameter is accepted as a fallback.
func Authenticated(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		identity, err := tokens.Validate(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFrom extracts the authenticated identity placed by Authenticated.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

// ipRateLimiter manages one token bucket per client IP. This shields the
// REST surface as a whole; the per-sender message window lives in the
// ingestion pipeline and is a separate gate.
type ipRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*ipEntry
	r       rate.Limit
	burst   int
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(r rate.Limit, burst int) *ipRateLimiter {
	rl := &ipRateLimiter{
		clients: make(map[string]*ipEntry),
		r:       r,
		burst:   burst,
	}
	go rl.cleanup()
	return rl
}

func (rl *ipRateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, entry := range rl.clients {
			if time.Since(entry.lastSeen) > 3*time.Minute {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *ipRateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.clients[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// IPRateLimit rejects clients exceeding r requests per second with the
// given burst.
func IPRateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	limiter := newIPRateLimiter(r, burst)
	return func(c *gin.Context) {
		if !limiter.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
