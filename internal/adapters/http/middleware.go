package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a per-browser id in the cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			s.Set("ct", token)
			_ = s.Save()
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func CORSMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return func(c *gin.Context) {
		cc.HandlerFunc(c.Writer, c.Request)
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Limiters hands out one token bucket per client token.
type Limiters struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*limiterEntry
}

type limiterEntry struct {
	l    *rate.Limiter
	seen time.Time
}

const limiterIdle = 10 * time.Minute

func NewLimiters(perSecond float64, burst int) *Limiters {
	l := rate.Limit(perSecond)
	if perSecond <= 0 {
		l = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiters{limit: l, burst: burst, clients: make(map[string]*limiterEntry)}
}

func (ls *Limiters) Allow(client string) bool {
	now := time.Now()
	ls.mu.Lock()
	e, ok := ls.clients[client]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(ls.limit, ls.burst)}
		ls.clients[client] = e
	}
	e.seen = now
	for id, other := range ls.clients {
		if now.Sub(other.seen) > limiterIdle {
			delete(ls.clients, id)
		}
	}
	ls.mu.Unlock()
	return e.l.AllowN(now, 1)
}

func RateLimitMiddleware(ls *Limiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ls.Allow(c.GetString(clientTokenKey)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
