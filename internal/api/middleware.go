package api

import (
	"strings"
	"sync"
	"time"

	"example.com/backstage/services/charity/config"
	"example.com/backstage/services/charity/internal/metrics"
	"example.com/backstage/services/charity/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Constants for middleware
const (
	requestIDKey = "X-Request-ID"
	actorKey     = "actor"
)

// RequestIDMiddleware adds a request ID to the context
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get request ID from header or generate a new one
		requestID := c.GetHeader(requestIDKey)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(requestIDKey, requestID)

		c.Next()
	}
}

// CORSMiddleware allows the configured origins
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDKey},
		ExposeHeaders:    []string{requestIDKey},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// LoggingMiddleware logs API requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(requestIDKey)).
			Msg("API request")
	}
}

// MetricsMiddleware records request counts and latency by route
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// NewRelicMiddleware returns a gin middleware for New Relic tracing
func NewRelicMiddleware(app *newrelic.Application) gin.HandlerFunc {
	return nrgin.Middleware(app)
}

// Claims are the bearer token claims issued by the auth service
type Claims struct {
	Admin  bool `json:"admin"`
	CityID uint `json:"city_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens
type Authenticator struct {
	secret []byte
	issuer string
}

// ErrMissingSecret is returned when no token signing secret is configured
var ErrMissingSecret = errors.New("auth.jwt_secret is not set")

// NewAuthenticator creates a new authenticator. An empty secret is refused.
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, ErrMissingSecret
	}
	return &Authenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}, nil
}

// Parse validates a token and returns the actor it identifies
func (a *Authenticator) Parse(tokenString string) (services.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if len(a.secret) == 0 {
			return nil, ErrMissingSecret
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return services.Actor{}, errors.Wrap(err, "invalid bearer token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return services.Actor{}, errors.New("invalid bearer token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return services.Actor{}, errors.Wrap(err, "invalid subject claim")
	}

	return services.Actor{UserID: userID, IsAdmin: claims.Admin, CityID: claims.CityID}, nil
}

// Middleware attaches the caller to the context when a bearer token is
// present. A present but invalid token is rejected.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			WriteError(c, ErrUnauthorized)
			return
		}

		actor, err := a.Parse(tokenString)
		if err != nil {
			log.Debug().Err(err).Str("request_id", c.GetString(requestIDKey)).Msg("Rejected bearer token")
			WriteError(c, ErrUnauthorized)
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireUser rejects anonymous callers
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorFrom(c).Anonymous() {
			WriteError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// actorFrom returns the authenticated caller, or the anonymous actor
func actorFrom(c *gin.Context) services.Actor {
	if value, ok := c.Get(actorKey); ok {
		if actor, ok := value.(services.Actor); ok {
			return actor
		}
	}
	return services.Actor{}
}

// RateLimiter limits requests per caller
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	metrics  *metrics.Metrics
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond, burst int, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		metrics:  m,
	}
}

// getLimiter returns the limiter for the given key (user ID or client IP)
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if actor := actorFrom(c); !actor.Anonymous() {
			key = actor.UserID.String()
		}

		if !rl.getLimiter(key).Allow() {
			rl.metrics.IncrementCounter(metrics.RateLimited)
			log.Warn().
				Str("key", key).
				Str("path", c.Request.URL.Path).
				Msg("Rate limit exceeded")
			WriteError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// Cleanup drops all limiters once the table grows large
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}
