package handlers

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/redis"
)

type ctxKey int

const apiKeyCtxKey ctxKey = iota

// KeyStore resolves API keys
type KeyStore interface {
	GetAPIKey(ctx context.Context, rawKey string) (*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, apiKeyID string) error
}

// RateLimiter counts requests per user
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID string, limit int) (redis.RateLimit, error)
}

type Middleware struct {
	keys    KeyStore
	limiter RateLimiter
	limit   int
	admins  []string
	log     logrus.FieldLogger
}

// NewMiddleware creates the middleware set. limiter may be nil, which
// disables rate limiting.
func NewMiddleware(keys KeyStore, limiter RateLimiter, limitPerMinute int, admins []string, logger logrus.FieldLogger) *Middleware {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	return &Middleware{
		keys:    keys,
		limiter: limiter,
		limit:   limitPerMinute,
		admins:  admins,
		log:     logger,
	}
}

// APIKeyFromContext returns the key set by AuthMiddleware
func APIKeyFromContext(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(apiKeyCtxKey).(*models.APIKey)
	return key, ok
}

// UserIDFromContext returns the authenticated user id, or ""
func UserIDFromContext(ctx context.Context) string {
	if key, ok := APIKeyFromContext(ctx); ok {
		return key.UserID
	}
	return ""
}

// AuthMiddleware validates API keys
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		apiKey, err := m.keys.GetAPIKey(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.keys.UpdateAPIKeyLastUsed(ctx, id); err != nil {
				m.log.WithError(err).Debug("[AUTH] could not update last_used_at")
			}
		}(apiKey.ID)

		ctx := context.WithValue(r.Context(), apiKeyCtxKey, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware enforces per-user request rate limits. Requests pass
// when the limiter is unreachable.
func (m *Middleware) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := UserIDFromContext(r.Context())
		if m.limiter == nil || userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		rl, err := m.limiter.CheckRateLimit(r.Context(), userID, m.limit)
		if err != nil {
			m.log.WithError(err).WithField("user_id", userID).Warn("[RATELIMIT] limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))

		if rl.Exceeded {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.ResetIn.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AdminMiddleware only lets configured admin users through
func (m *Middleware) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(m.admins, UserIDFromContext(r.Context())) {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles CORS
func (m *Middleware) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LoggerMiddleware logs one line per request
func (m *Middleware) LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		entry := m.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"took":       time.Since(start).String(),
			"request_id": chimiddleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("[HTTP] request")
			return
		}
		entry.Info("[HTTP] request")
	})
}
