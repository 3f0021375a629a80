package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/cache"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
)

// Pinger is a dependency checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

type UsageHandler struct {
	accountant *usage.Accountant
	cache      *cache.AgentCache
	log        logrus.FieldLogger
}

func NewUsageHandler(accountant *usage.Accountant, agentCache *cache.AgentCache, logger logrus.FieldLogger) *UsageHandler {
	return &UsageHandler{
		accountant: accountant,
		cache:      agentCache,
		log:        logger,
	}
}

// HandleStatus handles GET /v1/usage
func (h *UsageHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.accountant.Status(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CacheStatsResponse is the body of GET /v1/admin/cache
type CacheStatsResponse struct {
	Cache      cache.Stats     `json:"cache"`
	Accounting usage.PathStats `json:"accounting"`
}

// HandleCacheStats handles GET /v1/admin/cache
func (h *UsageHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CacheStatsResponse{
		Cache:      h.cache.Stats(),
		Accounting: h.accountant.PathStats(),
	})
}

// HandleCacheClear handles DELETE /v1/admin/cache
func (h *UsageHandler) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	h.log.WithField("user_id", UserIDFromContext(r.Context())).Info("[CACHE] cleared by admin")
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler reports the state of each dependency
func HealthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
	}
}
