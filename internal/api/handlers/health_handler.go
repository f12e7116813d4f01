package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/isdelr/postkeep-be/internal/cache"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

const healthPingTimeout = 2 * time.Second

// Pinger checks that the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStatter reports post cache counters.
type CacheStatter interface {
	Stats() cache.Stats
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string       `json:"status"`
	Storage       string       `json:"storage"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
	Goroutines    int          `json:"goroutines"`
	MemoryRSS     uint64       `json:"memoryRss"`
	CPUPercent    float64      `json:"cpuPercent"`
	Cache         *cache.Stats `json:"cache,omitempty"`
}

// HealthHandler reports liveness, storage reachability and process usage.
type HealthHandler struct {
	store   Pinger
	cache   CacheStatter
	started time.Time
	proc    *process.Process
}

// NewHealthHandler creates a new HealthHandler. postCache may be nil when
// caching is disabled.
func NewHealthHandler(store Pinger, postCache CacheStatter) *HealthHandler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("Process stats unavailable")
	}
	return &HealthHandler{store: store, cache: postCache, started: time.Now(), proc: proc}
}

// Get reports 200 when storage answers and 503 otherwise.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Storage:       "ok",
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Health check: storage unreachable")
		resp.Status = "degraded"
		resp.Storage = "unreachable"
	}

	if h.proc != nil {
		if mem, err := h.proc.MemoryInfoWithContext(ctx); err == nil {
			resp.MemoryRSS = mem.RSS
		}
		if cpu, err := h.proc.CPUPercentWithContext(ctx); err == nil {
			resp.CPUPercent = cpu
		}
	}
	if h.cache != nil {
		stats := h.cache.Stats()
		resp.Cache = &stats
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
