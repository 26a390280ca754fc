package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/internal/telemetry"
	"github.com/marmos91/dittoserve/pkg/bufcache"
)

// CacheAdmin is the cache surface exposed over the API.
type CacheAdmin interface {
	Stats() bufcache.Stats
	Purge() int
	Remove(key string) bool
	RemovePrefix(prefix string) int
}

// PurgeResult is returned by DELETE /cache.
type PurgeResult struct {
	Removed int `json:"removed"`
}

// EvictResult is returned by DELETE /cache/entry.
type EvictResult struct {
	Path    string `json:"path"`
	Key     string `json:"key"`
	Removed int    `json:"removed"`
}

// HealthInfo is the payload of health responses.
type HealthInfo struct {
	Service       string `json:"service"`
	StartedAt     string `json:"started_at"`
	Uptime        string `json:"uptime"`
	UptimeSec     int64  `json:"uptime_sec"`
	CacheEnabled  bool   `json:"cache_enabled"`
	ServerStarted bool   `json:"server_started"`
}

type handlers struct {
	deps      Deps
	startTime time.Time
}

func (h *handlers) info() HealthInfo {
	uptime := time.Since(h.startTime)
	return HealthInfo{
		Service:       "dittoserve",
		StartedAt:     h.startTime.UTC().Format(time.RFC3339),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSec:     int64(uptime.Seconds()),
		CacheEnabled:  h.deps.Cache != nil,
		ServerStarted: h.serverReady(),
	}
}

func (h *handlers) serverReady() bool {
	if h.deps.Ready == nil {
		return true
	}
	select {
	case <-h.deps.Ready:
		return true
	default:
		return false
	}
}

// Liveness handles GET /health.
func (h *handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(h.info()))
}

// Readiness handles GET /health/ready. It fails until the file server
// listener is up.
func (h *handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if !h.serverReady() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("file server not listening"))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(h.info()))
}

// CacheStats handles GET /cache.
func (h *handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		writeProblem(w, http.StatusNotFound, "cache is disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Cache.Stats())
}

// PurgeCache handles DELETE /cache.
func (h *handlers) PurgeCache(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		writeProblem(w, http.StatusNotFound, "cache is disabled")
		return
	}
	_, span := telemetry.StartSpan(r.Context(), telemetry.SpanCachePurge)
	defer span.End()

	n := h.deps.Cache.Purge()
	logger.Info("Cache purged via API", logger.KeyEvicted, n)
	writeJSON(w, http.StatusOK, PurgeResult{Removed: n})
}

// EvictEntry handles DELETE /cache/entry?path=/a/b.txt[&recursive=true].
// path is a request path, mapped onto the served root like a file request.
func (h *handlers) EvictEntry(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		writeProblem(w, http.StatusNotFound, "cache is disabled")
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeProblem(w, http.StatusBadRequest, "query parameter 'path' is required")
		return
	}
	key, ok := h.deps.Resolve(path)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "path must be absolute")
		return
	}
	recursive, err := strconv.ParseBool(r.URL.Query().Get("recursive"))
	if err != nil {
		recursive = false
	}

	_, span := telemetry.StartFileSpan(r.Context(), telemetry.SpanCacheInvalid, key)
	defer span.End()

	removed := 0
	if h.deps.Cache.Remove(key) {
		removed++
	}
	if recursive {
		removed += h.deps.Cache.RemovePrefix(key + "/")
	}
	logger.Debug("Cache entry evicted via API", logger.File(key), logger.KeyEvicted, removed)

	writeJSON(w, http.StatusOK, EvictResult{Path: path, Key: key, Removed: removed})
}
