package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"propscan-api/internal/history"
	"propscan-api/pkg/response"
)

// PendingCounter reports the number of records waiting in a write-behind buffer.
type PendingCounter interface {
	Count(ctx context.Context) (int64, error)
}

// StatsSource reports statistics about a backing store.
type StatsSource interface {
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	scanBuffer PendingCounter // nil when Redis is not configured
	properties StatsSource
	history    *history.Store
	dbType     string // sqlite, postgres, mysql or mongodb
	startTime  time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(scanBuffer PendingCounter, properties StatsSource, hist *history.Store, dbType string) *AdminHandler {
	return &AdminHandler{
		scanBuffer: scanBuffer,
		properties: properties,
		history:    hist,
		dbType:     dbType,
		startTime:  time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	// Scan record buffer stats
	if h.scanBuffer != nil {
		count, err := h.scanBuffer.Count(ctx)
		if err == nil {
			stats["scan_buffer"] = map[string]interface{}{
				"pending_items": count,
				"status":        "connected",
			}
		} else {
			stats["scan_buffer"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["scan_buffer"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Property store stats
	if h.properties != nil {
		storeStats, err := h.properties.Stats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["property_store"] = storeStats
		} else {
			stats["property_store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	if h.history != nil {
		stats["scan_history"] = h.history.Statistics(ctx)
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
