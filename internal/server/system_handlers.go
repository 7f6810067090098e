package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"wheelhouse/internal/database"
)

// SystemHandlers serves health and system status
type SystemHandlers struct {
	db        *database.DB
	dataDir   string
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(db *database.DB, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		dataDir:   dataDir,
		startTime: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Conn().Ping(); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type systemStatus struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	DiskUsedPct    float64 `json:"disk_used_percent"`
	DatabasePath   string  `json:"database_path"`
}

// HandleStatus handles GET /api/system/status. Metric collection
// failures degrade to zero values rather than failing the request.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := systemStatus{
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		DatabasePath:  h.db.Path(),
	}

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		status.CPUPercent = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		status.MemUsedPercent = memStat.UsedPercent
	}

	diskStat, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	} else {
		status.DiskUsedPct = diskStat.UsedPercent
	}

	writeJSON(w, http.StatusOK, status)
}
