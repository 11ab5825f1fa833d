package server

import (
	_ "embed"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/geneseez/geneseez/internal/apiroutes"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

//go:embed web/index.html
var indexHTML []byte

// handleIndex serves the single page UI
func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// handleRoutes lists every registered endpoint
func (s *Server) handleRoutes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"routes": apiroutes.Get(),
	})
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status     string        `json:"status"`
	Service    string        `json:"service"`
	Uptime     string        `json:"uptime"`
	Sessions   int           `json:"sessions"`
	Goroutines int           `json:"goroutines"`
	Memory     *MemoryHealth `json:"memory,omitempty"`
}

// MemoryHealth reports host and process memory
type MemoryHealth struct {
	HostUsedPercent float64 `json:"host_used_percent"`
	HostAvailableMB float64 `json:"host_available_mb"`
	ProcessRSSMB    float64 `json:"process_rss_mb"`
}

// handleHealth reports liveness plus a few runtime figures. Memory stats
// are best effort and omitted when the platform does not expose them.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	resp := HealthResponse{
		Status:     "ok",
		Service:    "geneseez",
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		Sessions:   s.motion.Sessions().Count(),
		Goroutines: runtime.NumGoroutine(),
	}

	const mb = 1024 * 1024
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Memory = &MemoryHealth{
			HostUsedPercent: vm.UsedPercent,
			HostAvailableMB: float64(vm.Available) / mb,
		}
		if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
			if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
				resp.Memory.ProcessRSSMB = float64(info.RSS) / mb
			}
		}
	} else {
		s.logger.Debug("failed to read memory stats", "error", err)
	}

	c.JSON(http.StatusOK, resp)
}
