package manager

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status        string  `json:"status"`
	ActiveBots    int     `json:"activeBots"`
	FailedBots    int     `json:"failedBots"`
	TotalBots     int     `json:"totalBots"`
	UptimeSeconds float64 `json:"uptime"`
	MemoryUsageMB float64 `json:"memoryUsage"`
}

type childInfo struct {
	BotID         int     `json:"botId"`
	PID           int     `json:"pid"`
	Ready         bool    `json:"ready"`
	UptimeSeconds float64 `json:"uptime"`
}

type StatusResponse struct {
	ChildProcesses []childInfo           `json:"childProcesses"`
	BotFailures    map[int]failureRecord `json:"botFailures"`
	Health         HealthResponse        `json:"health"`
}

func (m *Manager) health() HealthResponse {
	m.mu.Lock()
	active := len(m.children)
	failed := 0
	for _, rec := range m.failures {
		if rec.Count > 0 {
			failed++
		}
	}
	total := active + failed
	m.mu.Unlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := "ok"
	if active == 0 && failed > 0 {
		status = "degraded"
	}

	return HealthResponse{
		Status:        status,
		ActiveBots:    active,
		FailedBots:    failed,
		TotalBots:     total,
		UptimeSeconds: m.now().Sub(m.startedAt).Seconds(),
		MemoryUsageMB: float64(mem.Alloc) / (1024 * 1024),
	}
}

func (m *Manager) status() StatusResponse {
	health := m.health()

	m.mu.Lock()
	defer m.mu.Unlock()

	children := make([]childInfo, 0, len(m.children))
	for _, c := range m.children {
		children = append(children, childInfo{
			BotID:         c.botID,
			PID:           c.handle.PID(),
			Ready:         c.ready,
			UptimeSeconds: m.now().Sub(c.startedAt).Seconds(),
		})
	}

	failures := make(map[int]failureRecord, len(m.failures))
	for botID, rec := range m.failures {
		failures[botID] = *rec
	}

	return StatusResponse{
		ChildProcesses: children,
		BotFailures:    failures,
		Health:         health,
	}
}

type restartRequest struct {
	BotID int `json:"botId" binding:"required"`
}

// NewRouter exposes the fleet health/restart surface.
func NewRouter(m *Manager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, m.health())
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, m.status())
	})

	r.POST("/restart-bot", func(c *gin.Context) {
		var req restartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "botId required"})
			return
		}

		start := time.Now()
		if err := m.RestartBot(req.BotID); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "worker restarted in " + time.Since(start).Round(time.Millisecond).String(),
		})
	})

	return r
}
