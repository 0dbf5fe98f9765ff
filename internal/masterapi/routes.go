// Package masterapi is the supervisor's read-only HTTP status surface:
// fleet health and per-child state over gin, plus a websocket stream of
// lifecycle alerts. Mutations stay on the unix control socket.
package masterapi

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zapempire/economy-engine/internal/supervisor"
)

const (
	rateLimitPerMin = 30
	rateLimitBurst  = 10
)

// StatusSource reports the fleet process table. Implemented by
// supervisor.Supervisor.
type StatusSource interface {
	Status() []supervisor.ChildStatus
}

type apiHandler struct {
	fleet     StatusSource
	startedAt time.Time
}

// SetupRouter builds the status API over a fleet source and an alert hub.
func SetupRouter(fleet StatusSource, hub *Hub) *gin.Engine {
	r := gin.Default()

	// CORS for a local dashboard — configurable via ALLOWED_ORIGINS,
	// empty means any origin.
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &apiHandler{fleet: fleet, startedAt: time.Now()}
	limiter := NewRateLimiter(rateLimitPerMin, rateLimitBurst)

	api := r.Group("/api/v1", limiter.Middleware())
	{
		// The stream stays outside auth so a dashboard can subscribe
		// without credentials; it only ever pushes telemetry down.
		api.GET("/stream", hub.Subscribe)

		protected := api.Group("", AuthMiddleware())
		protected.GET("/health", handler.handleHealth)
		protected.GET("/status", handler.handleStatus)
	}

	return r
}

// handleHealth reports liveness plus fleet summary counts.
func (h *apiHandler) handleHealth(c *gin.Context) {
	status := h.fleet.Status()
	counts := map[string]int{
		supervisor.StateRunning:  0,
		supervisor.StateStarting: 0,
		supervisor.StateStopped:  0,
	}
	infra := 0
	for _, st := range status {
		counts[st.State]++
		if st.Infra {
			infra++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "operational",
		"engine":    "Zap Empire System Master",
		"uptimeSec": int64(time.Since(h.startedAt).Seconds()),
		"fleet": gin.H{
			"total":    len(status),
			"infra":    infra,
			"running":  counts[supervisor.StateRunning],
			"starting": counts[supervisor.StateStarting],
			"stopped":  counts[supervisor.StateStopped],
		},
	})
}

// handleStatus reports every child in manifest order.
func (h *apiHandler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"agents": h.fleet.Status(),
	})
}
