package handler

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// SystemHandler serves the unauthenticated liveness and build endpoints.
type SystemHandler struct {
	BaseHandler
	name    string
	version string
	started time.Time
	now     func() time.Time
}

func NewSystemHandler(name, version string) *SystemHandler {
	return &SystemHandler{name: name, version: version, started: time.Now(), now: time.Now}
}

// SystemInfoResponse describes the running build.
// @name HandlerSystemInfoResponse
type SystemInfoResponse struct {
	Name          string    `json:"name" example:"Tourist Safety API"`
	Version       string    `json:"version" example:"1.0.0"`
	GoVersion     string    `json:"go_version" example:"go1.25.5"`
	StartedAt     time.Time `json:"started_at" example:"2026-10-19T08:00:00Z"`
	UptimeSeconds int64     `json:"uptime_seconds" example:"5445"`
}

// Info godoc
// @ID           getSystemInfo
// @Summary      Build and uptime
// @Description  Reports the service name, build version, Go runtime and process uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Router       /system/info [get]
func (h *SystemHandler) Info(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:          h.name,
		Version:       h.version,
		GoVersion:     runtime.Version(),
		StartedAt:     h.started.UTC(),
		UptimeSeconds: int64(h.now().Sub(h.started) / time.Second),
	})
}

// PingResponse echoes the server clock.
// @name HandlerPingResponse
type PingResponse struct {
	Message    string    `json:"message" example:"pong"`
	ServerTime time.Time `json:"server_time" example:"2026-10-19T09:30:45Z"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Liveness check
// @Description  Answers without touching any dependency
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[PingResponse]
// @Router       /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{Message: "pong", ServerTime: h.now().UTC()})
}
