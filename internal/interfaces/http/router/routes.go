package router

import (
	"github.com/gin-gonic/gin"

	"github.com/tsafe/backend/internal/interfaces/http/handler"
	"github.com/tsafe/backend/internal/interfaces/http/middleware"
)

// Handlers bundles the handlers mounted under the versioned API
type Handlers struct {
	System   *handler.SystemHandler
	Tourist  *handler.TouristHandler
	KYC      *handler.KYCHandler
	Incident *handler.IncidentHandler
	Worker   *handler.WorkerHandler
}

// Guards are per-route middleware supplied by the server. Nil guards
// default to RequireAdmin and no KYC limit.
type Guards struct {
	Admin    gin.HandlerFunc
	KYCLimit gin.HandlerFunc
}

// APIGroups builds the route groups of the tourist safety API
func APIGroups(h Handlers, g Guards) []*DomainGroup {
	admin := g.Admin
	if admin == nil {
		admin = middleware.RequireAdmin(nil)
	}
	kycLimit := g.KYCLimit
	if kycLimit == nil {
		kycLimit = func(c *gin.Context) { c.Next() }
	}

	system := NewDomainGroup("/system").
		GET("/ping", h.System.Ping).
		GET("/info", h.System.Info)

	tourists := NewDomainGroup("/tourists").
		POST("", h.Tourist.Register).
		GET("", admin, h.Tourist.List).
		GET("/me", h.Tourist.GetMine).
		GET("/me/dashboard", h.Tourist.Dashboard).
		GET("/:id", h.Tourist.Get).
		PUT("/:id", h.Tourist.UpdateProfile).
		POST("/:id/panic", h.Tourist.RaisePanic).
		POST("/:id/score", admin, h.Tourist.PushScore).
		POST("/:id/work-items/:itemId/retry", admin, h.Tourist.RetryFailed).
		GET("/:id/incidents", h.Incident.ListByTourist)

	kyc := NewDomainGroup("/kyc").
		POST("/initiate", kycLimit, h.KYC.Initiate).
		POST("/verify", kycLimit, h.KYC.Verify).
		GET("/status", h.KYC.Status).
		DELETE("", h.KYC.Cancel)

	incidents := NewDomainGroup("/incidents").
		POST("", h.Incident.Report).
		GET("/:code", h.Incident.Get).
		GET("/:code/report", admin, h.Incident.OpenReport).
		PATCH("/:code/status", admin, h.Incident.UpdateStatus)

	adminGroup := NewDomainGroup("/admin").Use(admin)
	adminGroup.Group("/worker").
		GET("/status", h.Worker.Status).
		POST("/start", h.Worker.Start).
		POST("/stop", h.Worker.Stop).
		POST("/pass", h.Worker.RunPass).
		GET("/diagnostics", h.Worker.Diagnostics)

	return []*DomainGroup{system, tourists, kyc, incidents, adminGroup}
}
