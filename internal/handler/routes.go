package handler

import "github.com/gin-gonic/gin"

// RegisterScheduleRoutes mounts the schedule API on group.
func RegisterScheduleRoutes(group *gin.RouterGroup, h *ScheduleHandler) {
	schedules := group.Group("/schedules")
	schedules.GET("", h.List)
	schedules.POST("", h.Create)
	schedules.POST("/bulk", h.BulkCreate)
	schedules.GET("/export", h.Export)
	schedules.GET("/:id", h.Get)
	schedules.PUT("/:id", h.Update)
	schedules.DELETE("/:id", h.Delete)
	schedules.POST("/:id/cancel", h.Cancel)

	group.GET("/teachers/:id/schedules", h.ListByTeacher)
	group.GET("/rooms/:id/schedules", h.ListByRoom)
	group.GET("/classes/:id/schedules", h.ListByClass)
}

// RegisterObservabilityRoutes mounts health, readiness and metrics endpoints on the engine root.
func RegisterObservabilityRoutes(r *gin.Engine, h *MetricsHandler) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
	r.GET("/metrics/summary", h.Summary)
}
