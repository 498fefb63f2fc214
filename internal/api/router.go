package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"sales-insights-go/internal/logger"
)

// NewRouter builds the engine with recovery and request logging.
func NewRouter(h *Handler, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))
	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tables", h.ListTables)
		v1.GET("/tables/:name", h.GetTable)
		v1.GET("/calls/:id", h.GetCall)

		v1.GET("/confusion", h.Confusion)
		v1.GET("/segments", h.Segments)
		v1.GET("/actions", h.Actions)
		v1.GET("/shipwith", h.ShipWith)

		runs := v1.Group("/runs")
		{
			runs.GET("", h.Runs)
			runs.GET("/:id/calls", h.RunCalls)
		}
		v1.POST("/refresh", h.PostRefresh)
	}
}

func requestLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithRequest(c.Request).
			WithField("status", c.Writer.Status()).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debug("request served")
	}
}
