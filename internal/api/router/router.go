package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/delayq/internal/api/handler"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "delayq-api-service"

// SetupRouter configures and returns the Gin router with all routes.
// A nil gatherer disables /metrics.
func SetupRouter(deps *handler.Dependencies, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.NewHealthHandler(deps, ServiceName).Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")

	if deps.Jobs != nil {
		jobHandler := handler.NewJobHandler(deps)
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:event_id", jobHandler.GetJob)
			jobs.PUT("/:event_id", jobHandler.UpdateJob)
			jobs.DELETE("/:event_id", jobHandler.CancelJob)
		}
	}

	if deps.LowPrecision != nil {
		lpHandler := handler.NewLowPrecisionHandler(deps)
		lp := v1.Group("/low-precision-jobs")
		{
			lp.POST("", lpHandler.CreateJob)
			lp.GET("/by-date/:date", lpHandler.ListByDate)
			lp.GET("/:event_id", lpHandler.GetJob)
			lp.PUT("/:event_id", lpHandler.UpdateJob)
			lp.DELETE("/:event_id", lpHandler.CancelJob)
		}
	}

	if deps.Partitions != nil {
		partitionHandler := handler.NewPartitionHandler(deps)
		partitions := v1.Group("/partitions")
		{
			partitions.POST("", partitionHandler.EnsurePartitions)
			partitions.POST("/range", partitionHandler.EnsurePartitionRange)
			partitions.POST("/schedule", partitionHandler.SchedulePartitions)
			partitions.GET("", partitionHandler.ListPartitions)
			partitions.DELETE("/:name", partitionHandler.DropPartition)
		}
	}

	return r
}
