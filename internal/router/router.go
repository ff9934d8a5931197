package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "adekit/docs" // registers the OpenAPI document
	"adekit/internal/handler"
	"adekit/internal/middleware"
	"adekit/internal/service"
)

// Handlers groups the HTTP handlers mounted by Setup.
type Handlers struct {
	Job     *handler.JobHandler
	Extract *handler.ExtractHandler
	Health  *handler.HealthHandler
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	log *zap.Logger,
	authSvc service.AuthService,
	corsOrigins []string,
	h Handlers,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID(log))
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(corsOrigins))
	// Exports are already compressed (xlsx) or streamed as attachments.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/export$`})))

	// Health checks
	r.GET("/healthz", h.Health.Liveness)
	r.GET("/readyz", h.Health.Readiness)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(authSvc))

	jobs := v1.Group("/jobs")
	jobs.POST("", h.Job.Submit)
	jobs.GET("", h.Job.List)
	jobs.GET("/:id", h.Job.GetByID)
	jobs.GET("/:id/result", h.Job.Result)
	jobs.GET("/:id/export", h.Job.Export)
	jobs.POST("/:id/retry", h.Job.Retry)
	jobs.DELETE("/:id", h.Job.Delete)

	v1.POST("/extract", h.Extract.Extract)

	return r
}
