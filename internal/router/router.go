// Package router registers the core's HTTP surface: one POST endpoint
// for answering a question and one GET health check. Both sit behind the
// request-ID/logging middleware; only the ask endpoint is behind auth.
package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/dig"

	"github.com/noteqa/ragcore/internal/config"
	_ "github.com/noteqa/ragcore/internal/docs"
	"github.com/noteqa/ragcore/internal/handler"
	"github.com/noteqa/ragcore/internal/middleware"
	"github.com/noteqa/ragcore/internal/types/interfaces"
)

// RouterParams is the dig.In bundle NewRouter needs.
type RouterParams struct {
	dig.In

	Config        *config.Config
	TenantService interfaces.TenantService
	AskHandler    *handler.AskHandler
}

// NewRouter builds the Gin engine and wires every route.
func NewRouter(params RouterParams) *gin.Engine {
	gin.SetMode(params.Config.Server.GinMode)
	r := gin.New()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())

	r.GET("/health", handler.Health)

	if gin.Mode() != gin.ReleaseMode {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.Use(middleware.Auth(params.TenantService, params.Config))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/ask", params.AskHandler.Ask)
	}

	return r
}
