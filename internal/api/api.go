package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/replenlab/replenish-backend/internal/api/handlers"
	"github.com/replenlab/replenish-backend/internal/api/middleware"
	"github.com/replenlab/replenish-backend/internal/service"
)

type Services struct {
	OptimizationService *service.OptimizationService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil && services.OptimizationService != nil {
		policyHandler := handlers.NewPolicyHandler(services.OptimizationService)
		optimizeHandler := handlers.NewOptimizeHandler(services.OptimizationService)

		apiGroup.GET("/summary", optimizeHandler.GetSummary)

		productGroup := apiGroup.Group("/products")
		{
			productGroup.GET("", optimizeHandler.ListProducts)
			productGroup.GET("/:product_id/policy", policyHandler.GetActivePolicy)
			productGroup.GET("/:product_id/policy/history", policyHandler.GetPolicyHistory)
			productGroup.GET("/:product_id/state", policyHandler.GetProductState)
			productGroup.GET("/:product_id/actions", optimizeHandler.GetRecentActions)
			productGroup.GET("/:product_id/metrics", optimizeHandler.GetMetrics)
		}

		optimizeGroup := apiGroup.Group("/optimize")
		{
			optimizeGroup.POST("/strategic/:product_id", optimizeHandler.TriggerStrategic)
			optimizeGroup.POST("/tactical/:product_id", optimizeHandler.TriggerTactical)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
