package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/lesson-sync-service/internal/services"
	"github.com/SAP-F-2025/lesson-sync-service/internal/validator"
)

type HandlerManager struct {
	syncHandler    *SyncHandler
	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger *slog.Logger,
) *HandlerManager {
	return &HandlerManager{
		syncHandler:    NewSyncHandler(serviceManager.Sync(), validator, logger),
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		lessons := v1.Group("/lessons")
		{
			lessons.POST("/:id/sync", hm.syncHandler.TriggerLessonSync)
			lessons.GET("/:id/sync", hm.syncHandler.GetSyncStatus)
		}

		v1.POST("/sync", hm.syncHandler.TriggerSiteSync)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "lesson-sync-service",
		})
	})
}
