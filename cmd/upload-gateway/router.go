package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apitypes "github.com/lgulliver/lodestone-upload/cmd/upload-gateway/types"
	"github.com/lgulliver/lodestone-upload/cmd/upload-gateway/routes"
	"github.com/lgulliver/lodestone-upload/internal/metrics"
	"github.com/lgulliver/lodestone-upload/internal/middleware"
	"github.com/lgulliver/lodestone-upload/internal/upload"
	"github.com/lgulliver/lodestone-upload/pkg/config"
	"github.com/rs/zerolog"
)

func setupRouter(cfg *config.Config, manager *upload.Manager, records routes.RecordServiceInterface, m *metrics.Metrics) *gin.Engine {
	// Set Gin mode based on log level
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, apitypes.HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Services: map[string]string{
				"storage":  cfg.Storage.Type,
				"database": enabledString(cfg.Database.Enabled),
				"redis":    enabledString(cfg.Redis.Enabled),
			},
			Sessions: manager.Sessions(),
		})
	})

	if m != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	routes.UploadRoutes(router, manager, cfg.Upload.MaxChunkSize)
	if records != nil {
		routes.RecordRoutes(router, records)
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
