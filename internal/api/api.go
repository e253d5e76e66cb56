package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/dispatch-hub/internal/api/handlers"
	"github.com/andresuchdata/dispatch-hub/internal/api/middleware"
)

type Services struct {
	Reports   handlers.ReportRunner
	Loader    handlers.InputLoader
	Drive     handlers.DriveBrowser // optional
	WorkDir   string
	OutputDir string
}

// MaxUploadBytes bounds the in-memory part of multipart uploads.
const MaxUploadBytes = 64 << 20

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = MaxUploadBytes

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")
	if services != nil && services.Reports != nil && services.Loader != nil {
		reportHandler := handlers.NewReportHandler(services.Reports, services.Loader, services.WorkDir, services.OutputDir)
		apiGroup.POST("/runs", reportHandler.StartRun)
		apiGroup.POST("/summary", reportHandler.Summary)
	}
	if services != nil && services.Drive != nil {
		driveHandler := handlers.NewDriveHandler(services.Drive)
		apiGroup.GET("/drive/files", driveHandler.ListFiles)
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
