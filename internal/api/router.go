package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geotrail/trackrec-go/internal/config"
	"github.com/geotrail/trackrec-go/internal/handler"
	"github.com/geotrail/trackrec-go/internal/middleware"
)

// SetupRouter wires the HTTP surface: track CRUD and interchange on one
// group, recording control on another. Mutating routes sit behind JWT auth.
func SetupRouter(cfg *config.Config, trackHandler *handler.TrackHandler, recordingHandler *handler.RecordingHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Track Recorder API is running",
		})
	})

	auth := middleware.Auth(cfg.JWTSecret)

	api := r.Group("/api/v1")
	{
		tracks := api.Group("/tracks")
		{
			tracks.GET("", trackHandler.GetTracks)
			tracks.POST("/import", auth, middleware.RateLimit(10, time.Minute), trackHandler.ImportTrack)
			tracks.GET("/:id", trackHandler.GetTrack)
			tracks.DELETE("/:id", auth, trackHandler.DeleteTrack)
			tracks.GET("/:id/stats", trackHandler.GetTrackStats)
			tracks.GET("/:id/export", trackHandler.ExportTrack)
		}

		recording := api.Group("/recording")
		{
			recording.GET("/status", recordingHandler.Status)
			recording.GET("/track", recordingHandler.Displayed)
			recording.POST("/start", auth, recordingHandler.Start)
			recording.POST("/pause", auth, recordingHandler.Pause)
			recording.POST("/resume", auth, recordingHandler.Resume)
			recording.POST("/stop", auth, recordingHandler.Stop)
			recording.POST("/view/:id", auth, recordingHandler.View)
			recording.POST("/locations", auth, recordingHandler.IngestLocation)
		}
	}

	return r
}
