package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geotrail/trackrec-go/internal/codec"
	"github.com/geotrail/trackrec-go/internal/service"
	"github.com/geotrail/trackrec-go/pkg/response"
)

// TrackHandler handles HTTP requests for stored tracks.
type TrackHandler struct {
	trackService *service.TrackService
}

// NewTrackHandler creates a new track handler.
func NewTrackHandler(trackService *service.TrackService) *TrackHandler {
	return &TrackHandler{trackService: trackService}
}

// GetTracks handles GET /api/v1/tracks
func (h *TrackHandler) GetTracks(c *gin.Context) {
	tracks := h.trackService.GetAllTracks(c.Request.Context())
	response.Success(c, gin.H{
		"data":  tracks,
		"count": len(tracks),
	})
}

// GetTrack handles GET /api/v1/tracks/:id
func (h *TrackHandler) GetTrack(c *gin.Context) {
	track, err := h.trackService.GetTrack(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.NotFound(c, "Track not found")
		return
	}
	response.Success(c, track)
}

// DeleteTrack handles DELETE /api/v1/tracks/:id
func (h *TrackHandler) DeleteTrack(c *gin.Context) {
	h.trackService.DeleteTrack(c.Request.Context(), c.Param("id"))
	response.Success(c, nil)
}

// GetTrackStats handles GET /api/v1/tracks/:id/stats
func (h *TrackHandler) GetTrackStats(c *gin.Context) {
	stats, err := h.trackService.GetTrackStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.NotFound(c, "Track not found")
		return
	}
	response.Success(c, stats)
}

// ExportTrack handles GET /api/v1/tracks/:id/export?format=kml|gpx
func (h *TrackHandler) ExportTrack(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "gpx"))
	if format != service.FormatKML && format != service.FormatGPX {
		response.BadRequest(c, "Unsupported format, expected kml or gpx")
		return
	}

	export, err := h.trackService.ExportTrack(c.Request.Context(), c.Param("id"), format, time.Now())
	if err != nil {
		if errors.Is(err, codec.ErrNoData) {
			response.UnprocessableEntity(c, "Track has no data to export")
			return
		}
		response.NotFound(c, "Track not found")
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+export.Filename+"\"")
	c.Data(200, export.MIMEType, []byte(export.Content))
}

type importRequest struct {
	Filename string `json:"filename" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

// ImportTrack handles POST /api/v1/tracks/import
func (h *TrackHandler) ImportTrack(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	track, err := h.trackService.ImportTrack(c.Request.Context(), req.Filename, req.Content, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, codec.ErrNoData):
			response.UnprocessableEntity(c, "No valid points found in file")
		case errors.Is(err, codec.ErrUnknownFormat):
			response.BadRequest(c, "Unknown file format, expected .kml or .gpx")
		default:
			response.InternalError(c, err.Error())
		}
		return
	}

	response.Success(c, track)
}
