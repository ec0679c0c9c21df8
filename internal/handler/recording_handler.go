package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/geotrail/trackrec-go/internal/models"
	"github.com/geotrail/trackrec-go/internal/service"
	"github.com/geotrail/trackrec-go/internal/session"
	"github.com/geotrail/trackrec-go/pkg/response"
)

// LocationPublisher pushes a payload into the foreground location pipeline.
// The session picks it up through its subscription like any other delivery.
type LocationPublisher interface {
	Publish(raw models.RawLocation)
}

// RecordingHandler exposes the recording session's user intents over HTTP:
// start, pause, resume, stop, view, and manual sample ingestion.
type RecordingHandler struct {
	session      *session.RecordingSession
	trackService *service.TrackService
	publisher    LocationPublisher
}

// NewRecordingHandler creates a new recording handler.
func NewRecordingHandler(s *session.RecordingSession, trackService *service.TrackService, publisher LocationPublisher) *RecordingHandler {
	return &RecordingHandler{session: s, trackService: trackService, publisher: publisher}
}

type startRequest struct {
	Name string `json:"name" binding:"required"`
}

// Start handles POST /api/v1/recording/start
func (h *RecordingHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Track name is required")
		return
	}

	if err := h.session.Start(c.Request.Context(), req.Name); err != nil {
		if errors.Is(err, session.ErrAlreadyRecording) {
			response.Conflict(c, "A recording is already in progress")
			return
		}
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, h.session.Status())
}

// Pause handles POST /api/v1/recording/pause
func (h *RecordingHandler) Pause(c *gin.Context) {
	if err := h.session.Pause(c.Request.Context()); err != nil {
		response.Conflict(c, err.Error())
		return
	}
	response.Success(c, h.session.Status())
}

// Resume handles POST /api/v1/recording/resume
func (h *RecordingHandler) Resume(c *gin.Context) {
	if err := h.session.Resume(c.Request.Context()); err != nil {
		response.Conflict(c, err.Error())
		return
	}
	response.Success(c, h.session.Status())
}

// Stop handles POST /api/v1/recording/stop. Stopping with nothing active is
// success with no effect.
func (h *RecordingHandler) Stop(c *gin.Context) {
	if err := h.session.Stop(c.Request.Context()); err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, h.session.Status())
}

// Status handles GET /api/v1/recording/status
func (h *RecordingHandler) Status(c *gin.Context) {
	response.Success(c, h.session.Status())
}

// View handles POST /api/v1/recording/view/:id — swaps the displayed track
// without touching the active recording. An empty id returns the display to
// the live buffer.
func (h *RecordingHandler) View(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		h.session.ViewExisting(nil)
		response.Success(c, nil)
		return
	}

	track, err := h.trackService.GetTrack(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "Track not found")
		return
	}
	h.session.ViewExisting(track)
	response.Success(c, track)
}

// Displayed handles GET /api/v1/recording/track — the read-only projection
// the UI renders.
func (h *RecordingHandler) Displayed(c *gin.Context) {
	track := h.session.Displayed()
	if track == nil {
		response.NotFound(c, "Nothing to display")
		return
	}
	response.Success(c, track)
}

// IngestLocation handles POST /api/v1/recording/locations — manual sample
// delivery for hosts without a push-capable location source. The payload
// goes through the foreground source, so it also becomes the retained fix
// for initial-position acquisition. Invalid payloads are dropped silently;
// the response reports the buffer size so a caller can tell whether the
// sample landed.
func (h *RecordingHandler) IngestLocation(c *gin.Context) {
	var raw models.RawLocation
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.BadRequest(c, "Invalid location payload")
		return
	}
	h.publisher.Publish(raw)
	response.Success(c, h.session.Status())
}
