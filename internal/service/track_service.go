package service

import (
	"context"
	"fmt"
	"time"

	"github.com/geotrail/trackrec-go/internal/codec"
	"github.com/geotrail/trackrec-go/internal/models"
	"github.com/geotrail/trackrec-go/internal/repository"
	"github.com/geotrail/trackrec-go/internal/stats"
)

// TrackService handles business logic for persisted tracks: listing,
// statistics, deletion, and the interchange export/import paths.
type TrackService struct {
	trackRepo *repository.TrackRepository
}

// NewTrackService creates a new track service.
func NewTrackService(trackRepo *repository.TrackRepository) *TrackService {
	return &TrackService{trackRepo: trackRepo}
}

// ExportFormat selects an interchange format.
type ExportFormat string

const (
	FormatKML ExportFormat = "kml"
	FormatGPX ExportFormat = "gpx"
)

// Export is the product of exporting one track: the document text and the
// conventional download filename.
type Export struct {
	Filename string
	MIMEType string
	Content  string
}

// TrackStatsView extends the engine output with the caller-derived average
// speed for display.
type TrackStatsView struct {
	stats.TrackStats
	AvgSpeedKmh float64 `json:"avgSpeedKmh"`
}

// GetAllTracks lists every persisted track, newest first.
func (s *TrackService) GetAllTracks(ctx context.Context) []models.Track {
	return s.trackRepo.GetAllTracks(ctx)
}

// GetTrack retrieves one track by id.
func (s *TrackService) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	track, ok := s.trackRepo.GetTrack(ctx, id)
	if !ok {
		return nil, fmt.Errorf("track not found: %s", id)
	}
	return track, nil
}

// DeleteTrack removes a track; unknown ids are a no-op.
func (s *TrackService) DeleteTrack(ctx context.Context, id string) {
	s.trackRepo.DeleteTrack(ctx, id)
}

// GetTrackStats computes the extended statistics for a stored track.
func (s *TrackService) GetTrackStats(ctx context.Context, id string) (*TrackStatsView, error) {
	track, err := s.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}
	st := stats.Calculate(track.Locations)
	return &TrackStatsView{
		TrackStats:  st,
		AvgSpeedKmh: stats.AvgSpeedKmh(st.DistanceMeters, st.DurationSeconds),
	}, nil
}

// ExportTrack renders a stored track in the requested interchange format.
func (s *TrackService) ExportTrack(ctx context.Context, id string, format ExportFormat, now time.Time) (*Export, error) {
	track, err := s.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}

	var content, mime string
	switch format {
	case FormatKML:
		content, err = codec.ExportKML(track)
		mime = "application/vnd.google-earth.kml+xml"
	case FormatGPX:
		content, err = codec.ExportGPX(track)
		mime = "application/gpx+xml"
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	return &Export{
		Filename: codec.ExportFilename(track.Name, now, string(format)),
		MIMEType: mime,
		Content:  content,
	}, nil
}

// ImportTrack parses interchange text into a brand-new completed track and
// persists it. The original track, if the file came from one, is untouched.
func (s *TrackService) ImportTrack(ctx context.Context, filename, content string, now time.Time) (*models.Track, error) {
	track, err := codec.ImportFile(filename, content, now)
	if err != nil {
		return nil, err
	}
	s.trackRepo.SaveTrack(ctx, track)
	return track, nil
}
