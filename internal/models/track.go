package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportedIDPrefix marks track ids minted by the file importer so callers
// can tell recorded tracks from re-imported ones.
const ImportedIDPrefix = "imported-"

// Track is a named recording: an ordered list of samples plus derived stats.
// TotalDistance and Duration are caches recomputed from Locations on every
// save; they are never the source of truth.
type Track struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Locations     []GeoSample `json:"locations"`
	CreatedAt     int64       `json:"createdAt"`    // Unix milliseconds
	LastModified  int64       `json:"lastModified"` // Unix milliseconds
	IsComplete    bool        `json:"isComplete"`
	TotalDistance float64     `json:"totalDistance"` // meters
	Duration      float64     `json:"duration"`      // seconds
}

// NewTrack creates an empty in-progress track with a fresh id.
func NewTrack(name string, now time.Time) *Track {
	ms := now.UnixMilli()
	return &Track{
		ID:           uuid.NewString(),
		Name:         name,
		CreatedAt:    ms,
		LastModified: ms,
	}
}

// NewImportedTrack creates a completed track holding points parsed from an
// interchange file. The id carries the import prefix.
func NewImportedTrack(name string, points []GeoSample, now time.Time) *Track {
	createdAt := now.UnixMilli()
	if len(points) > 0 {
		createdAt = points[0].Timestamp
	}
	return &Track{
		ID:           ImportedIDPrefix + uuid.NewString(),
		Name:         name,
		Locations:    points,
		CreatedAt:    createdAt,
		LastModified: now.UnixMilli(),
		IsComplete:   true,
	}
}
