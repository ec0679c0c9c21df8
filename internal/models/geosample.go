package models

import (
	"math"
	"time"
)

// GeoSample represents a single position fix with optional motion metadata.
// Latitude, Longitude and Timestamp are always present; the pointer fields
// are nil when the source did not report a value. Nil means unknown, not zero.
type GeoSample struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Timestamp int64    `json:"timestamp"` // Unix milliseconds
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`    // m/s
	Heading   *float64 `json:"heading,omitempty"`  // degrees, 0-360
	Altitude  *float64 `json:"altitude,omitempty"` // meters
}

// RawLocation is the payload shape delivered by a location source before
// validation. Coordinates are pointers because a source may omit them, and
// an omitted coordinate invalidates the whole payload.
type RawLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp *int64   `json:"timestamp,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// NewGeoSample validates a raw payload and produces a canonical sample.
// Payloads missing latitude or longitude, or carrying non-finite coordinates,
// are dropped: the second return value is false and the sample is unusable.
// A missing timestamp defaults to the capture time.
func NewGeoSample(raw RawLocation, captureTime time.Time) (GeoSample, bool) {
	if raw.Latitude == nil || raw.Longitude == nil {
		return GeoSample{}, false
	}
	lat, lon := *raw.Latitude, *raw.Longitude
	if !isFinite(lat) || !isFinite(lon) {
		return GeoSample{}, false
	}

	ts := captureTime.UnixMilli()
	if raw.Timestamp != nil {
		ts = *raw.Timestamp
	}

	return GeoSample{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: ts,
		Accuracy:  raw.Accuracy,
		Speed:     raw.Speed,
		Heading:   raw.Heading,
		Altitude:  raw.Altitude,
	}, true
}

// Time converts the sample timestamp to a time.Time.
func (s GeoSample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Float64Ptr is a convenience for building optional fields.
func Float64Ptr(f float64) *float64 {
	return &f
}
