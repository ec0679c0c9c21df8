package stats

import (
	"github.com/geotrail/trackrec-go/internal/models"
	"github.com/geotrail/trackrec-go/internal/spatial"
)

// TrackStats holds the metrics derived from an ordered sample sequence.
type TrackStats struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
	ElevationGain   float64 `json:"elevationGain"`
	ElevationLoss   float64 `json:"elevationLoss"`
	AltitudeMin     float64 `json:"altitudeMin"`
	AltitudeMax     float64 `json:"altitudeMax"`
	MaxSpeed        float64 `json:"maxSpeed"` // m/s
}

// Calculate derives stats from an ordered sample sequence. Input is assumed
// sorted ascending by timestamp; out-of-order timestamps clamp the duration
// at 0 rather than going negative.
//
// Elevation gain/loss only accumulates over consecutive pairs where both
// samples report an altitude; a pair with a missing altitude on either side
// is skipped, not treated as zero. Min/max altitude is seeded from the first
// sample that has one, so a leading altitude-less sample never drags the
// range to 0.
func Calculate(points []models.GeoSample) TrackStats {
	var st TrackStats

	if len(points) == 0 {
		return st
	}

	for i := 1; i < len(points); i++ {
		st.DistanceMeters += spatial.Haversine(points[i-1], points[i])

		prev, cur := points[i-1].Altitude, points[i].Altitude
		if prev != nil && cur != nil {
			delta := *cur - *prev
			if delta > 0 {
				st.ElevationGain += delta
			} else {
				st.ElevationLoss += -delta
			}
		}
	}

	durMs := points[len(points)-1].Timestamp - points[0].Timestamp
	if durMs > 0 {
		st.DurationSeconds = float64(durMs) / 1000
	}

	seeded := false
	for _, p := range points {
		if p.Altitude == nil {
			continue
		}
		alt := *p.Altitude
		if !seeded {
			st.AltitudeMin, st.AltitudeMax = alt, alt
			seeded = true
			continue
		}
		if alt < st.AltitudeMin {
			st.AltitudeMin = alt
		}
		if alt > st.AltitudeMax {
			st.AltitudeMax = alt
		}
	}

	for _, p := range points {
		// Absent speed counts as 0 toward the max, so an all-absent
		// track reports 0 rather than unknown.
		if p.Speed != nil && *p.Speed > st.MaxSpeed {
			st.MaxSpeed = *p.Speed
		}
	}

	return st
}

// AvgSpeedKmh derives the average speed in km/h from distance in meters and
// duration in seconds. Zero duration yields 0.
func AvgSpeedKmh(distanceMeters, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return distanceMeters / durationSeconds * 3.6
}
