package stats

import (
	"math"
	"testing"

	"github.com/geotrail/trackrec-go/internal/models"
)

func sample(lat, lon float64, ts int64) models.GeoSample {
	return models.GeoSample{Latitude: lat, Longitude: lon, Timestamp: ts}
}

func TestCalculateEmptyAndSinglePoint(t *testing.T) {
	for _, points := range [][]models.GeoSample{
		nil,
		{sample(45.0, 7.0, 1000)},
	} {
		st := Calculate(points)
		if st.DistanceMeters != 0 || st.DurationSeconds != 0 {
			t.Fatalf("expected zero stats for %d points, got %+v", len(points), st)
		}
	}
}

func TestCalculateDistanceAndDuration(t *testing.T) {
	points := []models.GeoSample{
		sample(45.0, 7.0, 0),
		sample(45.001, 7.0, 10_000),
		sample(45.002, 7.0, 30_000),
	}
	st := Calculate(points)

	// 0.002 degrees of latitude is ~222 m.
	if st.DistanceMeters < 200 || st.DistanceMeters > 250 {
		t.Fatalf("distance = %v, want ~222", st.DistanceMeters)
	}
	if st.DurationSeconds != 30 {
		t.Fatalf("duration = %v, want 30", st.DurationSeconds)
	}
}

func TestCalculateDurationClampedAtZero(t *testing.T) {
	points := []models.GeoSample{
		sample(45.0, 7.0, 50_000),
		sample(45.001, 7.0, 10_000),
	}
	if st := Calculate(points); st.DurationSeconds != 0 {
		t.Fatalf("duration = %v, want 0 for out-of-order timestamps", st.DurationSeconds)
	}
}

func TestCalculateAppendMonotonicity(t *testing.T) {
	points := []models.GeoSample{
		sample(45.0, 7.0, 0),
		sample(45.001, 7.001, 5_000),
	}
	before := Calculate(points)

	points = append(points, sample(45.002, 7.002, 12_000))
	after := Calculate(points)

	if after.DistanceMeters < before.DistanceMeters {
		t.Fatalf("distance decreased after append: %v -> %v", before.DistanceMeters, after.DistanceMeters)
	}
	if after.DurationSeconds < before.DurationSeconds {
		t.Fatalf("duration decreased after append: %v -> %v", before.DurationSeconds, after.DurationSeconds)
	}
}

func TestElevationPairwiseSkip(t *testing.T) {
	p1 := sample(45.0, 7.0, 0)
	p1.Altitude = models.Float64Ptr(10)
	p2 := sample(45.001, 7.0, 10_000) // no altitude
	p3 := sample(45.002, 7.0, 20_000)
	p3.Altitude = models.Float64Ptr(15)

	st := Calculate([]models.GeoSample{p1, p2, p3})
	if st.ElevationGain != 0 {
		t.Fatalf("elevationGain = %v, want 0 (no pair has both altitudes)", st.ElevationGain)
	}
	if st.ElevationLoss != 0 {
		t.Fatalf("elevationLoss = %v, want 0", st.ElevationLoss)
	}
}

func TestElevationGainAndLoss(t *testing.T) {
	mk := func(alt float64, ts int64) models.GeoSample {
		s := sample(45.0, 7.0, ts)
		s.Altitude = models.Float64Ptr(alt)
		return s
	}
	st := Calculate([]models.GeoSample{mk(100, 0), mk(130, 10_000), mk(110, 20_000)})
	if st.ElevationGain != 30 {
		t.Fatalf("elevationGain = %v, want 30", st.ElevationGain)
	}
	if st.ElevationLoss != 20 {
		t.Fatalf("elevationLoss = %v, want 20", st.ElevationLoss)
	}
}

func TestAltitudeRangeSeededFromFirstDefined(t *testing.T) {
	p1 := sample(45.0, 7.0, 0) // altitude unknown
	p2 := sample(45.001, 7.0, 10_000)
	p2.Altitude = models.Float64Ptr(500)
	p3 := sample(45.002, 7.0, 20_000)
	p3.Altitude = models.Float64Ptr(520)

	st := Calculate([]models.GeoSample{p1, p2, p3})
	if st.AltitudeMin != 500 {
		t.Fatalf("altitudeMin = %v, want 500 (seeded from first defined altitude)", st.AltitudeMin)
	}
	if st.AltitudeMax != 520 {
		t.Fatalf("altitudeMax = %v, want 520", st.AltitudeMax)
	}
}

func TestMaxSpeedAbsentTreatedAsZero(t *testing.T) {
	points := []models.GeoSample{sample(45.0, 7.0, 0), sample(45.001, 7.0, 10_000)}
	if st := Calculate(points); st.MaxSpeed != 0 {
		t.Fatalf("maxSpeed = %v, want 0 for all-absent speeds", st.MaxSpeed)
	}

	points[1].Speed = models.Float64Ptr(3.5)
	if st := Calculate(points); st.MaxSpeed != 3.5 {
		t.Fatalf("maxSpeed = %v, want 3.5", st.MaxSpeed)
	}
}

func TestAvgSpeedKmh(t *testing.T) {
	if got := AvgSpeedKmh(1000, 0); got != 0 {
		t.Fatalf("avg speed with zero duration = %v, want 0", got)
	}
	got := AvgSpeedKmh(1000, 360)
	if math.Abs(got-10) > 1e-9 {
		t.Fatalf("avg speed = %v, want 10 km/h", got)
	}
}
