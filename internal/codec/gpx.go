package codec

import (
	"encoding/xml"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/geotrail/trackrec-go/internal/models"
)

// gpxDoc mirrors the GPX 1.1 structure this codec emits. Speed rides in a
// per-point extensions element since the core trkpt schema has no speed
// field.
type gpxDoc struct {
	XMLName  xml.Name    `xml:"gpx"`
	Version  string      `xml:"version,attr"`
	Creator  string      `xml:"creator,attr"`
	Xmlns    string      `xml:"xmlns,attr"`
	Metadata gpxMetadata `xml:"metadata"`
	Track    gpxTrack    `xml:"trk"`
}

type gpxMetadata struct {
	Name string `xml:"name,omitempty"`
	Time string `xml:"time,omitempty"`
}

type gpxTrack struct {
	Name    string     `xml:"name,omitempty"`
	Segment gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat        string         `xml:"lat,attr"`
	Lon        string         `xml:"lon,attr"`
	Elevation  string         `xml:"ele,omitempty"`
	Time       string         `xml:"time,omitempty"`
	Extensions *gpxExtensions `xml:"extensions,omitempty"`
}

type gpxExtensions struct {
	Speed string `xml:"speed,omitempty"`
}

// ExportGPX renders the track as a GPX 1.1 document: one trkpt per sample
// with lat/lon attributes, optional elevation, an ISO-8601 timestamp, and
// speed as an extension. The header carries the track name and the first
// point's timestamp. A track without points yields ErrNoData.
func ExportGPX(track *models.Track) (string, error) {
	if track == nil || len(track.Locations) == 0 {
		return "", ErrNoData
	}

	doc := gpxDoc{
		Version: "1.1",
		Creator: "trackrec",
		Xmlns:   "http://www.topografix.com/GPX/1/1",
		Metadata: gpxMetadata{
			Name: track.Name,
			Time: track.Locations[0].Time().UTC().Format(time.RFC3339),
		},
		Track: gpxTrack{Name: track.Name},
	}

	for _, p := range track.Locations {
		point := gpxPoint{
			Lat:  formatCoord(p.Latitude),
			Lon:  formatCoord(p.Longitude),
			Time: p.Time().UTC().Format(time.RFC3339Nano),
		}
		if p.Altitude != nil {
			point.Elevation = strconv.FormatFloat(*p.Altitude, 'f', 1, 64)
		}
		if p.Speed != nil {
			point.Extensions = &gpxExtensions{Speed: strconv.FormatFloat(*p.Speed, 'f', 2, 64)}
		}
		doc.Track.Segment.Points = append(doc.Track.Segment.Points, point)
	}

	encoded, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(encoded) + "\n", nil
}

// ParseGPX extracts every trkpt from GPX text. Parsing is lenient: a point
// missing or mangling its required lat/lon attributes is skipped, not
// fatal. An absent or unparseable time child gets a synthesized timestamp,
// strictly increasing from importTime like the KML importer's.
func ParseGPX(text string, importTime time.Time) []models.GeoSample {
	decoder := xml.NewDecoder(strings.NewReader(text))
	base := importTime.UnixMilli()
	synthetic := 0

	var points []models.GeoSample
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "trkpt" {
			continue
		}

		var pt gpxPoint
		if err := decoder.DecodeElement(&pt, &start); err != nil {
			continue
		}

		lat, latErr := strconv.ParseFloat(pt.Lat, 64)
		lon, lonErr := strconv.ParseFloat(pt.Lon, 64)
		if latErr != nil || lonErr != nil || !finite(lat) || !finite(lon) {
			continue
		}

		sample := models.GeoSample{Latitude: lat, Longitude: lon}

		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(pt.Time)); err == nil {
			sample.Timestamp = ts.UnixMilli()
		} else {
			sample.Timestamp = base + int64(synthetic)*1000
			synthetic++
		}

		if pt.Elevation != "" {
			if alt, err := strconv.ParseFloat(strings.TrimSpace(pt.Elevation), 64); err == nil && finite(alt) {
				sample.Altitude = &alt
			}
		}
		if pt.Extensions != nil && pt.Extensions.Speed != "" {
			if speed, err := strconv.ParseFloat(strings.TrimSpace(pt.Extensions.Speed), 64); err == nil && finite(speed) {
				sample.Speed = &speed
			}
		}

		points = append(points, sample)
	}
	return points
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
