package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/geotrail/trackrec-go/internal/models"
	"github.com/geotrail/trackrec-go/internal/spatial"
)

// ErrNoData is returned when a track has no points to export or a parsed
// document yields no valid points. Callers surface it as a user-visible
// "no data" condition.
var ErrNoData = errors.New("codec: no track data")

// ExportKML renders the track as a KML document: a start marker, an end
// marker when the track has at least two points, and one connected
// LineString through every point as lon,lat,alt triples (unknown altitude
// written as 0). A track without points yields ErrNoData instead of a
// malformed empty document.
func ExportKML(track *models.Track) (string, error) {
	if track == nil || len(track.Locations) == 0 {
		return "", ErrNoData
	}
	points := track.Locations

	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<kml xmlns=\"http://www.opengis.net/kml/2.2\">\n")
	b.WriteString("  <Document>\n")
	fmt.Fprintf(&b, "    <name>%s</name>\n", escapeXML(track.Name))

	first := points[0]
	writeKMLMarker(&b, "Start", first, nil)

	if len(points) >= 2 {
		last := points[len(points)-1]
		prev := points[len(points)-2]
		heading := spatial.Bearing(prev.Latitude, prev.Longitude, last.Latitude, last.Longitude)
		writeKMLMarker(&b, "End", last, &heading)
	}

	b.WriteString("    <Placemark>\n")
	b.WriteString("      <name>Track</name>\n")
	b.WriteString("      <LineString>\n")
	b.WriteString("        <tessellate>1</tessellate>\n")
	b.WriteString("        <coordinates>\n")
	for _, p := range points {
		fmt.Fprintf(&b, "          %s,%s,%s\n",
			formatCoord(p.Longitude), formatCoord(p.Latitude), formatAltitude(p.Altitude))
	}
	b.WriteString("        </coordinates>\n")
	b.WriteString("      </LineString>\n")
	b.WriteString("    </Placemark>\n")
	b.WriteString("  </Document>\n")
	b.WriteString("</kml>\n")
	return b.String(), nil
}

func writeKMLMarker(b *strings.Builder, name string, p models.GeoSample, heading *float64) {
	b.WriteString("    <Placemark>\n")
	fmt.Fprintf(b, "      <name>%s</name>\n", name)

	var desc []string
	desc = append(desc, "Time: "+p.Time().UTC().Format(time.RFC3339))
	if p.Accuracy != nil {
		desc = append(desc, fmt.Sprintf("Accuracy: %.1f m", *p.Accuracy))
	}
	if p.Altitude != nil {
		desc = append(desc, fmt.Sprintf("Altitude: %.1f m", *p.Altitude))
	}
	if heading != nil {
		desc = append(desc, fmt.Sprintf("Heading: %.0f°", *heading))
	}
	fmt.Fprintf(b, "      <description>%s</description>\n", escapeXML(strings.Join(desc, ", ")))

	b.WriteString("      <Point>\n")
	fmt.Fprintf(b, "        <coordinates>%s,%s,%s</coordinates>\n",
		formatCoord(p.Longitude), formatCoord(p.Latitude), formatAltitude(p.Altitude))
	b.WriteString("      </Point>\n")
	b.WriteString("    </Placemark>\n")
}

// ParseKML extracts the track geometry from KML text. The coordinate list is
// parsed leniently: whitespace-separated lon,lat[,alt] triples, with any
// entry whose lon or lat fails to parse as a finite number skipped rather
// than aborting. KML carries no per-point time, so timestamps are
// synthesized as a strictly increasing sequence anchored at importTime.
func ParseKML(text string, importTime time.Time) []models.GeoSample {
	coords := locateCoordinates(text)
	if coords == "" {
		return nil
	}

	var points []models.GeoSample
	base := importTime.UnixMilli()
	for _, entry := range strings.Fields(coords) {
		parts := strings.Split(entry, ",")
		if len(parts) < 2 {
			continue
		}
		lon, lonErr := strconv.ParseFloat(parts[0], 64)
		lat, latErr := strconv.ParseFloat(parts[1], 64)
		if lonErr != nil || latErr != nil || !finite(lon) || !finite(lat) {
			continue
		}

		sample := models.GeoSample{
			Latitude:  lat,
			Longitude: lon,
			Timestamp: base + int64(len(points))*1000,
		}
		if len(parts) >= 3 {
			if alt, err := strconv.ParseFloat(parts[2], 64); err == nil && finite(alt) {
				sample.Altitude = &alt
			}
		}
		points = append(points, sample)
	}
	return points
}

// locateCoordinates finds the coordinate list to import. The LineString
// block is preferred since marker Placemarks carry single-point coordinate
// elements duplicating the endpoints; without a LineString the first
// coordinates element wins.
func locateCoordinates(text string) string {
	search := text
	if idx := strings.Index(text, "<LineString>"); idx >= 0 {
		search = text[idx:]
	}
	start := strings.Index(search, "<coordinates>")
	if start < 0 {
		return ""
	}
	start += len("<coordinates>")
	end := strings.Index(search[start:], "</coordinates>")
	if end < 0 {
		return ""
	}
	return search[start : start+end]
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatAltitude(alt *float64) string {
	if alt == nil {
		return "0"
	}
	return strconv.FormatFloat(*alt, 'f', 1, 64)
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
