package codec

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/geotrail/trackrec-go/internal/models"
)

// ErrUnknownFormat is returned for file extensions this codec cannot parse.
var ErrUnknownFormat = fmt.Errorf("codec: unknown interchange format")

// ImportFile parses interchange text identified by its filename extension
// and mints a brand-new completed track from the result. The track name
// derives from the source filename. Zero valid points is a user-visible
// error, never a track with no data.
func ImportFile(filename, content string, now time.Time) (*models.Track, error) {
	var points []models.GeoSample
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".kml":
		points = ParseKML(content, now)
	case ".gpx":
		points = ParseGPX(content, now)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(filename))
	}

	if len(points) == 0 {
		return nil, ErrNoData
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if name == "" {
		name = "Imported track"
	}
	return models.NewImportedTrack(name, points, now), nil
}

// ExportFilename builds the conventional export name:
// {sanitized-track-name}_{ISO-date}.{ext}. Sanitization maps every
// character outside [a-zA-Z0-9] to an underscore.
func ExportFilename(trackName string, t time.Time, ext string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, trackName)
	return fmt.Sprintf("%s_%s.%s", sanitized, t.UTC().Format("2006-01-02"), ext)
}
