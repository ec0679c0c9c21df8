package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/geotrail/trackrec-go/internal/blobstore"
	"github.com/geotrail/trackrec-go/internal/models"
	"github.com/geotrail/trackrec-go/internal/stats"
)

const (
	trackKeyPrefix      = "track:"
	sessionStateKey     = "session:state"
	backgroundMirrorKey = "session:background"
)

// TrackRepository handles persistence of tracks and of the recording
// session's recovery blobs, over an injected blob store.
//
// Storage failures never propagate to the caller: a read failure surfaces as
// an empty result, a write failure as a no-op. Every swallow is logged. This
// keeps a storage hiccup from ever taking down an in-progress recording;
// callers needing durability must verify by re-reading.
type TrackRepository struct {
	store blobstore.Store
	now   func() time.Time
}

// NewTrackRepository creates a repository over the given store.
func NewTrackRepository(store blobstore.Store) *TrackRepository {
	return &TrackRepository{store: store, now: time.Now}
}

// SaveTrack upserts a track by id. The distance and duration caches are
// always recomputed from Locations before writing, so a stale caller-side
// value can never drift into storage. Each save writes one complete JSON
// snapshot.
func (r *TrackRepository) SaveTrack(ctx context.Context, track *models.Track) {
	if track == nil || track.ID == "" {
		return
	}

	st := stats.Calculate(track.Locations)
	track.TotalDistance = st.DistanceMeters
	track.Duration = st.DurationSeconds
	track.LastModified = r.now().UnixMilli()

	blob, err := json.Marshal(track)
	if err != nil {
		log.Printf("[repository] failed to encode track %s: %v", track.ID, err)
		return
	}
	if err := r.store.Set(ctx, trackKeyPrefix+track.ID, blob); err != nil {
		log.Printf("[repository] failed to save track %s: %v", track.ID, err)
	}
}

// GetTrack retrieves a track by id. The second return value is false when
// the track does not exist or storage failed.
func (r *TrackRepository) GetTrack(ctx context.Context, id string) (*models.Track, bool) {
	blob, err := r.store.Get(ctx, trackKeyPrefix+id)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			log.Printf("[repository] failed to read track %s: %v", id, err)
		}
		return nil, false
	}

	var track models.Track
	if err := json.Unmarshal(blob, &track); err != nil {
		log.Printf("[repository] corrupt track blob %s: %v", id, err)
		return nil, false
	}
	return &track, true
}

// GetAllTracks returns every persisted track ordered by descending
// CreatedAt (newest first). Storage failures surface as an empty slice.
func (r *TrackRepository) GetAllTracks(ctx context.Context) []models.Track {
	keys, err := r.store.ListKeys(ctx)
	if err != nil {
		log.Printf("[repository] failed to list tracks: %v", err)
		return nil
	}

	var tracks []models.Track
	for _, key := range keys {
		if !strings.HasPrefix(key, trackKeyPrefix) {
			continue
		}
		track, ok := r.GetTrack(ctx, strings.TrimPrefix(key, trackKeyPrefix))
		if !ok {
			continue
		}
		tracks = append(tracks, *track)
	}

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].CreatedAt > tracks[j].CreatedAt
	})
	return tracks
}

// DeleteTrack removes a track. Deleting an unknown id is a no-op.
func (r *TrackRepository) DeleteTrack(ctx context.Context, id string) {
	if err := r.store.Remove(ctx, trackKeyPrefix+id); err != nil {
		log.Printf("[repository] failed to delete track %s: %v", id, err)
	}
}

// SaveSessionState persists the crash-recovery marker.
func (r *TrackRepository) SaveSessionState(ctx context.Context, state models.SessionState) {
	blob, err := json.Marshal(state)
	if err != nil {
		log.Printf("[repository] failed to encode session state: %v", err)
		return
	}
	if err := r.store.Set(ctx, sessionStateKey, blob); err != nil {
		log.Printf("[repository] failed to save session state: %v", err)
	}
}

// LoadSessionState reads the crash-recovery marker. Absent or unreadable
// state reads as (zero, false).
func (r *TrackRepository) LoadSessionState(ctx context.Context) (models.SessionState, bool) {
	blob, err := r.store.Get(ctx, sessionStateKey)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			log.Printf("[repository] failed to read session state: %v", err)
		}
		return models.SessionState{}, false
	}
	var state models.SessionState
	if err := json.Unmarshal(blob, &state); err != nil {
		log.Printf("[repository] corrupt session state: %v", err)
		return models.SessionState{}, false
	}
	return state, true
}

// ClearSessionState removes the crash-recovery marker.
func (r *TrackRepository) ClearSessionState(ctx context.Context) {
	if err := r.store.Remove(ctx, sessionStateKey); err != nil {
		log.Printf("[repository] failed to clear session state: %v", err)
	}
}

// SaveBackgroundMirror persists the background stream's buffer under its
// fixed key so recovery can re-merge it after a crash.
func (r *TrackRepository) SaveBackgroundMirror(ctx context.Context, points []models.GeoSample) {
	blob, err := json.Marshal(points)
	if err != nil {
		log.Printf("[repository] failed to encode background mirror: %v", err)
		return
	}
	if err := r.store.Set(ctx, backgroundMirrorKey, blob); err != nil {
		log.Printf("[repository] failed to save background mirror: %v", err)
	}
}

// LoadBackgroundMirror reads the persisted background buffer.
func (r *TrackRepository) LoadBackgroundMirror(ctx context.Context) []models.GeoSample {
	blob, err := r.store.Get(ctx, backgroundMirrorKey)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			log.Printf("[repository] failed to read background mirror: %v", err)
		}
		return nil
	}
	var points []models.GeoSample
	if err := json.Unmarshal(blob, &points); err != nil {
		log.Printf("[repository] corrupt background mirror: %v", err)
		return nil
	}
	return points
}

// ClearBackgroundMirror removes the persisted background buffer.
func (r *TrackRepository) ClearBackgroundMirror(ctx context.Context) {
	if err := r.store.Remove(ctx, backgroundMirrorKey); err != nil {
		log.Printf("[repository] failed to clear background mirror: %v", err)
	}
}
