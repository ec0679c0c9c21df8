// Package session owns the live recording state machine: one authoritative
// sample buffer, the phase transitions around it, and the timers that keep
// it persisted and reconciled with the background stream.
package session

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/geotrail/trackrec-go/internal/location"
	"github.com/geotrail/trackrec-go/internal/models"
	"github.com/geotrail/trackrec-go/internal/repository"
)

var (
	// ErrAlreadyRecording is returned by Start while a recording is live.
	ErrAlreadyRecording = errors.New("session: a recording is already in progress")
	// ErrNotRecording is returned by Pause when nothing is being recorded.
	ErrNotRecording = errors.New("session: not recording")
	// ErrNotPaused is returned by Resume outside the paused phase.
	ErrNotPaused = errors.New("session: not paused")
	// ErrEmptyName is returned by Start for a blank track name.
	ErrEmptyName = errors.New("session: track name must not be empty")
)

// Options tune the session's timing and filtering behavior. The zero value
// takes the defaults below.
type Options struct {
	AutosaveInterval       time.Duration // flush cadence while recording
	BackgroundSyncInterval time.Duration
	FixTimeout             time.Duration // bound on initial fix acquisition
	DedupEpsilon           float64       // degrees; near-duplicate rejection
	MergeWindow            time.Duration // timestamp window for background dedup
}

func (o Options) withDefaults() Options {
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = 10 * time.Second
	}
	if o.BackgroundSyncInterval <= 0 {
		o.BackgroundSyncInterval = 10 * time.Second
	}
	if o.FixTimeout <= 0 {
		o.FixTimeout = 15 * time.Second
	}
	if o.DedupEpsilon <= 0 {
		o.DedupEpsilon = 1e-5
	}
	if o.MergeWindow <= 0 {
		o.MergeWindow = time.Second
	}
	return o
}

// Status is a read-only snapshot of the session for display.
type Status struct {
	Phase           models.SessionPhase `json:"phase"`
	ActiveTrackID   string              `json:"activeTrackId,omitempty"`
	ActiveTrackName string              `json:"activeTrackName,omitempty"`
	BufferedPoints  int                 `json:"bufferedPoints"`
}

// RecordingSession is the state machine governing one active recording.
// Every mutation of the buffer goes through one mutex, so location delivery,
// timer ticks and user commands are serialized regardless of which goroutine
// they arrive on.
type RecordingSession struct {
	repo       *repository.TrackRepository
	source     location.Source
	background location.Source // optional second stream, may be nil
	opts       Options
	now        func() time.Time

	mu         sync.Mutex
	phase      models.SessionPhase
	track      *models.Track // active track; its Locations slice is the buffer
	viewed     *models.Track // what the UI displays while viewing, never mutated
	sub        location.Subscription
	bgSub      location.Subscription
	bgBuf      []models.GeoSample // background samples awaiting merge
	timersDone chan struct{}
}

// New creates an idle session. The background source may be nil when only
// one pipeline exists.
func New(repo *repository.TrackRepository, source location.Source, background location.Source, opts Options) *RecordingSession {
	return &RecordingSession{
		repo:       repo,
		source:     source,
		background: background,
		opts:       opts.withDefaults(),
		now:        time.Now,
		phase:      models.PhaseIdle,
	}
}

// Start begins a new recording: fresh track id, empty buffer, continuous
// location updates. Acquiring the initial fix is bounded by the fix timeout;
// on timeout the session still enters the recording phase and simply waits
// for watch deliveries.
func (s *RecordingSession) Start(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	if s.phase == models.PhaseRecording || s.phase == models.PhasePaused {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	track := models.NewTrack(name, s.now())
	s.track = track
	s.bgBuf = nil
	s.phase = models.PhaseRecording
	s.mu.Unlock()

	if err := s.subscribe(ctx); err != nil {
		// Roll back to the last known-good phase so a later Start can retry.
		s.mu.Lock()
		s.phase = models.PhaseIdle
		s.track = nil
		s.mu.Unlock()
		return err
	}

	s.acquireInitialFix(ctx)

	s.mu.Lock()
	if s.phase != models.PhaseRecording {
		// A stop won the race while the fix was being acquired; its
		// transition already released the subscription and cleared the
		// state, so there is nothing left to start timers for.
		s.mu.Unlock()
		return nil
	}
	s.startTimers()
	s.persistStateLocked(ctx)
	s.mu.Unlock()

	log.Printf("[session] recording started: %s (%s)", name, track.ID)
	return nil
}

// Pause suspends ingestion and flushes the buffer as incomplete. The
// unsubscribe happens before the flush, so a persistence failure can never
// leave the source still subscribed.
func (s *RecordingSession) Pause(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != models.PhaseRecording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	s.unsubscribeLocked()
	s.stopTimersLocked()
	s.phase = models.PhasePaused
	s.flushLocked(ctx, false)
	s.persistStateLocked(ctx)
	s.mu.Unlock()

	log.Printf("[session] recording paused")
	return nil
}

// Resume re-subscribes to location updates. Samples the device produced
// while the subscription was down are simply absent; there is no synthetic
// backfill.
func (s *RecordingSession) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != models.PhasePaused {
		s.mu.Unlock()
		return ErrNotPaused
	}
	s.phase = models.PhaseRecording
	s.mu.Unlock()

	if err := s.subscribe(ctx); err != nil {
		s.mu.Lock()
		s.phase = models.PhasePaused
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.phase != models.PhaseRecording {
		// Stopped while the subscription was being set up; leave the
		// stop's outcome in place.
		s.mu.Unlock()
		return nil
	}
	s.startTimers()
	s.persistStateLocked(ctx)
	s.mu.Unlock()

	log.Printf("[session] recording resumed")
	return nil
}

// Stop ends the recording and flushes the final complete snapshot. Stopping
// with nothing active is success with no effect.
func (s *RecordingSession) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseRecording && s.phase != models.PhasePaused {
		return nil
	}

	s.unsubscribeLocked()
	s.stopTimersLocked()
	s.mergeBackgroundLocked()
	s.flushLocked(ctx, true)

	id := ""
	if s.track != nil {
		id = s.track.ID
	}
	s.track = nil
	s.bgBuf = nil
	s.phase = models.PhaseStopped
	s.repo.ClearSessionState(ctx)
	s.repo.ClearBackgroundMirror(ctx)

	log.Printf("[session] recording stopped: %s", id)
	return nil
}

// ViewExisting swaps what is displayed without touching the recording. The
// viewed track is a read-only projection; passing nil returns the display to
// the active buffer.
func (s *RecordingSession) ViewExisting(track *models.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewed = track
}

// Displayed returns the track the UI should render: the viewed track when
// one is selected, otherwise a snapshot of the active recording.
func (s *RecordingSession) Displayed() *models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewed != nil {
		cp := *s.viewed
		return &cp
	}
	return s.snapshotLocked()
}

// Status reports the current phase and buffer size.
func (s *RecordingSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Phase: s.phase}
	if s.track != nil {
		st.ActiveTrackID = s.track.ID
		st.ActiveTrackName = s.track.Name
		st.BufferedPoints = len(s.track.Locations)
	}
	return st
}

// Ingest validates and buffers one foreground payload. Payloads arriving
// outside the recording phase are dropped.
func (s *RecordingSession) Ingest(raw models.RawLocation) {
	sample, ok := models.NewGeoSample(raw, s.now())
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(sample)
}

// IngestBackground buffers one payload from the secondary stream. It is
// held apart from the main buffer until the next merge so both pipelines
// observing the same physical fix cannot double-count it.
func (s *RecordingSession) IngestBackground(raw models.RawLocation) {
	sample, ok := models.NewGeoSample(raw, s.now())
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseRecording && s.phase != models.PhasePaused {
		return
	}
	s.bgBuf = append(s.bgBuf, sample)
	// Mirror the pending buffer so a crash before the next sync keeps the
	// side channel's samples recoverable.
	s.repo.SaveBackgroundMirror(context.Background(), s.bgBuf)
}

// SyncBackground merges the background buffer into the authoritative one and
// retires the mirror. Safe to call at any time; outside a live recording it
// is a no-op. Normally driven by the sync ticker.
func (s *RecordingSession) SyncBackground(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseRecording {
		return
	}
	s.mergeBackgroundLocked()
	// Flush before clearing the mirror, so a crash between ticks cannot
	// lose points that were only ever in the background buffer.
	s.flushLocked(ctx, false)
	s.repo.ClearBackgroundMirror(ctx)
}

// Flush persists the current buffer as an incomplete snapshot. Normally
// driven by the autosave ticker; exported so a host can force a save before
// shutdown. No-op outside the recording phase — the phase check settles the
// race against an in-flight stop or pause.
func (s *RecordingSession) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseRecording {
		return
	}
	s.flushLocked(ctx, false)
	s.persistStateLocked(ctx)
}

// Restore inspects the persisted session marker after a process restart.
// When a recording was in flight it reloads the track, re-merges the
// persisted background mirror, and re-subscribes into the same track id.
func (s *RecordingSession) Restore(ctx context.Context) error {
	state, ok := s.repo.LoadSessionState(ctx)
	if !ok || !state.InProgress() {
		return nil
	}

	s.mu.Lock()
	track, found := s.repo.GetTrack(ctx, state.ActiveTrackID)
	if !found {
		// Marker without a track: stale state, clear it.
		s.repo.ClearSessionState(ctx)
		s.mu.Unlock()
		return nil
	}
	s.track = track
	s.bgBuf = s.repo.LoadBackgroundMirror(ctx)
	s.mergeBackgroundLocked()
	s.phase = state.Phase
	s.mu.Unlock()

	if state.Phase == models.PhaseRecording {
		if err := s.subscribe(ctx); err != nil {
			// Keep the data, degrade to paused so the user can resume.
			s.mu.Lock()
			s.phase = models.PhasePaused
			s.persistStateLocked(ctx)
			s.mu.Unlock()
			return err
		}
		s.mu.Lock()
		if s.phase == models.PhaseRecording {
			s.startTimers()
		}
		s.mu.Unlock()
	}

	log.Printf("[session] restored %s recording into track %s", state.Phase, state.ActiveTrackID)
	return nil
}

// appendLocked applies validation-order ingestion rules: recording phase
// only, near-duplicates of the buffer tail dropped when both coordinate
// deltas fall below the epsilon.
func (s *RecordingSession) appendLocked(sample models.GeoSample) {
	if s.phase != models.PhaseRecording || s.track == nil {
		return
	}
	if n := len(s.track.Locations); n > 0 {
		last := s.track.Locations[n-1]
		if math.Abs(sample.Latitude-last.Latitude) < s.opts.DedupEpsilon &&
			math.Abs(sample.Longitude-last.Longitude) < s.opts.DedupEpsilon {
			return
		}
	}
	s.track.Locations = append(s.track.Locations, sample)
}

// mergeBackgroundLocked folds pending background samples into the buffer.
// A background sample is included only when no buffered sample lies within
// the merge window of its timestamp; the window tolerates clock skew between
// the two pipelines. The buffer is re-sorted ascending afterwards.
func (s *RecordingSession) mergeBackgroundLocked() {
	if s.track == nil || len(s.bgBuf) == 0 {
		return
	}
	windowMs := s.opts.MergeWindow.Milliseconds()

	for _, bg := range s.bgBuf {
		duplicate := false
		for _, existing := range s.track.Locations {
			if abs64(existing.Timestamp-bg.Timestamp) < windowMs {
				duplicate = true
				break
			}
		}
		if !duplicate {
			s.track.Locations = append(s.track.Locations, bg)
		}
	}
	s.bgBuf = nil

	sort.Slice(s.track.Locations, func(i, j int) bool {
		return s.track.Locations[i].Timestamp < s.track.Locations[j].Timestamp
	})
}

func (s *RecordingSession) flushLocked(ctx context.Context, complete bool) {
	if s.track == nil {
		return
	}
	s.track.IsComplete = complete
	s.repo.SaveTrack(ctx, s.track)
}

func (s *RecordingSession) persistStateLocked(ctx context.Context) {
	if s.track == nil {
		return
	}
	s.repo.SaveSessionState(ctx, models.SessionState{
		Phase:           s.phase,
		ActiveTrackID:   s.track.ID,
		ActiveTrackName: s.track.Name,
		LastFlushedAt:   s.now().UnixMilli(),
	})
}

func (s *RecordingSession) snapshotLocked() *models.Track {
	if s.track == nil {
		return nil
	}
	cp := *s.track
	cp.Locations = append([]models.GeoSample(nil), s.track.Locations...)
	return &cp
}

func (s *RecordingSession) subscribe(ctx context.Context) error {
	sub, err := s.source.WatchPosition(ctx, s.Ingest)
	if err != nil {
		return err
	}

	var bgSub location.Subscription
	if s.background != nil {
		bgSub, err = s.background.WatchPosition(ctx, s.IngestBackground)
		if err != nil {
			// The secondary stream is best-effort; a dead background
			// broker must not block the recording.
			log.Printf("[session] background stream unavailable: %v", err)
		}
	}

	s.mu.Lock()
	if s.phase != models.PhaseRecording {
		// A stop or pause won the race while the watch was being set
		// up; release it instead of leaking a live subscription.
		s.mu.Unlock()
		sub.Unsubscribe()
		if bgSub != nil {
			bgSub.Unsubscribe()
		}
		return nil
	}
	s.sub = sub
	s.bgSub = bgSub
	s.mu.Unlock()
	return nil
}

func (s *RecordingSession) unsubscribeLocked() {
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.bgSub != nil {
		s.bgSub.Unsubscribe()
		s.bgSub = nil
	}
}

// acquireInitialFix requests one position up front so the track starts at
// the user's location instead of the first watch delivery. Timing out here
// is a degraded start, not a failed one.
func (s *RecordingSession) acquireInitialFix(ctx context.Context) {
	fixCtx, cancel := context.WithTimeout(ctx, s.opts.FixTimeout)
	defer cancel()

	raw, err := s.source.CurrentPosition(fixCtx)
	if err != nil {
		log.Printf("[session] no initial fix, continuing degraded: %v", err)
		return
	}
	s.Ingest(raw)
}

// startTimers launches autosave and background-sync tickers owned by the
// current recording period. Must be called with the mutex held.
func (s *RecordingSession) startTimers() {
	done := make(chan struct{})
	s.timersDone = done

	go func() {
		autosave := time.NewTicker(s.opts.AutosaveInterval)
		bgSync := time.NewTicker(s.opts.BackgroundSyncInterval)
		defer autosave.Stop()
		defer bgSync.Stop()

		for {
			select {
			case <-done:
				return
			case <-autosave.C:
				s.Flush(context.Background())
			case <-bgSync.C:
				s.SyncBackground(context.Background())
			}
		}
	}()
}

// stopTimersLocked cancels the tickers for the ending recording period.
func (s *RecordingSession) stopTimersLocked() {
	if s.timersDone != nil {
		close(s.timersDone)
		s.timersDone = nil
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
