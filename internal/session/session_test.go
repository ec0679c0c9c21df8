package session

import (
	"context"
	"testing"
	"time"

	"github.com/geotrail/trackrec-go/internal/blobstore"
	"github.com/geotrail/trackrec-go/internal/location"
	"github.com/geotrail/trackrec-go/internal/models"
	"github.com/geotrail/trackrec-go/internal/repository"
)

func newTestSession(t *testing.T) (*RecordingSession, *location.ChannelSource, *location.ChannelSource, *repository.TrackRepository) {
	t.Helper()
	repo := repository.NewTrackRepository(blobstore.NewMemoryStore())
	fg := location.NewChannelSource()
	bg := location.NewChannelSource()
	// Long intervals keep the tickers quiet; tests drive Flush and
	// SyncBackground directly.
	s := New(repo, fg, bg, Options{
		AutosaveInterval:       time.Hour,
		BackgroundSyncInterval: time.Hour,
		FixTimeout:             50 * time.Millisecond,
	})
	return s, fg, bg, repo
}

func rawAt(lat, lon float64, ts int64) models.RawLocation {
	return models.RawLocation{Latitude: &lat, Longitude: &lon, Timestamp: &ts}
}

func TestStartRequiresName(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	if err := s.Start(context.Background(), ""); err != ErrEmptyName {
		t.Fatalf("err = %v, want ErrEmptyName", err)
	}
}

func TestStartWhileRecordingFails(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	ctx := context.Background()
	if err := s.Start(ctx, "A"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	if err := s.Start(ctx, "B"); err != ErrAlreadyRecording {
		t.Fatalf("err = %v, want ErrAlreadyRecording", err)
	}
}

func TestDedupNearDuplicateDropped(t *testing.T) {
	s, fg, _, _ := newTestSession(t)
	ctx := context.Background()
	if err := s.Start(ctx, "dedup"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	fg.Publish(rawAt(1.00000, 1.00000, 1000))
	fg.Publish(rawAt(1.000005, 1.000005, 2000)) // below the 1e-5 epsilon

	if st := s.Status(); st.BufferedPoints != 1 {
		t.Fatalf("buffer = %d points, want 1 (near-duplicate dropped)", st.BufferedPoints)
	}

	fg.Publish(rawAt(1.00100, 1.00100, 3000))
	if st := s.Status(); st.BufferedPoints != 2 {
		t.Fatalf("buffer = %d points, want 2", st.BufferedPoints)
	}
}

func TestPauseResumePreservesData(t *testing.T) {
	s, fg, _, repo := newTestSession(t)
	ctx := context.Background()

	if err := s.Start(ctx, "A"); err != nil {
		t.Fatalf("start: %v", err)
	}
	id := s.Status().ActiveTrackID

	fg.Publish(rawAt(1.0, 1.0, 1000))

	if err := s.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Samples published while paused must not land anywhere.
	fg.Publish(rawAt(5.0, 5.0, 1500))

	if err := s.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	fg.Publish(rawAt(2.0, 2.0, 2000))

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	track, ok := repo.GetTrack(ctx, id)
	if !ok {
		t.Fatal("final track missing")
	}
	if !track.IsComplete {
		t.Fatal("track not marked complete after stop")
	}
	if len(track.Locations) != 2 {
		t.Fatalf("final track has %d points, want 2", len(track.Locations))
	}
	if track.Locations[0].Latitude != 1.0 || track.Locations[1].Latitude != 2.0 {
		t.Fatalf("unexpected points: %+v", track.Locations)
	}
}

func TestPauseFlushesIncompleteSnapshot(t *testing.T) {
	s, fg, _, repo := newTestSession(t)
	ctx := context.Background()

	s.Start(ctx, "A")
	id := s.Status().ActiveTrackID
	fg.Publish(rawAt(1.0, 1.0, 1000))
	s.Pause(ctx)

	track, ok := repo.GetTrack(ctx, id)
	if !ok {
		t.Fatal("track not flushed on pause")
	}
	if track.IsComplete {
		t.Fatal("paused flush must have IsComplete=false")
	}

	s.Stop(ctx)
}

func TestViewingNeverMutatesRecording(t *testing.T) {
	s, fg, _, repo := newTestSession(t)
	ctx := context.Background()

	other := models.NewTrack("other", time.UnixMilli(500))
	other.Locations = []models.GeoSample{
		{Latitude: 9.0, Longitude: 9.0, Timestamp: 100},
		{Latitude: 9.1, Longitude: 9.1, Timestamp: 200},
	}

	s.Start(ctx, "A")
	id := s.Status().ActiveTrackID
	fg.Publish(rawAt(1.0, 1.0, 1000))

	s.ViewExisting(other)
	if disp := s.Displayed(); disp == nil || disp.Name != "other" {
		t.Fatal("viewing did not swap the displayed track")
	}
	if st := s.Status(); st.Phase != models.PhaseRecording {
		t.Fatalf("viewing changed phase to %s", st.Phase)
	}

	s.Stop(ctx)

	track, _ := repo.GetTrack(ctx, id)
	if len(track.Locations) != 1 || track.Locations[0].Latitude != 1.0 {
		t.Fatalf("viewed track leaked into the recording: %+v", track.Locations)
	}
}

func TestStopWithNothingActiveIsNoOp(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop from idle must succeed, got %v", err)
	}
}

func TestBackgroundMergeDedupsWithinWindow(t *testing.T) {
	s, fg, bg, _ := newTestSession(t)
	ctx := context.Background()

	s.Start(ctx, "merge")
	defer s.Stop(ctx)

	fg.Publish(rawAt(1.0, 1.0, 10_000))
	fg.Publish(rawAt(1.01, 1.01, 20_000))

	// Within 1000 ms of an existing sample: duplicate observation of the
	// same physical fix, must be dropped.
	bg.Publish(rawAt(1.0001, 1.0001, 10_400))
	// Outside any window: genuinely new.
	bg.Publish(rawAt(1.02, 1.02, 15_000))

	s.SyncBackground(ctx)

	disp := s.Displayed()
	if len(disp.Locations) != 3 {
		t.Fatalf("buffer = %d points after merge, want 3", len(disp.Locations))
	}
	// Merge must leave the buffer sorted ascending by timestamp.
	for i := 1; i < len(disp.Locations); i++ {
		if disp.Locations[i].Timestamp < disp.Locations[i-1].Timestamp {
			t.Fatalf("buffer out of order after merge: %+v", disp.Locations)
		}
	}
	if disp.Locations[1].Timestamp != 15_000 {
		t.Fatalf("merged background point not interleaved: %+v", disp.Locations)
	}
}

func TestFlushOutsideRecordingIsNoOp(t *testing.T) {
	s, fg, _, repo := newTestSession(t)
	ctx := context.Background()

	s.Start(ctx, "A")
	id := s.Status().ActiveTrackID
	fg.Publish(rawAt(1.0, 1.0, 1000))
	s.Stop(ctx)

	// A ticker firing after the stop transition must not resurrect the
	// incomplete snapshot.
	s.Flush(ctx)

	track, _ := repo.GetTrack(ctx, id)
	if !track.IsComplete {
		t.Fatal("late flush overwrote the completed track")
	}
}

func TestStopUnsubscribesEvenWhenFlushFails(t *testing.T) {
	store := blobstore.NewMemoryStore()
	repo := repository.NewTrackRepository(store)
	fg := location.NewChannelSource()
	s := New(repo, fg, nil, Options{
		AutosaveInterval:       time.Hour,
		BackgroundSyncInterval: time.Hour,
		FixTimeout:             50 * time.Millisecond,
	})
	ctx := context.Background()

	s.Start(ctx, "A")
	store.FailWith(blobstore.ErrNotFound)

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop must absorb storage failure, got %v", err)
	}
	if n := fg.WatcherCount(); n != 0 {
		t.Fatalf("%d watchers still subscribed after stop", n)
	}
}

func TestRestoreResumesInterruptedRecording(t *testing.T) {
	store := blobstore.NewMemoryStore()
	repo := repository.NewTrackRepository(store)
	ctx := context.Background()

	fg1 := location.NewChannelSource()
	s1 := New(repo, fg1, nil, Options{
		AutosaveInterval:       time.Hour,
		BackgroundSyncInterval: time.Hour,
		FixTimeout:             50 * time.Millisecond,
	})
	s1.Start(ctx, "interrupted")
	id := s1.Status().ActiveTrackID
	fg1.Publish(rawAt(1.0, 1.0, 1000))
	s1.Flush(ctx)
	// Process dies here: no Stop, the marker stays in the store.

	// The side channel kept capturing while the process was down.
	repo.SaveBackgroundMirror(ctx, []models.GeoSample{
		{Latitude: 1.01, Longitude: 1.01, Timestamp: 5000},
	})

	fg2 := location.NewChannelSource()
	s2 := New(repo, fg2, nil, Options{
		AutosaveInterval:       time.Hour,
		BackgroundSyncInterval: time.Hour,
		FixTimeout:             50 * time.Millisecond,
	})
	if err := s2.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	st := s2.Status()
	if st.Phase != models.PhaseRecording {
		t.Fatalf("restored phase = %s, want recording", st.Phase)
	}
	if st.ActiveTrackID != id {
		t.Fatalf("restored into track %s, want %s", st.ActiveTrackID, id)
	}
	if st.BufferedPoints != 2 {
		t.Fatalf("restored buffer = %d points, want 2 (flushed + mirrored)", st.BufferedPoints)
	}

	// New deliveries keep extending the same track.
	fg2.Publish(rawAt(1.02, 1.02, 9000))
	s2.Stop(ctx)

	track, _ := repo.GetTrack(ctx, id)
	if len(track.Locations) != 3 {
		t.Fatalf("final track = %d points, want 3", len(track.Locations))
	}
}

func TestRestoreWithoutMarkerIsNoOp(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("restore with clean state: %v", err)
	}
	if st := s.Status(); st.Phase != models.PhaseIdle {
		t.Fatalf("phase = %s, want idle", st.Phase)
	}
}

// gateSource blocks CurrentPosition until released, simulating a device
// that has not yet produced a fix.
type gateSource struct {
	*location.ChannelSource
	release chan struct{}
}

func (g *gateSource) CurrentPosition(ctx context.Context) (models.RawLocation, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return models.RawLocation{}, location.ErrNoFix
}

func TestStopDuringFixAcquisitionStartsNoTimers(t *testing.T) {
	repo := repository.NewTrackRepository(blobstore.NewMemoryStore())
	fg := &gateSource{ChannelSource: location.NewChannelSource(), release: make(chan struct{})}
	s := New(repo, fg, nil, Options{
		AutosaveInterval:       time.Hour,
		BackgroundSyncInterval: time.Hour,
		FixTimeout:             time.Hour,
	})
	ctx := context.Background()

	started := make(chan error, 1)
	go func() { started <- s.Start(ctx, "A") }()

	// Wait for the watch to be live, so the stop lands while the initial
	// fix is still being acquired.
	for i := 0; fg.WatcherCount() == 0 && i < 1000; i++ {
		time.Sleep(time.Millisecond)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(fg.release)
	if err := <-started; err != nil {
		t.Fatalf("start: %v", err)
	}

	s.mu.Lock()
	phase, timers := s.phase, s.timersDone
	s.mu.Unlock()
	if phase != models.PhaseStopped {
		t.Fatalf("phase = %s, want stopped", phase)
	}
	if timers != nil {
		t.Fatal("ticker goroutine left running after stop")
	}
	if n := fg.WatcherCount(); n != 0 {
		t.Fatalf("%d watchers still subscribed after stop", n)
	}
}

func TestBackgroundSamplesSurviveCrashBeforeSync(t *testing.T) {
	store := blobstore.NewMemoryStore()
	repo := repository.NewTrackRepository(store)
	ctx := context.Background()

	fg1 := location.NewChannelSource()
	bg1 := location.NewChannelSource()
	s1 := New(repo, fg1, bg1, Options{
		AutosaveInterval:       time.Hour,
		BackgroundSyncInterval: time.Hour,
		FixTimeout:             50 * time.Millisecond,
	})
	s1.Start(ctx, "A")
	fg1.Publish(rawAt(1.0, 1.0, 1000))
	s1.Flush(ctx)
	bg1.Publish(rawAt(1.01, 1.01, 5000))
	// Process dies before the next sync tick; the mirror is all that is
	// left of the background sample.

	fg2 := location.NewChannelSource()
	s2 := New(repo, fg2, nil, Options{
		AutosaveInterval:       time.Hour,
		BackgroundSyncInterval: time.Hour,
		FixTimeout:             50 * time.Millisecond,
	})
	if err := s2.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if st := s2.Status(); st.BufferedPoints != 2 {
		t.Fatalf("restored buffer = %d points, want 2 (flushed + mirrored)", st.BufferedPoints)
	}
	s2.Stop(ctx)
}

func TestSyncBackgroundRetiresMirror(t *testing.T) {
	s, fg, bg, repo := newTestSession(t)
	ctx := context.Background()

	s.Start(ctx, "A")
	id := s.Status().ActiveTrackID
	fg.Publish(rawAt(1.0, 1.0, 10_000))
	bg.Publish(rawAt(1.01, 1.01, 5000))

	if m := repo.LoadBackgroundMirror(ctx); len(m) != 1 {
		t.Fatalf("mirror = %d samples before sync, want 1", len(m))
	}

	s.SyncBackground(ctx)

	if m := repo.LoadBackgroundMirror(ctx); len(m) != 0 {
		t.Fatalf("mirror = %d samples after sync, want 0", len(m))
	}
	track, _ := repo.GetTrack(ctx, id)
	if len(track.Locations) != 2 {
		t.Fatalf("flushed track = %d points, want 2", len(track.Locations))
	}
	s.Stop(ctx)
}

func TestInvalidPayloadRejectedAtIngestion(t *testing.T) {
	s, fg, _, _ := newTestSession(t)
	ctx := context.Background()

	s.Start(ctx, "A")
	defer s.Stop(ctx)

	lat := 1.0
	fg.Publish(models.RawLocation{Latitude: &lat}) // longitude missing
	fg.Publish(models.RawLocation{})               // both missing

	if st := s.Status(); st.BufferedPoints != 0 {
		t.Fatalf("invalid payloads stored: %d points", st.BufferedPoints)
	}
}
