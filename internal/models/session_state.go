package models

// SessionPhase is the recording lifecycle phase.
type SessionPhase string

const (
	PhaseIdle      SessionPhase = "idle"
	PhaseRecording SessionPhase = "recording"
	PhasePaused    SessionPhase = "paused"
	PhaseStopped   SessionPhase = "stopped"
)

// SessionState is the persisted identity of the active recording. It is
// written on every phase transition so a restarted process can detect an
// interrupted recording and resume into the same track id.
type SessionState struct {
	Phase           SessionPhase `json:"phase"`
	ActiveTrackID   string       `json:"activeTrackId,omitempty"`
	ActiveTrackName string       `json:"activeTrackName,omitempty"`
	LastFlushedAt   int64        `json:"lastFlushedAt,omitempty"` // Unix milliseconds
}

// InProgress reports whether the state describes a recording that was live
// (recording or paused) when it was persisted.
func (s SessionState) InProgress() bool {
	return s.Phase == PhaseRecording || s.Phase == PhasePaused
}
