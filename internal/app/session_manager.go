package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/versecue/internal/detect"
	"github.com/MrWong99/versecue/internal/queue"
	"github.com/MrWong99/versecue/internal/transcript"
)

// Session control errors.
var (
	ErrSessionActive = errors.New("app: a session is already active")
	ErrNoSession     = errors.New("app: no active session")
	ErrNotPaused     = errors.New("app: session is not paused")
)

// SessionState is the sermon session lifecycle.
type SessionState string

const (
	SessionIdle   SessionState = "idle"
	SessionActive SessionState = "active"
	// SessionPaused keeps the transcript running with detection off.
	SessionPaused SessionState = "paused"
	SessionEnded  SessionState = "ended"
)

// SessionInfo holds metadata about the current or last session.
type SessionInfo struct {
	// ID is the unique identifier for this session.
	ID string `json:"id,omitempty"`

	State SessionState `json:"state"`

	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}

// STTStatus reports the live speech stream.
type STTStatus struct {
	Active   bool  `json:"active"`
	Restarts int64 `json:"restarts"`
}

// SessionSnapshot is what GET /api/session returns.
type SessionSnapshot struct {
	Session    SessionInfo          `json:"session"`
	Transcript []transcript.Segment `json:"transcript"`
	Interim    string               `json:"interim,omitempty"`
	Stats      queue.Stats          `json:"stats"`
	LLMEnabled bool                 `json:"llm_enabled"`
	STT        *STTStatus           `json:"stt,omitempty"`
}

// SessionManager manages the sermon session lifecycle. Only one session can
// be active at a time. All exported methods are safe for concurrent use.
type SessionManager struct {
	mu   sync.Mutex
	info SessionInfo

	queue      *queue.Queue
	pipeline   *detect.Pipeline
	transcript *transcript.Aggregator
	supervisor *transcript.Supervisor
	now        func() time.Time
	log        *slog.Logger
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
// Supervisor may be nil when fragments arrive over HTTP only.
type SessionManagerConfig struct {
	Queue      *queue.Queue
	Pipeline   *detect.Pipeline
	Transcript *transcript.Aggregator
	Supervisor *transcript.Supervisor
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		info:       SessionInfo{State: SessionIdle},
		queue:      cfg.Queue,
		pipeline:   cfg.Pipeline,
		transcript: cfg.Transcript,
		supervisor: cfg.Supervisor,
		now:        cfg.Now,
		log:        cfg.Logger,
	}
	if sm.now == nil {
		sm.now = time.Now
	}
	if sm.log == nil {
		sm.log = slog.Default()
	}
	return sm
}

// Start begins a new session. The queue, its counters, the transcript and
// the cooldown are cleared and detection is switched on.
//
// Returns ErrSessionActive if a session is already running.
func (sm *SessionManager) Start() (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.live() {
		return sm.info, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.ID)
	}

	sm.queue.Reset()
	sm.transcript.Clear()
	sm.pipeline.Cooldown().Reset()
	sm.pipeline.Resume()

	sm.info = SessionInfo{
		ID:        uuid.NewString(),
		State:     SessionActive,
		StartedAt: sm.now().UTC(),
	}
	sm.log.Info("session started", "session_id", sm.info.ID)
	return sm.info, nil
}

// End stops detection. The transcript and stats stay readable until the
// next Start.
func (sm *SessionManager) End() (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.live() {
		return sm.info, ErrNoSession
	}
	sm.pipeline.Pause()
	sm.info.State = SessionEnded
	sm.info.EndedAt = sm.now().UTC()

	st := sm.queue.Stats()
	sm.log.Info("session ended",
		"session_id", sm.info.ID,
		"duration", sm.info.EndedAt.Sub(sm.info.StartedAt),
		"detected", st.Detected,
		"displayed", st.Displayed,
	)
	return sm.info, nil
}

// Pause switches detection off for the running session, e.g. during
// announcements. The transcript keeps recording.
func (sm *SessionManager) Pause() (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.info.State != SessionActive {
		return sm.info, ErrNoSession
	}
	sm.pipeline.Pause()
	sm.info.State = SessionPaused
	sm.log.Info("session paused", "session_id", sm.info.ID)
	return sm.info, nil
}

// Resume switches detection back on after Pause.
func (sm *SessionManager) Resume() (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.info.State != SessionPaused {
		return sm.info, ErrNotPaused
	}
	sm.pipeline.Resume()
	sm.info.State = SessionActive
	sm.log.Info("session resumed", "session_id", sm.info.ID)
	return sm.info, nil
}

// Info returns the current session metadata.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Snapshot returns the session state with its transcript and queue counters.
func (sm *SessionManager) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		Session:    sm.Info(),
		Transcript: sm.transcript.Segments(),
		Interim:    sm.transcript.Interim(),
		Stats:      sm.queue.Stats(),
		LLMEnabled: sm.pipeline.LLMEnabled(),
	}
	if snap.Transcript == nil {
		snap.Transcript = []transcript.Segment{}
	}
	if sm.supervisor != nil {
		snap.STT = &STTStatus{Active: sm.supervisor.Active(), Restarts: sm.supervisor.Restarts()}
	}
	return snap
}

// live reports whether a session is running. Caller must hold sm.mu.
func (sm *SessionManager) live() bool {
	return sm.info.State == SessionActive || sm.info.State == SessionPaused
}
