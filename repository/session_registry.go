package repository

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"M1Pose/model"
)

var (
	// ErrSessionNotFound is returned when a session token is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned on a token collision during Register.
	// Tokens are generated internally, so this should never fire; if it
	// does, something is badly wrong and the caller must not proceed.
	ErrSessionExists = errors.New("session token already registered")
	// ErrAnalysisInProgress is returned when a second analyze call arrives
	// while a pipeline run is already active for the session.
	ErrAnalysisInProgress = errors.New("analysis already in progress for session")
)

// SessionRegistry defines the interface for session upload records.
// Records are immutable after registration except for the analysis state,
// which only changes through BeginAnalysis/FinishAnalysis.
type SessionRegistry interface {
	Register(record *model.SessionUploadRecord) error
	Lookup(sessionID string) (*model.SessionUploadRecord, error)
	// BeginAnalysis transitions the session into the analyzing state and
	// returns a snapshot of the record. A session already analyzing yields
	// ErrAnalysisInProgress.
	BeginAnalysis(sessionID string) (*model.SessionUploadRecord, error)
	// FinishAnalysis records the outcome of a pipeline run: nil moves the
	// session to analyzed, non-nil to failed with the reason kept.
	FinishAnalysis(sessionID string, runErr error)
	Remove(sessionID string) error
	// ExpiredBefore returns snapshots of sessions whose last activity is
	// older than the cutoff. Used by the eviction sweeper.
	ExpiredBefore(cutoff time.Time) []*model.SessionUploadRecord
}

// memorySessionRegistry implements SessionRegistry with a mutex-guarded map.
// Sessions reference files on the local filesystem, so an out-of-process
// backing store would outlive the files it points at; entries die with the
// process that owns them.
type memorySessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*model.SessionUploadRecord
}

// NewMemorySessionRegistry creates a new in-memory session registry.
func NewMemorySessionRegistry() SessionRegistry {
	return &memorySessionRegistry{
		sessions: make(map[string]*model.SessionUploadRecord),
	}
}

// Register stores a freshly uploaded session. The token must be new.
func (r *memorySessionRegistry) Register(record *model.SessionUploadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[record.SessionID]; exists {
		return fmt.Errorf("register session %s: %w", record.SessionID, ErrSessionExists)
	}

	stored := *record
	if stored.State == "" {
		stored.State = model.SessionStateCreated
	}
	if stored.LastActivity.IsZero() {
		stored.LastActivity = time.Now()
	}
	r.sessions[record.SessionID] = &stored
	return nil
}

// Lookup returns a snapshot of the record so callers cannot mutate shared
// state behind the registry's back.
func (r *memorySessionRegistry) Lookup(sessionID string) (*model.SessionUploadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	snapshot := *record
	return &snapshot, nil
}

func (r *memorySessionRegistry) BeginAnalysis(sessionID string) (*model.SessionUploadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if record.State == model.SessionStateAnalyzing {
		return nil, ErrAnalysisInProgress
	}

	record.State = model.SessionStateAnalyzing
	record.FailureReason = ""
	record.LastActivity = time.Now()

	snapshot := *record
	return &snapshot, nil
}

func (r *memorySessionRegistry) FinishAnalysis(sessionID string, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.sessions[sessionID]
	if !ok {
		// Session evicted while its pipeline was running; nothing to record.
		return
	}

	if runErr != nil {
		record.State = model.SessionStateFailed
		record.FailureReason = runErr.Error()
	} else {
		record.State = model.SessionStateAnalyzed
		record.FailureReason = ""
	}
	record.LastActivity = time.Now()
}

func (r *memorySessionRegistry) Remove(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *memorySessionRegistry) ExpiredBefore(cutoff time.Time) []*model.SessionUploadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*model.SessionUploadRecord
	for _, record := range r.sessions {
		// 分析中的会话不回收，避免删除正在写入的工作目录
		if record.State == model.SessionStateAnalyzing {
			continue
		}
		if record.LastActivity.Before(cutoff) {
			snapshot := *record
			expired = append(expired, &snapshot)
		}
	}
	return expired
}
