package repository

import (
	"context"
	"errors"
	"sync"

	"M1Pose/model"
)

// ErrResultNotFound is returned when no analysis has completed for a session.
var ErrResultNotFound = errors.New("results not found for session")

// ResultStore caches the analysis payload per session token. Put overwrites;
// at most one current value exists per token. Implementations take a context
// so a remote backing store (see cache.RedisResultStore) fits the same seam.
type ResultStore interface {
	Put(ctx context.Context, result *model.AnalysisResult) error
	Get(ctx context.Context, sessionID string) (*model.AnalysisResult, error)
	Delete(ctx context.Context, sessionID string) error
}

// memoryResultStore implements ResultStore with a mutex-guarded map,
// independent of the registry's lock.
type memoryResultStore struct {
	mu      sync.Mutex
	results map[string]*model.AnalysisResult
}

// NewMemoryResultStore creates a new in-memory result store.
func NewMemoryResultStore() ResultStore {
	return &memoryResultStore{
		results: make(map[string]*model.AnalysisResult),
	}
}

func (s *memoryResultStore) Put(_ context.Context, result *model.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *result
	s.results[result.SessionID] = &stored
	return nil
}

func (s *memoryResultStore) Get(_ context.Context, sessionID string) (*model.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[sessionID]
	if !ok {
		return nil, ErrResultNotFound
	}
	snapshot := *result
	return &snapshot, nil
}

// Delete is a no-op for unknown tokens; upload calls it defensively even
// though fresh tokens normally have nothing to clear.
func (s *memoryResultStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, sessionID)
	return nil
}
