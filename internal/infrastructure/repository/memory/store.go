// Package memory keeps task status, extracted text and batch membership in process.
// It backs STATUS_BACKEND=memory for single-process runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e entry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type Store struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	progress map[string]entry[domain.Progress]
	texts    map[string]entry[string]
	batches  map[string][]string
}

func NewStore(statusTTL time.Duration) *Store {
	return &Store{
		ttl:      statusTTL,
		now:      time.Now,
		progress: make(map[string]entry[domain.Progress]),
		texts:    make(map[string]entry[string]),
		batches:  make(map[string][]string),
	}
}

func (s *Store) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Store) SetProgress(_ context.Context, progress domain.Progress) error {
	if progress.UpdatedAt.IsZero() {
		progress.UpdatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[progress.TaskID] = entry[domain.Progress]{value: progress, expiresAt: s.deadline(s.ttl)}
	return nil
}

func (s *Store) GetProgress(_ context.Context, taskID string) (domain.Progress, error) {
	s.mu.RLock()
	e, ok := s.progress[taskID]
	s.mu.RUnlock()
	if !ok || e.expired(s.now()) {
		return domain.Progress{}, domain.WrapError(domain.ErrTaskNotFound, "get progress", fmt.Errorf("task_id=%s", taskID))
	}
	return e.value, nil
}

func (s *Store) SetExtractedText(_ context.Context, taskID, text string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[taskID] = entry[string]{value: text, expiresAt: s.deadline(ttl)}
	return nil
}

func (s *Store) GetExtractedText(_ context.Context, taskID string) (string, error) {
	s.mu.RLock()
	e, ok := s.texts[taskID]
	s.mu.RUnlock()
	if !ok || e.expired(s.now()) {
		return "", domain.WrapError(domain.ErrTaskNotFound, "get extracted text", fmt.Errorf("task_id=%s", taskID))
	}
	return e.value, nil
}

func (s *Store) AppendTask(_ context.Context, batchID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.batches[batchID] {
		if id == taskID {
			return nil
		}
	}
	s.batches[batchID] = append(s.batches[batchID], taskID)
	return nil
}

func (s *Store) ListTasks(_ context.Context, batchID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.batches[batchID]))
	copy(out, s.batches[batchID])
	return out, nil
}

// PurgeExpired drops expired status and text entries.
func (s *Store) PurgeExpired(_ context.Context) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.progress {
		if e.expired(now) {
			delete(s.progress, id)
			n++
		}
	}
	for id, e := range s.texts {
		if e.expired(now) {
			delete(s.texts, id)
			n++
		}
	}
	return n, nil
}
