// Package idempotency replays the first response to a client-keyed request instead of running
// the handler again.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dukex/applyflow/pkg/models"
)

// ErrRecordNotFound indicates no live record exists for a user and key.
var ErrRecordNotFound = errors.New("idempotency record not found")

// Store persists idempotency records.
type Store interface {
	// Claim inserts record as in flight. When a live record already holds the key it
	// reports false and returns that record. Expired records are replaced.
	Claim(ctx context.Context, record *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error)
	Get(ctx context.Context, userID, key string) (*models.IdempotencyRecord, error)
	// Complete stores the response of a claimed record.
	Complete(ctx context.Context, record *models.IdempotencyRecord) error
	// Release drops a claim so the request may be retried.
	Release(ctx context.Context, userID, key string) error
	// Purge deletes records expired at now and returns how many were removed.
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type recordKey struct {
	userID string
	key    string
}

// MemoryStore keeps records in process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]models.IdempotencyRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]models.IdempotencyRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Claim(_ context.Context, record *models.IdempotencyRecord) (bool, *models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey{record.UserID, record.Key}

	if existing, ok := s.records[k]; ok && !existing.Expired(s.now()) {
		return false, &existing, nil
	}

	s.records[k] = *record

	return true, nil, nil
}

func (s *MemoryStore) Get(_ context.Context, userID, key string) (*models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordKey{userID, key}]
	if !ok || record.Expired(s.now()) {
		return nil, ErrRecordNotFound
	}

	return &record, nil
}

func (s *MemoryStore) Complete(_ context.Context, record *models.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey{record.UserID, record.Key}
	if _, ok := s.records[k]; !ok {
		return ErrRecordNotFound
	}

	s.records[k] = *record

	return nil
}

func (s *MemoryStore) Release(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, recordKey{userID, key})

	return nil
}

func (s *MemoryStore) Purge(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64

	for k, record := range s.records {
		if record.Expired(now) {
			delete(s.records, k)
			removed++
		}
	}

	return removed, nil
}
