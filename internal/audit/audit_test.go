package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *memStore) Append(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var removed int64
	for _, record := range s.records {
		if record.At.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	s.records = kept
	return removed, nil
}

func (s *memStore) snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func TestLoggerRecordsAsynchronously(t *testing.T) {
	store := &memStore{}
	logger := NewLogger(store, nil, time.Second)

	logger.Record(context.Background(), Record{
		ActorID:  "u-1",
		Action:   "bookings.cancel",
		Resource: "booking",
		IP:       "203.0.113.9",
	})
	logger.Wait()

	records := store.snapshot()
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].At.IsZero())
	assert.Equal(t, "bookings.cancel", records[0].Action)
}

func TestLoggerSurvivesCanceledRequest(t *testing.T) {
	store := &memStore{}
	logger := NewLogger(store, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger.Record(ctx, Record{ActorID: "u-1", Action: "users.update", Resource: "user"})
	logger.Wait()

	assert.Len(t, store.snapshot(), 1)
}

func TestLoggerSwallowsStoreFailure(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	logger := NewLogger(store, nil, time.Second)

	assert.NotPanics(t, func() {
		logger.Record(context.Background(), Record{ActorID: "u-1", Action: "x", Resource: "y"})
		logger.Wait()
	})
}

func TestLoggerNilReceiverIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Record(context.Background(), Record{Action: "x", Resource: "y"})
	})
}

func TestDeleteOlderThan(t *testing.T) {
	store := &memStore{}
	now := time.Now()
	_ = store.Append(context.Background(), Record{Action: "a", Resource: "r", At: now.Add(-48 * time.Hour)})
	_ = store.Append(context.Background(), Record{Action: "b", Resource: "r", At: now})

	removed, err := store.DeleteOlderThan(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Len(t, store.snapshot(), 1)
}
