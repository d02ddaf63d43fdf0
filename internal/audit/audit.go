// Package audit records security-relevant actions. Writes are best-effort
// and fully decoupled from the originating request: an audit failure is
// logged locally and never changes the caller-visible outcome.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one append-only audit entry.
type Record struct {
	ID         string
	ActorID    string
	Action     string
	Resource   string
	ResourceID string
	OldValues  any
	NewValues  any
	IP         string
	UserAgent  string
	At         time.Time
}

// Store persists records durably.
type Store interface {
	Append(ctx context.Context, record Record) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs the store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Append inserts the record.
func (s *PGStore) Append(ctx context.Context, record Record) error {
	if record.Action == "" || record.Resource == "" {
		return errors.New("audit: record requires action and resource")
	}
	oldJSON, err := marshalValues(record.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(record.NewValues)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, resource, resource_id, old_values, new_values, ip, user_agent, occurred_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), NULLIF($9, ''), COALESCE($10, NOW()))`,
		record.ID, record.ActorID, record.Action, record.Resource, record.ResourceID,
		oldJSON, newJSON, record.IP, record.UserAgent, record.At)
	return err
}

// DeleteOlderThan drops records past the retention cutoff.
func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func marshalValues(values any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

// Logger fires audit writes without blocking the request. Each write runs
// on its own goroutine with a bounded timeout, detached from the request
// context so a client abort does not cancel it.
type Logger struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewLogger constructs a Logger. timeout bounds each write attempt; zero
// falls back to five seconds.
func NewLogger(store Store, logger *slog.Logger, timeout time.Duration) *Logger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Logger{store: store, logger: logger, timeout: timeout}
}

// Record appends the entry best-effort and returns immediately.
func (l *Logger) Record(ctx context.Context, record Record) {
	if l == nil || l.store == nil {
		return
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.At.IsZero() {
		record.At = time.Now().UTC()
	}
	detached := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		writeCtx, cancel := context.WithTimeout(detached, l.timeout)
		defer cancel()
		if err := l.store.Append(writeCtx, record); err != nil && l.logger != nil {
			l.logger.Error("audit write failed",
				slog.String("action", record.Action),
				slog.String("resource", record.Resource),
				slog.Any("error", err))
		}
	}()
}

// Wait blocks until in-flight writes finish. Shutdown and tests use it;
// request handling never does.
func (l *Logger) Wait() {
	l.wg.Wait()
}
