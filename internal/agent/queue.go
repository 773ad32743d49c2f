package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// maxAttempts is the retry ceiling. A mutation that fails this many times
// moves to the dead-letter list so it never blocks the rest of the queue.
const maxAttempts = 3

var (
	// ErrNotQueued means no mutation with the given id is held.
	ErrNotQueued = errors.New("mutation not queued")

	// ErrInFlight means the mutation is mid-send and cannot be cancelled;
	// the outcome of the call in progress decides its fate.
	ErrInFlight = errors.New("mutation in flight")
)

// API is the slice of the server the queue drains into. *Client implements
// it; tests substitute a fake.
type API interface {
	Fetch(ctx context.Context, entity, id string) (*Version, error)
	Create(ctx context.Context, entity string, payload map[string]any) error
	Update(ctx context.Context, entity, id string, payload map[string]any) error
	Delete(ctx context.Context, entity, id string) error
}

// Queue holds writes made while the device was offline and replays them in
// capture order once connectivity returns. State survives restarts through
// the injected store.
type Queue struct {
	api    API
	store  StateStore
	logger *slog.Logger

	online atomic.Bool

	mu      sync.Mutex
	seq     uint64
	pending []*Mutation
	failed  []*Mutation
	syncing bool
}

// NewQueue restores queue state from the store.
func NewQueue(api API, store StateStore, logger *slog.Logger) (*Queue, error) {
	st, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load queue state: %w", err)
	}

	q := &Queue{
		api:     api,
		store:   store,
		logger:  logger,
		seq:     st.Seq,
		pending: st.Pending,
		failed:  st.Failed,
	}
	// A crash mid-send leaves the mutation pending on reload; replaying a
	// possibly-applied create is safe because creates are idempotent.
	for _, m := range q.pending {
		m.Status = StatusPending
	}
	return q, nil
}

// SetOnline records connectivity. Coming online kicks a sync so queued
// writes drain without waiting for the next user action.
func (q *Queue) SetOnline(online bool) {
	was := q.online.Swap(online)
	if online && !was {
		go q.syncSelf()
	}
}

// Online reports the last connectivity signal.
func (q *Queue) Online() bool {
	return q.online.Load()
}

func (q *Queue) syncSelf() {
	if err := q.Sync(context.Background()); err != nil {
		q.logger.Warn("sync pass finished with errors", "error", err)
	}
}

// Enqueue captures a write. A queued update to the same resource is replaced
// in place, keeping its seq and position, so repeated edits of one field
// never grow the queue; creates and deletes are never merged. While online,
// a sync is kicked immediately.
func (q *Queue) Enqueue(kind Kind, entity, entityID string, payload map[string]any, strategy Strategy) (*Mutation, error) {
	if strategy == "" {
		strategy = StrategyServerWins
	}
	m := &Mutation{
		ID:         uuid.NewString(),
		Kind:       kind,
		Entity:     entity,
		EntityID:   entityID,
		Payload:    maps.Clone(payload),
		Strategy:   strategy,
		Status:     StatusPending,
		CapturedAt: time.Now().UTC(),
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	if kind == KindCreate && m.Payload["id"] == nil {
		// The payload carries the client-assigned id so the server can
		// recognize a replay.
		m.Payload["id"] = entityID
	}

	q.mu.Lock()
	if prev := q.replaceLocked(m); prev != nil {
		m = prev
	} else {
		q.seq++
		m.Seq = q.seq
		q.pending = append(q.pending, m)
	}
	err := q.persistLocked()
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if q.online.Load() {
		go q.syncSelf()
	}
	return m, nil
}

// replaceLocked folds an update into a queued update for the same resource:
// the queued entry keeps its id, seq and position, and takes the new payload,
// capture time and strategy. An in-flight entry is never touched; its
// outcome belongs to the payload already sent.
func (q *Queue) replaceLocked(m *Mutation) *Mutation {
	if m.Kind != KindUpdate {
		return nil
	}
	for _, prev := range q.pending {
		if prev.Kind != KindUpdate || prev.Status != StatusPending {
			continue
		}
		if prev.Entity != m.Entity || prev.EntityID != m.EntityID {
			continue
		}
		prev.Payload = m.Payload
		prev.CapturedAt = m.CapturedAt
		prev.Strategy = m.Strategy
		prev.Attempts = 0
		prev.LastError = ""
		return prev
	}
	return nil
}

// Sync drains the queue in capture order, one mutation at a time. A second
// call while one pass is running returns immediately; mutations enqueued
// mid-pass wait for the next one. Per-mutation failures do not stop the
// pass; they are collected and returned together.
func (q *Queue) Sync(ctx context.Context) error {
	q.mu.Lock()
	if q.syncing || len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.syncing = true
	ids := make([]string, len(q.pending))
	for i, m := range q.pending {
		ids[i] = m.ID
	}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.syncing = false
		q.mu.Unlock()
	}()

	var errs error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		q.mu.Lock()
		m := q.findPendingLocked(id)
		if m == nil {
			// Cancelled since the pass started.
			q.mu.Unlock()
			continue
		}
		m.Status = StatusInFlight
		snapshot := *m
		q.mu.Unlock()

		applyErr := q.apply(ctx, &snapshot)

		q.mu.Lock()
		switch {
		case applyErr == nil:
			q.removePendingLocked(id)
			q.logger.Debug("mutation applied", "kind", m.Kind, "entity", m.Entity, "entity_id", m.EntityID)
		case !IsRetryable(applyErr):
			m.Status = StatusFailed
			m.Attempts++
			m.LastError = applyErr.Error()
			q.removePendingLocked(id)
			q.failed = append(q.failed, m)
			q.logger.Warn("mutation rejected, moved to dead letter",
				"kind", m.Kind, "entity", m.Entity, "entity_id", m.EntityID, "error", applyErr)
			errs = multierr.Append(errs, fmt.Errorf("%s %s/%s: %w", m.Kind, m.Entity, m.EntityID, applyErr))
		default:
			m.Attempts++
			m.LastError = applyErr.Error()
			if m.Attempts >= maxAttempts {
				m.Status = StatusFailed
				q.removePendingLocked(id)
				q.failed = append(q.failed, m)
				q.logger.Warn("mutation exhausted retries, moved to dead letter",
					"kind", m.Kind, "entity", m.Entity, "entity_id", m.EntityID, "error", applyErr)
			} else {
				m.Status = StatusPending
			}
			errs = multierr.Append(errs, fmt.Errorf("%s %s/%s: %w", m.Kind, m.Entity, m.EntityID, applyErr))
		}
		persistErr := q.persistLocked()
		q.mu.Unlock()
		errs = multierr.Append(errs, persistErr)
	}
	return errs
}

func (q *Queue) apply(ctx context.Context, m *Mutation) error {
	switch m.Kind {
	case KindCreate:
		return q.applyCreate(ctx, m)
	case KindUpdate:
		return q.applyUpdate(ctx, m)
	case KindDelete:
		err := q.api.Delete(ctx, m.Entity, m.EntityID)
		if errors.Is(err, ErrNotFound) {
			return nil // already gone
		}
		return err
	default:
		return fmt.Errorf("unknown kind %q", m.Kind)
	}
}

// applyCreate replays a create. The server may already hold the resource if
// a prior attempt landed but its acknowledgment was lost; both the pre-check
// and a conflict response collapse that case into success.
func (q *Queue) applyCreate(ctx context.Context, m *Mutation) error {
	_, err := q.api.Fetch(ctx, m.Entity, m.EntityID)
	if err == nil {
		return nil // already applied
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	err = q.api.Create(ctx, m.Entity, m.Payload)
	if errors.Is(err, ErrConflict) {
		return nil // raced another replay
	}
	return err
}

// applyUpdate fetches the server version first. A server copy newer than the
// queued capture is a conflict and goes through the resolver. A missing
// server copy means the resource was deleted meanwhile (or, for profiles,
// never written); server-wins drops the queued change, the other strategies
// still try to land it and let the write's own result decide.
func (q *Queue) applyUpdate(ctx context.Context, m *Mutation) error {
	server, err := q.api.Fetch(ctx, m.Entity, m.EntityID)
	switch {
	case errors.Is(err, ErrNotFound):
		if m.Strategy == StrategyServerWins {
			return nil
		}
		return q.api.Update(ctx, m.Entity, m.EntityID, m.Payload)
	case err != nil:
		return err
	}

	if server.UpdatedAt.After(m.CapturedAt) {
		if m.Strategy == StrategyServerWins {
			return nil // server kept its version; the queued change is dropped
		}
		resolved, err := Resolve(server.Fields, m.Payload, m.Strategy)
		if err != nil {
			return err
		}
		return q.api.Update(ctx, m.Entity, m.EntityID, resolved)
	}
	return q.api.Update(ctx, m.Entity, m.EntityID, m.Payload)
}

// Remove cancels a queued mutation before it is sent.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.pending {
		if m.ID != id {
			continue
		}
		if m.Status == StatusInFlight {
			return ErrInFlight
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		return q.persistLocked()
	}
	return ErrNotQueued
}

// Retry moves a dead-letter mutation back into the queue with a fresh retry
// budget. It keeps its original seq, so it drains before anything captured
// after it.
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.failed {
		if m.ID != id {
			continue
		}
		q.failed = append(q.failed[:i], q.failed[i+1:]...)
		m.Status = StatusPending
		m.Attempts = 0
		m.LastError = ""
		q.insertPendingLocked(m)
		return q.persistLocked()
	}
	return ErrNotQueued
}

// Pending returns a snapshot of queued mutations in send order.
func (q *Queue) Pending() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshot(q.pending)
}

// Failed returns the dead-letter list: mutations that exhausted their
// retries or were rejected outright, kept for manual review.
func (q *Queue) Failed() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshot(q.failed)
}

func snapshot(ms []*Mutation) []Mutation {
	out := make([]Mutation, len(ms))
	for i, m := range ms {
		out[i] = *m
		out[i].Payload = maps.Clone(m.Payload)
	}
	return out
}

func (q *Queue) findPendingLocked(id string) *Mutation {
	for _, m := range q.pending {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (q *Queue) removePendingLocked(id string) {
	for i, m := range q.pending {
		if m.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

func (q *Queue) insertPendingLocked(m *Mutation) {
	for i, p := range q.pending {
		if m.Seq < p.Seq {
			q.pending = slices.Insert(q.pending, i, m)
			return
		}
	}
	q.pending = append(q.pending, m)
}

func (q *Queue) persistLocked() error {
	st := &State{Seq: q.seq, Pending: q.pending, Failed: q.failed}
	if err := q.store.Save(st); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}
