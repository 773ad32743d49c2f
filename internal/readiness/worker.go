// Package readiness drains the recalculation outbox. Membership
// transactions and profile edits enqueue a row instead of computing scores
// inline; the worker picks those rows up shortly after commit, recomputes
// the household's score with the injected scorer, and stores the result.
package readiness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

// Scorer turns a vulnerability profile and the registered roster size into
// a readiness score.
type Scorer func(p *model.VulnerabilityProfile, memberCount int) float64

const (
	defaultInterval = 5 * time.Second
	batchSize       = 50
	doneRetention   = 24 * time.Hour
)

// Worker periodically drains pending recalculation requests.
type Worker struct {
	mu         sync.RWMutex
	readiness  *store.ReadinessStore
	profiles   *store.VulnerabilityProfileStore
	households *store.HouseholdStore
	scorer     Scorer
	notify     func(householdID int64, score float64)
	interval   time.Duration
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewWorker wires the drain loop. notify, when non-nil, runs after each
// stored score so the server can push the change to connected agents.
func NewWorker(readiness *store.ReadinessStore, profiles *store.VulnerabilityProfileStore, households *store.HouseholdStore, scorer Scorer, notify func(householdID int64, score float64), logger *slog.Logger) *Worker {
	return &Worker{
		readiness:  readiness,
		profiles:   profiles,
		households: households,
		scorer:     scorer,
		notify:     notify,
		interval:   defaultInterval,
		logger:     logger,
	}
}

// Start begins the drain loop.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick()
			}
		}
	}()
}

// Stop cancels the loop and waits for the current tick to finish.
func (w *Worker) Stop() {
	w.mu.RLock()
	cancel := w.cancel
	done := w.done
	w.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// tick processes one batch. Requests for the same household collapse into a
// single recomputation. Rows whose recomputation fails stay pending for the
// next tick; rows whose household no longer exists are completed quietly.
func (w *Worker) tick() {
	pending, err := w.readiness.PendingRecalcs(batchSize)
	if err != nil {
		w.logger.Error("list pending recalcs", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	processed := make([]int64, 0, len(pending))
	seen := make(map[int64]bool)
	failed := make(map[int64]bool)
	for _, req := range pending {
		if seen[req.HouseholdID] {
			continue
		}
		seen[req.HouseholdID] = true
		ok, err := w.recompute(req.HouseholdID)
		if err != nil {
			w.logger.Error("recompute readiness", "household_id", req.HouseholdID, "error", err)
			failed[req.HouseholdID] = true
			continue
		}
		if ok {
			w.logger.Debug("readiness recomputed", "household_id", req.HouseholdID)
		}
	}
	for _, req := range pending {
		if !failed[req.HouseholdID] {
			processed = append(processed, req.ID)
		}
	}

	if err := w.readiness.MarkRecalcsDone(processed); err != nil {
		w.logger.Error("mark recalcs done", "error", err)
		return
	}
	if _, err := w.readiness.DeleteDoneRecalcs(time.Now().Add(-doneRetention)); err != nil {
		w.logger.Error("clean recalc outbox", "error", err)
	}
}

// recompute scores one household. Returns false when the household is gone,
// which happens when a sole owner left after the request was queued.
func (w *Worker) recompute(householdID int64) (bool, error) {
	profile, err := w.profiles.Get(householdID)
	if err != nil {
		return false, err
	}
	if profile == nil {
		return false, nil
	}
	members, err := w.households.CountMembers(householdID)
	if err != nil {
		return false, err
	}
	s := w.scorer(profile, members)
	if err := w.readiness.UpsertScore(householdID, s, time.Now()); err != nil {
		return false, err
	}
	if w.notify != nil {
		w.notify(householdID, s)
	}
	return true, nil
}
