package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// memStore keeps queue state as marshalled JSON, so saved state is a true
// snapshot the way a file would be, not an alias of the queue's slices.
type memStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (s *memStore) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return &State{}, nil
	}
	var st State
	if err := json.Unmarshal(s.data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *memStore) Save(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.data = data
	s.saves++
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// fakeAPI is a map-backed server. failures injects an error for a given
// entity/id key; gate and entered let a test hold a call open.
type fakeAPI struct {
	mu         sync.Mutex
	versions   map[string]*Version
	calls      []string
	lastUpdate map[string]any
	failures   map[string]error

	gate    chan struct{}
	entered chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		versions: make(map[string]*Version),
		failures: make(map[string]error),
	}
}

func apiKey(entity, id string) string { return entity + "/" + id }

func (f *fakeAPI) seed(entity, id string, fields map[string]any, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[apiKey(entity, id)] = &Version{Fields: fields, UpdatedAt: updatedAt}
}

func (f *fakeAPI) version(entity, id string) *Version {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[apiKey(entity, id)]
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) Fetch(ctx context.Context, entity, id string) (*Version, error) {
	f.record("fetch:" + apiKey(entity, id))
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[apiKey(entity, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *fakeAPI) Create(ctx context.Context, entity string, payload map[string]any) error {
	id, _ := payload["id"].(string)
	f.record("create:" + apiKey(entity, id))
	f.mu.Lock()
	defer f.mu.Unlock()
	k := apiKey(entity, id)
	if err := f.failures[k]; err != nil {
		return err
	}
	if _, exists := f.versions[k]; exists {
		return ErrConflict
	}
	f.versions[k] = &Version{Fields: maps.Clone(payload), UpdatedAt: time.Now().UTC()}
	return nil
}

func (f *fakeAPI) Update(ctx context.Context, entity, id string, payload map[string]any) error {
	f.record("update:" + apiKey(entity, id))
	f.mu.Lock()
	defer f.mu.Unlock()
	k := apiKey(entity, id)
	if err := f.failures[k]; err != nil {
		return err
	}
	if _, ok := f.versions[k]; !ok {
		return ErrNotFound
	}
	f.lastUpdate = maps.Clone(payload)
	f.versions[k] = &Version{Fields: maps.Clone(payload), UpdatedAt: time.Now().UTC()}
	return nil
}

func (f *fakeAPI) Delete(ctx context.Context, entity, id string) error {
	f.record("delete:" + apiKey(entity, id))
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := apiKey(entity, id)
	if err := f.failures[k]; err != nil {
		return err
	}
	if _, ok := f.versions[k]; !ok {
		return ErrNotFound
	}
	delete(f.versions, k)
	return nil
}

func newTestQueue(t *testing.T, api API, store StateStore) *Queue {
	t.Helper()
	q, err := NewQueue(api, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q
}

func mustEnqueue(t *testing.T, q *Queue, kind Kind, entity, id string, payload map[string]any, strategy Strategy) *Mutation {
	t.Helper()
	m, err := q.Enqueue(kind, entity, id, payload, strategy)
	if err != nil {
		t.Fatalf("enqueue %s %s/%s: %v", kind, entity, id, err)
	}
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestEnqueueAssignsIDsAndPersists(t *testing.T) {
	store := &memStore{}
	q := newTestQueue(t, newFakeAPI(), store)

	m1 := mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)
	m2 := mustEnqueue(t, q, KindCreate, EntityStatus, "s2", map[string]any{"status": "unknown"}, StrategyClientWins)

	if m1.ID == "" || m1.ID == m2.ID {
		t.Errorf("mutation ids not unique: %q, %q", m1.ID, m2.ID)
	}
	if m1.Seq != 1 || m2.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", m1.Seq, m2.Seq)
	}
	if m1.Payload["id"] != "s1" {
		t.Errorf("create payload id = %v, want s1", m1.Payload["id"])
	}
	if store.saveCount() != 2 {
		t.Errorf("saves = %d, want 2 (one per enqueue)", store.saveCount())
	}
}

func TestEnqueueDefaultsToServerWins(t *testing.T) {
	q := newTestQueue(t, newFakeAPI(), &memStore{})

	m := mustEnqueue(t, q, KindDelete, EntityStatus, "s1", nil, "")
	if m.Strategy != StrategyServerWins {
		t.Errorf("strategy = %q, want %q", m.Strategy, StrategyServerWins)
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := newTestQueue(t, newFakeAPI(), &memStore{})
	payload := map[string]any{"status": "safe"}

	cases := []struct {
		name     string
		kind     Kind
		entity   string
		entityID string
		payload  map[string]any
		strategy Strategy
	}{
		{"unknown kind", Kind("upsert"), EntityStatus, "s1", payload, StrategyMerge},
		{"unknown entity", KindCreate, "gondor", "s1", payload, StrategyMerge},
		{"missing entity id", KindCreate, EntityStatus, "", payload, StrategyMerge},
		{"profile create", KindCreate, EntityProfile, "1", payload, StrategyMerge},
		{"household delete", KindDelete, EntityHousehold, "1", nil, StrategyMerge},
		{"missing payload", KindUpdate, EntityStatus, "s1", nil, StrategyMerge},
		{"unknown strategy", KindUpdate, EntityStatus, "s1", payload, Strategy("coin-flip")},
	}
	for _, tc := range cases {
		if _, err := q.Enqueue(tc.kind, tc.entity, tc.entityID, tc.payload, tc.strategy); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
	if n := len(q.Pending()); n != 0 {
		t.Errorf("pending = %d after rejected enqueues, want 0", n)
	}
}

func TestEnqueueReplacesQueuedUpdate(t *testing.T) {
	q := newTestQueue(t, newFakeAPI(), &memStore{})

	first := mustEnqueue(t, q, KindUpdate, EntityStatus, "s1", map[string]any{"status": "unknown"}, StrategyMerge)
	second := mustEnqueue(t, q, KindUpdate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)

	pending := q.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1 (update replaced in place)", len(pending))
	}
	if second.ID != first.ID || pending[0].Seq != first.Seq {
		t.Error("replacement should keep the queued entry's id and seq")
	}
	if pending[0].Payload["status"] != "safe" {
		t.Errorf("payload = %v, want the later edit", pending[0].Payload)
	}
	if pending[0].Strategy != StrategyClientWins {
		t.Errorf("strategy = %q, want the later declaration", pending[0].Strategy)
	}

	// A different resource is not folded in.
	mustEnqueue(t, q, KindUpdate, EntityStatus, "s2", map[string]any{"status": "safe"}, StrategyMerge)
	if n := len(q.Pending()); n != 2 {
		t.Errorf("pending = %d, want 2", n)
	}
}

func TestEnqueueNeverMergesCreatesOrDeletes(t *testing.T) {
	q := newTestQueue(t, newFakeAPI(), &memStore{})

	mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)
	mustEnqueue(t, q, KindUpdate, EntityStatus, "s1", map[string]any{"status": "needs_help"}, StrategyClientWins)
	mustEnqueue(t, q, KindDelete, EntityStatus, "s1", nil, StrategyServerWins)

	pending := q.Pending()
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	kinds := []Kind{pending[0].Kind, pending[1].Kind, pending[2].Kind}
	if kinds[0] != KindCreate || kinds[1] != KindUpdate || kinds[2] != KindDelete {
		t.Errorf("kinds = %v, want create, update, delete", kinds)
	}
}

func TestSyncDrainsInCaptureOrder(t *testing.T) {
	api := newFakeAPI()
	q := newTestQueue(t, api, &memStore{})

	mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)
	mustEnqueue(t, q, KindCreate, EntityHelpRequest, "h1", map[string]any{"description": "water"}, StrategyClientWins)
	mustEnqueue(t, q, KindDelete, EntityStatus, "s2", nil, StrategyServerWins)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	want := []string{
		"fetch:statuses/s1", "create:statuses/s1",
		"fetch:help-requests/h1", "create:help-requests/h1",
		"delete:statuses/s2",
	}
	api.mu.Lock()
	got := append([]string(nil), api.calls...)
	api.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
	if n := len(q.Pending()); n != 0 {
		t.Errorf("pending = %d after drain, want 0", n)
	}
}

func TestSyncSkipsAlreadyAppliedCreate(t *testing.T) {
	api := newFakeAPI()
	// The create from a previous session landed, but the ack was lost.
	api.seed(EntityStatus, "s1", map[string]any{"id": "s1", "status": "safe"}, time.Now().UTC())

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	for _, call := range api.calls {
		if call == "create:statuses/s1" {
			t.Error("replayed create should have been skipped")
		}
	}
	if n := len(q.Pending()); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestSyncCreateConflictCountsAsApplied(t *testing.T) {
	api := newFakeAPI()
	api.failures[apiKey(EntityStatus, "s1")] = ErrConflict

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n := len(q.Pending()); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
	if n := len(q.Failed()); n != 0 {
		t.Errorf("failed = %d, want 0: a conflict on create means it already applied", n)
	}
}

func TestSyncUpdateNoConflictAppliesDirectly(t *testing.T) {
	api := newFakeAPI()
	api.seed(EntityStatus, "s1", map[string]any{"status": "unknown"}, time.Now().UTC().Add(-time.Hour))

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindUpdate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyMerge)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if api.lastUpdate["status"] != "safe" {
		t.Errorf("update payload = %v, want the queued payload untouched", api.lastUpdate)
	}
}

func TestSyncUpdateConflictMerge(t *testing.T) {
	api := newFakeAPI()
	api.seed(EntityStatus, "s1",
		map[string]any{"status": "safe", "note": "from server"},
		time.Now().UTC().Add(time.Hour))

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindUpdate, EntityStatus, "s1", map[string]any{"status": "needs_help"}, StrategyMerge)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if api.lastUpdate["status"] != "needs_help" {
		t.Errorf("status = %v, want client value on overlap", api.lastUpdate["status"])
	}
	if api.lastUpdate["note"] != "from server" {
		t.Errorf("note = %v, want server-only field kept", api.lastUpdate["note"])
	}
}

func TestSyncUpdateConflictServerWins(t *testing.T) {
	api := newFakeAPI()
	api.seed(EntityStatus, "s1", map[string]any{"status": "safe"}, time.Now().UTC().Add(time.Hour))

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindUpdate, EntityStatus, "s1", map[string]any{"status": "unknown"}, StrategyServerWins)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	for _, call := range api.calls {
		if call == "update:statuses/s1" {
			t.Error("server-wins conflict should not write anything")
		}
	}
	if n := len(q.Pending()); n != 0 {
		t.Errorf("pending = %d, want 0 (change discarded)", n)
	}
	if got := api.version(EntityStatus, "s1").Fields["status"]; got != "safe" {
		t.Errorf("server status = %v, want safe", got)
	}
}

func TestSyncUpdateConflictClientWins(t *testing.T) {
	api := newFakeAPI()
	api.seed(EntityStatus, "s1", map[string]any{"status": "safe"}, time.Now().UTC().Add(time.Hour))

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindUpdate, EntityStatus, "s1", map[string]any{"status": "needs_help"}, StrategyClientWins)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := api.version(EntityStatus, "s1").Fields["status"]; got != "needs_help" {
		t.Errorf("server status = %v, want the human's latest action", got)
	}
}

func TestSyncUpdateDeletedResource(t *testing.T) {
	// Server-wins: the deletion stands and the queued change is dropped.
	api := newFakeAPI()
	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindUpdate, EntityStatus, "gone", map[string]any{"status": "safe"}, StrategyServerWins)

	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(q.Pending()) != 0 || len(q.Failed()) != 0 {
		t.Error("server-wins update of a deleted resource should be dropped quietly")
	}

	// Client-wins: the write is attempted and its rejection lands in the
	// dead-letter list rather than vanishing.
	mustEnqueue(t, q, KindUpdate, EntityStatus, "gone", map[string]any{"status": "safe"}, StrategyClientWins)
	if err := q.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	failed := q.Failed()
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(failed))
	}
	if failed[0].LastError == "" {
		t.Error("dead-letter entry should preserve the error")
	}
}

func TestSyncDeleteIdempotent(t *testing.T) {
	api := newFakeAPI()
	q := newTestQueue(t, api, &memStore{})

	mustEnqueue(t, q, KindDelete, EntityStatus, "never-existed", nil, StrategyServerWins)
	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(q.Pending()) != 0 || len(q.Failed()) != 0 {
		t.Error("deleting an already-deleted resource is done, not an error")
	}
}

func TestSyncRetryCeiling(t *testing.T) {
	api := newFakeAPI()
	api.seed(EntityStatus, "s1", map[string]any{"status": "unknown"}, time.Now().UTC().Add(-time.Hour))
	api.failures[apiKey(EntityStatus, "s1")] = &APIError{StatusCode: 500, Message: "boom"}

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindUpdate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)

	for i := 1; i <= maxAttempts; i++ {
		if err := q.Sync(context.Background()); err == nil {
			t.Fatalf("pass %d: expected sync error", i)
		}
	}

	if n := len(q.Pending()); n != 0 {
		t.Errorf("pending = %d, want 0 after retry ceiling", n)
	}
	failed := q.Failed()
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(failed))
	}
	if failed[0].Attempts != maxAttempts {
		t.Errorf("attempts = %d, want %d", failed[0].Attempts, maxAttempts)
	}
	if failed[0].LastError == "" {
		t.Error("dead-letter entry should preserve the last error")
	}
}

func TestSyncTerminalRejectionDeadLettersImmediately(t *testing.T) {
	api := newFakeAPI()
	api.failures[apiKey(EntityStatus, "s1")] = &APIError{StatusCode: 400, Message: "invalid status"}

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "perilous"}, StrategyClientWins)

	if err := q.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	failed := q.Failed()
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1: a definitive rejection never retries", len(failed))
	}
	if failed[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", failed[0].Attempts)
	}
}

func TestSyncPoisonedMutationDoesNotBlockQueue(t *testing.T) {
	api := newFakeAPI()
	api.failures[apiKey(EntityStatus, "bad")] = &APIError{StatusCode: 500, Message: "boom"}

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindCreate, EntityStatus, "bad", map[string]any{"status": "safe"}, StrategyClientWins)
	mustEnqueue(t, q, KindCreate, EntityStatus, "good", map[string]any{"status": "safe"}, StrategyClientWins)

	if err := q.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error from the poisoned mutation")
	}

	if api.version(EntityStatus, "good") == nil {
		t.Error("healthy mutation behind the poisoned one was not applied")
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0].EntityID != "bad" {
		t.Errorf("pending = %+v, want only the poisoned mutation", pending)
	}
	if pending[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", pending[0].Attempts)
	}
}

func TestSyncSingleFlight(t *testing.T) {
	api := newFakeAPI()
	api.gate = make(chan struct{})
	api.entered = make(chan struct{}, 1)

	q := newTestQueue(t, api, &memStore{})
	mustEnqueue(t, q, KindDelete, EntityStatus, "s1", nil, StrategyServerWins)

	done := make(chan error, 1)
	go func() { done <- q.Sync(context.Background()) }()

	<-api.entered

	// A second sync while one is in flight is a no-op.
	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("overlapping sync: %v", err)
	}
	if got := api.callCount(); got != 1 {
		t.Errorf("calls during overlap = %d, want 1", got)
	}

	close(api.gate)
	if err := <-done; err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func TestRemoveCancelsQueuedMutation(t *testing.T) {
	q := newTestQueue(t, newFakeAPI(), &memStore{})

	first := mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)
	mustEnqueue(t, q, KindCreate, EntityStatus, "s2", map[string]any{"status": "safe"}, StrategyClientWins)

	if err := q.Remove(first.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0].EntityID != "s2" {
		t.Errorf("pending = %+v, want only s2", pending)
	}

	if err := q.Remove("no-such-id"); !errors.Is(err, ErrNotQueued) {
		t.Errorf("remove unknown = %v, want ErrNotQueued", err)
	}
}

func TestRetryRequeuesDeadLetter(t *testing.T) {
	api := newFakeAPI()
	api.failures[apiKey(EntityStatus, "s1")] = &APIError{StatusCode: 400, Message: "rejected"}

	q := newTestQueue(t, api, &memStore{})
	m := mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)

	if err := q.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	if len(q.Failed()) != 1 {
		t.Fatalf("failed = %d, want 1", len(q.Failed()))
	}

	if err := q.Retry(m.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0].Attempts != 0 || pending[0].LastError != "" {
		t.Errorf("retried mutation = %+v, want a fresh retry budget", pending)
	}
	if pending[0].Seq != m.Seq {
		t.Errorf("seq = %d, want original %d", pending[0].Seq, m.Seq)
	}

	// Fixed server-side; the retried mutation drains.
	api.mu.Lock()
	delete(api.failures, apiKey(EntityStatus, "s1"))
	api.mu.Unlock()
	if err := q.Sync(context.Background()); err != nil {
		t.Fatalf("sync after retry: %v", err)
	}
	if api.version(EntityStatus, "s1") == nil {
		t.Error("retried mutation was not applied")
	}

	if err := q.Retry("no-such-id"); !errors.Is(err, ErrNotQueued) {
		t.Errorf("retry unknown = %v, want ErrNotQueued", err)
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	api := newFakeAPI()

	q1 := newTestQueue(t, api, NewFileStore(path, ""))
	mustEnqueue(t, q1, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)
	mustEnqueue(t, q1, KindUpdate, EntityStatus, "s1", map[string]any{"status": "needs_help"}, StrategyClientWins)

	// Simulated restart: a fresh queue over the same state file.
	q2 := newTestQueue(t, api, NewFileStore(path, ""))
	pending := q2.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending after restart = %d, want 2", len(pending))
	}

	m3 := mustEnqueue(t, q2, KindCreate, EntityHelpRequest, "h1", map[string]any{"description": "water"}, StrategyClientWins)
	if m3.Seq != 3 {
		t.Errorf("seq after restart = %d, want 3 (counter restored)", m3.Seq)
	}

	if err := q2.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Same final server state as if the writes had been sent while online.
	if got := api.version(EntityStatus, "s1").Fields["status"]; got != "needs_help" {
		t.Errorf("status = %v, want needs_help", got)
	}
	if api.version(EntityHelpRequest, "h1") == nil {
		t.Error("help request was not created")
	}

	st, err := NewFileStore(path, "").Load()
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if len(st.Pending) != 0 {
		t.Errorf("persisted pending = %d after drain, want 0", len(st.Pending))
	}
}

func TestSetOnlineKicksSync(t *testing.T) {
	api := newFakeAPI()
	q := newTestQueue(t, api, &memStore{})

	mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)
	if api.version(EntityStatus, "s1") != nil {
		t.Fatal("offline enqueue should not reach the server")
	}

	q.SetOnline(true)
	waitFor(t, func() bool { return len(q.Pending()) == 0 })
	if api.version(EntityStatus, "s1") == nil {
		t.Error("coming online should drain the queue")
	}
}

func TestEnqueueWhileOnlineSyncsImmediately(t *testing.T) {
	api := newFakeAPI()
	q := newTestQueue(t, api, &memStore{})
	q.SetOnline(true)

	mustEnqueue(t, q, KindCreate, EntityStatus, "s1", map[string]any{"status": "safe"}, StrategyClientWins)
	waitFor(t, func() bool { return api.version(EntityStatus, "s1") != nil })
}
