package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, householdIDs ...int64) *Client {
	households := make(map[int64]struct{}, len(householdIDs))
	for _, id := range householdIDs {
		households[id] = struct{}{}
	}
	return &Client{
		hub:        hub,
		conn:       nil,
		send:       make(chan []byte, sendBufferSize),
		households: households,
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastScopedToHousehold(t *testing.T) {
	hub := NewHub(slog.Default())

	inScope := mockClient(hub, 1)
	outOfScope := mockClient(hub, 2)
	hub.Register(inScope)
	hub.Register(outOfScope)

	ev := NewEvent("safety_status", "created", 1, "abc-123")
	hub.Broadcast(ev)

	select {
	case data := <-inScope.send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "safety_status_created" {
			t.Errorf("expected type safety_status_created, got %s", got.Type)
		}
		if got.HouseholdID != 1 {
			t.Errorf("expected household 1, got %d", got.HouseholdID)
		}
		if got.EntityID != "abc-123" {
			t.Errorf("expected entity id abc-123, got %s", got.EntityID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	select {
	case <-outOfScope.send:
		t.Fatal("client outside household received the event")
	default:
	}

	hub.Unregister(inScope)
	hub.Unregister(outOfScope)
}

func TestBroadcastMultiHouseholdClient(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1, 2)
	hub.Register(c)

	hub.Broadcast(NewEvent("invitation", "created", 1, "5"))
	hub.Broadcast(NewEvent("invitation", "created", 2, "6"))

	for i := 0; i < 2; i++ {
		select {
		case <-c.send:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for event %d", i+1)
		}
	}

	hub.Unregister(c)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(NewEvent("membership", "joined", 1, "9"))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1)
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewEvent("help_request", "updated", 1, "x"))
	}

	// This one drops instead of blocking
	hub.Broadcast(NewEvent("help_request", "updated", 1, "y"))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d events, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent("household", "renamed", 5, "5")
	if ev.Type != "household_renamed" {
		t.Errorf("expected type household_renamed, got %s", ev.Type)
	}
	if ev.Entity != "household" {
		t.Errorf("expected entity household, got %s", ev.Entity)
	}
	if ev.Action != "renamed" {
		t.Errorf("expected action renamed, got %s", ev.Action)
	}
	if ev.HouseholdID != 5 {
		t.Errorf("expected household 5, got %d", ev.HouseholdID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, 1)
			hub.Register(c)
			hub.Broadcast(NewEvent("readiness", "updated", 1, ""))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
