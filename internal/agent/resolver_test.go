package agent

import (
	"reflect"
	"testing"
)

func TestResolveServerWins(t *testing.T) {
	server := map[string]any{"status": "safe", "note": "checked in"}
	client := map[string]any{"status": "help_needed"}

	got, err := Resolve(server, client, StrategyServerWins)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(got, server) {
		t.Errorf("resolved = %v, want server version %v", got, server)
	}
}

func TestResolveClientWins(t *testing.T) {
	server := map[string]any{"status": "safe"}
	client := map[string]any{"status": "help_needed", "note": "trapped upstairs"}

	got, err := Resolve(server, client, StrategyClientWins)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(got, client) {
		t.Errorf("resolved = %v, want client version %v", got, client)
	}
}

func TestResolveMerge(t *testing.T) {
	server := map[string]any{"status": "safe", "location": "home", "note": "old"}
	client := map[string]any{"status": "help_needed", "note": "new"}

	got, err := Resolve(server, client, StrategyMerge)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Client values win on overlap; server-only fields survive.
	if got["status"] != "help_needed" {
		t.Errorf("status = %v, want help_needed", got["status"])
	}
	if got["note"] != "new" {
		t.Errorf("note = %v, want new", got["note"])
	}
	if got["location"] != "home" {
		t.Errorf("location = %v, want home", got["location"])
	}
}

func TestResolveMergeDoesNotMutateInputs(t *testing.T) {
	server := map[string]any{"status": "safe"}
	client := map[string]any{"status": "help_needed"}

	if _, err := Resolve(server, client, StrategyMerge); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if server["status"] != "safe" {
		t.Error("server map was mutated")
	}
	if client["status"] != "help_needed" {
		t.Error("client map was mutated")
	}
}

func TestResolveUnknownStrategy(t *testing.T) {
	if _, err := Resolve(nil, nil, Strategy("coin-flip")); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
