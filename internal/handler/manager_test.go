package handler

import (
	"testing"

	"github.com/kestrelops/kestrel/internal/domain"
)

func handlerList(names ...string) []*domain.Handler {
	var hs []*domain.Handler
	for _, n := range names {
		hs = append(hs, &domain.Handler{Task: &domain.Task{Name: n}})
	}
	return hs
}

func TestNotifyUnknownHandlerErrors(t *testing.T) {
	m := New(handlerList("restart nginx"), false)
	if err := m.Notify("web01", []string{"restart apache"}); err == nil {
		t.Fatal("expected error for unknown handler")
	}
}

func TestNotifyUnknownHandlerWarnOnly(t *testing.T) {
	m := New(handlerList("restart nginx"), true)
	if err := m.Notify("web01", []string{"restart apache"}); err != nil {
		t.Fatalf("expected no error in warn-only mode, got %v", err)
	}
}

func TestFlushOrdersByDeclarationNotNotification(t *testing.T) {
	m := New(handlerList("restart nginx", "reload firewall"), false)
	if err := m.Notify("web01", []string{"reload firewall", "restart nginx"}); err != nil {
		t.Fatal(err)
	}
	runs := m.Flush([]string{"web01"})
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Handler.Task.Name != "restart nginx" || runs[1].Handler.Task.Name != "reload firewall" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestFlushIsIdempotentWithinFlushPoint(t *testing.T) {
	m := New(handlerList("restart nginx"), false)
	if err := m.Notify("web01", []string{"restart nginx"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Notify("web01", []string{"restart nginx"}); err != nil {
		t.Fatal(err)
	}
	runs := m.Flush([]string{"web01"})
	if len(runs) != 1 || len(runs[0].Hosts) != 1 {
		t.Fatalf("expected single run for single host despite double notify: %+v", runs)
	}

	again := m.Flush([]string{"web01"})
	if len(again) != 0 {
		t.Fatalf("expected no re-run at same flush point, got %+v", again)
	}
}

func TestResetFlushPointAllowsRerun(t *testing.T) {
	m := New(handlerList("restart nginx"), false)
	_ = m.Notify("web01", []string{"restart nginx"})
	m.Flush([]string{"web01"})
	m.ResetFlushPoint()

	_ = m.Notify("web01", []string{"restart nginx"})
	runs := m.Flush([]string{"web01"})
	if len(runs) != 1 {
		t.Fatalf("expected handler to run again after reset, got %+v", runs)
	}
}

func TestFlushOnlyIncludesRequestedHosts(t *testing.T) {
	m := New(handlerList("restart nginx"), false)
	_ = m.Notify("web01", []string{"restart nginx"})
	_ = m.Notify("web02", []string{"restart nginx"})

	runs := m.Flush([]string{"web01"})
	if len(runs) != 1 || len(runs[0].Hosts) != 1 || runs[0].Hosts[0] != "web01" {
		t.Fatalf("expected only web01, got %+v", runs)
	}
}
