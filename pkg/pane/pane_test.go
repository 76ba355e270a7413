package pane

import "testing"

func TestNew_DefaultsToEmptyTitle(t *testing.T) {
	p := New(1)
	if p.Title != "" {
		t.Errorf("Title = %q, want empty", p.Title)
	}
	if p.Exited {
		t.Error("Exited should be false for a fresh pane")
	}
}

func TestRename(t *testing.T) {
	p := New(1)
	p.Rename("shell")
	if p.Title != "shell" {
		t.Errorf("Title = %q, want shell", p.Title)
	}
}

func TestMarkExited(t *testing.T) {
	p := New(1)
	p.MarkExited()
	if !p.Exited {
		t.Error("expected Exited = true after MarkExited")
	}
}
