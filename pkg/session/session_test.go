package session

import (
	"errors"
	"testing"

	"github.com/brendandebeasi/mux/pkg/rect"
)

var testArea = rect.Rect{X: 0, Y: 0, W: 80, H: 24}

func TestNew_ValidatesName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"work", false},
		{"", true},
		{"has/slash", true},
		{"has\\backslash", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(1, tt.name, testArea)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) err=%v, wantErr=%v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestNew_SingleWindowSinglePane(t *testing.T) {
	s, err := New(1, "work", testArea)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(s.Windows) != 1 {
		t.Fatalf("len(Windows) = %d, want 1", len(s.Windows))
	}
	if s.ActiveWindow != 0 {
		t.Errorf("ActiveWindow = %d, want 0", s.ActiveWindow)
	}
	if s.ActiveWindowPtr().PaneCount() != 1 {
		t.Errorf("first window has %d panes, want 1", s.ActiveWindowPtr().PaneCount())
	}
}

func TestAddWindow_BecomesActive(t *testing.T) {
	s, _ := New(1, "work", testArea)
	s.AddWindow("logs", testArea)
	if s.ActiveWindow != 1 {
		t.Errorf("ActiveWindow = %d, want 1", s.ActiveWindow)
	}
	if s.Windows[1].Name != "logs" {
		t.Errorf("Windows[1].Name = %q, want logs", s.Windows[1].Name)
	}
}

func TestSwitchTo_ZeroSelectsTenth(t *testing.T) {
	s, _ := New(1, "work", testArea)
	for i := 0; i < 9; i++ {
		s.AddWindow("", testArea)
	}
	if len(s.Windows) != 10 {
		t.Fatalf("len(Windows) = %d, want 10", len(s.Windows))
	}
	s.SwitchTo(0)
	if s.ActiveWindow != 9 {
		t.Errorf("SwitchTo(0): ActiveWindow = %d, want 9", s.ActiveWindow)
	}
	s.SwitchTo(1)
	if s.ActiveWindow != 0 {
		t.Errorf("SwitchTo(1): ActiveWindow = %d, want 0", s.ActiveWindow)
	}
}

func TestSwitchTo_OutOfRangeIsNoop(t *testing.T) {
	s, _ := New(1, "work", testArea)
	s.ActiveWindow = 0
	s.SwitchTo(5)
	if s.ActiveWindow != 0 {
		t.Errorf("ActiveWindow = %d, want unchanged 0", s.ActiveWindow)
	}
}

func TestCloseWindow_ShiftsActiveToPrevious(t *testing.T) {
	s, _ := New(1, "work", testArea)
	s.AddWindow("logs", testArea)
	s.AddWindow("db", testArea)
	// active window is now index 2 ("db")

	done, err := s.CloseWindow(2)
	if err != nil || done {
		t.Fatalf("CloseWindow err=%v done=%v", err, done)
	}
	if s.ActiveWindow != 1 {
		t.Errorf("ActiveWindow = %d, want 1", s.ActiveWindow)
	}
}

func TestCloseWindow_LastWindowTerminatesSession(t *testing.T) {
	s, _ := New(1, "work", testArea)
	done, err := s.CloseWindow(0)
	if err != nil {
		t.Fatalf("CloseWindow: %v", err)
	}
	if !done {
		t.Error("expected session termination when closing the last window")
	}
}

func TestCloseWindow_OutOfRange(t *testing.T) {
	s, _ := New(1, "work", testArea)
	_, err := s.CloseWindow(5)
	if !errors.Is(err, ErrWindowNotFound) {
		t.Fatalf("err = %v, want ErrWindowNotFound", err)
	}
}

func TestNextPrevWindow_Wraps(t *testing.T) {
	s, _ := New(1, "work", testArea)
	s.AddWindow("logs", testArea)
	s.ActiveWindow = 0

	s.PrevWindow()
	if s.ActiveWindow != 1 {
		t.Errorf("PrevWindow from 0 = %d, want wrap to 1", s.ActiveWindow)
	}
	s.NextWindow()
	if s.ActiveWindow != 0 {
		t.Errorf("NextWindow from 1 = %d, want wrap to 0", s.ActiveWindow)
	}
}

func TestRenameWindow(t *testing.T) {
	s, _ := New(1, "work", testArea)
	if err := s.RenameWindow(0, "shell"); err != nil {
		t.Fatalf("RenameWindow: %v", err)
	}
	if s.Windows[0].Name != "shell" {
		t.Errorf("Windows[0].Name = %q, want shell", s.Windows[0].Name)
	}
}

func TestActivePaneID(t *testing.T) {
	s, _ := New(1, "work", testArea)
	first := s.Windows[0].PaneIDs()[0]
	if s.ActivePaneID() != first {
		t.Errorf("ActivePaneID() = %d, want %d", s.ActivePaneID(), first)
	}
}
