// Package session implements the ordered list of windows that makes up a
// named, persistent mux session (spec §3, §4.6).
package session

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/brendandebeasi/mux/pkg/id"
	"github.com/brendandebeasi/mux/pkg/layout"
	"github.com/brendandebeasi/mux/pkg/rect"
	"github.com/brendandebeasi/mux/pkg/window"
)

var (
	// ErrNameInvalid is returned when a session name is empty or contains a
	// path separator (spec §3 invariant 7, §7 NameInvalid).
	ErrNameInvalid = errors.New("session: name invalid")
	// ErrWindowNotFound is returned when an operation references an index
	// outside [0, len(windows)).
	ErrWindowNotFound = errors.New("session: window not found")
)

// Session is the named, ordered collection of windows (spec §3).
type Session struct {
	ID           id.SessionID
	Name         string
	Windows      []*window.Window
	ActiveWindow int

	PaneCounter   *id.Counter
	WindowCounter *id.Counter
}

// ValidateName checks the non-empty, no-path-separator rule of spec §3
// invariant 7.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameInvalid
	}
	if strings.ContainsAny(name, "/\\") || name != filepath.Base(name) {
		return ErrNameInvalid
	}
	return nil
}

// New creates a session named name with one window containing one leaf pane,
// tiled against area (spec §3 "A session is created by server start. Its
// first window contains one leaf pane").
func New(sid id.SessionID, name string, area rect.Rect) (*Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	paneCounter := id.NewCounter(1)
	windowCounter := id.NewCounter(1)

	firstPane := id.PaneID(paneCounter.Next())
	winID := id.WindowID(windowCounter.Next())
	win := window.New(winID, "0", firstPane, area, paneCounter)

	return &Session{
		ID:            sid,
		Name:          name,
		Windows:       []*window.Window{win},
		ActiveWindow:  0,
		PaneCounter:   paneCounter,
		WindowCounter: windowCounter,
	}, nil
}

// ActiveWindowPtr returns the currently active window.
func (s *Session) ActiveWindowPtr() *window.Window {
	return s.Windows[s.ActiveWindow]
}

// ActiveLayout returns the active window's layout tree.
func (s *Session) ActiveLayout() layout.Node {
	return s.ActiveWindowPtr().Layout
}

// ActivePaneID returns the active window's active pane.
func (s *Session) ActivePaneID() id.PaneID {
	return s.ActiveWindowPtr().ActivePane
}

// AddWindow appends a new window with one leaf pane, tiled against area, and
// makes it active (spec §4.6 add_window).
func (s *Session) AddWindow(name string, area rect.Rect) *window.Window {
	if name == "" {
		name = defaultWindowName(len(s.Windows))
	}
	firstPane := id.PaneID(s.PaneCounter.Next())
	winID := id.WindowID(s.WindowCounter.Next())
	win := window.New(winID, name, firstPane, area, s.PaneCounter)
	s.Windows = append(s.Windows, win)
	s.ActiveWindow = len(s.Windows) - 1
	return win
}

func defaultWindowName(index int) string {
	return itoa(index)
}

// itoa avoids importing strconv for a single call site used only for
// default window names; kept here because it is trivial.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// CloseWindow removes the window at idx (spec §4.6 close_window). The
// session's active-window index shifts to the previous window (spec §3
// lifecycle), or CloseWindow reports that the session itself should
// terminate if no windows remain.
func (s *Session) CloseWindow(idx int) (sessionDone bool, err error) {
	if idx < 0 || idx >= len(s.Windows) {
		return false, ErrWindowNotFound
	}
	s.Windows = append(s.Windows[:idx], s.Windows[idx+1:]...)
	if len(s.Windows) == 0 {
		s.ActiveWindow = 0
		return true, nil
	}
	if s.ActiveWindow >= idx {
		s.ActiveWindow--
		if s.ActiveWindow < 0 {
			s.ActiveWindow = 0
		}
	}
	return false, nil
}

// NextWindow cycles the active window forward, wrapping.
func (s *Session) NextWindow() {
	s.cycleWindow(1)
}

// PrevWindow cycles the active window backward, wrapping.
func (s *Session) PrevWindow() {
	s.cycleWindow(-1)
}

func (s *Session) cycleWindow(delta int) {
	n := len(s.Windows)
	if n == 0 {
		return
	}
	s.ActiveWindow = ((s.ActiveWindow+delta)%n + n) % n
}

// SwitchTo selects a window by 1-based index relative to 1; 0 selects
// window 10 (spec §4.6: "0 selects window 10, matching the keymap").
// Out-of-range is a no-op.
func (s *Session) SwitchTo(n int) {
	idx := n - 1
	if n == 0 {
		idx = 9
	}
	if idx < 0 || idx >= len(s.Windows) {
		return
	}
	s.ActiveWindow = idx
}

// RenameWindow renames the window at idx.
func (s *Session) RenameWindow(idx int, name string) error {
	if idx < 0 || idx >= len(s.Windows) {
		return ErrWindowNotFound
	}
	s.Windows[idx].Rename(name)
	return nil
}

// WindowByID finds a window by its id.
func (s *Session) WindowByID(winID id.WindowID) (*window.Window, int, bool) {
	for i, w := range s.Windows {
		if w.ID == winID {
			return w, i, true
		}
	}
	return nil, -1, false
}
