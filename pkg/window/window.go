// Package window implements a single tab: one layout tree of panes, an
// active pane, and a zoom override (spec §3, §4.5).
package window

import (
	"errors"

	"github.com/brendandebeasi/mux/pkg/id"
	"github.com/brendandebeasi/mux/pkg/layout"
	"github.com/brendandebeasi/mux/pkg/pane"
	"github.com/brendandebeasi/mux/pkg/rect"
)

// ErrPaneNotFound is returned when an operation references a pane absent
// from the window.
var ErrPaneNotFound = errors.New("window: pane not found")

// Window owns one layout tree, the panes tiled within it, the active pane,
// and a zoom flag (spec §3).
type Window struct {
	ID         id.WindowID
	Name       string
	Layout     layout.Node
	ActivePane id.PaneID
	Panes      map[id.PaneID]*pane.Pane
	Zoomed     bool
	PaneOrder  []id.PaneID

	area    rect.Rect
	counter *id.Counter
}

// New creates a window with a single leaf pane, tiled against area. counter
// mints new pane ids for this window's session for the lifetime of the
// window.
func New(winID id.WindowID, name string, firstPane id.PaneID, area rect.Rect, counter *id.Counter) *Window {
	p := pane.New(firstPane)
	return &Window{
		ID:         winID,
		Name:       name,
		Layout:     &layout.Leaf{PaneID: firstPane},
		ActivePane: firstPane,
		Panes:      map[id.PaneID]*pane.Pane{firstPane: p},
		PaneOrder:  []id.PaneID{firstPane},
		area:       area,
		counter:    counter,
	}
}

// Restore reconstructs a window from persisted fields (spec §4.10): pane and
// window ids are preserved verbatim, counter is the session's pane counter
// (already advanced past every observed id by the caller).
func Restore(winID id.WindowID, name string, node layout.Node, activePane id.PaneID, paneOrder []id.PaneID, panes map[id.PaneID]*pane.Pane, zoomed bool, area rect.Rect, counter *id.Counter) *Window {
	return &Window{
		ID:         winID,
		Name:       name,
		Layout:     node,
		ActivePane: activePane,
		Panes:      panes,
		Zoomed:     zoomed,
		PaneOrder:  paneOrder,
		area:       area,
		counter:    counter,
	}
}

// SetArea updates the rectangle the window tiles against, e.g. on client
// resize (spec §4.11 Resize).
func (w *Window) SetArea(area rect.Rect) {
	w.area = area
}

// Area returns the window's current rectangle.
func (w *Window) Area() rect.Rect {
	return w.area
}

// Rename sets the window's display name.
func (w *Window) Rename(name string) {
	w.Name = name
}

// Rects returns the rectangle of every visible pane. When zoomed, only the
// active pane is visible and it fills the whole area (spec §4.5).
func (w *Window) Rects() map[id.PaneID]rect.Rect {
	if w.Zoomed {
		return map[id.PaneID]rect.Rect{w.ActivePane: w.area}
	}
	return layout.Tile(w.Layout, w.area)
}

// ToggleZoom flips the zoom flag. Applying it twice returns the window to
// its prior rendering (spec §8 idempotence property); the layout tree and
// active pane are never touched by zoom.
func (w *Window) ToggleZoom() {
	w.Zoomed = !w.Zoomed
}

// Split splits target and makes the new pane active (spec §4.2, §4.5).
// Split and ClosePane force zoom off first; the other mutations leave the
// zoom flag as it is.
func (w *Window) Split(target id.PaneID, dir layout.Direction) (id.PaneID, error) {
	w.Zoomed = false
	if _, ok := w.Panes[target]; !ok {
		return 0, ErrPaneNotFound
	}
	targetArea := layout.Tile(w.Layout, w.area)[target]
	newTree, newID, err := layout.SplitLeaf(w.Layout, target, targetArea, dir, w.counter)
	if err != nil {
		return 0, err
	}
	w.Layout = newTree
	w.Panes[newID] = pane.New(newID)
	w.PaneOrder = append(w.PaneOrder, newID)
	w.ActivePane = newID
	return newID, nil
}

// ClosePane closes target (spec §4.3, §4.5). It returns true if the window
// itself should be destroyed (its last pane was closed).
func (w *Window) ClosePane(target id.PaneID) (destroyed bool, err error) {
	w.Zoomed = false
	if _, ok := w.Panes[target]; !ok {
		return false, ErrPaneNotFound
	}
	newTree, destroyed, err := layout.Close(w.Layout, target)
	if err != nil {
		return false, err
	}

	oldOrder := append([]id.PaneID(nil), w.PaneOrder...)
	targetIdx := indexOf(oldOrder, target)

	delete(w.Panes, target)
	w.PaneOrder = removePaneID(w.PaneOrder, target)

	if destroyed {
		return true, nil
	}
	w.Layout = newTree

	if w.ActivePane == target {
		if len(w.PaneOrder) == 0 {
			return true, nil
		}
		// Reset to the next id in pane_order, wrapping (spec §4.3).
		nextIdx := (targetIdx + 1) % len(oldOrder)
		w.ActivePane = oldOrder[nextIdx]
	}
	return false, nil
}

func removePaneID(order []id.PaneID, target id.PaneID) []id.PaneID {
	out := order[:0]
	for _, pid := range order {
		if pid != target {
			out = append(out, pid)
		}
	}
	return out
}

// NextPane cycles the active pane forward along pane_order, wrapping (spec
// §4.5).
func (w *Window) NextPane() {
	w.cyclePane(1)
}

// PrevPane cycles the active pane backward along pane_order, wrapping.
func (w *Window) PrevPane() {
	w.cyclePane(-1)
}

func (w *Window) cyclePane(delta int) {
	n := len(w.PaneOrder)
	if n == 0 {
		return
	}
	idx := indexOf(w.PaneOrder, w.ActivePane)
	if idx < 0 {
		w.ActivePane = w.PaneOrder[0]
		return
	}
	idx = ((idx+delta)%n + n) % n
	w.ActivePane = w.PaneOrder[idx]
}

func indexOf(order []id.PaneID, target id.PaneID) int {
	for i, pid := range order {
		if pid == target {
			return i
		}
	}
	return -1
}

// Navigate selects the pane adjacent to the active pane along edge (spec
// §4.8 NavigatePane). It is a no-op if no pane is adjacent on that edge.
func (w *Window) Navigate(edge layout.Edge) {
	adj := layout.AdjacentPane(w.Layout, w.area, w.ActivePane)
	if pid, ok := adj[edge]; ok {
		w.ActivePane = pid
	}
}

// Resize adjusts the nearest ancestor split matching dir by delta (spec
// §4.4, §4.5).
func (w *Window) Resize(dir layout.Direction, delta float64) error {
	newTree, _, err := layout.Resize(w.Layout, w.area, w.ActivePane, dir, delta)
	if err != nil {
		return err
	}
	w.Layout = newTree
	return nil
}

// PaneIDs returns every pane in the window, in pane_order.
func (w *Window) PaneIDs() []id.PaneID {
	out := make([]id.PaneID, len(w.PaneOrder))
	copy(out, w.PaneOrder)
	return out
}

// PaneCount returns the number of panes in the window.
func (w *Window) PaneCount() int {
	return len(w.PaneOrder)
}
