// Package persist serializes a session's layout and metadata to a
// self-contained textual record for crash recovery (spec §4.10). It never
// stores terminal contents, only structure: session name, windows, layout,
// active pointers, and pane titles.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brendandebeasi/mux/pkg/id"
	"github.com/brendandebeasi/mux/pkg/layout"
	"github.com/brendandebeasi/mux/pkg/pane"
	"github.com/brendandebeasi/mux/pkg/rect"
	"github.com/brendandebeasi/mux/pkg/session"
	"github.com/brendandebeasi/mux/pkg/window"
)

// Record is the on-disk shape of a persisted session (spec §4.10). It is
// deliberately a separate type from session.Session: the wire/disk format
// should not change just because the in-memory model grows a field that has
// no business being persisted (e.g. a PTY handle).
type Record struct {
	Name         string         `json:"name"`
	ActiveWindow int            `json:"active_window"`
	Windows      []WindowRecord `json:"windows"`
}

// WindowRecord is one window's persisted shape.
type WindowRecord struct {
	ID         uint32       `json:"id"`
	Name       string       `json:"name"`
	Layout     NodeRecord   `json:"layout"`
	ActivePane uint32       `json:"active_pane"`
	PaneOrder  []uint32     `json:"pane_order"`
	Zoomed     bool         `json:"zoomed"`
	Panes      []PaneRecord `json:"panes"`
}

// PaneRecord is one pane's persisted metadata.
type PaneRecord struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
}

// NodeRecord is the persisted shape of a layout.Node: exactly one of the
// two branches is populated, discriminated by Kind.
type NodeRecord struct {
	Kind      string      `json:"kind"` // "leaf" or "split"
	PaneID    uint32      `json:"pane_id,omitempty"`
	Direction string      `json:"direction,omitempty"` // "horizontal" or "vertical"
	Ratio     float64     `json:"ratio,omitempty"`
	First     *NodeRecord `json:"first,omitempty"`
	Second    *NodeRecord `json:"second,omitempty"`
}

// ToRecord converts a live session into its persisted shape.
func ToRecord(s *session.Session) Record {
	rec := Record{
		Name:         s.Name,
		ActiveWindow: s.ActiveWindow,
	}
	for _, w := range s.Windows {
		rec.Windows = append(rec.Windows, windowToRecord(w))
	}
	return rec
}

func windowToRecord(w *window.Window) WindowRecord {
	wr := WindowRecord{
		ID:         uint32(w.ID),
		Name:       w.Name,
		Layout:     nodeToRecord(w.Layout),
		ActivePane: uint32(w.ActivePane),
		Zoomed:     w.Zoomed,
	}
	for _, pid := range w.PaneOrder {
		wr.PaneOrder = append(wr.PaneOrder, uint32(pid))
	}
	for _, pid := range w.PaneOrder {
		p := w.Panes[pid]
		wr.Panes = append(wr.Panes, PaneRecord{ID: uint32(p.ID), Title: p.Title})
	}
	return wr
}

func nodeToRecord(n layout.Node) NodeRecord {
	switch v := n.(type) {
	case *layout.Leaf:
		return NodeRecord{Kind: "leaf", PaneID: uint32(v.PaneID)}
	case *layout.Split:
		first := nodeToRecord(v.First)
		second := nodeToRecord(v.Second)
		return NodeRecord{
			Kind:      "split",
			Direction: v.Direction.String(),
			Ratio:     v.Ratio,
			First:     &first,
			Second:    &second,
		}
	}
	return NodeRecord{}
}

// FromRecord reconstructs a live session from a persisted record, tiled
// against area. Pane and window ids are preserved verbatim, and the
// session's pane and window counters are advanced past every observed id,
// so each next minted id is max(observed) + 1 (spec §4.10).
func FromRecord(rec Record, area rect.Rect) (*session.Session, error) {
	if err := session.ValidateName(rec.Name); err != nil {
		return nil, err
	}
	s := &session.Session{
		Name:          rec.Name,
		ActiveWindow:  rec.ActiveWindow,
		PaneCounter:   id.NewCounter(1),
		WindowCounter: id.NewCounter(1),
	}
	for _, wr := range rec.Windows {
		w, err := windowFromRecord(wr, area, s.PaneCounter)
		if err != nil {
			return nil, err
		}
		s.Windows = append(s.Windows, w)
		s.WindowCounter.Observe(wr.ID)
	}
	if s.ActiveWindow < 0 || (len(s.Windows) > 0 && s.ActiveWindow >= len(s.Windows)) {
		s.ActiveWindow = 0
	}
	return s, nil
}

func windowFromRecord(wr WindowRecord, area rect.Rect, paneCounter *id.Counter) (*window.Window, error) {
	node, err := nodeFromRecord(wr.Layout)
	if err != nil {
		return nil, err
	}

	panes := make(map[id.PaneID]*pane.Pane, len(wr.Panes))
	for _, pr := range wr.Panes {
		p := pane.New(id.PaneID(pr.ID))
		p.Rename(pr.Title)
		panes[id.PaneID(pr.ID)] = p
		paneCounter.Observe(pr.ID)
	}
	order := make([]id.PaneID, len(wr.PaneOrder))
	for i, pid := range wr.PaneOrder {
		order[i] = id.PaneID(pid)
	}

	w := window.Restore(id.WindowID(wr.ID), wr.Name, node, id.PaneID(wr.ActivePane), order, panes, wr.Zoomed, area, paneCounter)
	return w, nil
}

// LayoutFromRecord reconstructs a layout.Node from its persisted shape, for
// callers (e.g. an attach client rendering a StateSync) that need to tile a
// WindowRecord's layout without reconstructing the rest of the session.
func LayoutFromRecord(nr NodeRecord) (layout.Node, error) {
	return nodeFromRecord(nr)
}

func nodeFromRecord(nr NodeRecord) (layout.Node, error) {
	switch nr.Kind {
	case "leaf":
		return &layout.Leaf{PaneID: id.PaneID(nr.PaneID)}, nil
	case "split":
		if nr.First == nil || nr.Second == nil {
			return nil, fmt.Errorf("persist: split node missing child")
		}
		first, err := nodeFromRecord(*nr.First)
		if err != nil {
			return nil, err
		}
		second, err := nodeFromRecord(*nr.Second)
		if err != nil {
			return nil, err
		}
		dir := layout.Vertical
		if nr.Direction == "horizontal" {
			dir = layout.Horizontal
		}
		return &layout.Split{
			Direction: dir,
			Ratio:     layout.ClampRatio(nr.Ratio),
			First:     first,
			Second:    second,
		}, nil
	default:
		return nil, fmt.Errorf("persist: unknown node kind %q", nr.Kind)
	}
}

// Save atomically writes s to path: it writes to a sibling temp file and
// renames it into place, so a crash mid-write never leaves a truncated
// session file (spec §5 "written atomically").
func Save(s *session.Session, path string) error {
	rec := ToRecord(s)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("persist: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("persist: rename into place: %w", err)
	}
	return nil
}

// Load reads and parses a persisted session from path, tiling it against
// area.
func Load(path string, area rect.Rect) (*session.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persist: read %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("persist: parse %s: %w", path, err)
	}
	return FromRecord(rec, area)
}
