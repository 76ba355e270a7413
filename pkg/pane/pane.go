// Package pane holds the per-pane metadata kept outside the layout tree
// (spec §3): a title and whether the pane's underlying process has exited.
package pane

import "github.com/brendandebeasi/mux/pkg/id"

// Pane is a single PTY + emulator state slot, identified by id.PaneID. The
// PTY and emulator state themselves are owned by the server (spec §4.11);
// Pane carries only the metadata the layout/session layer needs.
type Pane struct {
	ID      id.PaneID
	Title   string
	Exited  bool
}

// New returns a Pane with the default empty title (spec §3: "Title defaults
// to \"\"").
func New(paneID id.PaneID) *Pane {
	return &Pane{ID: paneID}
}

// Rename sets the pane's title.
func (p *Pane) Rename(title string) {
	p.Title = title
}

// MarkExited records that the pane's PTY has exited, for status-bar display
// or UI dimming; it does not itself remove the pane from any window (the
// server decides that, per spec §4.11 "Pane exit").
func (p *Pane) MarkExited() {
	p.Exited = true
}
