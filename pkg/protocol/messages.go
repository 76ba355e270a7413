package protocol

import (
	"encoding/base64"

	"github.com/brendandebeasi/mux/pkg/command"
	"github.com/brendandebeasi/mux/pkg/layout"
	"github.com/brendandebeasi/mux/pkg/persist"
	"github.com/brendandebeasi/mux/pkg/termgrid"
)

// InputPayload carries raw keystroke/paste bytes for the active pane (spec
// §6 ClientMessage::Input).
type InputPayload struct {
	Bytes string `json:"bytes"` // base64
}

// NewInput returns an InputPayload wrapping data.
func NewInput(data []byte) InputPayload {
	return InputPayload{Bytes: base64.StdEncoding.EncodeToString(data)}
}

// Decode returns the raw bytes carried by an InputPayload.
func (p InputPayload) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Bytes)
}

// ResizePayload carries a client's viewport dimensions (spec §6
// ClientMessage::Resize).
type ResizePayload struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// CommandPayload is the wire shape of a command.Command (spec §6
// ClientMessage::Command). Fields mirror command.Command's; Kind is
// transmitted by name so the wire format is stable across reordering the
// Kind constants.
type CommandPayload struct {
	Kind        string  `json:"kind"`
	Edge        string  `json:"edge,omitempty"`
	Direction   string  `json:"direction,omitempty"`
	DeltaCells  float64 `json:"delta_cells,omitempty"`
	WindowIndex int     `json:"window_index,omitempty"`
	Name        string  `json:"name,omitempty"`
}

var kindNames = map[command.Kind]string{
	command.SplitHorizontal: "SplitHorizontal",
	command.SplitVertical:   "SplitVertical",
	command.ClosePane:       "ClosePane",
	command.NextPane:        "NextPane",
	command.PrevPane:        "PrevPane",
	command.NavigatePane:    "NavigatePane",
	command.ResizePane:      "ResizePane",
	command.NewWindow:       "NewWindow",
	command.CloseWindow:     "CloseWindow",
	command.NextWindow:      "NextWindow",
	command.PrevWindow:      "PrevWindow",
	command.SwitchToWindow:  "SwitchToWindow",
	command.RenameWindow:    "RenameWindow",
	command.ToggleZoom:      "ToggleZoom",
	command.DetachSession:   "DetachSession",
	command.ScrollbackMode:  "ScrollbackMode",
}

var namesToKind = func() map[string]command.Kind {
	out := make(map[string]command.Kind, len(kindNames))
	for k, v := range kindNames {
		out[v] = k
	}
	return out
}()

var edgeNames = map[layout.Edge]string{
	layout.Up:    "Up",
	layout.Down:  "Down",
	layout.Left:  "Left",
	layout.Right: "Right",
}

var namesToEdge = func() map[string]layout.Edge {
	out := make(map[string]layout.Edge, len(edgeNames))
	for k, v := range edgeNames {
		out[v] = k
	}
	return out
}()

var dirNames = map[layout.Direction]string{
	layout.Horizontal: "Horizontal",
	layout.Vertical:   "Vertical",
}

var namesToDir = func() map[string]layout.Direction {
	out := make(map[string]layout.Direction, len(dirNames))
	for k, v := range dirNames {
		out[v] = k
	}
	return out
}()

// EncodeCommand converts a command.Command into its wire shape.
func EncodeCommand(c command.Command) CommandPayload {
	return CommandPayload{
		Kind:        kindNames[c.Kind],
		Edge:        edgeNames[c.Edge],
		Direction:   dirNames[c.Direction],
		DeltaCells:  c.DeltaCells,
		WindowIndex: c.WindowIndex,
		Name:        c.Name,
	}
}

// Decode converts a CommandPayload back into a command.Command.
func (p CommandPayload) Decode() (command.Command, bool) {
	kind, ok := namesToKind[p.Kind]
	if !ok {
		return command.Command{}, false
	}
	return command.Command{
		Kind:        kind,
		Edge:        namesToEdge[p.Edge],
		Direction:   namesToDir[p.Direction],
		DeltaCells:  p.DeltaCells,
		WindowIndex: p.WindowIndex,
		Name:        p.Name,
	}, true
}

// HelloPayload is the server's greeting, sent immediately on accept (spec
// §4.11 Accept, §6 Hello{version}).
type HelloPayload struct {
	Version string `json:"version"`
}

// GridSnapshot is the wire shape of termgrid.Snapshot, keyed by pane so it
// can sit inside a JSON object (spec §6 grid_snapshot).
type GridSnapshot = termgrid.Snapshot

// StateSyncPayload is the authoritative snapshot sent on accept and after
// every applied command (spec §4.11, §6 StateSync{session, grids}).
type StateSyncPayload struct {
	Session persist.Record          `json:"session"`
	Grids   map[uint32]GridSnapshot `json:"grids"`
}

// OutputPayload carries PTY output bytes for one pane (spec §6
// Output{pane_id, data}).
type OutputPayload struct {
	PaneID uint32 `json:"pane_id"`
	Data   string `json:"data"` // base64
}

// NewOutput returns an OutputPayload wrapping data for paneID.
func NewOutput(paneID uint32, data []byte) OutputPayload {
	return OutputPayload{PaneID: paneID, Data: base64.StdEncoding.EncodeToString(data)}
}

// Decode returns the raw bytes carried by an OutputPayload.
func (p OutputPayload) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// PaneExitedPayload announces that a pane's PTY has exited (spec §6
// PaneExited{pane_id}).
type PaneExitedPayload struct {
	PaneID uint32 `json:"pane_id"`
}
