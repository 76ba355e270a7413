// Package command defines the closed vocabulary of mutating operations the
// leader-key state machine and the wire protocol both speak (spec §4.8).
// A MuxCommand carries no I/O of its own; it is applied by the server
// against its authoritative Session.
package command

import "github.com/brendandebeasi/mux/pkg/layout"

// Kind discriminates the MuxCommand variants.
type Kind int

const (
	SplitHorizontal Kind = iota
	SplitVertical
	ClosePane
	NextPane
	PrevPane
	NavigatePane
	ResizePane
	NewWindow
	CloseWindow
	NextWindow
	PrevWindow
	SwitchToWindow
	RenameWindow
	ToggleZoom
	DetachSession
	ScrollbackMode
)

// String names a Kind for logging. The wire protocol encodes kinds through
// its own name table in pkg/protocol, which uses the same names.
func (k Kind) String() string {
	switch k {
	case SplitHorizontal:
		return "SplitHorizontal"
	case SplitVertical:
		return "SplitVertical"
	case ClosePane:
		return "ClosePane"
	case NextPane:
		return "NextPane"
	case PrevPane:
		return "PrevPane"
	case NavigatePane:
		return "NavigatePane"
	case ResizePane:
		return "ResizePane"
	case NewWindow:
		return "NewWindow"
	case CloseWindow:
		return "CloseWindow"
	case NextWindow:
		return "NextWindow"
	case PrevWindow:
		return "PrevWindow"
	case SwitchToWindow:
		return "SwitchToWindow"
	case RenameWindow:
		return "RenameWindow"
	case ToggleZoom:
		return "ToggleZoom"
	case DetachSession:
		return "DetachSession"
	case ScrollbackMode:
		return "ScrollbackMode"
	default:
		return "Unknown"
	}
}

// Command is a single MuxCommand value (spec §4.8). Only the fields
// relevant to Kind are meaningful; the zero value of the rest is ignored.
type Command struct {
	Kind Kind

	// NavigatePane
	Edge layout.Edge

	// ResizePane
	Direction  layout.Direction
	DeltaCells float64

	// SwitchToWindow: 0 selects window 10 (spec §4.6).
	WindowIndex int

	// RenameWindow
	Name string
}

func New(kind Kind) Command { return Command{Kind: kind} }

func NavigateTo(edge layout.Edge) Command {
	return Command{Kind: NavigatePane, Edge: edge}
}

func Resize(dir layout.Direction, deltaCells float64) Command {
	return Command{Kind: ResizePane, Direction: dir, DeltaCells: deltaCells}
}

func SwitchTo(n int) Command {
	return Command{Kind: SwitchToWindow, WindowIndex: n}
}

func Rename(name string) Command {
	return Command{Kind: RenameWindow, Name: name}
}
