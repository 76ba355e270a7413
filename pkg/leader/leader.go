// Package leader implements the leader-key input state machine (spec
// §4.7): it intercepts raw keystrokes and yields either a MuxCommand, a
// literal leader passthrough, or nothing. It is pure and synchronous and
// owns no I/O; the caller is responsible for forwarding bytes to the PTY
// or applying the emitted command.
package leader

import (
	"time"

	"github.com/brendandebeasi/mux/pkg/command"
)

// State is the machine's current mode.
type State int

const (
	// Normal forwards every keystroke straight to the active pane.
	Normal State = iota
	// WaitingForCommand has consumed a leader key and is waiting for the
	// next keystroke to resolve to a command, a literal leader, or nothing.
	WaitingForCommand
)

// KeyEvent is a single keystroke, identified by its configured-keybinding
// name (e.g. "Control-Space", "x", "Up") so the machine never depends on a
// specific terminal library's key representation.
type KeyEvent struct {
	Key string
}

// EffectKind discriminates what a Step call produced.
type EffectKind int

const (
	// EffectNone: nothing to do (key consumed with no further action, or a
	// timeout expired with no replay).
	EffectNone EffectKind = iota
	// EffectCommand: apply the carried MuxCommand.
	EffectCommand
	// EffectForwardLiteral: write the carried bytes to the active pane's
	// PTY (the leader key pressed twice, spec §4.7).
	EffectForwardLiteral
	// EffectForwardKey: write the carried bytes to the active pane's PTY
	// (Normal-state passthrough).
	EffectForwardKey
)

// Effect is the result of one Step call.
type Effect struct {
	Kind    EffectKind
	Command command.Command
	Bytes   []byte
}

// Bindings is the subset of muxconfig the machine needs: which keys are
// leader keys, the timeout, and the keystroke→MuxCommand map (spec §6
// multiplexer.leader_keys / leader_timeout_ms / keybindings).
type Bindings struct {
	LeaderKeys    []string
	LeaderTimeout time.Duration
	Keybindings   map[string]command.Kind
	// NavigateEdges and SwitchWindows let a keystroke resolve to a
	// parameterized command (NavigatePane/ResizePane/SwitchToWindow carry
	// extra fields Kind alone cannot express). NavigateEdges holds both the
	// NavigatePane and the ResizePane bindings.
	NavigateEdges map[string]command.Command
	SwitchWindows map[string]int
}

// Machine is the deterministic leader-key state machine of spec §4.7.
type Machine struct {
	state     State
	startedAt time.Time
	primary   []byte
}

// NewMachine returns a Machine in Normal state. primaryLeader is the byte
// sequence SendLiteralLeader forwards when the leader key is pressed twice.
func NewMachine(primaryLeader []byte) *Machine {
	return &Machine{state: Normal, primary: primaryLeader}
}

// State reports the machine's current mode.
func (m *Machine) State() State { return m.state }

// Step feeds one keystroke to the machine at time now, given the active
// Bindings, and returns the resulting Effect. now is also used to evaluate
// the idle timeout before processing the keystroke (spec §4.7 "evaluated on
// each incoming event").
func (m *Machine) Step(ev KeyEvent, b Bindings, now time.Time) Effect {
	if m.state == WaitingForCommand && m.timedOut(b, now) {
		m.state = Normal
	}

	switch m.state {
	case Normal:
		if isLeaderKey(ev.Key, b.LeaderKeys) {
			m.state = WaitingForCommand
			m.startedAt = now
			return Effect{Kind: EffectNone}
		}
		return Effect{Kind: EffectForwardKey, Bytes: []byte(ev.Key)}

	case WaitingForCommand:
		m.state = Normal
		if isLeaderKey(ev.Key, b.LeaderKeys) {
			return Effect{Kind: EffectForwardLiteral, Bytes: m.primary}
		}
		if cmd, ok := resolve(ev.Key, b); ok {
			return Effect{Kind: EffectCommand, Command: cmd}
		}
		return Effect{Kind: EffectNone}
	}

	return Effect{Kind: EffectNone}
}

// Tick evaluates the idle timeout without consuming a keystroke (spec §4.7
// "on a periodic tick"). It returns true if the machine reverted to Normal.
func (m *Machine) Tick(b Bindings, now time.Time) bool {
	if m.state == WaitingForCommand && m.timedOut(b, now) {
		m.state = Normal
		return true
	}
	return false
}

func (m *Machine) timedOut(b Bindings, now time.Time) bool {
	return now.Sub(m.startedAt) >= b.LeaderTimeout
}

func isLeaderKey(key string, leaders []string) bool {
	for _, l := range leaders {
		if l == key {
			return true
		}
	}
	return false
}

func resolve(key string, b Bindings) (command.Command, bool) {
	if c, ok := b.NavigateEdges[key]; ok {
		return c, true
	}
	if n, ok := b.SwitchWindows[key]; ok {
		return command.SwitchTo(n), true
	}
	kind, ok := b.Keybindings[key]
	if !ok {
		return command.Command{}, false
	}
	return command.New(kind), true
}
