// Package id mints the monotonic identifiers used for panes, windows, and
// sessions. IDs are opaque 32-bit integers, never reused within a session's
// lifetime, and are not portable across sessions (spec §3).
package id

import "sync/atomic"

// PaneID identifies a pane within its owning session.
type PaneID uint32

// WindowID identifies a window within its owning session.
type WindowID uint32

// SessionID identifies a session for the lifetime of its server process.
// Sessions are named, not numbered, for any user-facing purpose; this id
// exists only so in-process references (e.g. the server's session map) have
// a stable, comparable key independent of the session's (renamable) name.
type SessionID uint32

// Counter mints monotonically increasing, never-reused uint32 values.
// Separate counters are kept per session and per kind (pane vs. window) so
// that restarting one sequence never collides with another.
type Counter struct {
	next uint32
}

// NewCounter returns a Counter that mints start, start+1, start+2, ...
// A fresh session starts its counters at 1.
func NewCounter(start uint32) *Counter {
	return &Counter{next: start}
}

// Next returns the next value and advances the counter.
func (c *Counter) Next() uint32 {
	return atomic.AddUint32(&c.next, 1) - 1
}

// Peek returns the value Next would return without advancing the counter.
func (c *Counter) Peek() uint32 {
	return atomic.LoadUint32(&c.next)
}

// Observe advances the counter so that Next never returns a value <= seen.
// Used on persistence load to recompute counters as max(observed)+1 (§4.10).
func (c *Counter) Observe(seen uint32) {
	for {
		cur := atomic.LoadUint32(&c.next)
		if seen < cur {
			return
		}
		if atomic.CompareAndSwapUint32(&c.next, cur, seen+1) {
			return
		}
	}
}
