// Package server implements the authoritative event loop that owns the
// session, the PTYs, and the per-pane terminal grids, and that speaks the
// attach protocol to one or more connected clients (spec §4.11, §5).
//
// It is grounded in pkg/daemon/server.go's accept loop and client map, and
// in cmd/tabby-daemon/main.go's select-loop reactor and panic-recovering
// callbacks, generalized from "broadcast pre-rendered content" to "own
// PTYs, route input, fan out output, apply commands, broadcast StateSync."
// A single mutex over the session plus the PTY/grid maps gives clients the
// atomicity spec §5 requires between a command's effect and the StateSync
// that reflects it.
package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/brendandebeasi/mux/pkg/command"
	"github.com/brendandebeasi/mux/pkg/id"
	"github.com/brendandebeasi/mux/pkg/layout"
	"github.com/brendandebeasi/mux/pkg/muxconfig"
	"github.com/brendandebeasi/mux/pkg/perf"
	"github.com/brendandebeasi/mux/pkg/persist"
	"github.com/brendandebeasi/mux/pkg/protocol"
	"github.com/brendandebeasi/mux/pkg/ptyproc"
	"github.com/brendandebeasi/mux/pkg/rect"
	"github.com/brendandebeasi/mux/pkg/session"
	"github.com/brendandebeasi/mux/pkg/termgrid"
	"github.com/brendandebeasi/mux/pkg/window"
)

// Version is reported in Hello so a client can detect a protocol mismatch.
const Version = "mux/1"

// outboxCapacity bounds each client's pending-output queue (spec §5 "Each
// client's queue is bounded; if a client falls behind beyond the bound the
// server drops that client").
const outboxCapacity = 256

// Server is the authoritative mux server of spec §4.11.
type Server struct {
	mu   sync.Mutex
	sess *session.Session
	cfg  *muxconfig.Config

	socketPath  string
	sessionPath string

	ptys  map[id.PaneID]*ptyproc.PTY
	grids map[id.PaneID]*termgrid.Grid

	clients      map[uint64]*clientConn
	nextClientID uint64

	viewportRows int
	viewportCols int

	listener net.Listener
	done     chan struct{}
	wg       sync.WaitGroup

	eventLog *log.Logger
	crashLog *log.Logger
}

// clientConn tracks one attached client's connection and negotiated
// viewport (spec §4.11, mirroring pkg/daemon/server.go's ClientInfo).
type clientConn struct {
	id   uint64
	conn net.Conn
	rows int
	cols int

	outbox    chan []byte
	closeOnce sync.Once
}

// New constructs a Server around an already-created session. cfg supplies
// leader/keybinding/status-bar defaults consumed elsewhere (the server
// itself only reads nothing from cfg today beyond what callers pass through
// commands, but holds it so future server-side config use — e.g. per-pane
// shell overrides — has a home without a signature change).
func New(sess *session.Session, cfg *muxconfig.Config, socketPath, sessionPath string, eventLog, crashLog *log.Logger) *Server {
	return &Server{
		sess:        sess,
		cfg:         cfg,
		socketPath:  socketPath,
		sessionPath: sessionPath,
		ptys:        make(map[id.PaneID]*ptyproc.PTY),
		grids:       make(map[id.PaneID]*termgrid.Grid),
		clients:     make(map[uint64]*clientConn),
		done:        make(chan struct{}),
		eventLog:    eventLog,
		crashLog:    crashLog,
	}
}

func (s *Server) logEvent(format string, args ...interface{}) {
	if s.eventLog != nil {
		s.eventLog.Printf(format, args...)
	}
}

// recoverAndLog is deferred at the top of every goroutine the server
// spawns so a panic handling one connection or PTY never takes the process
// down (spec §5: client drops and pane errors "never abort the server"),
// mirroring cmd/tabby-daemon/main.go's recoverAndLog.
func (s *Server) recoverAndLog(context string) {
	if r := recover(); r != nil {
		if s.crashLog != nil {
			s.crashLog.Printf("=== CRASH in %s ===", context)
			s.crashLog.Printf("Panic: %v", r)
			s.crashLog.Printf("Stack trace:\n%s", debug.Stack())
			s.crashLog.Printf("=== END CRASH ===")
		}
	}
}

// Run starts listening and spawns the initial PTYs, then blocks accepting
// clients until Shutdown is called.
func (s *Server) Run() error {
	if err := s.start(); err != nil {
		return err
	}
	s.acceptLoop()
	return nil
}

func (s *Server) start() error {
	os.Remove(s.socketPath)
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.socketPath, err)
	}
	// Restrict the socket to owner-only access (spec §5).
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		l.Close()
		return fmt.Errorf("server: chmod socket: %w", err)
	}
	s.listener = l

	s.mu.Lock()
	s.spawnInitialPTYsLocked()
	s.mu.Unlock()

	s.logEvent("SERVER_START session=%s pid=%d socket=%s", s.sess.Name, os.Getpid(), s.socketPath)
	return nil
}

// spawnInitialPTYsLocked spawns one PTY per pane already present in the
// session (on a fresh session that's the single leaf; on a reload from
// persistence it's every leaf in every window) and discards any prior
// textual output (spec §4.10 "the server reconstructs the tree, spawns a
// fresh PTY per leaf, and discards any prior textual output").
func (s *Server) spawnInitialPTYsLocked() {
	for _, w := range s.sess.Windows {
		rects := w.Rects()
		for _, pid := range w.PaneIDs() {
			r := rects[pid]
			s.spawnPaneLocked(pid, r)
		}
	}
}

func (s *Server) spawnPaneLocked(pid id.PaneID, r rect.Rect) {
	t := perf.Start("spawnPane")
	defer t.Stop()

	rows, cols := r.H, r.W
	if rows < layout.MinHeight {
		rows = layout.MinHeight
	}
	if cols < layout.MinWidth {
		cols = layout.MinWidth
	}
	p, err := ptyproc.Spawn(pid, rows, cols)
	if err != nil {
		s.logEvent("PANE_SPAWN_FAILED pane=%d err=%v", pid, err)
		return
	}
	s.ptys[pid] = p
	s.grids[pid] = termgrid.New(rows, cols)
	s.wg.Add(1)
	go s.pumpPTY(pid, p)
	s.logEvent("PANE_SPAWN pane=%d rows=%d cols=%d", pid, rows, cols)
}

// acceptLoop accepts client connections until Shutdown closes the listener
// (spec §4.11 Accept).
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go s.handleClient(conn)
	}
}

func (s *Server) handleClient(conn net.Conn) {
	defer s.wg.Done()
	defer s.recoverAndLog("handleClient")
	defer conn.Close()

	s.mu.Lock()
	s.nextClientID++
	cid := s.nextClientID
	cc := &clientConn{id: cid, conn: conn, outbox: make(chan []byte, outboxCapacity)}
	s.clients[cid] = cc
	s.mu.Unlock()

	s.logEvent("CLIENT_CONNECT client=%d", cid)

	s.wg.Add(1)
	go s.writeLoop(cc)

	s.enqueue(cc, protocol.TypeHello, protocol.HelloPayload{Version: Version})
	s.sendStateSyncTo(cc)

	r := bufio.NewReaderSize(conn, 64*1024)
	for {
		env, err := protocol.Receive(r)
		if err != nil {
			break
		}
		if s.dispatch(cid, env) == actionClose {
			break
		}
	}

	s.dropClient(cid, "disconnected")
}

type dispatchAction int

const (
	actionContinue dispatchAction = iota
	actionClose
)

func (s *Server) dispatch(cid uint64, env protocol.Envelope) dispatchAction {
	switch env.Type {
	case protocol.TypeInput:
		var p protocol.InputPayload
		if err := decode(env.Data, &p); err != nil {
			return actionContinue
		}
		data, err := p.Decode()
		if err != nil {
			return actionContinue
		}
		s.routeInput(data)

	case protocol.TypeResize:
		var p protocol.ResizePayload
		if err := decode(env.Data, &p); err != nil {
			return actionContinue
		}
		s.handleResize(cid, p.Rows, p.Cols)

	case protocol.TypeCommand:
		var p protocol.CommandPayload
		if err := decode(env.Data, &p); err != nil {
			return actionContinue
		}
		cmd, ok := p.Decode()
		if !ok {
			return actionContinue
		}
		s.applyCommand(cmd)

	case protocol.TypeAttach:
		s.mu.Lock()
		cc := s.clients[cid]
		s.mu.Unlock()
		if cc != nil {
			s.sendStateSyncTo(cc)
		}

	case protocol.TypeDetach:
		s.logEvent("CLIENT_DETACH client=%d", cid)
		return actionClose

	case protocol.TypeKill:
		s.logEvent("CLIENT_KILL client=%d", cid)
		s.Shutdown("kill")
		return actionClose
	}
	return actionContinue
}

func decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// routeInput writes bytes to the active pane of the active window (spec
// §4.11 Input routing).
func (s *Server) routeInput(data []byte) {
	s.mu.Lock()
	pid := s.sess.ActivePaneID()
	p := s.ptys[pid]
	s.mu.Unlock()
	if p != nil {
		p.Write(data)
	}
}

// handleResize records cid's viewport, recomputes the server's effective
// viewport as the minimum of each dimension across connected clients (spec
// §4.11 Resize "If multiple clients are attached the server uses the
// minimum of each dimension"), and if that changed, re-tiles the active
// window against it and resizes every affected PTY and grid.
func (s *Server) handleResize(cid uint64, rows, cols int) {
	s.mu.Lock()
	if cc, ok := s.clients[cid]; ok {
		cc.rows, cc.cols = rows, cols
	}
	minRows, minCols := s.minViewportLocked()
	changed := minRows != s.viewportRows || minCols != s.viewportCols
	if changed && minRows > 0 && minCols > 0 {
		s.viewportRows, s.viewportCols = minRows, minCols
		s.retileActiveWindowLocked()
	}
	s.persistLocked()
	s.mu.Unlock()

	if changed {
		s.broadcastStateSync()
	}
}

func (s *Server) minViewportLocked() (rows, cols int) {
	rows, cols = 0, 0
	for _, cc := range s.clients {
		if cc.rows <= 0 || cc.cols <= 0 {
			continue
		}
		if rows == 0 || cc.rows < rows {
			rows = cc.rows
		}
		if cols == 0 || cc.cols < cols {
			cols = cc.cols
		}
	}
	return rows, cols
}

// retileActiveWindowLocked applies the server's viewport to the active
// window — one row reserved for the status bar (spec §4.11 Resize) — and
// resizes every pane's PTY and grid to match its new rectangle.
func (s *Server) retileActiveWindowLocked() {
	if s.viewportRows <= 1 || s.viewportCols <= 0 {
		return
	}
	area := rect.Rect{X: 0, Y: 0, W: s.viewportCols, H: s.viewportRows - 1}
	win := s.sess.ActiveWindowPtr()
	win.SetArea(area)
	s.resizeWindowPTYsLocked(win)
}

func (s *Server) resizeWindowPTYsLocked(win *window.Window) {
	for pid, r := range win.Rects() {
		rows, cols := r.H, r.W
		if rows < layout.MinHeight {
			rows = layout.MinHeight
		}
		if cols < layout.MinWidth {
			cols = layout.MinWidth
		}
		if p, ok := s.ptys[pid]; ok {
			p.Resize(rows, cols)
		}
		if g, ok := s.grids[pid]; ok {
			g.Resize(rows, cols)
		}
	}
}

// applyCommand applies cmd to the authoritative session (spawning or
// killing PTYs as needed), persists the result, and broadcasts an updated
// StateSync (spec §4.11 Command dispatch). DetachSession and
// ScrollbackMode are client-local effects of the leader machine (spec
// §4.7) that never reach the wire as a Command — see DESIGN.md — so they
// are a no-op here if one arrives anyway.
func (s *Server) applyCommand(cmd command.Command) {
	t := perf.Start("applyCommand:" + cmd.Kind.String())
	defer t.Stop()

	s.mu.Lock()
	applied, sessionDone := s.applyCommandLocked(cmd)
	if applied {
		s.persistLocked()
	}
	s.mu.Unlock()

	if sessionDone {
		s.Shutdown("last_window_closed")
		return
	}
	if applied {
		s.logEvent("COMMAND kind=%s", cmd.Kind.String())
		s.broadcastStateSync()
	}
}

func (s *Server) applyCommandLocked(cmd command.Command) (applied, sessionDone bool) {
	win := s.sess.ActiveWindowPtr()

	switch cmd.Kind {
	case command.SplitHorizontal, command.SplitVertical:
		dir := layout.Vertical
		if cmd.Kind == command.SplitHorizontal {
			dir = layout.Horizontal
		}
		newID, err := win.Split(win.ActivePane, dir)
		if err != nil {
			return false, false
		}
		s.spawnPaneLocked(newID, win.Rects()[newID])
		return true, false

	case command.ClosePane:
		target := win.ActivePane
		return s.closePaneLocked(win, target)

	case command.NextPane:
		win.NextPane()
		return true, false

	case command.PrevPane:
		win.PrevPane()
		return true, false

	case command.NavigatePane:
		win.Navigate(cmd.Edge)
		return true, false

	case command.ResizePane:
		area := win.Area()
		axis := area.W
		if cmd.Direction == layout.Horizontal {
			axis = area.H
		}
		if axis <= 0 {
			return false, false
		}
		deltaRatio := cmd.DeltaCells / float64(axis)
		if err := win.Resize(cmd.Direction, deltaRatio); err != nil {
			return false, false
		}
		s.resizeWindowPTYsLocked(win)
		return true, false

	case command.NewWindow:
		newWin := s.sess.AddWindow("", win.Area())
		for _, pid := range newWin.PaneIDs() {
			s.spawnPaneLocked(pid, newWin.Rects()[pid])
		}
		return true, false

	case command.CloseWindow:
		return s.closeWindowLocked(s.sess.ActiveWindow)

	case command.NextWindow:
		s.sess.NextWindow()
		s.retileActiveWindowLocked()
		return true, false

	case command.PrevWindow:
		s.sess.PrevWindow()
		s.retileActiveWindowLocked()
		return true, false

	case command.SwitchToWindow:
		s.sess.SwitchTo(cmd.WindowIndex)
		s.retileActiveWindowLocked()
		return true, false

	case command.RenameWindow:
		if err := s.sess.RenameWindow(s.sess.ActiveWindow, cmd.Name); err != nil {
			return false, false
		}
		return true, false

	case command.ToggleZoom:
		win.ToggleZoom()
		return true, false

	default:
		// DetachSession, ScrollbackMode: client-local, never dispatched here.
		return false, false
	}
}

// closePaneLocked closes target within win, tearing down its PTY/grid and,
// if that empties the window, closing the window too (spec §3 lifecycle,
// §4.11 Pane exit). It reports whether the whole session should terminate.
func (s *Server) closePaneLocked(win *window.Window, target id.PaneID) (applied, sessionDone bool) {
	destroyed, err := win.ClosePane(target)
	if err != nil {
		return false, false
	}
	s.teardownPaneLocked(target)
	if !destroyed {
		s.resizeWindowPTYsLocked(win)
		return true, false
	}
	winIdx := -1
	for i, w := range s.sess.Windows {
		if w == win {
			winIdx = i
			break
		}
	}
	if winIdx < 0 {
		return true, false
	}
	done, _ := s.sess.CloseWindow(winIdx)
	if !done {
		s.retileActiveWindowLocked()
	}
	return true, done
}

func (s *Server) closeWindowLocked(idx int) (applied, sessionDone bool) {
	if idx < 0 || idx >= len(s.sess.Windows) {
		return false, false
	}
	for _, pid := range s.sess.Windows[idx].PaneIDs() {
		s.teardownPaneLocked(pid)
	}
	done, err := s.sess.CloseWindow(idx)
	if err != nil {
		return false, false
	}
	if !done {
		s.retileActiveWindowLocked()
	}
	return true, done
}

func (s *Server) teardownPaneLocked(pid id.PaneID) {
	if p, ok := s.ptys[pid]; ok {
		p.Kill()
		delete(s.ptys, pid)
	}
	delete(s.grids, pid)
}

// pumpPTY reads pid's PTY output, feeds it into the pane's grid, and
// broadcasts it to every attached client (spec §4.11 Output fan-out). When
// the PTY reports EOF or the child exits, it closes the pane and broadcasts
// PaneExited before the subsequent StateSync (spec §4.11 Pane exit).
func (s *Server) pumpPTY(pid id.PaneID, p *ptyproc.PTY) {
	defer s.wg.Done()
	defer s.recoverAndLog(fmt.Sprintf("pumpPTY(pane=%d)", pid))

	buf := make([]byte, 32*1024)
	for {
		n, err := p.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			s.mu.Lock()
			if g, ok := s.grids[pid]; ok {
				g.Write(data)
			}
			s.mu.Unlock()
			s.broadcastOutput(pid, data)
		}
		if err != nil {
			if err != io.EOF {
				s.logEvent("PANE_READ_ERROR pane=%d err=%v", pid, err)
			}
			break
		}
	}

	s.logEvent("PANE_EXIT pane=%d", pid)
	s.broadcastPaneExited(pid)

	s.mu.Lock()
	win := s.sess.ActiveWindowPtr()
	for _, w := range s.sess.Windows {
		if layout.Contains(w.Layout, pid) {
			win = w
			break
		}
	}
	_, sessionDone := s.closePaneLocked(win, pid)
	if !sessionDone {
		s.persistLocked()
	}
	s.mu.Unlock()

	if sessionDone {
		s.Shutdown("last_window_closed")
		return
	}
	s.broadcastStateSync()
}

// persistLocked writes the session to disk (spec §5 "written atomically
// after every structural command"). Failures are logged, never fatal (spec
// §7 PersistenceError: "refuse to overwrite if saving" is satisfied by
// persist.Save's own temp-then-rename; here we just surface the failure).
func (s *Server) persistLocked() {
	t := perf.Start("persistLocked")
	defer t.Stop()

	if err := persist.Save(s.sess, s.sessionPath); err != nil {
		s.logEvent("PERSIST_FAILED err=%v", err)
	}
}

// snapshotLocked builds the StateSync payload from the current session and
// grids.
func (s *Server) snapshotLocked() protocol.StateSyncPayload {
	grids := make(map[uint32]termgrid.Snapshot, len(s.grids))
	for pid, g := range s.grids {
		grids[uint32(pid)] = g.Snapshot()
	}
	return protocol.StateSyncPayload{
		Session: persist.ToRecord(s.sess),
		Grids:   grids,
	}
}

func (s *Server) sendStateSyncTo(cc *clientConn) {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.enqueue(cc, protocol.TypeStateSync, snap)
}

func (s *Server) broadcastStateSync() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	targets := s.clientListLocked()
	s.mu.Unlock()
	for _, cc := range targets {
		s.enqueue(cc, protocol.TypeStateSync, snap)
	}
}

func (s *Server) broadcastOutput(pid id.PaneID, data []byte) {
	payload := protocol.NewOutput(uint32(pid), data)
	s.mu.Lock()
	targets := s.clientListLocked()
	s.mu.Unlock()
	for _, cc := range targets {
		s.enqueue(cc, protocol.TypeOutput, payload)
	}
}

func (s *Server) broadcastPaneExited(pid id.PaneID) {
	s.mu.Lock()
	targets := s.clientListLocked()
	s.mu.Unlock()
	for _, cc := range targets {
		s.enqueue(cc, protocol.TypePaneExited, protocol.PaneExitedPayload{PaneID: uint32(pid)})
	}
}

func (s *Server) clientListLocked() []*clientConn {
	out := make([]*clientConn, 0, len(s.clients))
	for _, cc := range s.clients {
		out = append(out, cc)
	}
	return out
}

// enqueue marshals one message and places it on cc's outbox. If the outbox
// is full, cc has fallen behind beyond the bound and is dropped — only that
// client, never the others (spec §5).
func (s *Server) enqueue(cc *clientConn, typ protocol.Type, v interface{}) {
	data, err := protocol.Marshal(typ, v)
	if err != nil {
		return
	}
	select {
	case cc.outbox <- data:
	default:
		s.logEvent("CLIENT_DROPPED client=%d reason=backpressure", cc.id)
		s.dropClient(cc.id, "backpressure")
	}
}

// writeLoop drains cc's outbox to its connection. It is the only goroutine
// that writes to cc.conn, so concurrent broadcasts never interleave frames.
func (s *Server) writeLoop(cc *clientConn) {
	defer s.wg.Done()
	defer s.recoverAndLog("writeLoop")
	for data := range cc.outbox {
		cc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := protocol.WriteFrame(cc.conn, data); err != nil {
			s.dropClient(cc.id, "write_error")
			return
		}
	}
}

func (s *Server) dropClient(cid uint64, reason string) {
	s.mu.Lock()
	cc, ok := s.clients[cid]
	if ok {
		delete(s.clients, cid)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	cc.closeOnce.Do(func() {
		close(cc.outbox)
		cc.conn.Close()
	})
	s.logEvent("CLIENT_DISCONNECT client=%d reason=%s", cid, reason)
}

// Shutdown broadcasts ServerShutdown, closes every client, kills every PTY,
// deletes the socket file, and stops the accept loop (spec §4.11
// Shutdown). The session file is retained so the session can be restarted.
func (s *Server) Shutdown(reason string) {
	select {
	case <-s.done:
		return // already shutting down
	default:
		close(s.done)
	}

	s.mu.Lock()
	targets := s.clientListLocked()
	s.mu.Unlock()
	for _, cc := range targets {
		s.enqueue(cc, protocol.TypeServerShutdown, struct{}{})
	}
	// Give the write loops a moment to flush before closing.
	time.Sleep(50 * time.Millisecond)
	for _, cc := range targets {
		s.dropClient(cc.id, "shutdown")
	}

	s.mu.Lock()
	for pid, p := range s.ptys {
		p.Kill()
		delete(s.ptys, pid)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)

	s.logEvent("SERVER_SHUTDOWN session=%s reason=%s", s.sess.Name, reason)
}

// Wait blocks until every spawned goroutine (client handlers, PTY pumps,
// write loops) has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// SessionName returns the name of the session this server is authoritative
// for, for CLI/logging use.
func (s *Server) SessionName() string {
	return s.sess.Name
}

// ClientCount returns the number of attached clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// WindowCount and PaneCount report the current session shape in-process.
// "mux list" does not call them: it reads the same counts from the
// StateSync a probe connection receives over the socket.
func (s *Server) WindowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sess.Windows)
}

func (s *Server) PaneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, w := range s.sess.Windows {
		total += w.PaneCount()
	}
	return total
}
