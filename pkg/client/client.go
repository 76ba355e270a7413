// Package client implements the attach side of the protocol: a bubbletea
// program that puts the controlling terminal into raw mode, translates
// keystrokes through the leader-key state machine (spec §4.7), and renders
// the session from StateSync snapshots and Output bytes (spec §6).
//
// It is grounded in cmd/sidebar-renderer/main.go's connect-and-render
// bubbletea model: a connectCmd that dials the daemon's socket, a
// receiveLoop goroutine that decodes frames and forwards them to the
// program via p.Send, and a View that repaints from the most recent
// snapshot.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/brendandebeasi/mux/pkg/command"
	"github.com/brendandebeasi/mux/pkg/id"
	"github.com/brendandebeasi/mux/pkg/layout"
	"github.com/brendandebeasi/mux/pkg/leader"
	"github.com/brendandebeasi/mux/pkg/muxconfig"
	"github.com/brendandebeasi/mux/pkg/paths"
	"github.com/brendandebeasi/mux/pkg/perf"
	"github.com/brendandebeasi/mux/pkg/persist"
	"github.com/brendandebeasi/mux/pkg/protocol"
	"github.com/brendandebeasi/mux/pkg/rect"
	"github.com/brendandebeasi/mux/pkg/statusbar"
	"github.com/brendandebeasi/mux/pkg/termgrid"
)

// Run dials socketPath, attaches, and drives the terminal until the user
// detaches or the server shuts down. It watches the config file for the
// lifetime of the attach session so a leader-key or status-bar style edit
// takes effect without reattaching (spec §6 "Hot-reload replaces the
// configuration atomically... in-flight leader-mode state is preserved").
func Run(socketPath string, cfg *muxconfig.Config) error {
	conn, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	rows, cols := 24, 80
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		cols, rows = w, h
	}

	m := newModel(conn, cfg, rows, cols)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.program = p

	stopWatch, err := muxconfig.Watch(paths.ConfigPath(), func(cfg *muxconfig.Config) {
		p.Send(configReloadedMsg{cfg: cfg})
	})
	if err == nil {
		defer stopWatch()
	}

	go m.receiveLoop()

	_, err = p.Run()
	return err
}

// dial connects with a short retry loop: "mux new" starts the server and
// immediately attaches, and the listener may not have bound yet (mirrors
// cmd/sidebar-renderer/main.go's connectCmd retry).
func dial(socketPath string) (net.Conn, error) {
	var conn net.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil, fmt.Errorf("client: connect to %s: %w", socketPath, err)
}

// model is the bubbletea model driving the attach session.
type model struct {
	conn    net.Conn
	sendMu  sync.Mutex
	cfg     *muxconfig.Config
	program *tea.Program

	width, height int // terminal size, in cells

	connected bool
	shutdown  bool
	statusMsg string

	session persist.Record
	grids   map[uint32]*termgrid.Grid

	leaderMachine *leader.Machine
	bindings      leader.Bindings

	scrollback     bool
	scrollbackPane uint32
	scrollVP       viewport.Model

	renaming  bool
	renameBuf []rune
}

func newModel(conn net.Conn, cfg *muxconfig.Config, rows, cols int) *model {
	primary := []byte{0x02} // Ctrl-b, the common tmux-style default
	if len(cfg.Multiplexer.LeaderKeys) > 0 {
		primary = leaderBytes(cfg.Multiplexer.LeaderKeys[0])
	}
	return &model{
		conn:          conn,
		cfg:           cfg,
		width:         cols,
		height:        rows,
		grids:         make(map[uint32]*termgrid.Grid),
		leaderMachine: leader.NewMachine(primary),
		bindings:      bindingsFromConfig(cfg),
	}
}

// resizeStepCells is how many cells a single leader-mode resize keystroke
// adjusts the nearest matching split by (spec §4.8 ResizePane(dir,
// delta_cells)).
const resizeStepCells = 2.0

// bindingsFromConfig translates muxconfig's string-keyed maps into the
// leader.Bindings the state machine consumes (spec §6 keybindings, §4.8).
func bindingsFromConfig(cfg *muxconfig.Config) leader.Bindings {
	mux := cfg.Multiplexer
	b := leader.Bindings{
		LeaderKeys:    mux.LeaderKeys,
		LeaderTimeout: time.Duration(mux.LeaderTimeout) * time.Millisecond,
		Keybindings:   make(map[string]command.Kind),
		NavigateEdges: make(map[string]command.Command),
		SwitchWindows: make(map[string]int),
	}

	named := map[string]command.Kind{
		"split_horizontal": command.SplitHorizontal,
		"split_vertical":   command.SplitVertical,
		"close_pane":       command.ClosePane,
		"next_pane":        command.NextPane,
		"prev_pane":        command.PrevPane,
		"new_window":       command.NewWindow,
		"close_window":     command.CloseWindow,
		"next_window":      command.NextWindow,
		"prev_window":      command.PrevWindow,
		"rename_window":    command.RenameWindow,
		"toggle_zoom":      command.ToggleZoom,
		"detach_session":   command.DetachSession,
		"scrollback_mode":  command.ScrollbackMode,
	}
	edges := map[string]layout.Edge{
		"navigate_up":    layout.Up,
		"navigate_down":  layout.Down,
		"navigate_left":  layout.Left,
		"navigate_right": layout.Right,
	}
	resizes := map[string]struct {
		dir  layout.Direction
		sign float64
	}{
		"resize_up":    {layout.Horizontal, -1},
		"resize_down":  {layout.Horizontal, 1},
		"resize_left":  {layout.Vertical, -1},
		"resize_right": {layout.Vertical, 1},
	}

	for action, key := range mux.Keybindings {
		switch {
		case func() bool { _, ok := named[action]; return ok }():
			b.Keybindings[key] = named[action]
		case func() bool { _, ok := edges[action]; return ok }():
			b.NavigateEdges[key] = command.NavigateTo(edges[action])
		case func() bool { _, ok := resizes[action]; return ok }():
			rz := resizes[action]
			b.NavigateEdges[key] = command.Resize(rz.dir, rz.sign*resizeStepCells)
		}
	}
	for n := 0; n <= 9; n++ {
		b.SwitchWindows[digitKey(n)] = n
	}
	return b
}

func digitKey(n int) string {
	if n == 0 {
		return "0"
	}
	return string('0' + byte(n))
}

// keyTable maps bubbletea's canonical key string (tea.KeyMsg.String()) to
// the config key name mux's keybindings use and the raw bytes forwarded to
// the active pane's PTY when the leader machine says to pass the key
// through untouched. Mirrors cmd/sidebar-renderer/main.go's msg.String()
// switch, generalized from a fixed command set to a config-driven lookup.
var keyTable = map[string]struct {
	name string
	raw  []byte
}{
	"ctrl+@":    {"Control-Space", []byte{0x00}},
	"ctrl+b":    {"Control-b", []byte{0x02}},
	"up":        {"Up", []byte("\x1b[A")},
	"down":      {"Down", []byte("\x1b[B")},
	"left":      {"Left", []byte("\x1b[D")},
	"right":     {"Right", []byte("\x1b[C")},
	"enter":     {"Enter", []byte("\r")},
	"esc":       {"Escape", []byte("\x1b")},
	"tab":       {"Tab", []byte("\t")},
	"backspace": {"Backspace", []byte{0x7f}},
	"space":     {" ", []byte(" ")},
}

var nameToBytes = func() map[string][]byte {
	out := make(map[string][]byte, len(keyTable))
	for _, e := range keyTable {
		out[e.name] = e.raw
	}
	return out
}()

// leaderBytes resolves a configured leader KeyCombo (spec §6
// multiplexer.leader_keys) to the raw bytes SendLiteralLeader forwards when
// the leader key is pressed twice (spec §4.7).
func leaderBytes(combo string) []byte {
	if b, ok := nameToBytes[combo]; ok {
		return b
	}
	return []byte(combo)
}

// keyNameAndBytes returns msg's binding-lookup name and the literal bytes
// it would forward to a PTY were it not consumed by the leader machine.
func keyNameAndBytes(msg tea.KeyMsg) (string, []byte) {
	s := msg.String()
	if e, ok := keyTable[s]; ok {
		return e.name, e.raw
	}
	if msg.Type == tea.KeyRunes {
		r := string(msg.Runes)
		return r, []byte(r)
	}
	return s, []byte(s)
}

// Init implements tea.Model.
func (m *model) Init() tea.Cmd {
	return func() tea.Msg {
		m.sendResize(m.height, m.width)
		return nil
	}
}

// Incoming frame messages, produced by receiveLoop and consumed by Update.
type (
	helloMsg          struct{ payload protocol.HelloPayload }
	stateSyncMsg      struct{ payload protocol.StateSyncPayload }
	outputMsg         struct{ payload protocol.OutputPayload }
	paneExitedMsg     struct{ payload protocol.PaneExitedPayload }
	shutdownMsg       struct{}
	connErrMsg        struct{ err error }
	configReloadedMsg struct{ cfg *muxconfig.Config }
)

// receiveLoop reads frames from the server and forwards each as a tea.Msg
// (spec §6 Server -> Client messages).
func (m *model) receiveLoop() {
	r := bufio.NewReaderSize(m.conn, 64*1024)
	for {
		env, err := protocol.Receive(r)
		if err != nil {
			m.program.Send(connErrMsg{err: err})
			return
		}
		switch env.Type {
		case protocol.TypeHello:
			var p protocol.HelloPayload
			if json.Unmarshal(env.Data, &p) == nil {
				m.program.Send(helloMsg{payload: p})
			}
		case protocol.TypeStateSync:
			var p protocol.StateSyncPayload
			if json.Unmarshal(env.Data, &p) == nil {
				m.program.Send(stateSyncMsg{payload: p})
			}
		case protocol.TypeOutput:
			var p protocol.OutputPayload
			if json.Unmarshal(env.Data, &p) == nil {
				m.program.Send(outputMsg{payload: p})
			}
		case protocol.TypePaneExited:
			var p protocol.PaneExitedPayload
			if json.Unmarshal(env.Data, &p) == nil {
				m.program.Send(paneExitedMsg{payload: p})
			}
		case protocol.TypeServerShutdown:
			m.program.Send(shutdownMsg{})
			return
		}
	}
}

func (m *model) send(typ protocol.Type, v interface{}) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	_ = protocol.Send(m.conn, typ, v)
}

func (m *model) sendResize(rows, cols int) {
	m.send(protocol.TypeResize, protocol.ResizePayload{Rows: rows, Cols: cols})
}

// Update implements tea.Model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.scrollback {
			m.scrollVP.Width, m.scrollVP.Height = m.width, m.height-1
		}
		m.sendResize(m.height, m.width)
		return m, nil

	case helloMsg:
		m.connected = true
		return m, nil

	case stateSyncMsg:
		t := perf.Start("Update.stateSyncMsg")
		defer t.Stop()
		m.session = msg.payload.Session
		grids := make(map[uint32]*termgrid.Grid, len(msg.payload.Grids))
		for pid, snap := range msg.payload.Grids {
			grids[pid] = termgrid.FromSnapshot(snap)
		}
		m.grids = grids
		return m, nil

	case outputMsg:
		if m.scrollback && msg.payload.PaneID == m.scrollbackPane {
			return m, nil // frozen while reading scrollback (spec §1, §4.10: no history here)
		}
		if g, ok := m.grids[msg.payload.PaneID]; ok {
			if data, err := msg.payload.Decode(); err == nil {
				g.Write(data)
			}
		}
		return m, nil

	case configReloadedMsg:
		m.cfg = msg.cfg
		m.bindings = bindingsFromConfig(msg.cfg)
		m.statusMsg = "mux: configuration reloaded"
		return m, nil

	case paneExitedMsg:
		m.statusMsg = fmt.Sprintf("pane %d exited", msg.payload.PaneID)
		return m, nil

	case shutdownMsg:
		m.shutdown = true
		return m, tea.Quit

	case connErrMsg:
		m.shutdown = true
		if m.statusMsg == "" && msg.err != nil {
			m.statusMsg = "mux: disconnected: " + msg.err.Error()
		}
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.renaming {
		return m.handleRenameKey(msg)
	}

	if m.scrollback {
		switch msg.String() {
		case "esc", "q":
			m.scrollback = false
		case "up", "k":
			m.scrollVP.LineUp(1)
		case "down", "j":
			m.scrollVP.LineDown(1)
		case "pgup":
			m.scrollVP.ViewUp()
		case "pgdown":
			m.scrollVP.ViewDown()
		}
		return m, nil
	}

	name, raw := keyNameAndBytes(msg)
	eff := m.leaderMachine.Step(leader.KeyEvent{Key: name}, m.bindings, time.Now())
	switch eff.Kind {
	case leader.EffectForwardKey:
		m.send(protocol.TypeInput, protocol.NewInput(raw))
	case leader.EffectForwardLiteral:
		m.send(protocol.TypeInput, protocol.NewInput(eff.Bytes))
	case leader.EffectCommand:
		return m.applyLocalOrSend(eff.Command)
	}
	return m, nil
}

// applyLocalOrSend handles the three MuxCommand variants that are
// client-local effects of the leader machine rather than mutations of the
// authoritative session (spec §4.7-§4.8; see pkg/server's applyCommand doc
// and DESIGN.md): DetachSession closes this client's connection,
// ScrollbackMode enters a local read-only viewport over the active pane's
// current grid, RenameWindow opens a line-input prompt rather than sending
// the command with an empty Name (SPEC_FULL.md Open Question #1: the core
// takes the name as an argument, so the client must supply a real one).
// Every other command is forwarded to the server as a ClientMessage::Command.
func (m *model) applyLocalOrSend(cmd command.Command) (tea.Model, tea.Cmd) {
	switch cmd.Kind {
	case command.DetachSession:
		m.send(protocol.TypeDetach, struct{}{})
		return m, tea.Quit
	case command.ScrollbackMode:
		m.enterScrollback()
		return m, nil
	case command.RenameWindow:
		m.enterRename()
		return m, nil
	default:
		m.send(protocol.TypeCommand, protocol.EncodeCommand(cmd))
		return m, nil
	}
}

// enterRename seeds the rename prompt with the active window's current
// name so Enter with no edits is a no-op rather than a blank.
func (m *model) enterRename() {
	win, ok := activeWindowRecord(m.session)
	if !ok {
		return
	}
	m.renaming = true
	m.renameBuf = []rune(win.Name)
}

// handleRenameKey collects keystrokes for the rename prompt. Enter submits
// RenameWindow with the buffered text if non-empty; Esc or Ctrl-C cancels
// without sending anything, so the active window's name is never blanked.
func (m *model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape, tea.KeyCtrlC:
		m.renaming = false
		m.renameBuf = nil
	case tea.KeyEnter:
		m.renaming = false
		name := strings.TrimSpace(string(m.renameBuf))
		m.renameBuf = nil
		if name != "" {
			m.send(protocol.TypeCommand, protocol.EncodeCommand(command.Rename(name)))
		}
	case tea.KeyBackspace:
		if n := len(m.renameBuf); n > 0 {
			m.renameBuf = m.renameBuf[:n-1]
		}
	case tea.KeyRunes:
		m.renameBuf = append(m.renameBuf, msg.Runes...)
	case tea.KeySpace:
		m.renameBuf = append(m.renameBuf, ' ')
	}
	return m, nil
}

func (m *model) enterScrollback() {
	win, ok := activeWindowRecord(m.session)
	if !ok {
		return
	}
	g, ok := m.grids[win.ActivePane]
	if !ok {
		return
	}
	vp := viewport.New(m.width, m.height-1)
	vp.SetContent(plainGridText(g))
	vp.GotoBottom()
	m.scrollVP = vp
	m.scrollback = true
	m.scrollbackPane = win.ActivePane
}

func activeWindowRecord(rec persist.Record) (persist.WindowRecord, bool) {
	if rec.ActiveWindow < 0 || rec.ActiveWindow >= len(rec.Windows) {
		return persist.WindowRecord{}, false
	}
	return rec.Windows[rec.ActiveWindow], true
}

// plainGridText renders g's current contents as plain, unstyled text rows,
// for the read-only scrollback viewport.
func plainGridText(g *termgrid.Grid) string {
	snap := g.Snapshot()
	if snap.Cols == 0 {
		return ""
	}
	lines := make([]string, snap.Rows)
	for r := 0; r < snap.Rows; r++ {
		var b strings.Builder
		for c := 0; c < snap.Cols; c++ {
			b.WriteRune(snap.Cells[r*snap.Cols+c].Glyph)
		}
		lines[r] = strings.TrimRight(b.String(), " ")
	}
	return strings.Join(lines, "\n")
}

// View implements tea.Model.
func (m *model) View() string {
	t := perf.Start("View")
	defer t.Stop()

	if m.shutdown {
		if m.statusMsg != "" {
			return m.statusMsg + "\n"
		}
		return "mux: server shut down\n"
	}
	if !m.connected {
		return "mux: connecting...\n"
	}
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	if m.scrollback {
		return m.scrollVP.View()
	}
	if m.renaming {
		return "rename window: " + string(m.renameBuf) + "\n(Enter to confirm, Esc to cancel)\n"
	}

	bodyHeight := m.height - 1 // one row reserved for the status bar (spec §4.11 Resize)
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	area := rect.Rect{X: 0, Y: 0, W: m.width, H: bodyHeight}

	win, ok := activeWindowRecord(m.session)
	if !ok {
		return ""
	}

	var body string
	if win.Zoomed {
		body = m.renderPaneBox(id.PaneID(win.ActivePane), area)
	} else if node, err := persist.LayoutFromRecord(win.Layout); err == nil {
		body = m.renderLayout(node, area)
	} else {
		body = err.Error()
	}

	return body + "\n" + m.renderStatusBar()
}

// renderLayout walks node exactly as layout.Tile does, joining each split's
// rendered children with lipgloss so the rendered tree matches the tiled
// rectangles without any separate canvas bookkeeping.
func (m *model) renderLayout(node layout.Node, area rect.Rect) string {
	switch n := node.(type) {
	case *layout.Leaf:
		return m.renderPaneBox(n.PaneID, area)
	case *layout.Split:
		var first, second rect.Rect
		if n.Direction == layout.Horizontal {
			first, second = rect.SplitHorizontal(area, n.Ratio)
		} else {
			first, second = rect.SplitVertical(area, n.Ratio)
		}
		firstStr := m.renderLayout(n.First, first)
		secondStr := m.renderLayout(n.Second, second)
		if n.Direction == layout.Horizontal {
			return lipgloss.JoinVertical(lipgloss.Left, firstStr, secondStr)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, firstStr, secondStr)
	}
	return ""
}

func (m *model) renderPaneBox(pid id.PaneID, area rect.Rect) string {
	g := m.grids[uint32(pid)]
	if g == nil {
		blank := strings.Repeat(" ", area.W)
		return strings.Repeat(blank+"\n", area.H-1) + blank
	}
	return renderGrid(g, area.W, area.H)
}

func renderGrid(g *termgrid.Grid, w, h int) string {
	snap := g.Snapshot()
	lines := make([]string, 0, h)
	for r := 0; r < h; r++ {
		var b strings.Builder
		for c := 0; c < w; c++ {
			if r < snap.Rows && c < snap.Cols {
				b.WriteString(styledCell(snap.Cells[r*snap.Cols+c]))
			} else {
				b.WriteByte(' ')
			}
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func styledCell(c termgrid.Cell) string {
	if c.Fg == "" && c.Bg == "" && c.Attrs == "" {
		return string(c.Glyph)
	}
	style := lipgloss.NewStyle()
	if c.Fg != "" {
		style = style.Foreground(lipgloss.Color(c.Fg))
	}
	if c.Bg != "" {
		style = style.Background(lipgloss.Color(c.Bg))
	}
	if c.Attrs == "bold" {
		style = style.Bold(true)
	}
	return style.Render(string(c.Glyph))
}

// renderStatusBar projects the current session through statusbar.Build
// (spec §4.9) and lays the three regions out left/center/right across the
// terminal's width, truncating with go-runewidth when they overflow it.
func (m *model) renderStatusBar() string {
	sess, err := persist.FromRecord(m.session, rect.Rect{})
	if err != nil {
		return strings.Repeat(" ", m.width)
	}
	style := m.cfg.Multiplexer.StatusBarStyle
	content := statusbar.Build(sess, time.Now(), style.FormatLeft, style.FormatCenter, style.FormatRight)

	left, center, right := content.Left, content.Center, content.Right
	avail := m.width

	left = runewidth.Truncate(left, avail, "")
	avail -= runewidth.StringWidth(left)
	right = runewidth.Truncate(right, avail, "")
	avail -= runewidth.StringWidth(right)
	center = runewidth.Truncate(center, avail, "")
	avail -= runewidth.StringWidth(center)
	if avail < 0 {
		avail = 0
	}

	leftGap := avail / 2
	rightGap := avail - leftGap
	line := left + strings.Repeat(" ", leftGap) + center + strings.Repeat(" ", rightGap) + right

	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(style.Fg)).
		Background(lipgloss.Color(style.Bg)).
		Width(m.width).
		Render(line)
}
