package client

import (
	"io"
	"net"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brendandebeasi/mux/pkg/command"
	"github.com/brendandebeasi/mux/pkg/layout"
	"github.com/brendandebeasi/mux/pkg/muxconfig"
	"github.com/brendandebeasi/mux/pkg/persist"
)

func TestBindingsFromConfig_NamedActionMapsToKind(t *testing.T) {
	cfg := muxconfig.Default()
	b := bindingsFromConfig(cfg)

	if got, ok := b.Keybindings["x"]; !ok || got != command.ClosePane {
		t.Errorf("Keybindings[x] = %v, %v; want ClosePane, true", got, ok)
	}
}

func TestBindingsFromConfig_NavigateActionParameterized(t *testing.T) {
	cfg := muxconfig.Default()
	b := bindingsFromConfig(cfg)

	c, ok := b.NavigateEdges["h"]
	if !ok || c.Kind != command.NavigatePane || c.Edge != layout.Left {
		t.Errorf("NavigateEdges[h] = %+v, %v; want NavigatePane/Left, true", c, ok)
	}
}

func TestBindingsFromConfig_ResizeActionParameterized(t *testing.T) {
	cfg := muxconfig.Default()
	b := bindingsFromConfig(cfg)

	c, ok := b.NavigateEdges["Up"]
	if !ok || c.Kind != command.ResizePane || c.Direction != layout.Horizontal || c.DeltaCells >= 0 {
		t.Errorf("NavigateEdges[Up] = %+v, %v; want ResizePane/Horizontal/negative delta, true", c, ok)
	}
}

func TestBindingsFromConfig_DigitsMapToSwitchWindow(t *testing.T) {
	cfg := muxconfig.Default()
	b := bindingsFromConfig(cfg)

	for n := 0; n <= 9; n++ {
		if got, ok := b.SwitchWindows[digitKey(n)]; !ok || got != n {
			t.Errorf("SwitchWindows[%s] = %d, %v; want %d, true", digitKey(n), got, ok, n)
		}
	}
}

func TestKeyNameAndBytes_KnownKeyUsesTable(t *testing.T) {
	name, raw := keyNameAndBytes(tea.KeyMsg{Type: tea.KeyCtrlB})
	if name != "Control-b" || string(raw) != "\x02" {
		t.Errorf("name=%q raw=%q, want Control-b, 0x02", name, raw)
	}
}

func TestKeyNameAndBytes_RunesForwardVerbatim(t *testing.T) {
	name, raw := keyNameAndBytes(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	if name != "a" || string(raw) != "a" {
		t.Errorf("name=%q raw=%q, want a, a", name, raw)
	}
}

func TestLeaderBytes_FallsBackToLiteralCombo(t *testing.T) {
	if got := string(leaderBytes("Control-b")); got != "\x02" {
		t.Errorf("leaderBytes(Control-b) = %q, want 0x02", got)
	}
	if got := string(leaderBytes("xyz")); got != "xyz" {
		t.Errorf("leaderBytes(xyz) = %q, want xyz (unrecognized combo passed through)", got)
	}
}

func TestActiveWindowRecord_OutOfRangeIsNotOK(t *testing.T) {
	rec := persist.Record{ActiveWindow: 3, Windows: nil}
	if _, ok := activeWindowRecord(rec); ok {
		t.Error("activeWindowRecord with out-of-range ActiveWindow should report !ok")
	}
}

func TestRenameFlow_EnterSubmitsTypedName(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	go io.Copy(io.Discard, serverConn)

	m := &model{
		conn: clientConn,
		session: persist.Record{
			ActiveWindow: 0,
			Windows:      []persist.WindowRecord{{ID: 1, Name: "shell"}},
		},
	}
	m.enterRename()
	if !m.renaming || string(m.renameBuf) != "shell" {
		t.Fatalf("enterRename: renaming=%v buf=%q, want true, \"shell\"", m.renaming, string(m.renameBuf))
	}

	m.renameBuf = nil
	for _, r := range "logs" {
		m.handleRenameKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if got := string(m.renameBuf); got != "logs" {
		t.Fatalf("renameBuf after typing = %q, want %q", got, "logs")
	}

	m.handleRenameKey(tea.KeyMsg{Type: tea.KeyEnter})
	if m.renaming {
		t.Error("renaming should be false after Enter")
	}
}

func TestRenameFlow_EscCancelsWithoutBlankingName(t *testing.T) {
	m := &model{renaming: true, renameBuf: []rune("shell")}
	m.handleRenameKey(tea.KeyMsg{Type: tea.KeyEscape})
	if m.renaming || m.renameBuf != nil {
		t.Errorf("after Esc: renaming=%v buf=%q, want false, nil", m.renaming, string(m.renameBuf))
	}
}

func TestRenameFlow_EnterWithEmptyBufferDoesNotSend(t *testing.T) {
	m := &model{renaming: true, renameBuf: nil}
	// No conn is set; handleRenameKey must not attempt to send on an empty name.
	m.handleRenameKey(tea.KeyMsg{Type: tea.KeyEnter})
	if m.renaming {
		t.Error("renaming should be false after Enter")
	}
}

func TestActiveWindowRecord_ValidIndex(t *testing.T) {
	rec := persist.Record{
		ActiveWindow: 0,
		Windows:      []persist.WindowRecord{{ID: 1, Name: "shell"}},
	}
	w, ok := activeWindowRecord(rec)
	if !ok || w.Name != "shell" {
		t.Errorf("activeWindowRecord = %+v, %v; want shell window, true", w, ok)
	}
}
