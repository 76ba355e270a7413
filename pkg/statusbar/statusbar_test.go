package statusbar

import (
	"testing"
	"time"

	"github.com/brendandebeasi/mux/pkg/rect"
	"github.com/brendandebeasi/mux/pkg/session"
)

var testArea = rect.Rect{X: 0, Y: 0, W: 80, H: 24}

func TestBuild_SubstitutesKnownTokens(t *testing.T) {
	s, _ := session.New(1, "work", testArea)
	s.Windows[0].Rename("shell")
	s.AddWindow("logs", testArea)
	now := time.Date(2026, 8, 3, 14, 5, 0, 0, time.UTC)

	c := Build(s, now, "{session}", "{windows}", "{pane} {time}")

	if c.Left != "work" {
		t.Errorf("Left = %q, want work", c.Left)
	}
	if c.Center != "1:shell 2:*logs" {
		t.Errorf("Center = %q, want '1:shell 2:*logs'", c.Center)
	}
	if c.Right != " 14:05" {
		t.Errorf("Right = %q, want ' 14:05'", c.Right)
	}
}

func TestBuild_UnknownTokenRendersLiterally(t *testing.T) {
	s, _ := session.New(1, "work", testArea)
	now := time.Now()

	c := Build(s, now, "{typo}", "", "")
	if c.Left != "{typo}" {
		t.Errorf("Left = %q, want literal {typo}", c.Left)
	}
}

func TestBuild_UnterminatedBraceRendersLiterally(t *testing.T) {
	s, _ := session.New(1, "work", testArea)
	c := Build(s, time.Now(), "prefix {session", "", "")
	if c.Left != "prefix {session" {
		t.Errorf("Left = %q, want unchanged literal", c.Left)
	}
}

func TestBuild_ActiveWindowMarkedWithAsterisk(t *testing.T) {
	s, _ := session.New(1, "work", testArea)
	s.Windows[0].Rename("shell")
	s.AddWindow("logs", testArea)
	s.ActiveWindow = 0

	c := Build(s, time.Now(), "", "{windows}", "")
	if c.Center != "1:*shell 2:logs" {
		t.Errorf("Center = %q, want '1:*shell 2:logs'", c.Center)
	}
}
