// Package statusbar builds the status bar's three content regions from a
// session snapshot and the wall clock (spec §4.9). It is a pure projection:
// no I/O, no mutation, no knowledge of how the result is rendered.
package statusbar

import (
	"strconv"
	"strings"
	"time"

	"github.com/brendandebeasi/mux/pkg/session"
)

// Content is the built {left, center, right} triple of spec §4.9.
type Content struct {
	Left   string
	Center string
	Right  string
}

// Build substitutes tokens in formatLeft/Center/Right against s and now,
// returning the three rendered strings (spec §4.9). Unknown tokens render
// literally, braces included, so a typo in the configured format is visible
// rather than silently dropped.
func Build(s *session.Session, now time.Time, formatLeft, formatCenter, formatRight string) Content {
	return Content{
		Left:   substitute(formatLeft, s, now),
		Center: substitute(formatCenter, s, now),
		Right:  substitute(formatRight, s, now),
	}
}

func substitute(format string, s *session.Session, now time.Time) string {
	var b strings.Builder
	i := 0
	for i < len(format) {
		open := strings.IndexByte(format[i:], '{')
		if open < 0 {
			b.WriteString(format[i:])
			break
		}
		open += i
		b.WriteString(format[i:open])

		close := strings.IndexByte(format[open:], '}')
		if close < 0 {
			b.WriteString(format[open:])
			break
		}
		close += open

		token := format[open+1 : close]
		if rendered, ok := resolve(token, s, now); ok {
			b.WriteString(rendered)
		} else {
			b.WriteString(format[open : close+1])
		}
		i = close + 1
	}
	return b.String()
}

func resolve(token string, s *session.Session, now time.Time) (string, bool) {
	switch token {
	case "session":
		return s.Name, true
	case "windows":
		return windowList(s), true
	case "time":
		return now.Format("15:04"), true
	case "pane":
		return activePaneTitle(s), true
	default:
		return "", false
	}
}

// windowList renders "1:shell 2:*logs" — each window's 1-based index and
// name, the active one marked with a leading '*' (spec §4.9 example).
func windowList(s *session.Session) string {
	parts := make([]string, len(s.Windows))
	for i, w := range s.Windows {
		mark := ""
		if i == s.ActiveWindow {
			mark = "*"
		}
		parts[i] = strconv.Itoa(i+1) + ":" + mark + w.Name
	}
	return strings.Join(parts, " ")
}

func activePaneTitle(s *session.Session) string {
	w := s.ActiveWindowPtr()
	p, ok := w.Panes[w.ActivePane]
	if !ok {
		return ""
	}
	return p.Title
}
