// Package ptyproc spawns and manages the OS pseudo-terminals that back each
// leaf pane (spec §4.11, §5 "PTYs and emulator state are owned solely by
// the server"). It is the thin collaborator the core's §1 scope excludes
// from specification: PTY spawning and OS process management.
package ptyproc

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/brendandebeasi/mux/pkg/id"
)

// PTY wraps one spawned shell attached to a pseudo-terminal.
type PTY struct {
	PaneID id.PaneID

	mu   sync.Mutex
	cmd  *exec.Cmd
	file *os.File
}

// Spawn starts $SHELL (falling back to /bin/sh) attached to a fresh
// pseudo-terminal sized rows x cols, for the given pane.
func Spawn(paneID id.PaneID, rows, cols int) (*PTY, error) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("ptyproc: spawn %s: %w", shell, err)
	}
	return &PTY{PaneID: paneID, cmd: cmd, file: f}, nil
}

// Read reads raw bytes produced by the shell. It returns io.EOF (or a
// wrapped I/O error) when the child has exited.
func (p *PTY) Read(buf []byte) (int, error) {
	return p.file.Read(buf)
}

// Write sends input bytes to the shell.
func (p *PTY) Write(data []byte) (int, error) {
	p.mu.Lock()
	f := p.file
	p.mu.Unlock()
	if f == nil {
		return 0, fmt.Errorf("ptyproc: pane %d has no pty", p.PaneID)
	}
	return f.Write(data)
}

// Resize changes the PTY's window size (spec §4.11 Resize).
func (p *PTY) Resize(rows, cols int) error {
	p.mu.Lock()
	f := p.file
	p.mu.Unlock()
	if f == nil {
		return nil
	}
	return pty.Setsize(f, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Kill terminates the shell and releases the pseudo-terminal.
func (p *PTY) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	if p.file != nil {
		p.file.Close()
		p.file = nil
	}
}

// Wait blocks until the child process exits and returns its error (nil on a
// clean exit), mirroring os/exec.Cmd.Wait.
func (p *PTY) Wait() error {
	return p.cmd.Wait()
}

var _ io.ReadWriter = (*PTY)(nil)
