// Command mux is the CLI entry point: new/attach/list/kill a session (spec
// §6). "new" launches the server as a detached background process (grounded
// in the pack's refinery daemon launcher: re-exec this same binary with a
// hidden subcommand, Setpgid to drop it from the parent's process group, and
// redirect its stdio to a log file) so the session keeps running after the
// attach client exits, then attaches to it like "attach" would.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/brendandebeasi/mux/pkg/client"
	"github.com/brendandebeasi/mux/pkg/id"
	"github.com/brendandebeasi/mux/pkg/muxconfig"
	"github.com/brendandebeasi/mux/pkg/paths"
	"github.com/brendandebeasi/mux/pkg/persist"
	"github.com/brendandebeasi/mux/pkg/protocol"
	"github.com/brendandebeasi/mux/pkg/rect"
	"github.com/brendandebeasi/mux/pkg/server"
	"github.com/brendandebeasi/mux/pkg/session"
)

// serveSubcommand is the hidden entry point the detached background process
// runs under. It is never shown in usage text and never invoked directly by
// a user.
const serveSubcommand = "__serve__"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "new":
		err = cmdNew(os.Args[2:])
	case "attach":
		err = cmdAttach(os.Args[2:])
	case "list":
		err = cmdList(os.Args[2:])
	case "kill":
		err = cmdKill(os.Args[2:])
	case serveSubcommand:
		err = cmdServe(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mux: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mux new [-s name] | attach [-t name] | list | kill [-t name]")
}

func cmdNew(args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	name := fs.String("s", "default", "session name")
	fs.Parse(args)

	if err := session.ValidateName(*name); err != nil {
		return fmt.Errorf("%w: %q", err, *name)
	}

	if _, err := paths.EnsureSocketsDir(); err != nil {
		return err
	}
	if _, err := paths.EnsureSessionsDir(); err != nil {
		return err
	}

	socketPath := paths.SocketPath(*name)
	if isLive(socketPath) {
		return fmt.Errorf("session %q already exists", *name)
	}

	if err := spawnDetachedServer(*name); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	cfg, err := muxconfig.Load(paths.ConfigPath())
	if err != nil {
		return err
	}
	return client.Run(socketPath, cfg)
}

func cmdAttach(args []string) error {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	name := fs.String("t", "default", "session name")
	fs.Parse(args)

	socketPath := paths.SocketPath(*name)
	if !isLive(socketPath) {
		return fmt.Errorf("no live session %q", *name)
	}

	cfg, err := muxconfig.Load(paths.ConfigPath())
	if err != nil {
		return err
	}
	return client.Run(socketPath, cfg)
}

func cmdKill(args []string) error {
	fs := flag.NewFlagSet("kill", flag.ExitOnError)
	name := fs.String("t", "default", "session name")
	fs.Parse(args)

	socketPath := paths.SocketPath(*name)
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("no live session %q", *name)
	}
	defer conn.Close()

	return protocol.Send(conn, protocol.TypeKill, struct{}{})
}

func cmdList(_ []string) error {
	dir, err := paths.EnsureSocketsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sock" {
			continue
		}
		name := e.Name()[:len(e.Name())-len(".sock")]
		windows, panes, err := probeSession(filepath.Join(dir, e.Name()))
		if err != nil {
			continue // stale socket: not a live session
		}
		fmt.Printf("%s\t%d\t%d\n", name, windows, panes)
	}
	return nil
}

// probeSession connects to socketPath just long enough to read the Hello
// and StateSync every accept sends immediately (spec §4.11 Accept), then
// disconnects.
func probeSession(socketPath string) (windows, panes int, err error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	r := bufio.NewReaderSize(conn, 64*1024)
	for i := 0; i < 2; i++ {
		env, err := protocol.Receive(r)
		if err != nil {
			return 0, 0, err
		}
		if env.Type != protocol.TypeStateSync {
			continue
		}
		var p protocol.StateSyncPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return 0, 0, err
		}
		for _, w := range p.Session.Windows {
			windows++
			panes += len(w.Panes)
		}
		return windows, panes, nil
	}
	return 0, 0, fmt.Errorf("mux: no StateSync from %s", socketPath)
}

// isLive reports whether a client can connect to socketPath right now. A
// stale socket file left behind by a crashed server fails to dial.
func isLive(socketPath string) bool {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// spawnDetachedServer re-execs this binary as "mux __serve__ -s name" with
// Setpgid so the server survives this process exiting, then waits for its
// socket to come up.
func spawnDetachedServer(name string) error {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	logDir := filepath.Join(paths.DataDir(), "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	logPath := filepath.Join(logDir, name+"-server.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmd := exec.Command(exe, serveSubcommand, "-s", name)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait() // detach: the server runs independently of this process

	socketPath := paths.SocketPath(name)
	for i := 0; i < 40; i++ {
		if isLive(socketPath) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server did not start listening on %s", socketPath)
}

// cmdServe is the detached background process's body: load or create the
// named session and run the server until Shutdown (spec §4.11).
func cmdServe(args []string) error {
	fs := flag.NewFlagSet(serveSubcommand, flag.ExitOnError)
	name := fs.String("s", "default", "session name")
	fs.Parse(args)

	eventLog, crashLog := openLogs(*name)
	defer recoverAndLog(crashLog, "main")

	cfg, err := muxconfig.Load(paths.ConfigPath())
	if err != nil {
		return err
	}

	area := initialArea()
	sessionPath := paths.SessionPath(*name)

	sess, err := persist.Load(sessionPath, area)
	if err != nil {
		if !os.IsNotExist(errors.Unwrap(err)) {
			eventLog.Printf("PERSISTENCE_LOAD_FAILED session=%s err=%v", *name, err)
		}
		sess, err = session.New(id.SessionID(1), *name, area)
		if err != nil {
			return err
		}
	}

	srv := server.New(sess, cfg, paths.SocketPath(*name), sessionPath, eventLog, crashLog)
	return srv.Run()
}

// initialArea guesses a viewport to tile the session's first window against
// before any client has attached and sent a real Resize; the first client's
// Resize immediately re-tiles it to the client's actual size.
func initialArea() rect.Rect {
	cols, rows := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		cols, rows = w, h
	}
	return rect.Rect{X: 0, Y: 0, W: cols, H: rows - 1}
}

func openLogs(name string) (eventLog, crashLog *log.Logger) {
	dir := filepath.Join(paths.DataDir(), "logs")
	os.MkdirAll(dir, 0o755)

	if f, err := os.OpenFile(filepath.Join(dir, name+"-events.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		eventLog = log.New(f, "[event] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		eventLog = log.New(os.Stderr, "[event] ", log.LstdFlags)
	}

	if f, err := os.OpenFile(filepath.Join(dir, name+"-crash.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		crashLog = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	} else {
		crashLog = log.New(os.Stderr, "[CRASH] ", log.LstdFlags)
	}
	return eventLog, crashLog
}

func recoverAndLog(crashLog *log.Logger, context string) {
	if r := recover(); r != nil {
		crashLog.Printf("=== CRASH in %s ===", context)
		crashLog.Printf("Panic: %v", r)
		crashLog.Printf("=== END CRASH ===")
	}
}
