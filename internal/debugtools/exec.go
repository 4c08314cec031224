// Package debugtools implements the PTY-backed "exec" debug command: a
// registry.Handler that runs one host-side shell command inside a
// pseudo-terminal and returns its combined output as a String response.
//
// The command runs to completion or timeout; there is no Attach/resize/
// detach protocol here, since this is a one-shot remote diagnostic call,
// not an interactive session.
package debugtools

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/drewcrawford/exfiltrate-sub000/internal/registry"
	"github.com/drewcrawford/exfiltrate-sub000/internal/response"
)

// DefaultTimeout bounds how long a single exec invocation may run before
// its process group is killed. A PTY-backed shell command with no
// caller-side cancellation could otherwise hang the dispatching goroutine
// forever.
const DefaultTimeout = 30 * time.Second

// NewExecEntry returns the registry.Entry for the "exec" debug command.
func NewExecEntry() registry.Entry {
	return registry.Entry{
		Name:             "exec",
		ShortDescription: "run a shell command on the host inside a PTY",
		FullDescription:  "exec <command...> runs the given command on the host machine inside a pseudo-terminal and returns its combined stdout+stderr as a String response. The process group is killed if it runs longer than 30s.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "shell command line to run, e.g. \"ps aux\"",
				},
			},
			"required": []string{"command"},
		},
		Handler: registry.HandlerFunc(execHandler),
	}
}

func execHandler(args registry.Args) (response.Response, error) {
	command := args["command"]
	if command == "" {
		command = strings.Join(args.Positional(), " ")
	}
	if command == "" {
		return response.Response{}, fmt.Errorf("exec: no command given")
	}

	out, err := runInPTY(command, DefaultTimeout)
	if err != nil {
		return response.Response{}, fmt.Errorf("exec: %w", err)
	}
	return response.String(out), nil
}

// runInPTY starts command in a shell attached to a new PTY, reads all
// output until the process exits or the timeout elapses, and returns the
// combined output.
//
// pty.Start sets Setsid:true on the child, creating a new session and
// process group (PGID = child PID); destroy-on-timeout below kills that
// whole group rather than just the shell, so orphaned grandchildren don't
// survive a timed-out command.
func runInPTY(command string, timeout time.Duration) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", command)

	ptm, err := pty.Start(cmd)
	if err != nil {
		return "", fmt.Errorf("pty.Start: %w", err)
	}
	defer ptm.Close()

	var mu sync.Mutex
	var buf []byte
	done := make(chan struct{})

	go func() {
		defer close(done)
		chunk := make([]byte, 4096)
		for {
			n, err := ptm.Read(chunk)
			if n > 0 {
				mu.Lock()
				buf = append(buf, chunk[:n]...)
				mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case err := <-waitDone:
		<-done
		mu.Lock()
		out := string(buf)
		mu.Unlock()
		if err != nil {
			return out, fmt.Errorf("command exited with error: %w", err)
		}
		return out, nil
	case <-time.After(timeout):
		killProcessGroup(cmd.Process.Pid)
		<-waitDone
		<-done
		mu.Lock()
		out := string(buf)
		mu.Unlock()
		return out, fmt.Errorf("command timed out after %s", timeout)
	}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	pgid, err := syscall.Getpgid(pid)
	if err == nil && pgid > 0 {
		syscall.Kill(-pgid, syscall.SIGKILL)
		return
	}
	syscall.Kill(pid, syscall.SIGKILL)
}
