package ptypool

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// Process is one running shell attached to a pseudo-terminal. Read returns
// terminal output, Write feeds terminal input. Wait blocks until the process
// exits and reports how it ended.
type Process interface {
	Pid() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(cols, rows uint16) error
	Signal(sig os.Signal) error
	Wait() (exitCode int, signal string)
}

// Starter spawns a shell process attached to a pseudo-terminal. The pool
// uses startPTY by default; tests substitute an in-memory implementation.
type Starter func(shell, dir string, cols, rows uint16) (Process, error)

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

// startPTY launches shell in dir on a real pseudo-terminal with the given
// geometry.
func startPTY(shell, dir string, cols, rows uint16) (Process, error) {
	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("start pty for %q: %w", shell, err)
	}

	return &ptyProcess{cmd: cmd, ptmx: ptmx}, nil
}

func (p *ptyProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	return p.ptmx.Read(b)
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

func (p *ptyProcess) Resize(cols, rows uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

func (p *ptyProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *ptyProcess) Wait() (int, string) {
	p.cmd.Wait()
	p.ptmx.Close()

	state := p.cmd.ProcessState
	if state == nil {
		return -1, ""
	}
	var sig string
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig = ws.Signal().String()
	}
	return state.ExitCode(), sig
}
