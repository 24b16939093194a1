package ptypool

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// FakeProc is an in-memory Process for tests in packages that drive the
// pool without spawning real PTYs.
type FakeProc struct {
	pid  int
	outR *io.PipeReader
	outW *io.PipeWriter

	mu    sync.Mutex
	input bytes.Buffer

	exitOnce sync.Once
	exited   chan struct{}
	code     int
	sig      string
}

func NewFakeProc(pid int) *FakeProc {
	r, w := io.Pipe()
	return &FakeProc{pid: pid, outR: r, outW: w, exited: make(chan struct{})}
}

func (f *FakeProc) Pid() int                   { return f.pid }
func (f *FakeProc) Read(p []byte) (int, error) { return f.outR.Read(p) }
func (f *FakeProc) Resize(c, r uint16) error   { return nil }

func (f *FakeProc) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.Write(p)
}

func (f *FakeProc) Signal(sig os.Signal) error {
	f.Exit(-1, "terminated")
	return nil
}

func (f *FakeProc) Wait() (int, string) {
	<-f.exited
	return f.code, f.sig
}

// Exit simulates process termination.
func (f *FakeProc) Exit(code int, sig string) {
	f.exitOnce.Do(func() {
		f.code, f.sig = code, sig
		f.outW.Close()
		close(f.exited)
	})
}

// Emit produces terminal output.
func (f *FakeProc) Emit(s string) error {
	_, err := f.outW.Write([]byte(s))
	return err
}

// Exited reports whether the process has terminated.
func (f *FakeProc) Exited() bool {
	select {
	case <-f.exited:
		return true
	default:
		return false
	}
}

// Input returns everything written to the process so far.
func (f *FakeProc) Input() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.String()
}

// FakeStarter is a Starter that hands out FakeProcs and records them in
// spawn order. Set Err to make spawning fail.
type FakeStarter struct {
	mu      sync.Mutex
	procs   []*FakeProc
	nextPid int

	Err error
}

func (s *FakeStarter) Start(shell, dir string, cols, rows uint16) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.nextPid++
	p := NewFakeProc(s.nextPid)
	s.procs = append(s.procs, p)
	return p, nil
}

// Count returns how many processes were spawned.
func (s *FakeStarter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Last returns the most recently spawned process, or nil.
func (s *FakeStarter) Last() *FakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}
