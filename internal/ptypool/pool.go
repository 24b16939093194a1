// Package ptypool owns the live pseudo-terminal processes backing active
// sessions. It maintains at most one process per session id, bridges process
// stdout and exit to a single multiplexed event channel, and exposes
// active-only write/resize/kill operations. The in-memory map here is the
// source of truth for "does a live process exist for this session"; the
// persisted session status is a cache of it.
package ptypool

import (
	"log"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// EventKind discriminates pool events.
type EventKind int

const (
	// EventOutput carries a chunk of terminal output.
	EventOutput EventKind = iota
	// EventExit signals that the session's process has ended.
	EventExit
)

// Event is published on the pool's event channel. Output events carry Data;
// exit events carry ExitCode and, when the process died from a signal,
// Signal.
type Event struct {
	Kind      EventKind
	SessionID string
	Data      []byte
	ExitCode  int
	Signal    string
}

// Handle identifies one live PTY process. It is never persisted.
type Handle struct {
	ID        string
	SessionID string
	Pid       int
	CreatedAt time.Time

	mu     sync.Mutex
	proc   Process
	active bool
}

// Active reports whether the handle still accepts input.
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *Handle) deactivate() {
	h.mu.Lock()
	h.active = false
	h.mu.Unlock()
}

// Config controls process spawning and event buffering.
type Config struct {
	// Shell is the default shell command. Empty falls back to $SHELL,
	// then /bin/bash.
	Shell string
	// WorkDir is the working directory for new shells. Empty falls back
	// to the user home directory.
	WorkDir string
	// Cols and Rows are the default terminal geometry.
	Cols uint16
	Rows uint16
	// EventBuffer is the capacity of the event channel. Zero means 256.
	EventBuffer int
	// Start spawns processes. Nil means a real PTY via creack/pty.
	Start Starter
}

// Pool maps session ids to live PTY handles.
type Pool struct {
	mu      sync.Mutex
	handles map[string]*Handle
	events  chan Event
	cfg     Config
}

func New(cfg Config) *Pool {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.Cols == 0 {
		cfg.Cols = 120
	}
	if cfg.Rows == 0 {
		cfg.Rows = 30
	}
	if cfg.Start == nil {
		cfg.Start = startPTY
	}
	return &Pool{
		handles: make(map[string]*Handle),
		events:  make(chan Event, cfg.EventBuffer),
		cfg:     cfg,
	}
}

// Events returns the multiplexed output/exit event stream. The channel is
// bounded; when the consumer falls behind, the oldest pending event is
// dropped so that no session's read loop ever blocks.
func (p *Pool) Events() <-chan Event {
	return p.events
}

func (p *Pool) publish(ev Event) {
	for {
		select {
		case p.events <- ev:
			return
		default:
		}
		select {
		case dropped := <-p.events:
			log.Printf("[ptypool] event buffer full, dropped event for session %s", dropped.SessionID)
		default:
		}
	}
}

// Create ensures a live PTY process exists for sessionID and returns its
// handle. If one already exists it is returned unchanged, so calling Create
// twice never spawns a second process. Empty shell and zero geometry fall
// back to the pool defaults.
func (p *Pool) Create(sessionID, shell string, cols, rows uint16) (*Handle, error) {
	p.mu.Lock()
	if h, ok := p.handles[sessionID]; ok {
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	if shell == "" {
		shell = p.defaultShell()
	}
	if cols == 0 {
		cols = p.cfg.Cols
	}
	if rows == 0 {
		rows = p.cfg.Rows
	}

	// Spawn outside the pool lock so a slow spawn for one session never
	// stalls operations on other sessions.
	proc, err := p.cfg.Start(shell, p.workDir(), cols, rows)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Pid:       proc.Pid(),
		CreatedAt: time.Now(),
		proc:      proc,
		active:    true,
	}

	p.mu.Lock()
	if existing, ok := p.handles[sessionID]; ok {
		// Lost the spawn race. Keep the registered handle and reap ours.
		p.mu.Unlock()
		proc.Signal(syscall.SIGTERM)
		go proc.Wait()
		return existing, nil
	}
	p.handles[sessionID] = h
	p.mu.Unlock()

	go p.readLoop(h)
	go p.reap(h)

	log.Printf("[ptypool] created PTY for session %s (pid %d, shell %s)", sessionID, h.Pid, shell)
	return h, nil
}

// readLoop relays process output into the event channel until the PTY closes.
func (p *Pool) readLoop(h *Handle) {
	buf := make([]byte, 32*1024)
	for {
		n, err := h.proc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			p.publish(Event{Kind: EventOutput, SessionID: h.SessionID, Data: data})
		}
		if err != nil {
			return
		}
	}
}

// reap waits for process exit, finalizes bookkeeping, and publishes the exit
// event. This runs for every process regardless of whether the exit was
// requested by Kill or unsolicited.
func (p *Pool) reap(h *Handle) {
	code, sig := h.proc.Wait()
	h.deactivate()

	p.mu.Lock()
	if p.handles[h.SessionID] == h {
		delete(p.handles, h.SessionID)
	}
	p.mu.Unlock()

	log.Printf("[ptypool] PTY exited for session %s (code %d, signal %q)", h.SessionID, code, sig)
	p.publish(Event{Kind: EventExit, SessionID: h.SessionID, ExitCode: code, Signal: sig})
}

// Get returns the handle for sessionID, or nil.
func (p *Pool) Get(sessionID string) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[sessionID]
}

// Has reports whether a live handle exists for sessionID.
func (p *Pool) Has(sessionID string) bool {
	return p.Get(sessionID) != nil
}

// Write forwards data to the session's process. It fails (false) when no
// active handle exists; nothing is queued and the caller decides whether to
// reactivate.
func (p *Pool) Write(sessionID string, data []byte) bool {
	h := p.Get(sessionID)
	if h == nil || !h.Active() {
		return false
	}
	if _, err := h.proc.Write(data); err != nil {
		log.Printf("[ptypool] write to session %s failed: %v", sessionID, err)
		return false
	}
	return true
}

// Resize changes the terminal geometry. Same active-only semantics as Write.
func (p *Pool) Resize(sessionID string, cols, rows uint16) bool {
	h := p.Get(sessionID)
	if h == nil || !h.Active() {
		return false
	}
	if err := h.proc.Resize(cols, rows); err != nil {
		log.Printf("[ptypool] resize of session %s failed: %v", sessionID, err)
		return false
	}
	return true
}

// Kill sends SIGTERM to the session's process and removes the handle
// immediately. It does not wait for the exit: the exit event arrives later
// as an asynchronous confirmation.
func (p *Pool) Kill(sessionID string) bool {
	p.mu.Lock()
	h, ok := p.handles[sessionID]
	if ok {
		delete(p.handles, sessionID)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	h.deactivate()
	if err := h.proc.Signal(syscall.SIGTERM); err != nil && err != os.ErrProcessDone {
		log.Printf("[ptypool] signal to session %s (pid %d) failed: %v", sessionID, h.Pid, err)
	}
	log.Printf("[ptypool] killed PTY for session %s (pid %d)", sessionID, h.Pid)
	return true
}

// Sessions returns the ids of all sessions with a live handle.
func (p *Pool) Sessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	return ids
}

// Cleanup kills every live handle. Used at server shutdown.
func (p *Pool) Cleanup() {
	for _, id := range p.Sessions() {
		p.Kill(id)
	}
}

func (p *Pool) defaultShell() string {
	if p.cfg.Shell != "" {
		return p.cfg.Shell
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

func (p *Pool) workDir() string {
	if p.cfg.WorkDir != "" {
		return p.cfg.WorkDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
