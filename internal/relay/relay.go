// Package relay binds websocket connections to per-session broadcast rooms.
// It forwards PTY output to every room member, accepts terminal input,
// resize, and lifecycle requests, and delegates them to the session
// registry, PTY pool, and command executor. Delivery is at-most-once with
// no buffering: a connection that joins after a chunk was emitted never
// sees it.
package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/termfleet/termfleet/internal/command"
	"github.com/termfleet/termfleet/internal/ptypool"
	"github.com/termfleet/termfleet/internal/session"
)

// maxMessageSize bounds a single inbound websocket message.
const maxMessageSize = 1024 * 1024

type Relay struct {
	registry *session.Registry
	executor *command.Executor
	pool     *ptypool.Pool

	// production switches store-level failures to a generic client message.
	production bool

	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]*client
}

func New(registry *session.Registry, executor *command.Executor, pool *ptypool.Pool, production bool) *Relay {
	return &Relay{
		registry:   registry,
		executor:   executor,
		pool:       pool,
		production: production,
		conns:      make(map[string]*client),
		rooms:      make(map[string]map[string]*client),
	}
}

// Run consumes the PTY pool's event stream until ctx is cancelled. Output
// chunks are fanned out to the session's room; exits demote the session and
// notify the room. Exactly one Run loop should be active.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.pool.Events():
			switch ev.Kind {
			case ptypool.EventOutput:
				r.broadcast(ev.SessionID, outbound{
					Type:      EvtTerminalOutput,
					SessionID: ev.SessionID,
					Data:      string(ev.Data),
				})
			case ptypool.EventExit:
				if _, err := r.registry.Deactivate(ev.SessionID); err != nil {
					log.Printf("[relay] deactivate after exit of session %s: %v", ev.SessionID, err)
				}
				code := ev.ExitCode
				r.broadcast(ev.SessionID, outbound{
					Type:      EvtSessionTerminated,
					SessionID: ev.SessionID,
					ExitCode:  &code,
					Signal:    ev.Signal,
				})
			}
		}
	}
}

// HandleConn serves one websocket connection until it closes. Messages are
// validated against the closed inbound union before any dispatch.
func (r *Relay) HandleConn(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)

	c := newClient(uuid.New().String(), conn)
	r.register(c)
	go c.writePump()
	log.Printf("[relay] client connected: %s", c.id)

	defer func() {
		r.unregister(c)
		c.close(websocket.StatusNormalClosure, "")
		log.Printf("[relay] client disconnected: %s", c.id)
	}()

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.sendError(c, "invalid message: not JSON")
			continue
		}
		if err := msg.validate(); err != nil {
			r.sendError(c, "invalid message: "+err.Error())
			continue
		}

		r.dispatch(c, &msg)
	}
}

func (r *Relay) dispatch(c *client, msg *inbound) {
	switch msg.Type {
	case MsgJoinSession:
		r.handleJoin(c, msg)
	case MsgLeaveSession:
		r.leaveRoom(c, msg.SessionID)
	case MsgExecuteCommand:
		r.handleExecute(c, msg)
	case MsgTerminalInput:
		r.handleInput(c, msg)
	case MsgTerminalResize:
		r.handleResize(c, msg)
	case MsgActivateSession:
		r.handleActivate(c, msg)
	case MsgDeactivateSession:
		r.handleDeactivate(c, msg)
	}
}

// handleJoin authorizes the connection against the session owner and adds
// it to the room. Authorization failures go only to the requester.
func (r *Relay) handleJoin(c *client, msg *inbound) {
	sess, err := r.registry.Get(msg.SessionID)
	if err != nil {
		r.sendError(c, r.opError(err))
		return
	}
	if sess == nil {
		r.sendError(c, "Session not found")
		return
	}
	if sess.OwnerID != msg.UserID {
		r.sendError(c, "Unauthorized access to session")
		return
	}

	r.joinRoom(c, msg.SessionID)
	log.Printf("[relay] client %s joined session %s", c.id, msg.SessionID)

	r.sendTo(c, outbound{
		Type:      EvtSessionJoined,
		SessionID: msg.SessionID,
		Session: &sessionSnapshot{
			Session:      *sess,
			HasActivePTY: r.pool.Has(msg.SessionID),
		},
	})
}

func (r *Relay) handleExecute(c *client, msg *inbound) {
	cmd, err := r.executor.Execute(msg.SessionID, msg.Command)
	if err != nil {
		r.sendError(c, r.opError(err))
		return
	}
	r.sendTo(c, outbound{
		Type:      EvtCommandExecuted,
		SessionID: msg.SessionID,
		Command:   cmd,
	})
	r.registry.Touch(msg.SessionID)
}

func (r *Relay) handleInput(c *client, msg *inbound) {
	if !r.pool.Write(msg.SessionID, []byte(msg.Input)) {
		r.sendError(c, "Failed to write to terminal")
		return
	}
	r.registry.Touch(msg.SessionID)
}

func (r *Relay) handleResize(c *client, msg *inbound) {
	if !r.pool.Resize(msg.SessionID, msg.Cols, msg.Rows) {
		r.sendError(c, "Failed to resize terminal")
	}
}

func (r *Relay) handleActivate(c *client, msg *inbound) {
	ok, err := r.registry.Activate(msg.SessionID)
	if err != nil {
		r.sendError(c, r.opError(err))
		return
	}
	if !ok {
		r.sendError(c, "Failed to activate session")
		return
	}
	r.broadcast(msg.SessionID, outbound{Type: EvtSessionActivated, SessionID: msg.SessionID})
}

func (r *Relay) handleDeactivate(c *client, msg *inbound) {
	ok, err := r.registry.Deactivate(msg.SessionID)
	if err != nil {
		r.sendError(c, r.opError(err))
		return
	}
	if !ok {
		r.sendError(c, "Failed to deactivate session")
		return
	}
	r.broadcast(msg.SessionID, outbound{Type: EvtSessionDeactivated, SessionID: msg.SessionID})
}

// Room and connection bookkeeping.

func (r *Relay) register(c *client) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

func (r *Relay) unregister(c *client) {
	r.mu.Lock()
	delete(r.conns, c.id)
	for sessionID, room := range r.rooms {
		delete(room, c.id)
		if len(room) == 0 {
			delete(r.rooms, sessionID)
		}
	}
	r.mu.Unlock()
}

func (r *Relay) joinRoom(c *client, sessionID string) {
	r.mu.Lock()
	room, ok := r.rooms[sessionID]
	if !ok {
		room = make(map[string]*client)
		r.rooms[sessionID] = room
	}
	room[c.id] = c
	r.mu.Unlock()
}

// leaveRoom removes the membership. Idempotent: leaving a room the
// connection never joined is a no-op.
func (r *Relay) leaveRoom(c *client, sessionID string) {
	r.mu.Lock()
	if room, ok := r.rooms[sessionID]; ok {
		delete(room, c.id)
		if len(room) == 0 {
			delete(r.rooms, sessionID)
		}
	}
	r.mu.Unlock()
}

// ConnCount returns the number of connected clients.
func (r *Relay) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// broadcast delivers msg to every member of the session's room. A member
// whose send queue is full is dropped so it cannot stall the others.
func (r *Relay) broadcast(sessionID string, msg outbound) {
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[relay] marshal broadcast: %v", err)
		return
	}

	r.mu.RLock()
	members := make([]*client, 0, len(r.rooms[sessionID]))
	for _, c := range r.rooms[sessionID] {
		members = append(members, c)
	}
	r.mu.RUnlock()

	for _, c := range members {
		if !c.enqueue(raw) && !c.closed() {
			log.Printf("[relay] client %s cannot keep up, dropping", c.id)
			c.close(websocket.StatusPolicyViolation, "send queue overflow")
		}
	}
}

func (r *Relay) sendTo(c *client, msg outbound) {
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[relay] marshal message: %v", err)
		return
	}
	c.enqueue(raw)
}

func (r *Relay) sendError(c *client, message string) {
	r.sendTo(c, outbound{Type: EvtError, Message: message})
}

// opError maps an unexpected store failure to a client-facing message.
func (r *Relay) opError(err error) string {
	log.Printf("[relay] operational failure: %v", err)
	if r.production {
		return "Internal server error"
	}
	return err.Error()
}

// NotifyShutdown delivers a server_shutdown notice to every connection and
// waits for the writes to land. Part one of the shutdown sequence; CloseAll
// follows after the PTY pool is drained.
func (r *Relay) NotifyShutdown(message string) {
	raw, err := json.Marshal(outbound{Type: EvtServerShutdown, Message: message})
	if err != nil {
		return
	}

	r.mu.RLock()
	conns := make([]*client, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			c.conn.Write(ctx, websocket.MessageText, raw)
		}(c)
	}
	wg.Wait()
}

// CloseAll closes every connection.
func (r *Relay) CloseAll() {
	r.mu.Lock()
	conns := make([]*client, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}
