package relay

import (
	"fmt"

	"github.com/termfleet/termfleet/internal/database"
)

// Inbound message types. This is a closed set: anything else is rejected at
// the connection boundary before dispatch.
const (
	MsgJoinSession       = "join_session"
	MsgLeaveSession      = "leave_session"
	MsgExecuteCommand    = "execute_command"
	MsgTerminalInput     = "terminal_input"
	MsgTerminalResize    = "terminal_resize"
	MsgActivateSession   = "activate_session"
	MsgDeactivateSession = "deactivate_session"
)

// Outbound event types.
const (
	EvtSessionJoined      = "session_joined"
	EvtSessionActivated   = "session_activated"
	EvtSessionDeactivated = "session_deactivated"
	EvtSessionTerminated  = "session_terminated"
	EvtTerminalOutput     = "terminal_output"
	EvtCommandExecuted    = "command_executed"
	EvtError              = "error"
	EvtServerShutdown     = "server_shutdown"
)

// Resize bounds. Values beyond these are rejected as invalid.
const (
	maxResizeCols uint16 = 500
	maxResizeRows uint16 = 500
)

// inbound is the envelope for all client requests. Which fields are
// required depends on Type; validate enforces that per-type shape.
type inbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Command   string `json:"command,omitempty"`
	Input     string `json:"input,omitempty"`
	Cols      uint16 `json:"cols,omitempty"`
	Rows      uint16 `json:"rows,omitempty"`
}

func (m *inbound) validate() error {
	switch m.Type {
	case MsgJoinSession:
		if m.UserID == "" {
			return fmt.Errorf("user_id is required")
		}
	case MsgLeaveSession, MsgTerminalInput, MsgActivateSession, MsgDeactivateSession:
	case MsgExecuteCommand:
		if m.Command == "" {
			return fmt.Errorf("command is required")
		}
	case MsgTerminalResize:
		if m.Cols == 0 || m.Rows == 0 {
			return fmt.Errorf("cols and rows are required")
		}
		if m.Cols > maxResizeCols || m.Rows > maxResizeRows {
			return fmt.Errorf("cols and rows must not exceed %dx%d", maxResizeCols, maxResizeRows)
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	if m.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

// sessionSnapshot is the session view sent on join, extended with whether a
// live PTY currently backs it.
type sessionSnapshot struct {
	database.Session
	HasActivePTY bool `json:"has_active_pty"`
}

// outbound is the envelope for all server-to-client events.
type outbound struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Session   *sessionSnapshot  `json:"session,omitempty"`
	Data      string            `json:"data,omitempty"`
	Command   *database.Command `json:"command,omitempty"`
	ExitCode  *int              `json:"exit_code,omitempty"`
	Signal    string            `json:"signal,omitempty"`
	Message   string            `json:"message,omitempty"`
}
