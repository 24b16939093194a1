package database

import "time"

// Session statuses.
const (
	SessionInactive   = "inactive"
	SessionActive     = "active"
	SessionTerminated = "terminated"
)

// Command statuses.
const (
	CommandPending   = "pending"
	CommandExecuting = "executing"
	CommandCompleted = "completed"
	CommandFailed    = "failed"
)

// Session is a logical workspace bound to at most one live shell process.
// Status is "active" exactly while the PTY pool holds a live handle for the
// session; PTYPid mirrors the OS process id of that handle and is nil
// otherwise. The persisted status is a cache of the pool's in-memory truth
// and is reconciled at startup.
type Session struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID        string    `gorm:"not null;index" json:"owner_id"`
	Name           string    `gorm:"not null" json:"name"`
	PTYPid         *int      `gorm:"column:pty_pid" json:"pty_pid"`
	Status         string    `gorm:"not null;default:inactive;index" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`

	Commands []Command `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	Messages []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Command is one line of input submitted for execution in a session's shell.
// CompletedAt is set exactly when status is "completed" or "failed".
type Command struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	SessionID   string     `gorm:"not null;index" json:"session_id"`
	Command     string     `gorm:"not null" json:"command"`
	Status      string     `gorm:"not null;default:pending;index" json:"status"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

// Message is a transcript row attached to a session. Plain CRUD, no
// lifecycle beyond the session cascade.
type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID string    `gorm:"not null;index" json:"session_id"`
	Type      string    `gorm:"not null" json:"type"`
	Content   string    `gorm:"not null" json:"content"`
	Metadata  string    `json:"metadata,omitempty"`
	Timestamp time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}
