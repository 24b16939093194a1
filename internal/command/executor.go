// Package command records command submissions and writes them into the
// owning session's shell process.
package command

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/termfleet/termfleet/internal/database"
	"github.com/termfleet/termfleet/internal/ptypool"
	"github.com/termfleet/termfleet/internal/session"
)

// Stats counts a session's commands grouped by status.
type Stats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Executing int64 `json:"executing"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type Executor struct {
	db       *gorm.DB
	pool     *ptypool.Pool
	registry *session.Registry
}

func NewExecutor(db *gorm.DB, pool *ptypool.Pool, registry *session.Registry) *Executor {
	return &Executor{db: db, pool: pool, registry: registry}
}

// Execute records a command submission and writes the text plus a newline
// into the session's PTY, activating the session first if no live process
// exists. The returned command is always in a terminal status: "completed"
// when the write succeeded, "failed" otherwise.
//
// "Completed" means the submission was accepted by the terminal, not that
// the shell finished running it: the target process is a free-form shell,
// so there is no reliable end-of-command signal in its output. Output keeps
// streaming through the realtime relay independently of this record.
func (e *Executor) Execute(sessionID, text string) (*database.Command, error) {
	cmd := &database.Command{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Command:   text,
		Status:    database.CommandPending,
	}
	if err := e.db.Create(cmd).Error; err != nil {
		return nil, err
	}

	if err := e.transition(cmd, database.CommandExecuting, ""); err != nil {
		return nil, err
	}

	if !e.pool.Has(sessionID) {
		ok, err := e.registry.Activate(sessionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := e.transition(cmd, database.CommandFailed, "failed to activate session"); err != nil {
				return nil, err
			}
			return cmd, nil
		}
	}

	if !e.pool.Write(sessionID, []byte(text+"\n")) {
		if err := e.transition(cmd, database.CommandFailed, "failed to write command to terminal"); err != nil {
			return nil, err
		}
		return cmd, nil
	}

	if err := e.transition(cmd, database.CommandCompleted, ""); err != nil {
		return nil, err
	}
	log.Printf("[command] executed command %s in session %s", cmd.ID, sessionID)
	return cmd, nil
}

// transition moves cmd to status, stamping started/completed times and the
// error message, and mirrors the change onto cmd itself.
func (e *Executor) transition(cmd *database.Command, status, errMsg string) error {
	now := time.Now()
	updates := map[string]interface{}{"status": status}
	switch status {
	case database.CommandExecuting:
		updates["started_at"] = now
		cmd.StartedAt = &now
	case database.CommandCompleted, database.CommandFailed:
		updates["completed_at"] = now
		cmd.CompletedAt = &now
	}
	if errMsg != "" {
		updates["error"] = errMsg
		cmd.Error = errMsg
	}
	cmd.Status = status
	return e.db.Model(&database.Command{}).Where("id = ?", cmd.ID).Updates(updates).Error
}

// Get returns the command or nil when the id is unknown.
func (e *Executor) Get(id string) (*database.Command, error) {
	var cmd database.Command
	if err := e.db.First(&cmd, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cmd, nil
}

// ListBySession returns up to limit commands for the session, newest first.
func (e *Executor) ListBySession(sessionID string, limit int) ([]database.Command, error) {
	if limit <= 0 {
		limit = 50
	}
	var cmds []database.Command
	err := e.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&cmds).Error
	return cmds, err
}

// SessionStats returns per-status counts for the session's commands.
func (e *Executor) SessionStats(sessionID string) (*Stats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := e.db.Model(&database.Command{}).
		Select("status, COUNT(*) as count").
		Where("session_id = ?", sessionID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case database.CommandPending:
			stats.Pending = row.Count
		case database.CommandExecuting:
			stats.Executing = row.Count
		case database.CommandCompleted:
			stats.Completed = row.Count
		case database.CommandFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}

// CleanupOld deletes commands created before now-maxAge and returns how many
// were removed.
func (e *Executor) CleanupOld(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := e.db.Where("created_at < ?", cutoff).Delete(&database.Command{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[command] cleaned up %d old commands", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
