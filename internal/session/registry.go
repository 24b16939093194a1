// Package session owns session identity, status, and persistence. Activation
// and deactivation are realized through the PTY pool; the registry keeps the
// persisted row in step with the pool's in-memory state.
package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/termfleet/termfleet/internal/database"
	"github.com/termfleet/termfleet/internal/ptypool"
)

// Registry provides session CRUD and lifecycle operations. Read operations
// report unknown ids as nil without error; mutating operations report them
// as a false result. Errors are reserved for store failures.
type Registry struct {
	db   *gorm.DB
	pool *ptypool.Pool

	// locks serializes activate/deactivate/delete per session id so that
	// status transitions for one session never interleave, while distinct
	// sessions proceed independently.
	locks sync.Map
}

func NewRegistry(db *gorm.DB, pool *ptypool.Pool) *Registry {
	return &Registry{db: db, pool: pool}
}

func (r *Registry) lock(id string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create persists a new inactive session.
func (r *Registry) Create(ownerID, name string) (*database.Session, error) {
	now := time.Now()
	s := &database.Session{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Name:           name,
		Status:         database.SessionInactive,
		LastActivityAt: now,
	}
	if err := r.db.Create(s).Error; err != nil {
		return nil, err
	}
	log.Printf("[session] created session %s for owner %s", s.ID, ownerID)
	return s, nil
}

// Get returns the session or nil when the id is unknown.
func (r *Registry) Get(id string) (*database.Session, error) {
	var s database.Session
	if err := r.db.First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListByOwner returns the owner's sessions, most recently active first.
func (r *Registry) ListByOwner(ownerID string) ([]database.Session, error) {
	var sessions []database.Session
	err := r.db.Where("owner_id = ?", ownerID).
		Order("last_activity_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// Rename updates the session name. False means the id is unknown.
func (r *Registry) Rename(id, name string) (bool, error) {
	res := r.db.Model(&database.Session{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Touch bumps the session's last activity timestamp.
func (r *Registry) Touch(id string) error {
	return r.db.Model(&database.Session{}).Where("id = ?", id).
		Update("last_activity_at", time.Now()).Error
}

// Activate ensures a live PTY exists for the session and persists its
// process id. False without error means the session is unknown or the spawn
// failed; in both cases the persisted status is left unchanged.
func (r *Registry) Activate(id string) (bool, error) {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	s, err := r.Get(id)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}

	h, err := r.pool.Create(id, "", 0, 0)
	if err != nil {
		log.Printf("[session] spawn for session %s failed: %v", id, err)
		return false, nil
	}

	err = r.db.Model(&database.Session{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":  database.SessionActive,
		"pty_pid": h.Pid,
	}).Error
	if err != nil {
		return false, err
	}

	log.Printf("[session] activated session %s (pid %d)", id, h.Pid)
	return true, nil
}

// Deactivate kills any live PTY for the session and marks it inactive with
// no process id. False means the session is unknown. The kill is
// fire-and-forget; the pool's exit event finalizes asynchronously.
func (r *Registry) Deactivate(id string) (bool, error) {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	r.pool.Kill(id)

	res := r.db.Model(&database.Session{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":  database.SessionInactive,
		"pty_pid": nil,
	})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	log.Printf("[session] deactivated session %s", id)
	return true, nil
}

// Delete kills any live PTY, then removes the session row and its commands
// and messages. False means the session is unknown.
func (r *Registry) Delete(id string) (bool, error) {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	r.pool.Kill(id)

	if err := r.db.Where("session_id = ?", id).Delete(&database.Command{}).Error; err != nil {
		return false, err
	}
	if err := r.db.Where("session_id = ?", id).Delete(&database.Message{}).Error; err != nil {
		return false, err
	}
	res := r.db.Delete(&database.Session{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	r.locks.Delete(id)
	log.Printf("[session] deleted session %s", id)
	return true, nil
}

// CleanupInactive deletes sessions that are inactive and idle for longer
// than maxAge. Active sessions are never touched regardless of age: the
// stale scan is only a candidate list, and each removal re-checks the
// condition under the per-session lock.
func (r *Registry) CleanupInactive(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	var stale []database.Session
	err := r.db.Where("status = ? AND last_activity_at < ?", database.SessionInactive, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	var count int64
	for _, s := range stale {
		ok, err := r.reclaim(s.ID, cutoff)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}

	if count > 0 {
		log.Printf("[session] cleaned up %d inactive sessions", count)
	}
	return count, nil
}

// reclaim removes the session only if it is still inactive and idle past
// cutoff once the per-session lock is held. A session activated between the
// sweep's scan and this call no longer matches the conditional delete and
// is left alone, live PTY included.
func (r *Registry) reclaim(id string, cutoff time.Time) (bool, error) {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	res := r.db.Where("id = ? AND status = ? AND last_activity_at < ?",
		id, database.SessionInactive, cutoff).
		Delete(&database.Session{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if err := r.db.Where("session_id = ?", id).Delete(&database.Command{}).Error; err != nil {
		return false, err
	}
	if err := r.db.Where("session_id = ?", id).Delete(&database.Message{}).Error; err != nil {
		return false, err
	}

	r.locks.Delete(id)
	log.Printf("[session] reclaimed idle session %s", id)
	return true, nil
}

// Reconcile demotes persisted "active" rows that have no live PTY handle.
// Run once at startup: after a crash the persisted status can disagree with
// the pool, and the pool is authoritative.
func (r *Registry) Reconcile() error {
	var actives []database.Session
	if err := r.db.Where("status = ?", database.SessionActive).Find(&actives).Error; err != nil {
		return err
	}

	var demoted int
	for _, s := range actives {
		if r.pool.Has(s.ID) {
			continue
		}
		err := r.db.Model(&database.Session{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
			"status":  database.SessionInactive,
			"pty_pid": nil,
		}).Error
		if err != nil {
			return err
		}
		demoted++
	}

	if demoted > 0 {
		log.Printf("[session] reconciled %d stale active sessions to inactive", demoted)
	}
	return nil
}
