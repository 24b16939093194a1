package session

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/termfleet/termfleet/internal/database"
	"github.com/termfleet/termfleet/internal/ptypool"
)

func setupTest(t *testing.T) (*gorm.DB, *ptypool.FakeStarter, *Registry) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	starter := &ptypool.FakeStarter{}
	pool := ptypool.New(ptypool.Config{Shell: "/bin/bash", Start: starter.Start})
	return db, starter, NewRegistry(db, pool)
}

func TestCreateAndGet(t *testing.T) {
	_, _, reg := setupTest(t)

	created, err := reg.Create("u1", "workbench")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != database.SessionInactive {
		t.Fatalf("new session should be inactive, got %q", created.Status)
	}

	got, err := reg.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "workbench" || got.OwnerID != "u1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	_, _, reg := setupTest(t)

	got, err := reg.Get("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}
}

func TestListByOwnerOrdersByActivity(t *testing.T) {
	db, _, reg := setupTest(t)

	a, _ := reg.Create("u1", "a")
	b, _ := reg.Create("u1", "b")
	c, _ := reg.Create("u1", "c")
	reg.Create("u2", "other")

	now := time.Now()
	db.Model(&database.Session{}).Where("id = ?", a.ID).Update("last_activity_at", now.Add(-2*time.Hour))
	db.Model(&database.Session{}).Where("id = ?", b.ID).Update("last_activity_at", now)
	db.Model(&database.Session{}).Where("id = ?", c.ID).Update("last_activity_at", now.Add(-1*time.Hour))

	sessions, err := reg.ListByOwner("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != b.ID || sessions[1].ID != c.ID || sessions[2].ID != a.ID {
		t.Fatalf("wrong order: %s, %s, %s", sessions[0].Name, sessions[1].Name, sessions[2].Name)
	}
}

func TestRenameUnknownFails(t *testing.T) {
	_, _, reg := setupTest(t)

	ok, err := reg.Rename("missing", "new-name")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if ok {
		t.Fatal("rename of unknown id must report failure")
	}
}

func TestActivateDeactivate(t *testing.T) {
	_, starter, reg := setupTest(t)

	s, _ := reg.Create("u1", "s")

	ok, err := reg.Activate(s.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !ok {
		t.Fatal("activate should succeed")
	}

	got, _ := reg.Get(s.ID)
	if got.Status != database.SessionActive {
		t.Fatalf("expected active, got %q", got.Status)
	}
	if got.PTYPid == nil || *got.PTYPid != starter.Last().Pid() {
		t.Fatalf("expected pty_pid %d, got %v", starter.Last().Pid(), got.PTYPid)
	}

	// A second activate must not spawn a second process.
	if ok, _ := reg.Activate(s.ID); !ok {
		t.Fatal("re-activate should succeed")
	}
	if starter.Count() != 1 {
		t.Fatalf("expected 1 spawned process, got %d", starter.Count())
	}

	ok, err = reg.Deactivate(s.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if !ok {
		t.Fatal("deactivate should succeed")
	}

	got, _ = reg.Get(s.ID)
	if got.Status != database.SessionInactive {
		t.Fatalf("expected inactive, got %q", got.Status)
	}
	if got.PTYPid != nil {
		t.Fatalf("expected cleared pty_pid, got %v", *got.PTYPid)
	}
}

func TestActivateUnknownSession(t *testing.T) {
	_, _, reg := setupTest(t)

	ok, err := reg.Activate("missing")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if ok {
		t.Fatal("activate of unknown id must report failure")
	}
}

func TestActivateSpawnFailureLeavesStatus(t *testing.T) {
	_, starter, reg := setupTest(t)
	starter.Err = errors.New("no ptys left")

	s, _ := reg.Create("u1", "s")

	ok, err := reg.Activate(s.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if ok {
		t.Fatal("activate must fail when the spawn fails")
	}

	got, _ := reg.Get(s.ID)
	if got.Status != database.SessionInactive || got.PTYPid != nil {
		t.Fatalf("status must be unchanged after spawn failure: %+v", got)
	}
}

func TestDeleteCascades(t *testing.T) {
	db, _, reg := setupTest(t)

	s, _ := reg.Create("u1", "s")
	db.Create(&database.Command{ID: "c1", SessionID: s.ID, Command: "ls", Status: database.CommandCompleted})
	db.Create(&database.Message{ID: "m1", SessionID: s.ID, Type: "user", Content: "hi"})

	ok, err := reg.Delete(s.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !ok {
		t.Fatal("delete should succeed")
	}

	var commands, messages int64
	db.Model(&database.Command{}).Where("session_id = ?", s.ID).Count(&commands)
	db.Model(&database.Message{}).Where("session_id = ?", s.ID).Count(&messages)
	if commands != 0 || messages != 0 {
		t.Fatalf("expected cascade delete, got %d commands and %d messages", commands, messages)
	}

	if ok, _ := reg.Delete(s.ID); ok {
		t.Fatal("second delete must report failure")
	}
}

func TestCleanupInactiveSparesActive(t *testing.T) {
	db, _, reg := setupTest(t)

	oldInactive, _ := reg.Create("u1", "old-inactive")
	freshInactive, _ := reg.Create("u1", "fresh-inactive")
	oldActive, _ := reg.Create("u1", "old-active")

	if ok, _ := reg.Activate(oldActive.ID); !ok {
		t.Fatal("activate failed")
	}

	stale := time.Now().Add(-48 * time.Hour)
	db.Model(&database.Session{}).Where("id = ?", oldInactive.ID).Update("last_activity_at", stale)
	db.Model(&database.Session{}).Where("id = ?", oldActive.ID).Update("last_activity_at", stale)

	count, err := reg.CleanupInactive(24 * time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 removal, got %d", count)
	}

	if got, _ := reg.Get(oldInactive.ID); got != nil {
		t.Fatal("stale inactive session should be removed")
	}
	if got, _ := reg.Get(freshInactive.ID); got == nil {
		t.Fatal("fresh inactive session must survive")
	}
	if got, _ := reg.Get(oldActive.ID); got == nil {
		t.Fatal("active session must never be removed, regardless of age")
	}
}

func TestReclaimSkipsSessionActivatedMidSweep(t *testing.T) {
	db, starter, reg := setupTest(t)

	s, _ := reg.Create("u1", "s")
	stale := time.Now().Add(-48 * time.Hour)
	db.Model(&database.Session{}).Where("id = ?", s.ID).Update("last_activity_at", stale)

	// The sweep's scan has already listed this session as stale when a
	// client activates it. The removal must notice and back off.
	cutoff := time.Now().Add(-24 * time.Hour)
	if ok, _ := reg.Activate(s.ID); !ok {
		t.Fatal("activate failed")
	}

	ok, err := reg.reclaim(s.ID, cutoff)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if ok {
		t.Fatal("reclaim must not remove a session that became active")
	}

	got, _ := reg.Get(s.ID)
	if got == nil || got.Status != database.SessionActive {
		t.Fatalf("session must survive activation race: %+v", got)
	}
	if starter.Last().Exited() {
		t.Fatal("live PTY must not be killed by the sweep")
	}
}

func TestReconcileDemotesStaleActives(t *testing.T) {
	db, _, reg := setupTest(t)

	pid := 4242
	db.Create(&database.Session{
		ID:             "stale",
		OwnerID:        "u1",
		Name:           "stale",
		Status:         database.SessionActive,
		PTYPid:         &pid,
		LastActivityAt: time.Now(),
	})

	live, _ := reg.Create("u1", "live")
	if ok, _ := reg.Activate(live.ID); !ok {
		t.Fatal("activate failed")
	}

	if err := reg.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, _ := reg.Get("stale")
	if got.Status != database.SessionInactive || got.PTYPid != nil {
		t.Fatalf("stale row should be demoted: %+v", got)
	}

	got, _ = reg.Get(live.ID)
	if got.Status != database.SessionActive {
		t.Fatal("session with a live handle must stay active")
	}
}

func TestTouchBumpsActivity(t *testing.T) {
	db, _, reg := setupTest(t)

	s, _ := reg.Create("u1", "s")
	stale := time.Now().Add(-1 * time.Hour)
	db.Model(&database.Session{}).Where("id = ?", s.ID).Update("last_activity_at", stale)

	if err := reg.Touch(s.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, _ := reg.Get(s.ID)
	if !got.LastActivityAt.After(stale.Add(30 * time.Minute)) {
		t.Fatalf("expected bumped activity, got %v", got.LastActivityAt)
	}
}
