package command

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/termfleet/termfleet/internal/database"
	"github.com/termfleet/termfleet/internal/ptypool"
	"github.com/termfleet/termfleet/internal/session"
)

func setupTest(t *testing.T) (*gorm.DB, *ptypool.FakeStarter, *session.Registry, *Executor) {
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
	reg := session.NewRegistry(db, pool)
	return db, starter, reg, NewExecutor(db, pool, reg)
}

func TestExecuteWritesAndCompletes(t *testing.T) {
	_, starter, reg, exec := setupTest(t)

	s, _ := reg.Create("u1", "s")
	if ok, _ := reg.Activate(s.ID); !ok {
		t.Fatal("activate failed")
	}

	cmd, err := exec.Execute(s.ID, "ls -la")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if cmd.Status != database.CommandCompleted {
		t.Fatalf("expected completed, got %q: %s", cmd.Status, cmd.Error)
	}
	if cmd.StartedAt == nil || cmd.CompletedAt == nil {
		t.Fatal("expected started_at and completed_at to be stamped")
	}

	if got := starter.Last().Input(); got != "ls -la\n" {
		t.Fatalf("expected newline-terminated write, got %q", got)
	}

	stored, _ := exec.Get(cmd.ID)
	if stored == nil || stored.Status != database.CommandCompleted {
		t.Fatalf("persisted command mismatch: %+v", stored)
	}
}

func TestExecuteActivatesInactiveSession(t *testing.T) {
	_, starter, reg, exec := setupTest(t)

	s, _ := reg.Create("u1", "s")

	cmd, err := exec.Execute(s.ID, "pwd")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if cmd.Status != database.CommandCompleted {
		t.Fatalf("expected completed, got %q: %s", cmd.Status, cmd.Error)
	}
	if starter.Count() != 1 {
		t.Fatalf("expected lazy activation to spawn 1 process, got %d", starter.Count())
	}

	got, _ := reg.Get(s.ID)
	if got.Status != database.SessionActive {
		t.Fatalf("session should be active after execute, got %q", got.Status)
	}
}

func TestExecuteFailsWhenActivationFails(t *testing.T) {
	_, starter, reg, exec := setupTest(t)
	starter.Err = errors.New("spawn refused")

	s, _ := reg.Create("u1", "s")

	cmd, err := exec.Execute(s.ID, "whoami")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if cmd.Status != database.CommandFailed {
		t.Fatalf("expected failed, got %q", cmd.Status)
	}
	if cmd.Error != "failed to activate session" {
		t.Fatalf("unexpected error message %q", cmd.Error)
	}
	if cmd.CompletedAt == nil {
		t.Fatal("failed commands must still be stamped completed_at")
	}

	// The record is never left pending or executing.
	stored, _ := exec.Get(cmd.ID)
	if stored.Status != database.CommandFailed {
		t.Fatalf("persisted status %q", stored.Status)
	}
}

func TestExecuteUnknownSessionFails(t *testing.T) {
	_, _, _, exec := setupTest(t)

	cmd, err := exec.Execute("missing", "echo hi")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if cmd.Status != database.CommandFailed {
		t.Fatalf("expected failed, got %q", cmd.Status)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	_, _, _, exec := setupTest(t)

	cmd, err := exec.Get("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cmd != nil {
		t.Fatalf("expected nil, got %+v", cmd)
	}
}

func TestListBySessionNewestFirst(t *testing.T) {
	db, _, reg, exec := setupTest(t)

	s, _ := reg.Create("u1", "s")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		cmd := &database.Command{
			ID:        string(rune('a' + i)),
			SessionID: s.ID,
			Command:   "cmd",
			Status:    database.CommandCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(cmd).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	cmds, err := exec.ListBySession(s.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(cmds))
	}
	if cmds[0].ID != "c" || cmds[1].ID != "b" {
		t.Fatalf("wrong order: %s, %s", cmds[0].ID, cmds[1].ID)
	}
}

func TestSessionStats(t *testing.T) {
	db, _, reg, exec := setupTest(t)

	s, _ := reg.Create("u1", "s")
	seed := []string{
		database.CommandCompleted,
		database.CommandCompleted,
		database.CommandFailed,
		database.CommandPending,
	}
	for i, status := range seed {
		db.Create(&database.Command{
			ID:        string(rune('a' + i)),
			SessionID: s.ID,
			Command:   "cmd",
			Status:    status,
		})
	}

	stats, err := exec.SessionStats(s.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Completed != 2 || stats.Failed != 1 || stats.Pending != 1 || stats.Executing != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCleanupOld(t *testing.T) {
	db, _, reg, exec := setupTest(t)

	s, _ := reg.Create("u1", "s")
	db.Create(&database.Command{
		ID:        "old",
		SessionID: s.ID,
		Command:   "cmd",
		Status:    database.CommandCompleted,
		CreatedAt: time.Now().Add(-8 * 24 * time.Hour),
	})
	db.Create(&database.Command{
		ID:        "fresh",
		SessionID: s.ID,
		Command:   "cmd",
		Status:    database.CommandCompleted,
		CreatedAt: time.Now(),
	})

	count, err := exec.CleanupOld(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 removal, got %d", count)
	}

	if cmd, _ := exec.Get("old"); cmd != nil {
		t.Fatal("old command should be removed")
	}
	if cmd, _ := exec.Get("fresh"); cmd == nil {
		t.Fatal("fresh command must survive")
	}
}
