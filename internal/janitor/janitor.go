// Package janitor runs the periodic housekeeping sweep: long-idle inactive
// sessions and old command records are reclaimed on a fixed schedule.
// Failures are logged and never propagated; this is best-effort cleanup,
// not a correctness mechanism.
package janitor

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/termfleet/termfleet/internal/command"
	"github.com/termfleet/termfleet/internal/session"
)

type Janitor struct {
	registry *session.Registry
	executor *command.Executor

	sessionMaxAge time.Duration
	commandMaxAge time.Duration

	cron *cron.Cron
}

func New(registry *session.Registry, executor *command.Executor, sessionMaxAge, commandMaxAge time.Duration) *Janitor {
	return &Janitor{
		registry:      registry,
		executor:      executor,
		sessionMaxAge: sessionMaxAge,
		commandMaxAge: commandMaxAge,
		cron:          cron.New(),
	}
}

// Start schedules the sweep. The schedule uses cron syntax or a descriptor
// like "@hourly".
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return fmt.Errorf("schedule cleanup job: %w", err)
	}
	j.cron.Start()
	log.Printf("[janitor] cleanup scheduled (%s, session max age %s, command max age %s)",
		schedule, j.sessionMaxAge, j.commandMaxAge)
	return nil
}

// Stop halts the schedule. A sweep already in flight runs to completion.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep runs one cleanup pass. Exported so it can be triggered directly.
func (j *Janitor) Sweep() {
	if n, err := j.registry.CleanupInactive(j.sessionMaxAge); err != nil {
		log.Printf("[janitor] session cleanup failed: %v", err)
	} else if n > 0 {
		log.Printf("[janitor] removed %d inactive sessions", n)
	}

	if n, err := j.executor.CleanupOld(j.commandMaxAge); err != nil {
		log.Printf("[janitor] command cleanup failed: %v", err)
	} else if n > 0 {
		log.Printf("[janitor] removed %d old commands", n)
	}
}
