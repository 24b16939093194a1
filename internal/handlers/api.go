// Package handlers exposes the REST and websocket surface over the session
// registry, command executor, and realtime relay.
package handlers

import (
	"time"

	"gorm.io/gorm"

	"github.com/termfleet/termfleet/internal/command"
	"github.com/termfleet/termfleet/internal/relay"
	"github.com/termfleet/termfleet/internal/session"
)

// API holds the services the handlers delegate to. Constructed once in main
// and shared by all requests.
type API struct {
	DB         *gorm.DB
	Registry   *session.Registry
	Executor   *command.Executor
	Relay      *relay.Relay
	Production bool

	started time.Time
}

func New(db *gorm.DB, registry *session.Registry, executor *command.Executor, rly *relay.Relay, production bool) *API {
	return &API{
		DB:         db,
		Registry:   registry,
		Executor:   executor,
		Relay:      rly,
		Production: production,
		started:    time.Now(),
	}
}
