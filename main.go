package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/termfleet/termfleet/internal/command"
	"github.com/termfleet/termfleet/internal/config"
	"github.com/termfleet/termfleet/internal/database"
	"github.com/termfleet/termfleet/internal/handlers"
	"github.com/termfleet/termfleet/internal/janitor"
	"github.com/termfleet/termfleet/internal/logging"
	"github.com/termfleet/termfleet/internal/ptypool"
	"github.com/termfleet/termfleet/internal/relay"
	"github.com/termfleet/termfleet/internal/session"
)

func main() {
	config.Load()
	logging.Init()

	db, err := database.Open(config.Cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close(db)

	pool := ptypool.New(ptypool.Config{
		Shell: config.Cfg.DefaultShell,
		Cols:  config.Cfg.PTYCols,
		Rows:  config.Cfg.PTYRows,
	})

	registry := session.NewRegistry(db, pool)

	// Persisted "active" rows are a cache of the pool's live state; after a
	// crash they can be stale. Demote them before serving traffic.
	if err := registry.Reconcile(); err != nil {
		log.Fatalf("Session reconciliation: %v", err)
	}

	executor := command.NewExecutor(db, pool, registry)
	rly := relay.New(registry, executor, pool, config.IsProduction())

	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	go rly.Run(relayCtx)

	jan := janitor.New(registry, executor, config.Cfg.SessionMaxAge, config.Cfg.CommandMaxAge)
	if err := jan.Start(config.Cfg.CleanupSchedule); err != nil {
		log.Fatalf("Cleanup scheduler: %v", err)
	}

	api := handlers.New(db, registry, executor, rly, config.IsProduction())

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", api.HealthCheck)
	r.Get("/ws", api.WS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", api.ListSessions)
			r.Post("/", api.CreateSession)
			r.Get("/{id}", api.GetSession)
			r.Put("/{id}", api.RenameSession)
			r.Delete("/{id}", api.DeleteSession)
			r.Post("/{id}/activate", api.ActivateSession)
			r.Post("/{id}/deactivate", api.DeactivateSession)
		})

		r.Route("/commands", func(r chi.Router) {
			r.Get("/", api.ListCommands)
			r.Post("/", api.ExecuteCommand)
			r.Get("/{id}", api.GetCommand)
			r.Get("/stats/{sessionId}", api.CommandStats)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", api.ListMessages)
			r.Post("/", api.CreateMessage)
			r.Delete("/{id}", api.DeleteMessage)
		})

		r.Get("/logs", api.ServerLogs)
		r.Delete("/logs", api.ClearLogs)
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	// Shutdown order: notify clients, kill PTYs, close the realtime
	// channel, close the store (deferred above).
	jan.Stop()
	rly.NotifyShutdown("Server is shutting down")
	pool.Cleanup()
	rly.CloseAll()
	relayCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
