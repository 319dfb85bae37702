/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the staff allocation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and environment
  2. Initialize SQLite store and seed reference data
  3. Wire collaborator clients (HTTP when configured, static otherwise)
  4. Construct the engine components and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: allocations.db)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  PRISONER_API_URL  Base URL of the prisoner search service
  STAFF_API_URL     Base URL of the staff directory service
  API_TOKEN         Bearer token for both upstream services
  When the URLs are unset the server runs with empty static lookups, which
  is enough to exercise the manage/configuration endpoints locally.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for active
  requests, close the database, exit.

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/keyworker-engine/allocation"
	memstore "github.com/warp/keyworker-engine/allocation/store"
	"github.com/warp/keyworker-engine/api"
	"github.com/warp/keyworker-engine/clients"
	"github.com/warp/keyworker-engine/factory"
	"github.com/warp/keyworker-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "allocations.db", "SQLite database path")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SeedReferenceData(ctx, factory.SeedReferenceData()); err != nil {
		log.Fatal("failed to seed reference data", zap.Error(err))
	}

	search, location, roster := collaborators()

	snapshots := &allocation.SnapshotBuilder{
		Roster:        roster,
		StaffConfigs:  store,
		Assignments:   store,
		PrisonConfigs: store,
	}
	resolver := &allocation.Resolver{Store: store}
	handler := &api.Handler{
		Recommender: &allocation.Recommender{
			People:      search,
			Assignments: store,
			Snapshots:   snapshots,
			Log:         log,
		},
		Manager: &allocation.Manager{
			Assignments:   store,
			StaffConfigs:  store,
			PrisonConfigs: store,
			ReferenceData: resolver,
			Roster:        roster,
			Location:      location,
			Log:           log,
		},
		Snapshots: snapshots,
		Deallocations: &allocation.DeallocationService{
			Assignments:   store,
			ReferenceData: resolver,
			Log:           log,
		},
		Assignments:   store,
		StaffConfigs:  store,
		PrisonConfigs: store,
		ConfigFactory: factory.NewConfigFactory(),
		Log:           log,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.Int("port", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

// collaborators wires the upstream lookups: HTTP clients when base URLs are
// configured, empty static lookups otherwise.
func collaborators() (allocation.PersonSearch, allocation.PersonLocation, allocation.StaffRoster) {
	prisonerURL := os.Getenv("PRISONER_API_URL")
	staffURL := os.Getenv("STAFF_API_URL")
	if prisonerURL == "" || staffURL == "" {
		return memstore.StaticSearch{}, memstore.StaticLocation{}, memstore.StaticRoster{}
	}

	token := func(context.Context) (string, error) { return os.Getenv("API_TOKEN"), nil }
	prisoner := clients.NewPrisonerClient(clients.Config{BaseURL: prisonerURL, Token: token})
	staff := clients.NewStaffClient(clients.Config{BaseURL: staffURL, Token: token})
	return prisoner, prisoner, staff
}
