package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antoniostano/missioncontrol/internal/config"
	"github.com/antoniostano/missioncontrol/internal/history"
	"github.com/antoniostano/missioncontrol/internal/httpapi"
	"github.com/antoniostano/missioncontrol/internal/observability"
	"github.com/antoniostano/missioncontrol/internal/realtime"
	"github.com/antoniostano/missioncontrol/internal/seed"
	"github.com/antoniostano/missioncontrol/internal/store"
	"github.com/antoniostano/missioncontrol/internal/tasks"
)

func main() {
	if err := config.LoadEnvFile(""); err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()
	log.Printf("store mode: %s", st.Mode())

	if err := prepareStore(ctx, st, cfg.SeedDemo); err != nil {
		log.Fatalf("%v", err)
	}

	hub := realtime.NewHub(cfg.WSWriteTimeout, metrics)
	recorder := history.NewRecorder(st, metrics)
	manager := tasks.NewManager(st, recorder, hub, metrics)

	api := httpapi.New(cfg, manager, recorder, hub, st, metrics)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	// Shutdown does not track hijacked websocket connections; close them first.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// prepareStore seeds st when asked. On failure st is already closed because
// the caller exits without running deferred calls.
func prepareStore(ctx context.Context, st store.Store, seedDemo bool) error {
	if !seedDemo {
		return nil
	}
	if _, err := seed.Demo(ctx, st, time.Now()); err != nil {
		_ = st.Close()
		return fmt.Errorf("demo seed failed: %w", err)
	}
	return nil
}
