package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conveyr/conveyr/internal/content"
	"github.com/conveyr/conveyr/internal/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conveyr HTTP gateway",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	printHeader("🌐 Conveyr Gateway")

	rt, err := openRuntime()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	// Seeding is idempotent; every start picks up definition changes.
	if err := applyPipeline(rt.store, rt.pipeline); err != nil {
		fmt.Printf("Pipeline seed failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !rt.cfg.Engine.ReaperDisabled {
		go runReaper(ctx, rt)
	}
	if rt.cfg.Kafka.Enabled {
		source := content.NewKafkaSource(rt.cfg.Kafka.Brokers, rt.cfg.Kafka.Topic, rt.cfg.Kafka.GroupID)
		defer source.Close()
		worker := content.NewWorker(source, rt.engine)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("content worker stopped", "error", err)
			}
		}()
		fmt.Printf("Content consumer on topic %q\n", rt.cfg.Kafka.Topic)
	}

	srv := &http.Server{
		Addr:    rt.cfg.Gateway.Listen,
		Handler: gateway.NewServer(rt.engine, rt.metrics, version).Handler(),
	}
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		fmt.Println("\nShutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Listening on http://%s\n", rt.cfg.Gateway.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}
}

// runReaper periodically returns expired claims to the queue.
func runReaper(ctx context.Context, rt *runtime) {
	interval := time.Duration(rt.cfg.Engine.ReaperIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rt.engine.ReleaseExpiredClaims(time.Now()); err != nil {
				slog.Warn("claim reaper failed", "error", err)
			}
		}
	}
}
