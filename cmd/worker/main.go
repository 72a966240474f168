package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retouchlab/eraser/internal/bootstrap"
	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/observability/logging"
	"github.com/retouchlab/eraser/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	wm := metrics.NewWorkerMetrics("worker")
	go serveMetrics(ctx, cfg.WorkerMetricsPort, wm)

	log.Printf("worker consuming %s.edits.requested", cfg.NATSSubjectPrefix)
	err = app.Queue.SubscribeEditRequested(ctx, func(handlerCtx context.Context, jobID string) error {
		if job, err := app.Repo.GetByJobID(handlerCtx, jobID); err == nil {
			wm.ObserveQueueLag("worker", time.Since(job.CreatedAt))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		wm.StartJob()
		started := time.Now()
		err := app.ProcessUC.ProcessByID(processCtx, jobID)
		wm.FinishJob("worker", time.Since(started), err)
		return err
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func serveMetrics(ctx context.Context, port string, wm *metrics.WorkerMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", wm.Handler())
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("worker metrics server error: %v", err)
	}
}
