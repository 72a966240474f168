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

	httpadapter "github.com/retouchlab/eraser/internal/adapters/http"
	"github.com/retouchlab/eraser/internal/bootstrap"
	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/infrastructure/session"
	"github.com/retouchlab/eraser/internal/observability/logging"
	"github.com/retouchlab/eraser/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go app.Tracker.Run(ctx, time.Minute)
	go logSessionEvents(ctx, app.Tracker)

	m := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(cfg, app.EditUC, app.SubmitUC, app.JobsUC, app.Queue, app.Tracker, m).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}

func logSessionEvents(ctx context.Context, tracker *session.Tracker) {
	events, stopEvents := tracker.Subscribe()
	defer stopEvents()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case session.EventWarned:
				slog.Warn("editing session idle, expiring soon", "user_id", ev.UserID, "idle", ev.Idle)
			case session.EventExpired:
				slog.Info("editing session expired", "user_id", ev.UserID, "idle", ev.Idle)
			}
		}
	}
}
