package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/core/ports"
	"github.com/retouchlab/eraser/internal/infrastructure/render"
	"github.com/retouchlab/eraser/internal/observability/metrics"
)

const serviceName = "api"

// EventSource delivers job lifecycle events published by workers.
type EventSource interface {
	SubscribeJobEvents(ctx context.Context, userID, jobID string, handler func(context.Context, domain.JobEvent)) (func(), error)
}

// ActivityTracker records per-user API activity for idle-session
// bookkeeping and exposes the live session count.
type ActivityTracker interface {
	Touch(userID string)
	Active() int
}

type Router struct {
	cfg       config.Config
	editor    ports.ImageEditor
	submitter ports.JobSubmitter
	jobs      ports.JobReader
	events    EventSource
	tracker   ActivityTracker
	metrics   *metrics.HTTPServerMetrics
	guard     render.Guard
}

func NewRouter(
	cfg config.Config,
	editor ports.ImageEditor,
	submitter ports.JobSubmitter,
	jobs ports.JobReader,
	events EventSource,
	tracker ActivityTracker,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		editor:    editor,
		submitter: submitter,
		jobs:      jobs,
		events:    events,
		tracker:   tracker,
		metrics:   m,
		guard: render.Guard{
			MaxBytes:  cfg.MaxImageMB << 20,
			MaxImages: cfg.MaxImagesPerRequest,
		},
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/edits", rt.submitEdit)
	mux.HandleFunc("/v1/edits/sync", rt.editSync)
	mux.HandleFunc("/v1/jobs", rt.listJobs)
	mux.HandleFunc("/v1/jobs/", rt.jobSubtree)
	mux.HandleFunc("/v1/images/safety", rt.checkSafety)
	mux.HandleFunc("/v1/service/status", rt.serviceStatus)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMillis)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = sessionMiddleware(handler, rt.tracker, rt.cfg.UserIDHeader)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) serviceStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	status := map[string]any{
		"provider": rt.cfg.ModelProvider,
		"time":     time.Now().UTC().Format(time.RFC3339),
	}
	if rt.editor != nil {
		status["available"] = rt.editor.ServiceAvailable(r.Context())
	}
	if rt.tracker != nil {
		status["active_sessions"] = rt.tracker.Active()
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) userID(r *http.Request) string {
	return userIDFromRequest(r, rt.cfg.UserIDHeader)
}

func userIDFromRequest(r *http.Request, header string) string {
	if header == "" {
		header = "X-User-Id"
	}
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
