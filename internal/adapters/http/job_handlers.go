package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/infrastructure/render"
)

func (rt *Router) listJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	jobs, err := rt.jobs.ListJobs(r.Context(), rt.userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (rt *Router) jobSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}
	jobID, action, _ := strings.Cut(rest, "/")

	switch {
	case action == "" && r.Method == http.MethodGet:
		rt.getJob(w, r, jobID)
	case action == "events" && r.Method == http.MethodGet:
		rt.streamEvents(w, r, jobID)
	case action == "result" && r.Method == http.MethodGet:
		rt.getResult(w, r, jobID)
	case action == "cancel" && r.Method == http.MethodPost:
		rt.cancelJob(w, jobID)
	case action == "" || action == "events" || action == "result" || action == "cancel":
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job resource"})
	}
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := rt.jobs.GetJob(r.Context(), rt.userID(r), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) cancelJob(w http.ResponseWriter, jobID string) {
	canceled := rt.editor.Cancel(jobID)
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "canceled": canceled})
}

func (rt *Router) getResult(w http.ResponseWriter, r *http.Request, jobID string) {
	rc, err := rt.jobs.OpenResult(r.Context(), rt.userID(r), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "read result image"})
		return
	}

	contentType := "application/octet-stream"
	if format, err := render.DetectFormat(data); err == nil {
		contentType = format.MIME()
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// streamEvents serves the job's lifecycle as server-sent events: a
// snapshot of the current state first, then queue-published transitions
// and, for runs hosted in this process, live progress updates. The
// stream ends on a terminal status or client disconnect.
func (rt *Router) streamEvents(w http.ResponseWriter, r *http.Request, jobID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	userID := rt.userID(r)
	job, err := rt.jobs.GetJob(r.Context(), userID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	events := make(chan domain.JobEvent, 16)
	if rt.events != nil {
		stop, err := rt.events.SubscribeJobEvents(ctx, userID, jobID, func(_ context.Context, ev domain.JobEvent) {
			select {
			case events <- ev:
			default:
			}
		})
		if err != nil {
			writeError(w, err)
			return
		}
		defer stop()
	}

	var progress <-chan domain.ProcessingProgress
	if rt.editor != nil {
		ch, stopWatch := rt.editor.Watch(jobID)
		defer stopWatch()
		progress = ch
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSEEvent(w, domain.JobEvent{
		JobID:  job.ID,
		UserID: job.UserID,
		Status: job.Status,
		At:     job.UpdatedAt,
	})
	flusher.Flush()
	if terminalStatus(job.Status) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			writeSSEEvent(w, ev)
			flusher.Flush()
			if terminalStatus(ev.Status) {
				return
			}
		case p, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			writeSSEEvent(w, domain.JobEvent{
				JobID:    jobID,
				UserID:   userID,
				Status:   domain.JobRunning,
				Stage:    p.Stage,
				Fraction: p.Fraction,
				Message:  p.Message,
				At:       time.Now().UTC(),
			})
			flusher.Flush()
		}
	}
}

func terminalStatus(status domain.JobStatus) bool {
	return status == domain.JobSucceeded || status == domain.JobFailed
}

func writeSSEEvent(w io.Writer, ev domain.JobEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
