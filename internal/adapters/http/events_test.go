package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/core/domain"
)

type eventsFake struct {
	subscribed chan func(context.Context, domain.JobEvent)
}

func (f *eventsFake) SubscribeJobEvents(_ context.Context, _, _ string, handler func(context.Context, domain.JobEvent)) (func(), error) {
	f.subscribed <- handler
	return func() {}, nil
}

func TestStreamEventsEmitsSnapshotAndTransitions(t *testing.T) {
	jobs := &jobsFake{job: &domain.EditJob{ID: "j-5", UserID: "anonymous", Status: domain.JobRunning}}
	events := &eventsFake{subscribed: make(chan func(context.Context, domain.JobEvent), 1)}
	handler := NewRouter(config.Config{}, &editorFake{}, &submitterFake{}, jobs, events, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/j-5/events", nil)
	res := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(res, req)
	}()

	var publish func(context.Context, domain.JobEvent)
	select {
	case publish = <-events.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event subscription")
	}

	publish(context.Background(), domain.JobEvent{
		JobID:    "j-5",
		Status:   domain.JobRunning,
		Stage:    domain.StageAnalyzing,
		Fraction: 0.25,
		At:       time.Now().UTC(),
	})
	publish(context.Background(), domain.JobEvent{
		JobID:  "j-5",
		Status: domain.JobSucceeded,
		At:     time.Now().UTC(),
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not close after terminal event")
	}

	if ct := res.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream content type, got %q", ct)
	}
	body := res.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("expected SSE framing, got %q", body)
	}
	if got := strings.Count(body, "data: "); got != 3 {
		t.Fatalf("expected 3 events (snapshot + 2 transitions), got %d: %s", got, body)
	}
	if !strings.Contains(body, `"stage":"analyzing"`) {
		t.Fatalf("expected analyzing stage event, got %s", body)
	}
	if !strings.Contains(body, `"status":"succeeded"`) {
		t.Fatalf("expected terminal succeeded event, got %s", body)
	}
}

func TestStreamEventsClosesImmediatelyOnFinishedJob(t *testing.T) {
	jobs := &jobsFake{job: &domain.EditJob{ID: "j-6", UserID: "anonymous", Status: domain.JobSucceeded}}
	handler := NewRouter(config.Config{}, &editorFake{}, &submitterFake{}, jobs, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/j-6/events", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	body := res.Body.String()
	if got := strings.Count(body, "data: "); got != 1 {
		t.Fatalf("expected a single snapshot event, got %d: %s", got, body)
	}
	if !strings.Contains(body, `"status":"succeeded"`) {
		t.Fatalf("expected succeeded snapshot, got %s", body)
	}
}

func TestStreamEventsUnknownJobReturns404(t *testing.T) {
	jobs := &jobsFake{err: domain.WrapError(domain.ErrJobNotFound, "fetch job", errors.New("id=nope"))}
	handler := NewRouter(config.Config{}, &editorFake{}, &submitterFake{}, jobs, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/nope/events", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}
