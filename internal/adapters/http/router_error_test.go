package httpadapter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/core/domain"
)

func syncEditRequest(t *testing.T) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString(pngBytes()),
		"instructions": "remove the bird",
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/edits/sync", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestEditSyncMapsValidationFaultTo400(t *testing.T) {
	editor := &editorFake{err: domain.NewFault(domain.FaultValidation, "nothing to remove: no marks and no instructions")}
	handler := NewRouter(config.Config{}, editor, &submitterFake{}, &jobsFake{}, nil, nil, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, syncEditRequest(t))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "nothing to remove") {
		t.Fatalf("expected fault message in body, got %s", res.Body.String())
	}
}

func TestEditSyncMapsQuotaFaultTo429WithRetryAfter(t *testing.T) {
	editor := &editorFake{err: domain.NewFault(domain.FaultQuota, "rate limit exceeded")}
	handler := NewRouter(config.Config{}, editor, &submitterFake{}, &jobsFake{}, nil, nil, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, syncEditRequest(t))

	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After hint for a retryable fault")
	}
}

func TestEditSyncMapsPermissionFaultTo403(t *testing.T) {
	editor := &editorFake{err: domain.NewFault(domain.FaultPermission, "access to this model is forbidden")}
	handler := NewRouter(config.Config{}, editor, &submitterFake{}, &jobsFake{}, nil, nil, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, syncEditRequest(t))

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestEditSyncMapsModelNotFoundTo502(t *testing.T) {
	editor := &editorFake{err: domain.NewFault(domain.FaultModelNotFound, "model was not found")}
	handler := NewRouter(config.Config{}, editor, &submitterFake{}, &jobsFake{}, nil, nil, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, syncEditRequest(t))

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
}

func TestGetJobMapsNotFoundTo404(t *testing.T) {
	jobs := &jobsFake{err: domain.WrapError(domain.ErrJobNotFound, "fetch job", errors.New("id=missing"))}
	handler := NewRouter(config.Config{}, &editorFake{}, &submitterFake{}, jobs, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetResultMapsNetworkFaultTo503(t *testing.T) {
	jobs := &jobsFake{err: domain.NewFault(domain.FaultNetwork, "connection reset while reading storage")}
	handler := NewRouter(config.Config{}, &editorFake{}, &submitterFake{}, jobs, nil, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/j-1/result", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestSubmitMapsQuotaGuardTo429(t *testing.T) {
	submitter := &submitterFake{err: domain.NewFault(domain.FaultQuota, "submission limit reached, try again later")}
	handler := NewRouter(config.Config{}, &editorFake{}, submitter, &jobsFake{}, nil, nil, nil).Handler()

	payload, _ := json.Marshal(map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString(pngBytes()),
		"instructions": "remove the bird",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/edits", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.Code)
	}
}
