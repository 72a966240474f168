package httpadapter

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retouchlab/eraser/internal/core/domain"
)

type editRequestBody struct {
	ImageBase64   string                    `json:"image_base64"`
	Instructions  string                    `json:"instructions"`
	Strokes       []domain.AnnotationStroke `json:"strokes"`
	Type          string                    `json:"type"`
	Quality       string                    `json:"quality"`
	Priority      string                    `json:"priority"`
	AnalyzePrompt string                    `json:"analyze_prompt"`
	EditPrompt    string                    `json:"edit_prompt"`
}

type syncEditResponse struct {
	JobID            string            `json:"job_id"`
	ImageBase64      string            `json:"image_base64"`
	OriginalPrompt   string            `json:"original_prompt"`
	EnhancedPrompt   string            `json:"enhanced_prompt,omitempty"`
	ProcessingMillis int64             `json:"processing_millis"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func (rt *Router) submitEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	img, pctx, err := rt.decodeEditRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := rt.submitter.Submit(r.Context(), rt.userID(r), img, pctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.ObserveMarkerCount(serviceName, len(img.Strokes))
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) editSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	img, pctx, err := rt.decodeEditRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	jobID := uuid.NewString()
	flushStages := rt.observeStages(jobID)

	started := time.Now()
	result, err := rt.editor.EditImage(r.Context(), domain.EditRequest{
		JobID:   jobID,
		Image:   img,
		Context: pctx,
	})
	flushStages()
	if rt.metrics != nil {
		outcome, kind := editOutcome(err)
		rt.metrics.RecordEditOutcome(serviceName, outcome, kind, time.Since(started))
		rt.metrics.ObserveMarkerCount(serviceName, len(img.Strokes))
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, syncEditResponse{
		JobID:            result.JobID,
		ImageBase64:      base64.StdEncoding.EncodeToString(result.ProcessedImage),
		OriginalPrompt:   result.OriginalPrompt,
		EnhancedPrompt:   result.EnhancedPrompt,
		ProcessingMillis: result.ProcessingTime.Milliseconds(),
		Metadata:         result.Metadata,
	})
}

func (rt *Router) checkSafety(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	img, _, err := rt.decodeEditRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	safe, err := rt.editor.CheckImageSafety(r.Context(), img.Image)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordSafetyVerdict(serviceName, "error")
		}
		writeError(w, err)
		return
	}
	verdict := "unsafe"
	if safe {
		verdict = "safe"
	}
	if rt.metrics != nil {
		rt.metrics.RecordSafetyVerdict(serviceName, verdict)
	}

	writeJSON(w, http.StatusOK, map[string]any{"safe": safe})
}

// observeStages watches one pipeline run and records how long it spent
// in each stage. The returned function blocks until the watcher drains.
func (rt *Router) observeStages(jobID string) func() {
	if rt.metrics == nil || rt.editor == nil {
		return func() {}
	}
	ch, stop := rt.editor.Watch(jobID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		lastStage := ""
		lastAt := time.Now()
		for p := range ch {
			if lastStage != "" {
				rt.metrics.ObserveStageDuration(serviceName, lastStage, time.Since(lastAt))
			}
			lastStage = string(p.Stage)
			lastAt = time.Now()
		}
		if lastStage != "" {
			rt.metrics.ObserveStageDuration(serviceName, lastStage, time.Since(lastAt))
		}
	}()
	return func() {
		stop()
		<-done
	}
}

func editOutcome(err error) (outcome, kind string) {
	if err == nil {
		return "succeeded", ""
	}
	var fault *domain.Fault
	if errors.As(err, &fault) {
		return "failed", string(fault.Kind)
	}
	return "failed", string(domain.FaultGeneral)
}

// decodeEditRequest accepts either a multipart form with an "image"
// file or a JSON body with base64 image content. Payload limits are
// enforced before any byte leaves the adapter.
func (rt *Router) decodeEditRequest(r *http.Request) (domain.AnnotatedImage, domain.ProcessingContext, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return rt.decodeMultipartEdit(r)
	}
	return rt.decodeJSONEdit(r)
}

func (rt *Router) decodeJSONEdit(r *http.Request) (domain.AnnotatedImage, domain.ProcessingContext, error) {
	var body editRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, domain.NewFault(domain.FaultValidation, "invalid json body")
	}
	data, err := base64.StdEncoding.DecodeString(body.ImageBase64)
	if err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, domain.NewFault(domain.FaultValidation, "image_base64 is not valid base64")
	}
	if err := rt.guard.CheckPayload(data); err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, err
	}

	img := domain.AnnotatedImage{
		Image:        domain.BytesPayload(data),
		Strokes:      body.Strokes,
		Instructions: body.Instructions,
		CreatedAt:    time.Now().UTC(),
	}
	pctx := domain.ProcessingContext{
		Type:                domain.ProcessingType(body.Type),
		Quality:             domain.QualityLevel(body.Quality),
		Priority:            domain.PerformancePriority(body.Priority),
		AnalyzeSystemPrompt: body.AnalyzePrompt,
		EditSystemPrompt:    body.EditPrompt,
	}
	return img, pctx, nil
}

func (rt *Router) decodeMultipartEdit(r *http.Request) (domain.AnnotatedImage, domain.ProcessingContext, error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, domain.NewFault(domain.FaultValidation, "malformed multipart form")
	}
	files := r.MultipartForm.File["image"]
	if err := rt.guard.CheckCount(len(files)); err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, err
	}
	if len(files) == 0 {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, domain.NewFault(domain.FaultValidation, "multipart field 'image' is required")
	}

	file, err := files[0].Open()
	if err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, domain.NewFault(domain.FaultValidation, "image file is unreadable")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, domain.NewFault(domain.FaultValidation, "image file is unreadable")
	}
	if err := rt.guard.CheckPayload(data); err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, err
	}

	var strokes []domain.AnnotationStroke
	if raw := r.FormValue("strokes"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &strokes); err != nil {
			return domain.AnnotatedImage{}, domain.ProcessingContext{}, domain.NewFault(domain.FaultValidation, "strokes field is not valid json")
		}
	}

	img := domain.AnnotatedImage{
		Image:        domain.BytesPayload(data),
		Strokes:      strokes,
		Instructions: r.FormValue("instructions"),
		CreatedAt:    time.Now().UTC(),
	}
	pctx := domain.ProcessingContext{
		Type:                domain.ProcessingType(r.FormValue("type")),
		Quality:             domain.QualityLevel(r.FormValue("quality")),
		Priority:            domain.PerformancePriority(r.FormValue("priority")),
		AnalyzeSystemPrompt: r.FormValue("analyze_prompt"),
		EditSystemPrompt:    r.FormValue("edit_prompt"),
	}
	return img, pctx, nil
}
