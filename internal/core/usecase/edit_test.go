package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/retouchlab/eraser/internal/core/domain"
)

type fakeConverter struct{}

func (fakeConverter) ToMarkers(img domain.AnnotatedImage) []domain.Marker {
	markers := make([]domain.Marker, 0, len(img.Strokes))
	for i := range img.Strokes {
		markers = append(markers, domain.Marker{ID: fmt.Sprintf("m%d", i), X: 0.5, Y: 0.5})
	}
	return markers
}

func (fakeConverter) RemovalPrompt(img domain.AnnotatedImage, base string) string {
	return fmt.Sprintf("remove %d object(s): %s", len(img.Strokes), img.Instructions)
}

type fakePrompter struct {
	calls  int
	system string
	out    string
	err    error
}

func (f *fakePrompter) GenerateEditingPrompt(ctx context.Context, image []byte, markers []domain.Marker, system string) (string, error) {
	f.calls++
	f.system = system
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

type fakeEditor struct {
	calls  int
	prompt string
	out    []byte
	err    error
	block  bool
}

func (f *fakeEditor) EditImage(ctx context.Context, image []byte, prompt string) ([]byte, error) {
	f.calls++
	f.prompt = prompt
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeSafety struct {
	calls int
	safe  bool
	err   error
}

func (f *fakeSafety) CheckContentSafety(ctx context.Context, image []byte) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.safe, nil
}

func newTestUseCase(prompter *fakePrompter, editor *fakeEditor, safety *fakeSafety) *EditImageUseCase {
	return NewEditImageUseCase(fakeConverter{}, prompter, editor, safety, nil, EditConfig{
		ModelID:           "test-model",
		EstimatedDuration: time.Second,
	})
}

func annotated(data []byte, strokes int, instructions string) domain.AnnotatedImage {
	img := domain.AnnotatedImage{
		Image:        domain.BytesPayload(data),
		Instructions: instructions,
	}
	for i := 0; i < strokes; i++ {
		img.Strokes = append(img.Strokes, domain.AnnotationStroke{
			Points: []domain.AnnotationPoint{{X: 0.5, Y: 0.5}},
		})
	}
	return img
}

func TestEditImageRejectsEmptyImageWithoutRemoteCalls(t *testing.T) {
	prompter := &fakePrompter{}
	editor := &fakeEditor{}
	safety := &fakeSafety{}
	uc := newTestUseCase(prompter, editor, safety)

	_, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated(nil, 1, ""),
	})

	fault := domain.Classify(err)
	if fault.Kind != domain.FaultValidation {
		t.Fatalf("kind = %s, want %s", fault.Kind, domain.FaultValidation)
	}
	if prompter.calls != 0 || editor.calls != 0 || safety.calls != 0 {
		t.Fatalf("remote calls = %d/%d/%d, want none", prompter.calls, editor.calls, safety.calls)
	}
}

func TestEditImageRejectsBlankInstructionsWithoutStrokes(t *testing.T) {
	prompter := &fakePrompter{}
	editor := &fakeEditor{}
	uc := newTestUseCase(prompter, editor, &fakeSafety{})

	_, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated([]byte("img"), 0, "   "),
	})

	if domain.Classify(err).Kind != domain.FaultValidation {
		t.Fatalf("expected validation fault, got %v", err)
	}
	if prompter.calls != 0 || editor.calls != 0 {
		t.Fatal("remote capabilities must not be called on validation failure")
	}
}

func TestEditImageRejectsOversizedImage(t *testing.T) {
	editor := &fakeEditor{out: []byte("x")}
	uc := NewEditImageUseCase(fakeConverter{}, &fakePrompter{}, editor, &fakeSafety{}, nil, EditConfig{
		MaxImageBytes: 4,
	})

	_, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated([]byte("12345"), 1, ""),
	})

	if domain.Classify(err).Kind != domain.FaultValidation {
		t.Fatalf("expected validation fault, got %v", err)
	}
	if editor.calls != 0 {
		t.Fatal("edit capability must not be called for oversized input")
	}
}

func TestEditImageSkipsAnalyzeWithoutMarkers(t *testing.T) {
	prompter := &fakePrompter{out: "should not be used"}
	editor := &fakeEditor{out: []byte("edited")}
	uc := newTestUseCase(prompter, editor, &fakeSafety{})

	result, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated([]byte{1, 2, 3, 4, 5}, 0, "remove the lamp post"),
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}

	if prompter.calls != 0 {
		t.Fatalf("analyze calls = %d, want 0", prompter.calls)
	}
	if editor.prompt != "remove the lamp post" {
		t.Fatalf("final prompt = %q, want verbatim instructions", editor.prompt)
	}
	if result.OriginalPrompt != "remove the lamp post" || result.EnhancedPrompt != "" {
		t.Fatalf("prompts = %q/%q, want verbatim/empty", result.OriginalPrompt, result.EnhancedPrompt)
	}
}

func TestEditImageRunsAnalyzeThenEdit(t *testing.T) {
	prompter := &fakePrompter{out: "erase the two birds near the roof line"}
	editor := &fakeEditor{out: []byte("edited-bytes")}
	uc := newTestUseCase(prompter, editor, &fakeSafety{})

	result, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated([]byte("image-data"), 2, "remove trees"),
		Context: domain.ProcessingContext{
			Type:    domain.ProcessingObjectRemoval,
			Quality: domain.QualityHigh,
		},
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}

	if prompter.calls != 1 {
		t.Fatalf("analyze calls = %d, want 1", prompter.calls)
	}
	if prompter.system != defaultAnalyzePrompt {
		t.Fatalf("analyze system prompt = %q, want configured default", prompter.system)
	}
	wantFinal := defaultEditPrompt + "\n\n" + prompter.out
	if editor.prompt != wantFinal {
		t.Fatalf("final prompt = %q, want %q", editor.prompt, wantFinal)
	}
	if result.EnhancedPrompt != prompter.out {
		t.Fatalf("enhanced prompt = %q, want %q", result.EnhancedPrompt, prompter.out)
	}
	if string(result.ProcessedImage) != "edited-bytes" {
		t.Fatalf("processed image = %q", result.ProcessedImage)
	}
	if result.Metadata["marker_count"] != "2" {
		t.Fatalf("marker_count = %q, want 2", result.Metadata["marker_count"])
	}
	if result.Metadata["quality"] != string(domain.QualityHigh) {
		t.Fatalf("quality = %q", result.Metadata["quality"])
	}
	if result.JobID == "" {
		t.Fatal("job id must be generated")
	}
}

func TestEditImageUsesSystemPromptOverrides(t *testing.T) {
	prompter := &fakePrompter{out: "enhanced"}
	editor := &fakeEditor{out: []byte("x")}
	uc := newTestUseCase(prompter, editor, &fakeSafety{})

	_, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated([]byte("image"), 1, ""),
		Context: domain.ProcessingContext{
			AnalyzeSystemPrompt: "custom analyze",
			EditSystemPrompt:    "custom edit",
		},
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}

	if prompter.system != "custom analyze" {
		t.Fatalf("analyze system = %q, want override", prompter.system)
	}
	if !strings.HasPrefix(editor.prompt, "custom edit\n\n") {
		t.Fatalf("final prompt = %q, want override prefix", editor.prompt)
	}
}

func TestEditImageClassifiesRateLimitAsRetryableQuota(t *testing.T) {
	editor := &fakeEditor{err: errors.New("rate limit exceeded for model")}
	uc := newTestUseCase(&fakePrompter{out: "enhanced"}, editor, &fakeSafety{})

	_, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated([]byte("image"), 1, ""),
	})

	fault := domain.Classify(err)
	if fault.Kind != domain.FaultQuota {
		t.Fatalf("kind = %s, want %s", fault.Kind, domain.FaultQuota)
	}
	if !fault.Retryable() {
		t.Fatal("quota fault must be retryable")
	}
}

func TestEditImageCancelAbortsInFlightRun(t *testing.T) {
	editor := &fakeEditor{block: true}
	uc := newTestUseCase(&fakePrompter{out: "enhanced"}, editor, &fakeSafety{})

	done := make(chan error, 1)
	go func() {
		_, err := uc.EditImage(context.Background(), domain.EditRequest{
			JobID: "job-cancel",
			Image: annotated([]byte("image"), 1, ""),
		})
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for !uc.Cancel("job-cancel") {
		select {
		case <-deadline:
			t.Fatal("run never became cancelable")
		case <-time.After(time.Millisecond):
		}
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled in chain, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}

func TestCancelUnknownJobIsNoOp(t *testing.T) {
	uc := newTestUseCase(&fakePrompter{}, &fakeEditor{}, &fakeSafety{})
	if uc.Cancel("missing") {
		t.Fatal("unknown job must report nothing canceled")
	}
}

func TestWatchStreamsStageTransitions(t *testing.T) {
	editor := &fakeEditor{out: []byte("x")}
	uc := newTestUseCase(&fakePrompter{out: "enhanced"}, editor, &fakeSafety{})

	updates, stop := uc.Watch("job-watch")
	defer stop()

	_, err := uc.EditImage(context.Background(), domain.EditRequest{
		JobID: "job-watch",
		Image: annotated([]byte("image"), 1, ""),
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}

	var stages []domain.ProcessingStage
	lastFraction := -1.0
	for p := range updates {
		stages = append(stages, p.Stage)
		if p.Fraction < lastFraction {
			t.Fatalf("fraction regressed: %v after %v", p.Fraction, lastFraction)
		}
		lastFraction = p.Fraction
	}

	want := []domain.ProcessingStage{
		domain.StageValidating,
		domain.StageAnalyzing,
		domain.StageAIProcessing,
		domain.StageFinalizing,
		domain.StageCompleted,
	}
	if len(stages) != len(want) {
		t.Fatalf("stage count = %d (%v), want %d", len(stages), stages, len(want))
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stage[%d] = %s, want %s", i, stages[i], want[i])
		}
	}
}

func TestServiceAvailable(t *testing.T) {
	safety := &fakeSafety{safe: true}
	uc := newTestUseCase(&fakePrompter{}, &fakeEditor{}, safety)
	if !uc.ServiceAvailable(context.Background()) {
		t.Fatal("expected available")
	}

	safety.err = errors.New("connection refused")
	if uc.ServiceAvailable(context.Background()) {
		t.Fatal("expected unavailable on probe failure")
	}
}

func TestCheckImageSafetySurfacesCallFailure(t *testing.T) {
	safety := &fakeSafety{err: errors.New("timeout while contacting service")}
	uc := newTestUseCase(&fakePrompter{}, &fakeEditor{}, safety)

	_, err := uc.CheckImageSafety(context.Background(), domain.BytesPayload([]byte("img")))
	if err == nil {
		t.Fatal("expected error from failed safety call")
	}

	safety.err = nil
	safety.safe = false
	safe, err := uc.CheckImageSafety(context.Background(), domain.BytesPayload([]byte("img")))
	if err != nil {
		t.Fatalf("CheckImageSafety() error = %v", err)
	}
	if safe {
		t.Fatal("expected unsafe verdict to pass through")
	}
}

type fakeEncoder struct {
	calls int
	out   []byte
	err   error
}

func (f *fakeEncoder) EncodeResult(edited []byte, pctx domain.ProcessingContext) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return edited, nil
}

func TestEditImagePackagesResultThroughEncoder(t *testing.T) {
	encoder := &fakeEncoder{out: []byte("packed")}
	uc := NewEditImageUseCase(fakeConverter{}, &fakePrompter{out: "enhanced"}, &fakeEditor{out: []byte("raw")}, &fakeSafety{}, encoder, EditConfig{})

	result, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated([]byte("image"), 1, ""),
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}
	if string(result.ProcessedImage) != "packed" {
		t.Fatalf("ProcessedImage = %q, want packaged output", result.ProcessedImage)
	}
	if encoder.calls != 1 {
		t.Fatalf("encoder calls = %d, want 1", encoder.calls)
	}
}

func TestEditImageKeepsRawOutputWhenPackagingFails(t *testing.T) {
	encoder := &fakeEncoder{err: errors.New("unsupported image format")}
	uc := NewEditImageUseCase(fakeConverter{}, &fakePrompter{out: "enhanced"}, &fakeEditor{out: []byte("raw")}, &fakeSafety{}, encoder, EditConfig{})

	result, err := uc.EditImage(context.Background(), domain.EditRequest{
		Image: annotated([]byte("image"), 1, ""),
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}
	if string(result.ProcessedImage) != "raw" {
		t.Fatalf("ProcessedImage = %q, want raw model output", result.ProcessedImage)
	}
}
