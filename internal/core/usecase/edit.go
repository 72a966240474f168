package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/core/ports"
)

const (
	defaultAnalyzePrompt = "You are a photo retouching assistant. Look at the image and the marked positions, identify the objects under the marks, and write one concise instruction for removing them and rebuilding the background behind them."
	defaultEditPrompt    = "Edit the photo exactly as instructed. Remove only the listed objects, keep everything else unchanged, and render a photorealistic result."
)

// EditConfig carries the orchestration knobs resolved from configuration.
type EditConfig struct {
	ModelID           string
	MaxImageBytes     int64
	AnalyzePrompt     string
	EditPrompt        string
	EstimatedDuration time.Duration
}

func (c EditConfig) normalize() EditConfig {
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 10 << 20
	}
	if c.EstimatedDuration <= 0 {
		c.EstimatedDuration = 45 * time.Second
	}
	if strings.TrimSpace(c.AnalyzePrompt) == "" {
		c.AnalyzePrompt = defaultAnalyzePrompt
	}
	if strings.TrimSpace(c.EditPrompt) == "" {
		c.EditPrompt = defaultEditPrompt
	}
	return c
}

// EditImageUseCase drives one request through the analyze-then-edit
// pipeline: validate input, derive markers, obtain an enhanced prompt
// when marks exist, apply the edit, assemble the result. It never
// re-runs a failed pipeline; retry is the caller's decision via the
// fault taxonomy.
type EditImageUseCase struct {
	converter ports.MarkerConverter
	prompts   ports.PromptGenerator
	editor    ports.ImageGenerator
	safety    ports.SafetyChecker
	encoder   ports.ResultEncoder
	cfg       EditConfig

	progress *progressBroker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewEditImageUseCase(
	converter ports.MarkerConverter,
	prompts ports.PromptGenerator,
	editor ports.ImageGenerator,
	safety ports.SafetyChecker,
	encoder ports.ResultEncoder,
	cfg EditConfig,
) *EditImageUseCase {
	return &EditImageUseCase{
		converter: converter,
		prompts:   prompts,
		editor:    editor,
		safety:    safety,
		encoder:   encoder,
		cfg:       cfg.normalize(),
		progress:  newProgressBroker(),
		cancels:   make(map[string]context.CancelFunc),
	}
}

func (uc *EditImageUseCase) EditImage(ctx context.Context, req domain.EditRequest) (*domain.ProcessingResult, error) {
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	pctx := req.Context.Normalize()

	runCtx, cancel := context.WithCancel(ctx)
	uc.track(jobID, cancel)
	defer uc.finish(jobID, cancel)

	started := time.Now()
	uc.report(jobID, 0.05, domain.StageValidating, "validating input")

	image, err := uc.validate(req.Image)
	if err != nil {
		return nil, uc.fail(jobID, err)
	}
	markers := uc.converter.ToMarkers(req.Image)

	originalPrompt, enhancedPrompt, finalPrompt, err := uc.buildPrompts(runCtx, jobID, image, markers, req.Image, pctx)
	if err != nil {
		return nil, uc.fail(jobID, err)
	}

	uc.report(jobID, 0.55, domain.StageAIProcessing, "applying AI edit")
	edited, err := uc.editor.EditImage(runCtx, image, finalPrompt)
	if err != nil {
		return nil, uc.fail(jobID, fmt.Errorf("edit image: %w", err))
	}

	uc.report(jobID, 0.9, domain.StageFinalizing, "assembling result")
	edited = uc.packageResult(edited, pctx)
	result := &domain.ProcessingResult{
		ProcessedImage: edited,
		OriginalPrompt: originalPrompt,
		EnhancedPrompt: enhancedPrompt,
		ProcessingTime: time.Since(started),
		JobID:          jobID,
		ImageAnalysis:  enhancedPrompt,
		Metadata: map[string]string{
			"processing_type": string(pctx.Type),
			"quality":         string(pctx.Quality),
			"priority":        string(pctx.Priority),
			"marker_count":    strconv.Itoa(len(markers)),
			"model":           uc.cfg.ModelID,
			"completed_at":    time.Now().UTC().Format(time.RFC3339),
		},
	}

	uc.report(jobID, 1, domain.StageCompleted, "completed")
	return result, nil
}

// validate runs every local check before any remote capability is
// touched. Violations surface as validation faults.
func (uc *EditImageUseCase) validate(img domain.AnnotatedImage) ([]byte, error) {
	if img.Image.Empty() {
		return nil, domain.NewFault(domain.FaultValidation, "image data is empty")
	}
	data, err := img.Image.Bytes()
	if err != nil {
		return nil, domain.NewFault(domain.FaultValidation, fmt.Sprintf("image payload unreadable: %v", err))
	}
	if len(data) == 0 {
		return nil, domain.NewFault(domain.FaultValidation, "image data is empty")
	}
	if int64(len(data)) > uc.cfg.MaxImageBytes {
		return nil, domain.NewFault(domain.FaultValidation,
			fmt.Sprintf("image is %d bytes, limit is %d", len(data), uc.cfg.MaxImageBytes))
	}
	if len(img.Strokes) == 0 && strings.TrimSpace(img.Instructions) == "" {
		return nil, domain.NewFault(domain.FaultValidation, "nothing to remove: no marks and no instructions")
	}
	return data, nil
}

// packageResult applies the delivery encoding for the requested
// quality. A packaging failure never fails a completed edit; the raw
// model output ships instead.
func (uc *EditImageUseCase) packageResult(edited []byte, pctx domain.ProcessingContext) []byte {
	if uc.encoder == nil {
		return edited
	}
	packed, err := uc.encoder.EncodeResult(edited, pctx)
	if err != nil || len(packed) == 0 {
		return edited
	}
	return packed
}

// buildPrompts resolves the three prompt values of a run. With markers
// present the analyze capability is called; without markers the user
// instructions pass through verbatim and no remote call happens here.
func (uc *EditImageUseCase) buildPrompts(
	ctx context.Context,
	jobID string,
	image []byte,
	markers []domain.Marker,
	img domain.AnnotatedImage,
	pctx domain.ProcessingContext,
) (original, enhanced, final string, err error) {
	if len(markers) == 0 {
		original = strings.TrimSpace(img.Instructions)
		return original, "", original, nil
	}

	original = uc.converter.RemovalPrompt(img, "")

	uc.report(jobID, 0.25, domain.StageAnalyzing, "analyzing marked regions")
	system := pctx.AnalyzeSystemPrompt
	if strings.TrimSpace(system) == "" {
		system = uc.cfg.AnalyzePrompt
	}
	enhanced, err = uc.prompts.GenerateEditingPrompt(ctx, image, markers, system)
	if err != nil {
		return "", "", "", fmt.Errorf("generate editing prompt: %w", err)
	}

	editInstr := pctx.EditSystemPrompt
	if strings.TrimSpace(editInstr) == "" {
		editInstr = uc.cfg.EditPrompt
	}
	final = editInstr + "\n\n" + enhanced
	return original, enhanced, final, nil
}

// Cancel aborts the in-flight run for jobID. It reports whether a run
// was actually signaled; unknown or finished jobs are a no-op.
func (uc *EditImageUseCase) Cancel(jobID string) bool {
	uc.mu.Lock()
	cancel, ok := uc.cancels[jobID]
	uc.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Watch streams progress updates for jobID until the run finishes or
// the stop function is called.
func (uc *EditImageUseCase) Watch(jobID string) (<-chan domain.ProcessingProgress, func()) {
	return uc.progress.watch(jobID)
}

// ServiceAvailable probes the safety capability with a minimal payload.
// Any failure reads as unavailable.
func (uc *EditImageUseCase) ServiceAvailable(ctx context.Context) bool {
	_, err := uc.safety.CheckContentSafety(ctx, probeImage)
	return err == nil
}

// CheckImageSafety reports whether the image passes the provider's
// content policy. A failed call is an error, never "unsafe".
func (uc *EditImageUseCase) CheckImageSafety(ctx context.Context, image domain.ImagePayload) (bool, error) {
	data, err := image.Bytes()
	if err != nil {
		return false, fmt.Errorf("resolve image payload: %w", err)
	}
	if len(data) == 0 {
		return false, domain.NewFault(domain.FaultValidation, "image data is empty")
	}
	safe, err := uc.safety.CheckContentSafety(ctx, data)
	if err != nil {
		return false, fmt.Errorf("check content safety: %w", err)
	}
	return safe, nil
}

func (uc *EditImageUseCase) track(jobID string, cancel context.CancelFunc) {
	uc.mu.Lock()
	uc.cancels[jobID] = cancel
	uc.mu.Unlock()
}

func (uc *EditImageUseCase) finish(jobID string, cancel context.CancelFunc) {
	uc.mu.Lock()
	delete(uc.cancels, jobID)
	uc.mu.Unlock()
	cancel()
	uc.progress.finish(jobID)
}

func (uc *EditImageUseCase) report(jobID string, fraction float64, stage domain.ProcessingStage, message string) {
	uc.progress.publish(jobID, domain.ProcessingProgress{
		Fraction: fraction,
		Stage:    stage,
		Message:  message,
		ETA:      time.Duration((1 - fraction) * float64(uc.cfg.EstimatedDuration)),
	})
}

// fail classifies the step error, reports the terminal progress update,
// and returns the fault as the pipeline outcome.
func (uc *EditImageUseCase) fail(jobID string, err error) error {
	fault := domain.Classify(err)
	uc.progress.publish(jobID, domain.ProcessingProgress{
		Fraction: 1,
		Stage:    domain.StageFailed,
		Message:  fault.Message,
	})
	return fault
}

// probeImage is a 1x1 transparent PNG used by the availability check.
var probeImage = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}
