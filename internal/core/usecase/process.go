package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/core/ports"
)

// ProcessEditUseCase executes one queued job end to end: load the
// stored request, run the pipeline, persist the result, and publish
// lifecycle events so watchers see every transition.
type ProcessEditUseCase struct {
	repo   ports.JobRepository
	store  ports.ImageStore
	queue  ports.MessageQueue
	editor ports.ImageEditor
	masks  ports.MaskRenderer
}

func NewProcessEditUseCase(
	repo ports.JobRepository,
	store ports.ImageStore,
	queue ports.MessageQueue,
	editor ports.ImageEditor,
	masks ports.MaskRenderer,
) *ProcessEditUseCase {
	return &ProcessEditUseCase{
		repo:   repo,
		store:  store,
		queue:  queue,
		editor: editor,
		masks:  masks,
	}
}

func (uc *ProcessEditUseCase) ProcessByID(ctx context.Context, jobID string) error {
	job, err := uc.repo.GetByJobID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch job by id: %w", err)
	}

	img, pctx, err := uc.loadRequest(ctx, job)
	if err != nil {
		return uc.markFailed(ctx, job, err)
	}

	if err := uc.repo.MarkRunning(ctx, jobID); err != nil {
		return fmt.Errorf("set status=running: %w", err)
	}
	uc.publishEvent(ctx, job, domain.JobRunning, domain.ProcessingProgress{Stage: domain.StageValidating})

	result, err := uc.runPipeline(ctx, job, img, pctx)
	if err != nil {
		return uc.markFailed(ctx, job, err)
	}

	if err := uc.store.Save(ctx, resultKey(jobID), bytes.NewReader(result.ProcessedImage)); err != nil {
		return uc.markFailed(ctx, job, fmt.Errorf("save result image: %w", err))
	}
	uc.saveAuditMask(ctx, jobID, img)

	millis := result.ProcessingTime.Milliseconds()
	if err := uc.repo.MarkSucceeded(ctx, jobID, resultKey(jobID), result.EnhancedPrompt, millis); err != nil {
		return fmt.Errorf("set status=succeeded: %w", err)
	}
	uc.publishEvent(ctx, job, domain.JobSucceeded, domain.ProcessingProgress{
		Stage:    domain.StageCompleted,
		Fraction: 1,
	})

	return nil
}

// loadRequest rebuilds the pipeline input from the stored source image
// and request envelope.
func (uc *ProcessEditUseCase) loadRequest(ctx context.Context, job *domain.EditJob) (domain.AnnotatedImage, domain.ProcessingContext, error) {
	payload, err := uc.readStored(ctx, job.ImageKey)
	if err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, fmt.Errorf("load source image: %w", err)
	}

	raw, err := uc.readStored(ctx, requestKey(job.ID))
	if err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, fmt.Errorf("load job request: %w", err)
	}
	var envelope jobEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.AnnotatedImage{}, domain.ProcessingContext{}, fmt.Errorf("decode job request: %w", err)
	}

	img := domain.AnnotatedImage{
		Image:        domain.BytesPayload(payload),
		Strokes:      envelope.Strokes,
		Instructions: envelope.Instructions,
		CreatedAt:    job.CreatedAt,
	}
	return img, envelope.Context, nil
}

func (uc *ProcessEditUseCase) readStored(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// runPipeline forwards live progress to the queue while the edit runs,
// then waits for the forwarder so terminal events stay ordered.
func (uc *ProcessEditUseCase) runPipeline(
	ctx context.Context,
	job *domain.EditJob,
	img domain.AnnotatedImage,
	pctx domain.ProcessingContext,
) (*domain.ProcessingResult, error) {
	updates, stop := uc.editor.Watch(job.ID)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for p := range updates {
			// terminal stages are announced once, after persistence
			if p.Stage == domain.StageCompleted || p.Stage == domain.StageFailed {
				continue
			}
			uc.publishEvent(ctx, job, domain.JobRunning, p)
		}
	}()

	result, err := uc.editor.EditImage(ctx, domain.EditRequest{
		JobID:   job.ID,
		Image:   img,
		Context: pctx,
	})
	wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("run edit pipeline: %w", err)
	}
	return result, nil
}

// saveAuditMask stores the rendered stroke mask beside the result so
// reviewers can see what was marked. Audit artifacts are best-effort
// and never fail the job.
func (uc *ProcessEditUseCase) saveAuditMask(ctx context.Context, jobID string, img domain.AnnotatedImage) {
	if uc.masks == nil || len(img.Strokes) == 0 {
		return
	}
	mask, err := uc.masks.RenderMask(img)
	if err != nil || len(mask) == 0 {
		return
	}
	_ = uc.store.Save(ctx, maskKey(jobID), bytes.NewReader(mask))
}

func (uc *ProcessEditUseCase) markFailed(ctx context.Context, job *domain.EditJob, processErr error) error {
	fault := domain.Classify(processErr)
	if err := uc.repo.MarkFailed(ctx, job.ID, fault.Message); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, err)
	}
	uc.publishEvent(ctx, job, domain.JobFailed, domain.ProcessingProgress{
		Stage:   domain.StageFailed,
		Message: fault.Message,
	})
	return processErr
}

func (uc *ProcessEditUseCase) publishEvent(ctx context.Context, job *domain.EditJob, status domain.JobStatus, p domain.ProcessingProgress) {
	_ = uc.queue.PublishJobEvent(ctx, domain.JobEvent{
		JobID:    job.ID,
		UserID:   job.UserID,
		Status:   status,
		Stage:    p.Stage,
		Fraction: p.Fraction,
		Message:  p.Message,
		At:       time.Now().UTC(),
	})
}
