package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/core/ports"
)

// jobEnvelope is the queued request body stored next to the source
// image so the worker can rebuild the pipeline input.
type jobEnvelope struct {
	Strokes      []domain.AnnotationStroke `json:"strokes,omitempty"`
	Instructions string                    `json:"instructions,omitempty"`
	Context      domain.ProcessingContext  `json:"context"`
}

func sourceKey(jobID string) string  { return fmt.Sprintf("jobs/%s/source", jobID) }
func requestKey(jobID string) string { return fmt.Sprintf("jobs/%s/request.json", jobID) }
func resultKey(jobID string) string  { return fmt.Sprintf("jobs/%s/result", jobID) }
func maskKey(jobID string) string    { return fmt.Sprintf("jobs/%s/mask.png", jobID) }

// SubmitEditUseCase queues an edit: persist the payload and request,
// create the job row, publish the work event.
type SubmitEditUseCase struct {
	repo          ports.JobRepository
	store         ports.ImageStore
	queue         ports.MessageQueue
	quota         ports.QuotaGuard
	maxImageBytes int64
}

func NewSubmitEditUseCase(
	repo ports.JobRepository,
	store ports.ImageStore,
	queue ports.MessageQueue,
	quota ports.QuotaGuard,
	maxImageBytes int64,
) *SubmitEditUseCase {
	if maxImageBytes <= 0 {
		maxImageBytes = 10 << 20
	}
	return &SubmitEditUseCase{
		repo:          repo,
		store:         store,
		queue:         queue,
		quota:         quota,
		maxImageBytes: maxImageBytes,
	}
}

func (uc *SubmitEditUseCase) Submit(
	ctx context.Context,
	userID string,
	img domain.AnnotatedImage,
	pctx domain.ProcessingContext,
) (*domain.EditJob, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewFault(domain.FaultValidation, "user id is required")
	}
	if uc.quota != nil && !uc.quota.Allow(userID) {
		return nil, domain.NewFault(domain.FaultQuota, "submission limit reached, try again later")
	}

	data, err := uc.payloadBytes(img)
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	pctx = pctx.Normalize()
	now := time.Now().UTC()

	if err := uc.store.Save(ctx, sourceKey(jobID), bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save source image: %w", err)
	}
	envelope, err := json.Marshal(jobEnvelope{
		Strokes:      img.Strokes,
		Instructions: img.Instructions,
		Context:      pctx,
	})
	if err != nil {
		return nil, fmt.Errorf("encode job request: %w", err)
	}
	if err := uc.store.Save(ctx, requestKey(jobID), bytes.NewReader(envelope)); err != nil {
		return nil, fmt.Errorf("save job request: %w", err)
	}

	job := &domain.EditJob{
		ID:       jobID,
		UserID:   userID,
		ImageKey: sourceKey(jobID),
		Type:     pctx.Type,
		Status:   domain.JobQueued,
		Prompt:   strings.TrimSpace(img.Instructions),
		Metadata: map[string]string{
			"quality":      string(pctx.Quality),
			"priority":     string(pctx.Priority),
			"stroke_count": fmt.Sprint(len(img.Strokes)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	if err := uc.queue.PublishEditRequested(ctx, jobID); err != nil {
		return nil, fmt.Errorf("publish edit request: %w", err)
	}
	uc.announce(ctx, job)

	return job, nil
}

// payloadBytes resolves and locally validates the image before anything
// is persisted or queued.
func (uc *SubmitEditUseCase) payloadBytes(img domain.AnnotatedImage) ([]byte, error) {
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
	if int64(len(data)) > uc.maxImageBytes {
		return nil, domain.NewFault(domain.FaultValidation,
			fmt.Sprintf("image is %d bytes, limit is %d", len(data), uc.maxImageBytes))
	}
	if len(img.Strokes) == 0 && strings.TrimSpace(img.Instructions) == "" {
		return nil, domain.NewFault(domain.FaultValidation, "nothing to remove: no marks and no instructions")
	}
	return data, nil
}

// announce publishes the queued lifecycle event. Watchers are
// best-effort; a publish failure does not undo the submission.
func (uc *SubmitEditUseCase) announce(ctx context.Context, job *domain.EditJob) {
	_ = uc.queue.PublishJobEvent(ctx, domain.JobEvent{
		JobID:  job.ID,
		UserID: job.UserID,
		Status: domain.JobQueued,
		At:     job.CreatedAt,
	})
}
