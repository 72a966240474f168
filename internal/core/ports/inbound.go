package ports

import (
	"context"
	"io"

	"github.com/retouchlab/eraser/internal/core/domain"
)

// ImageEditor is the inbound contract for the analyze-then-edit pipeline.
type ImageEditor interface {
	EditImage(ctx context.Context, req domain.EditRequest) (*domain.ProcessingResult, error)
	// Cancel aborts the in-flight run for jobID. Unknown or already
	// finished jobs are a successful no-op.
	Cancel(jobID string) bool
	// Watch streams progress for jobID until the run finishes or the
	// returned stop function is called.
	Watch(jobID string) (<-chan domain.ProcessingProgress, func())
	ServiceAvailable(ctx context.Context) bool
	CheckImageSafety(ctx context.Context, image domain.ImagePayload) (bool, error)
}

// JobSubmitter is the inbound contract for queueing an edit job.
type JobSubmitter interface {
	Submit(ctx context.Context, userID string, img domain.AnnotatedImage, pctx domain.ProcessingContext) (*domain.EditJob, error)
}

// JobReader is the inbound read model for job state and results.
type JobReader interface {
	GetJob(ctx context.Context, userID, jobID string) (*domain.EditJob, error)
	ListJobs(ctx context.Context, userID string) ([]domain.EditJob, error)
	OpenResult(ctx context.Context, userID, jobID string) (io.ReadCloser, error)
}

// JobProcessor is the inbound contract for asynchronous job execution.
type JobProcessor interface {
	ProcessByID(ctx context.Context, jobID string) error
}
