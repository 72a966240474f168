package ports

import (
	"context"
	"io"

	"github.com/retouchlab/eraser/internal/core/domain"
)

// MarkerConverter reduces strokes to normalized markers and builds the
// removal prompt sent to the model.
type MarkerConverter interface {
	ToMarkers(img domain.AnnotatedImage) []domain.Marker
	RemovalPrompt(img domain.AnnotatedImage, base string) string
}

// PromptGenerator is the remote analyze capability: image plus markers
// in, enhanced editing prompt out. The system text carries the resolved
// stage instructions (caller override or configured default).
type PromptGenerator interface {
	GenerateEditingPrompt(ctx context.Context, image []byte, markers []domain.Marker, system string) (string, error)
}

// ImageGenerator is the remote generate/edit capability.
type ImageGenerator interface {
	EditImage(ctx context.Context, image []byte, prompt string) ([]byte, error)
}

// SafetyChecker is the remote content-safety capability. An error means
// the check could not run, not that the image is unsafe.
type SafetyChecker interface {
	CheckContentSafety(ctx context.Context, image []byte) (bool, error)
}

// ResultEncoder maps the requested quality level onto codec settings
// for the finished image. Implementations may return the input
// unchanged when no mapping applies.
type ResultEncoder interface {
	EncodeResult(edited []byte, pctx domain.ProcessingContext) ([]byte, error)
}

// MaskRenderer rasterizes the stroke annotations into a removal mask
// stored beside results for audit.
type MaskRenderer interface {
	RenderMask(img domain.AnnotatedImage) ([]byte, error)
}

// JobRepository persists and reads edit-job state.
type JobRepository interface {
	Create(ctx context.Context, job *domain.EditJob) error
	GetByID(ctx context.Context, userID, jobID string) (*domain.EditJob, error)
	GetByJobID(ctx context.Context, jobID string) (*domain.EditJob, error)
	ListByUser(ctx context.Context, userID string) ([]domain.EditJob, error)
	MarkRunning(ctx context.Context, jobID string) error
	MarkSucceeded(ctx context.Context, jobID, resultKey, enhancedPrompt string, processingMillis int64) error
	MarkFailed(ctx context.Context, jobID, errMessage string) error
}

// ImageStore stores source payloads and edited results.
type ImageStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes edit-job events.
type MessageQueue interface {
	PublishEditRequested(ctx context.Context, jobID string) error
	SubscribeEditRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishJobEvent(ctx context.Context, event domain.JobEvent) error
	// SubscribeJobEvents delivers lifecycle events for one job
	// (jobID set) or for every job of a user (jobID empty). The
	// returned function stops the subscription.
	SubscribeJobEvents(ctx context.Context, userID, jobID string, handler func(context.Context, domain.JobEvent)) (func(), error)
}

// QuotaGuard applies process-wide submission limits.
type QuotaGuard interface {
	Allow(userID string) bool
}
