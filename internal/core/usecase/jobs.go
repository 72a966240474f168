package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/core/ports"
)

// JobQueryUseCase is the read model over persisted jobs and results.
type JobQueryUseCase struct {
	repo  ports.JobRepository
	store ports.ImageStore
}

func NewJobQueryUseCase(repo ports.JobRepository, store ports.ImageStore) *JobQueryUseCase {
	return &JobQueryUseCase{repo: repo, store: store}
}

func (uc *JobQueryUseCase) GetJob(ctx context.Context, userID, jobID string) (*domain.EditJob, error) {
	job, err := uc.repo.GetByID(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job: %w", err)
	}
	return job, nil
}

func (uc *JobQueryUseCase) ListJobs(ctx context.Context, userID string) ([]domain.EditJob, error) {
	jobs, err := uc.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// OpenResult streams the edited image of a finished job. Jobs without a
// stored result read as not found.
func (uc *JobQueryUseCase) OpenResult(ctx context.Context, userID, jobID string) (io.ReadCloser, error) {
	job, err := uc.repo.GetByID(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job: %w", err)
	}
	if job.Status != domain.JobSucceeded || job.ResultKey == "" {
		return nil, domain.WrapError(domain.ErrJobNotFound, "open result", errors.New("result not available"))
	}
	rc, err := uc.store.Open(ctx, job.ResultKey)
	if err != nil {
		return nil, fmt.Errorf("open result image: %w", err)
	}
	return rc, nil
}
