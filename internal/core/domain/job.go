package domain

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// EditJob is the persisted record of one pipeline invocation and its outcome.
type EditJob struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	ImageKey         string            `json:"image_key"`
	ResultKey        string            `json:"result_key,omitempty"`
	Type             ProcessingType    `json:"type"`
	Status           JobStatus         `json:"status"`
	Prompt           string            `json:"prompt,omitempty"`
	EnhancedPrompt   string            `json:"enhanced_prompt,omitempty"`
	Error            string            `json:"error,omitempty"`
	ProcessingMillis int64             `json:"processing_millis,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// JobEvent is one observable transition of a job, published so clients
// can watch a single job or every job of a user in real time. Progress
// fields are only set while the job is running.
type JobEvent struct {
	JobID    string          `json:"job_id"`
	UserID   string          `json:"user_id"`
	Status   JobStatus       `json:"status"`
	Stage    ProcessingStage `json:"stage,omitempty"`
	Fraction float64         `json:"fraction,omitempty"`
	Message  string          `json:"message,omitempty"`
	At       time.Time       `json:"at"`
}
