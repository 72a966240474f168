package domain

import "time"

type ProcessingType string

const (
	ProcessingObjectRemoval     ProcessingType = "object_removal"
	ProcessingBackgroundCleanup ProcessingType = "background_cleanup"
	ProcessingEnhance           ProcessingType = "enhance"
)

type QualityLevel string

const (
	QualityDraft    QualityLevel = "draft"
	QualityStandard QualityLevel = "standard"
	QualityHigh     QualityLevel = "high"
)

type PerformancePriority string

const (
	PrioritySpeed    PerformancePriority = "speed"
	PriorityBalanced PerformancePriority = "balanced"
	PriorityQuality  PerformancePriority = "quality"
)

// ProcessingContext is the per-request configuration value object.
// Empty prompt overrides fall back to the configured stage defaults.
type ProcessingContext struct {
	Type                ProcessingType      `json:"type"`
	Quality             QualityLevel        `json:"quality"`
	Priority            PerformancePriority `json:"priority"`
	AnalyzeSystemPrompt string              `json:"analyze_system_prompt,omitempty"`
	EditSystemPrompt    string              `json:"edit_system_prompt,omitempty"`
}

// Normalize returns a copy with unset enum fields replaced by defaults.
func (c ProcessingContext) Normalize() ProcessingContext {
	if c.Type == "" {
		c.Type = ProcessingObjectRemoval
	}
	if c.Quality == "" {
		c.Quality = QualityStandard
	}
	if c.Priority == "" {
		c.Priority = PriorityBalanced
	}
	return c
}

// EditRequest is one pipeline invocation. JobID may be pre-assigned by
// a queueing layer; when empty the orchestrator generates one.
type EditRequest struct {
	JobID   string            `json:"job_id,omitempty"`
	Image   AnnotatedImage    `json:"image"`
	Context ProcessingContext `json:"context"`
}

// ProcessingResult is built once per successful pipeline run and is
// read-only afterward.
type ProcessingResult struct {
	ProcessedImage []byte            `json:"-"`
	OriginalPrompt string            `json:"original_prompt"`
	EnhancedPrompt string            `json:"enhanced_prompt,omitempty"`
	ProcessingTime time.Duration     `json:"processing_time"`
	JobID          string            `json:"job_id"`
	ImageAnalysis  string            `json:"image_analysis,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type ProcessingStage string

const (
	StageValidating   ProcessingStage = "validating"
	StageAnalyzing    ProcessingStage = "analyzing"
	StageAIProcessing ProcessingStage = "ai_processing"
	StageFinalizing   ProcessingStage = "finalizing"
	StageCompleted    ProcessingStage = "completed"
	StageFailed       ProcessingStage = "failed"
)

// ProcessingProgress is one update on a per-job progress stream.
// Ephemeral, never persisted.
type ProcessingProgress struct {
	Fraction float64         `json:"fraction"`
	Stage    ProcessingStage `json:"stage"`
	Message  string          `json:"message,omitempty"`
	ETA      time.Duration   `json:"eta,omitempty"`
}
