package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/infrastructure/render"
	"github.com/retouchlab/eraser/internal/infrastructure/resilience"
)

type Config struct {
	APIKey          string
	AnalyzeModel    string
	EditModel       string
	SafetyModel     string
	Temperature     float32
	TopK            int32
	TopP            float32
	MaxOutputTokens int32
	Executor        *resilience.Executor
}

// Client shares one Gemini connection across the analyze, edit and
// safety capabilities.
type Client struct {
	genai *genai.Client
	cfg   Config
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{genai: client, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.genai.Close()
}

func (c *Client) model(name, system string) *genai.GenerativeModel {
	m := c.genai.GenerativeModel(name)
	if c.cfg.Temperature > 0 {
		m.SetTemperature(c.cfg.Temperature)
	}
	if c.cfg.TopK > 0 {
		m.SetTopK(c.cfg.TopK)
	}
	if c.cfg.TopP > 0 {
		m.SetTopP(c.cfg.TopP)
	}
	if c.cfg.MaxOutputTokens > 0 {
		m.SetMaxOutputTokens(c.cfg.MaxOutputTokens)
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return m
}

func (c *Client) generate(ctx context.Context, capability, modelName, system string, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	call := func(callCtx context.Context) error {
		out, err := c.model(modelName, system).GenerateContent(callCtx, parts...)
		if err != nil {
			return err
		}
		resp = out
		return nil
	}

	var err error
	if c.cfg.Executor != nil {
		err = c.cfg.Executor.Execute(ctx, capability, call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// blockedFault reports a prompt-level refusal as a validation fault so
// the caller never retries it.
func blockedFault(resp *genai.GenerateContentResponse) *domain.Fault {
	if resp == nil || resp.PromptFeedback == nil {
		return nil
	}
	if resp.PromptFeedback.BlockReason == genai.BlockReasonUnspecified {
		return nil
	}
	return domain.NewFault(domain.FaultValidation, "request blocked by the model's safety system")
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func responseImage(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
				return blob.Data
			}
		}
	}
	return nil
}

// Analyzer turns a photo plus marked spots into an enhanced editing
// instruction.
type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

func (a *Analyzer) GenerateEditingPrompt(ctx context.Context, image []byte, markers []domain.Marker, system string) (string, error) {
	format, err := render.DetectFormat(image)
	if err != nil {
		return "", err
	}

	resp, err := a.client.generate(ctx, "gemini.analyze", a.client.cfg.AnalyzeModel, system,
		genai.Text(buildAnalyzePrompt(markers)),
		genai.ImageData(format.String(), image),
	)
	if err != nil {
		return "", fmt.Errorf("gemini analyze: %w", err)
	}
	if f := blockedFault(resp); f != nil {
		return "", f
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini analyze: empty response")
	}
	return text, nil
}

// Editor runs the image edit itself and returns the edited payload.
type Editor struct {
	client *Client
}

func NewEditor(client *Client) *Editor {
	return &Editor{client: client}
}

func (e *Editor) EditImage(ctx context.Context, image []byte, prompt string) ([]byte, error) {
	format, err := render.DetectFormat(image)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.generate(ctx, "gemini.edit", e.client.cfg.EditModel, "",
		genai.Text(prompt),
		genai.ImageData(format.String(), image),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini edit: %w", err)
	}
	if f := blockedFault(resp); f != nil {
		return nil, f
	}
	out := responseImage(resp)
	if len(out) == 0 {
		return nil, fmt.Errorf("gemini edit: response carried no image data")
	}
	return out, nil
}

// Safety screens a photo before any editing happens. An error means the
// verdict is unknown, not that the photo is unsafe.
type Safety struct {
	client *Client
}

func NewSafety(client *Client) *Safety {
	return &Safety{client: client}
}

func (s *Safety) CheckContentSafety(ctx context.Context, image []byte) (bool, error) {
	format, err := render.DetectFormat(image)
	if err != nil {
		return false, err
	}

	resp, err := s.client.generate(ctx, "gemini.safety", s.client.cfg.SafetyModel, safetySystemPrompt,
		genai.Text(safetyUserPrompt),
		genai.ImageData(format.String(), image),
	)
	if err != nil {
		return false, fmt.Errorf("gemini safety: %w", err)
	}
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return false, nil
	}
	return parseSafetyVerdict(responseText(resp))
}
