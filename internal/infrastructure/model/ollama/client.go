package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/infrastructure/render"
	"github.com/retouchlab/eraser/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL      string
	AnalyzeModel string
	SafetyModel  string
	Temperature  float64
	Timeout      time.Duration
	Executor     *resilience.Executor
}

// Client wraps a local Ollama daemon for the analyze and safety
// capabilities when no Gemini key is configured.
type Client struct {
	api *api.Client
	cfg Config
}

func New(cfg Config) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama url %q needs scheme and host", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		api: api.NewClient(base, &http.Client{Timeout: timeout}),
		cfg: cfg,
	}, nil
}

func (c *Client) chat(ctx context.Context, capability, model, system, user string, images []api.ImageData) (string, error) {
	messages := make([]api.Message, 0, 2)
	if system != "" {
		messages = append(messages, api.Message{Role: "system", Content: system})
	}
	messages = append(messages, api.Message{Role: "user", Content: user, Images: images})

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
	}
	if c.cfg.Temperature > 0 {
		req.Options = map[string]any{"temperature": c.cfg.Temperature}
	}

	var b strings.Builder
	call := func(callCtx context.Context) error {
		b.Reset()
		return c.api.Chat(callCtx, req, func(resp api.ChatResponse) error {
			b.WriteString(resp.Message.Content)
			return nil
		})
	}

	var err error
	if c.cfg.Executor != nil {
		err = c.cfg.Executor.Execute(ctx, capability, call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// Analyzer turns a photo plus marked spots into an enhanced editing
// instruction using a local vision model.
type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

func (a *Analyzer) GenerateEditingPrompt(ctx context.Context, image []byte, markers []domain.Marker, system string) (string, error) {
	if _, err := render.DetectFormat(image); err != nil {
		return "", err
	}

	text, err := a.client.chat(ctx, "ollama.analyze", a.client.cfg.AnalyzeModel, system,
		buildAnalyzePrompt(markers), []api.ImageData{api.ImageData(image)})
	if err != nil {
		return "", fmt.Errorf("ollama analyze: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("ollama analyze: empty response")
	}
	return text, nil
}

// Safety screens a photo with a local vision model. An error means the
// verdict is unknown, not that the photo is unsafe.
type Safety struct {
	client *Client
}

func NewSafety(client *Client) *Safety {
	return &Safety{client: client}
}

func (s *Safety) CheckContentSafety(ctx context.Context, image []byte) (bool, error) {
	if _, err := render.DetectFormat(image); err != nil {
		return false, err
	}

	text, err := s.client.chat(ctx, "ollama.safety", s.client.cfg.SafetyModel, safetySystemPrompt,
		safetyUserPrompt, []api.ImageData{api.ImageData(image)})
	if err != nil {
		return false, fmt.Errorf("ollama safety: %w", err)
	}
	return parseSafetyVerdict(text)
}
