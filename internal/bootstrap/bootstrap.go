package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/retouchlab/eraser/internal/config"
	"github.com/retouchlab/eraser/internal/core/domain"
	"github.com/retouchlab/eraser/internal/core/ports"
	"github.com/retouchlab/eraser/internal/core/usecase"
	"github.com/retouchlab/eraser/internal/infrastructure/annotate"
	"github.com/retouchlab/eraser/internal/infrastructure/model/gemini"
	"github.com/retouchlab/eraser/internal/infrastructure/model/ollama"
	"github.com/retouchlab/eraser/internal/infrastructure/queue/nats"
	"github.com/retouchlab/eraser/internal/infrastructure/quota"
	"github.com/retouchlab/eraser/internal/infrastructure/render"
	"github.com/retouchlab/eraser/internal/infrastructure/repository/postgres"
	"github.com/retouchlab/eraser/internal/infrastructure/resilience"
	"github.com/retouchlab/eraser/internal/infrastructure/session"
	"github.com/retouchlab/eraser/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue ports.MessageQueue
	Repo  ports.JobRepository
	Store ports.ImageStore

	EditUC    ports.ImageEditor
	SubmitUC  ports.JobSubmitter
	ProcessUC ports.JobProcessor
	JobsUC    ports.JobReader

	Tracker *session.Tracker

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewJobRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	store, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init image storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.ProviderConfig(
		cfg.ModelMaxRetries,
		time.Duration(cfg.RetryBaseDelayMillis)*time.Millisecond,
	))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	prompts, editor, safety, geminiClient, err := buildProviders(ctx, cfg, executor)
	if err != nil {
		queue.Close()
		return nil, err
	}

	converter := annotate.NewConverter()
	editUC := usecase.NewEditImageUseCase(converter, prompts, editor, safety, render.Finisher{}, editConfig(cfg))

	quotaGuard := quota.New(quota.Options{
		GlobalRPS:   cfg.QuotaGlobalRPS,
		GlobalBurst: cfg.QuotaGlobalBurst,
		UserRPS:     cfg.QuotaUserRPS,
		UserBurst:   cfg.QuotaUserBurst,
	})

	submitUC := usecase.NewSubmitEditUseCase(repo, store, queue, quotaGuard, int64(cfg.MaxImageMB)<<20)
	processUC := usecase.NewProcessEditUseCase(repo, store, queue, editUC, render.Finisher{})
	jobsUC := usecase.NewJobQueryUseCase(repo, store)

	tracker := session.New(session.Options{
		IdleTimeout: time.Duration(cfg.SessionIdleMinutes) * time.Minute,
		WarnAfter:   time.Duration(cfg.SessionWarnMinutes) * time.Minute,
	})

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,
		Store:  store,

		EditUC:    editUC,
		SubmitUC:  submitUC,
		ProcessUC: processUC,
		JobsUC:    jobsUC,

		Tracker: tracker,

		closeFn: func() {
			queue.Close()
			if geminiClient != nil {
				_ = geminiClient.Close()
			}
			_ = db.Close()
		},
	}, nil
}

// NewEditor builds only the editing pipeline, no job store or queue.
// The CLI and the MCP server run one-shot edits through it. The
// returned closer releases the provider clients.
func NewEditor(ctx context.Context, cfg config.Config) (ports.ImageEditor, func(), error) {
	executor := resilience.NewExecutor(resilience.ProviderConfig(
		cfg.ModelMaxRetries,
		time.Duration(cfg.RetryBaseDelayMillis)*time.Millisecond,
	))

	prompts, editor, safety, geminiClient, err := buildProviders(ctx, cfg, executor)
	if err != nil {
		return nil, nil, err
	}

	uc := usecase.NewEditImageUseCase(annotate.NewConverter(), prompts, editor, safety, render.Finisher{}, editConfig(cfg))
	closer := func() {
		if geminiClient != nil {
			_ = geminiClient.Close()
		}
	}
	return uc, closer, nil
}

func editConfig(cfg config.Config) usecase.EditConfig {
	return usecase.EditConfig{
		ModelID:           cfg.GeminiEditModel,
		MaxImageBytes:     int64(cfg.MaxImageMB) << 20,
		AnalyzePrompt:     cfg.AnalyzeSystemPrompt,
		EditPrompt:        cfg.EditSystemPrompt,
		EstimatedDuration: time.Duration(cfg.EstimatedEditSeconds) * time.Second,
	}
}

// buildProviders resolves the three model capabilities from config.
// Analyze and safety follow ModelProvider; the generate capability is
// Gemini-only, so without an API key editing reports model_not_found
// while the rest of the service keeps working.
func buildProviders(ctx context.Context, cfg config.Config, executor *resilience.Executor) (
	ports.PromptGenerator, ports.ImageGenerator, ports.SafetyChecker, *gemini.Client, error,
) {
	var geminiClient *gemini.Client
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:          cfg.GeminiAPIKey,
			AnalyzeModel:    cfg.GeminiAnalyzeModel,
			EditModel:       cfg.GeminiEditModel,
			SafetyModel:     cfg.GeminiSafetyModel,
			Temperature:     float32(cfg.ModelTemperature),
			TopK:            int32(cfg.ModelTopK),
			TopP:            float32(cfg.ModelTopP),
			MaxOutputTokens: int32(cfg.ModelMaxOutputTokens),
			Executor:        executor,
		})
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("init gemini client: %w", err)
		}
		geminiClient = client
	}

	var editor ports.ImageGenerator = unavailableEditor{}
	if geminiClient != nil {
		editor = gemini.NewEditor(geminiClient)
	}

	useGemini := cfg.ModelProvider == "gemini" || (cfg.ModelProvider == "auto" && geminiClient != nil)
	if useGemini {
		if geminiClient == nil {
			return nil, nil, nil, nil, fmt.Errorf("model provider %q needs a gemini api key", cfg.ModelProvider)
		}
		return gemini.NewAnalyzer(geminiClient), editor, gemini.NewSafety(geminiClient), geminiClient, nil
	}

	ollamaClient, err := ollama.New(ollama.Config{
		BaseURL:      cfg.OllamaURL,
		AnalyzeModel: cfg.OllamaAnalyzeModel,
		SafetyModel:  cfg.OllamaSafetyModel,
		Temperature:  cfg.ModelTemperature,
		Timeout:      time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Executor:     executor,
	})
	if err != nil {
		if geminiClient != nil {
			_ = geminiClient.Close()
		}
		return nil, nil, nil, nil, fmt.Errorf("init ollama client: %w", err)
	}
	return ollama.NewAnalyzer(ollamaClient), editor, ollama.NewSafety(ollamaClient), geminiClient, nil
}

type unavailableEditor struct{}

func (unavailableEditor) EditImage(context.Context, []byte, string) ([]byte, error) {
	return nil, domain.NewFault(domain.FaultModelNotFound, "image editing requires a configured Gemini API key")
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
