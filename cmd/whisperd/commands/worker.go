package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/urukhq/whisperd/internal/core/engine"
	"github.com/urukhq/whisperd/internal/core/pipeline"
	"github.com/urukhq/whisperd/internal/infra/download"
	"github.com/urukhq/whisperd/internal/infra/ffmpeg"
	"github.com/urukhq/whisperd/internal/infra/openai"
	"github.com/urukhq/whisperd/internal/infra/postgres"
	"github.com/urukhq/whisperd/internal/infra/taskqueue"
	"github.com/urukhq/whisperd/internal/infra/whisperx"
	"github.com/urukhq/whisperd/pkg/config"
)

// WorkerStartAction は文字起こしワーカーを起動します。
func WorkerStartAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	logger := app.Logger

	registry, err := buildEngineRegistry(cfg.Engine)
	if err != nil {
		return err
	}

	repo := postgres.NewJobRepository(app.Database.Pool)

	phases := taskqueue.NewPhaseStore(cfg.Redis, cfg.Queue.PhaseTTL, logger)
	defer phases.Close()

	downloader := download.NewDownloader(
		download.NewAllowlist(cfg.Download.AllowedHosts),
		cfg.Download.TmpDir,
		cfg.Download.Timeout,
	)
	normalizer := ffmpeg.NewNormalizer("")

	executor := pipeline.NewExecutor(repo, phases, downloader, normalizer, registry, logger)
	worker := taskqueue.NewWorker(cfg.Redis, cfg.Queue, executor, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down worker")
		worker.Shutdown()
	}()

	logger.Info("worker started",
		"queue", cfg.Queue.Name,
		"concurrency", cfg.Queue.Concurrency,
		"backend", cfg.Engine.Backend,
	)
	return worker.Start()
}

// buildEngineRegistry は構成に応じた ASR エンジン群のレジストリを組み立てます。
// whisperx バックエンドはアライメントとダイアライゼーションも提供しますが、
// openai バックエンドは認識のみです。
func buildEngineRegistry(cfg config.EngineConfig) (*engine.Registry, error) {
	switch cfg.Backend {
	case "whisperx":
		factory := func() (*whisperx.Engine, error) { return whisperx.NewEngine(cfg) }
		return engine.NewRegistry(engine.Factories{
			Engine:   func() (engine.Engine, error) { return factory() },
			Aligner:  func() (engine.Aligner, error) { return factory() },
			Diarizer: func() (engine.Diarizer, error) { return factory() },
		}, cfg.EnableAlignment, cfg.EnableDiarization), nil
	case "openai":
		return engine.NewRegistry(engine.Factories{
			Engine: func() (engine.Engine, error) {
				return openai.NewEngine(cfg.OpenAIAPIKey, cfg.OpenAIModel)
			},
		}, false, false), nil
	default:
		return nil, fmt.Errorf("unknown engine backend: %q", cfg.Backend)
	}
}
