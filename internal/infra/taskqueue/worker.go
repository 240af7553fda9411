package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/urukhq/whisperd/internal/core/pipeline"
	"github.com/urukhq/whisperd/pkg/config"
)

// Worker は asynq サーバをラップし、transcribe タスクを Executor に結び付けます。
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker は新しい Worker を作成します。
func NewWorker(redis config.RedisConfig, queue config.QueueConfig, exec *pipeline.Executor, logger *slog.Logger) *Worker {
	server := asynq.NewServer(redisOpt(redis), asynq.Config{
		Concurrency: queue.Concurrency,
		Queues:      map[string]int{queue.Name: 1},
		Logger:      &slogAdapter{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			logger.Error("task processing failed", "job_id", id, "type", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTranscribe, newTranscribeHandler(exec))

	return &Worker{server: server, mux: mux}
}

// Start はワーカーを起動し、停止するまでブロックします。
func (w *Worker) Start() error {
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("failed to run task server: %w", err)
	}
	return nil
}

// Shutdown は処理中のタスクを待ってからワーカーを停止します。
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// newTranscribeHandler は transcribe タスクのハンドラを作成します。
// タスク ID がそのまま job_id です。パイプラインの結果はキューの結果ストア
// にも書き込み、Status Resolver の一時経路から参照できるようにします。
func newTranscribeHandler(exec *pipeline.Executor) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		jobID, ok := asynq.GetTaskID(ctx)
		if !ok {
			return fmt.Errorf("task id missing: %w", asynq.SkipRetry)
		}

		var payload TranscribePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("%v: %w", pipeline.ErrBadPayload, asynq.SkipRetry)
		}

		result, err := exec.Run(ctx, jobID, payload.AudioURL, payload.Metadata)
		if err != nil {
			// 取り消しはリトライ対象にしません。帳簿は既に canceled です。
			if errors.Is(err, context.Canceled) {
				return fmt.Errorf("job canceled: %w", asynq.SkipRetry)
			}
			return err
		}

		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		if _, err := t.ResultWriter().Write(b); err != nil {
			return fmt.Errorf("failed to write task result: %w", err)
		}
		return nil
	}
}

// slogAdapter は asynq.Logger を slog に橋渡しします。
type slogAdapter struct {
	logger *slog.Logger
}

var _ asynq.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }
func (a *slogAdapter) Fatal(args ...any) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}
