package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/urukhq/whisperd/internal/core/job"
	"github.com/urukhq/whisperd/pkg/config"
)

// redisOpt は設定から asynq の Redis 接続オプションを組み立てます。
func redisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Client は job.Dispatcher を実装する asynq ベースのディスパッチャです。
// タスク ID はキューが採番し、そのまま公開 job_id になります。
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     config.QueueConfig
}

// NewClient は新しい Client を作成します。
func NewClient(redis config.RedisConfig, queue config.QueueConfig) *Client {
	opt := redisOpt(redis)
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     queue,
	}
}

// コンパイル時の型チェック
var _ job.Dispatcher = (*Client)(nil)

// Dispatch は transcribe タスクを投入し、キューが採番した ID を返します。
// 結果ストアの保持期間は有限で、失効後のステータスは Job Store が引き受けます。
func (c *Client) Dispatch(ctx context.Context, audioURL string, metadata map[string]any) (string, error) {
	payload, err := json.Marshal(TranscribePayload{AudioURL: audioURL, Metadata: metadata})
	if err != nil {
		return "", fmt.Errorf("failed to encode task payload: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(TypeTranscribe, payload),
		asynq.Queue(c.queue.Name),
		asynq.MaxRetry(c.queue.MaxRetry),
		asynq.Timeout(c.queue.TaskTimeout),
		asynq.Retention(c.queue.ResultRetention),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info.ID, nil
}

// Cancel は助言的な取り消しです。実行中のタスクにはコンテキストの取り消しを
// 通知し、未着手のタスクはキューから削除します。どちらも失敗し得ますが、
// 恒久的な canceled は呼び出し側のガード付き行更新が担保します。
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	cancelErr := c.inspector.CancelProcessing(jobID)

	deleteErr := c.inspector.DeleteTask(c.queue.Name, jobID)
	if deleteErr != nil && errors.Is(deleteErr, asynq.ErrTaskNotFound) {
		deleteErr = nil
	}
	if deleteErr != nil && errors.Is(deleteErr, asynq.ErrQueueNotFound) {
		deleteErr = nil
	}

	if cancelErr != nil && deleteErr != nil {
		return fmt.Errorf("cancel signal failed: %v; delete failed: %w", cancelErr, deleteErr)
	}
	return nil
}

// Close は接続を閉じます。
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return err
	}
	return c.inspector.Close()
}
