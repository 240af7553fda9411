package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/urukhq/whisperd/internal/core/job"
	"github.com/urukhq/whisperd/pkg/config"
)

// Inspector はキュー側の恒常的でない状態を読み出します。
// 結果ストアの保持期間を過ぎたタスクは job.ErrTaskGone になります。
type Inspector struct {
	inspector *asynq.Inspector
	queue     string
}

// NewInspector は新しい Inspector を作成します。
func NewInspector(redis config.RedisConfig, queueName string) *Inspector {
	return &Inspector{
		inspector: asynq.NewInspector(redisOpt(redis)),
		queue:     queueName,
	}
}

// コンパイル時の型チェック
var _ job.QueueInspector = (*Inspector)(nil)

// TaskState は指定タスクのキュー上の状態を返します。
func (i *Inspector) TaskState(_ context.Context, jobID string) (*job.QueueState, error) {
	info, err := i.inspector.GetTaskInfo(i.queue, jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, job.ErrTaskGone
		}
		return nil, fmt.Errorf("failed to inspect task: %w", err)
	}

	return &job.QueueState{
		State:  strings.ToLower(info.State.String()),
		Result: info.Result,
		Err:    info.LastErr,
	}, nil
}

// Close は接続を閉じます。
func (i *Inspector) Close() error {
	return i.inspector.Close()
}
