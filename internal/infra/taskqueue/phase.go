package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/urukhq/whisperd/internal/core/job"
	"github.com/urukhq/whisperd/internal/core/pipeline"
	"github.com/urukhq/whisperd/pkg/config"
)

const phaseKeyPrefix = "whisperd:phase:"

// PhaseStore は実行中タスクの進行フェーズを Redis に記録します。
// フェーズは running 中の補足情報でしかなく、帳簿には書き込みません。
// キーには TTL を付け、完了後はおのずと消えます。
type PhaseStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPhaseStore は新しい PhaseStore を作成します。
func NewPhaseStore(cfg config.RedisConfig, ttl time.Duration, logger *slog.Logger) *PhaseStore {
	return &PhaseStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl:    ttl,
		logger: logger,
	}
}

// コンパイル時の型チェック
var (
	_ pipeline.PhaseReporter = (*PhaseStore)(nil)
	_ job.PhaseReader        = (*PhaseStore)(nil)
)

// Report は現在のフェーズを記録します。ベストエフォートであり、
// 失敗はログに残すだけでパイプラインを止めません。
func (s *PhaseStore) Report(ctx context.Context, jobID string, phase string) {
	if err := s.rdb.Set(ctx, phaseKeyPrefix+jobID, phase, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to report phase", "job_id", jobID, "phase", phase, "error", err)
	}
}

// Phase は記録済みのフェーズを返します。未記録なら空文字列です。
func (s *PhaseStore) Phase(ctx context.Context, jobID string) (string, error) {
	v, err := s.rdb.Get(ctx, phaseKeyPrefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get phase key: %w", err)
	}
	return v, nil
}

// Close は接続を閉じます。
func (s *PhaseStore) Close() error {
	return s.rdb.Close()
}
