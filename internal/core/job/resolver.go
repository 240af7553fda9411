package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
)

// QueueState は Task Queue が保持する一時ステータスのスナップショットです。
type QueueState struct {
	// State はキュー固有の生の状態名です（例: pending / active / archived）。
	State string
	// Result はキューの結果ストアが保持する戻り値です（保持期間内のみ）。
	Result []byte
	// Err は失敗タスクの最終エラー文字列です。
	Err string
}

// QueueInspector は Task Queue の一時ステータスを照会します。
// タスクが既に保持されていない場合は ErrTaskGone を返します。
type QueueInspector interface {
	TaskState(ctx context.Context, jobID string) (*QueueState, error)
}

// PhaseReader はベストエフォートのサブフェーズタグを読み出します。
type PhaseReader interface {
	Phase(ctx context.Context, jobID string) (string, error)
}

// Resolution はクライアントへ報告する単一のステータスです。
type Resolution struct {
	JobID  string          `json:"job_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Phase  string          `json:"phase,omitempty"`
}

// Resolver は二層のステータス解決を実装します。
//
// 第一層: Job Store の行が終端ステータスならそれが正。キューの結果は保持期間で
// 失効するため、終端の短絡により長期のステータス照会が「不明」へ退行しません。
// 第二層: それ以外はキューの一時ステータスを公開語彙へ写像します。
//
// この二層構成は意図的な設計であり、単一ソースへ畳み込んではいけません。
type Resolver struct {
	repo   Repository
	queue  QueueInspector
	phases PhaseReader
	logger *slog.Logger
}

// NewResolver は新しい Resolver を作成します。phases は nil を許容します。
func NewResolver(repo Repository, queue QueueInspector, phases PhaseReader, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, queue: queue, phases: phases, logger: logger}
}

// Resolve は jobID の現在ステータスを解決します。
// Job Store と Task Queue の双方がジョブを知らない場合のみ ErrJobNotFound を
// 返します。
func (r *Resolver) Resolve(ctx context.Context, jobID string) (*Resolution, error) {
	row, err := r.repo.Get(ctx, jobID)
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		return nil, err
	}

	if row != nil && row.Status.Terminal() {
		res := &Resolution{JobID: jobID, Status: string(row.Status)}
		switch row.Status {
		case StatusSucceeded:
			res.Result = row.TranscriptJSON
		case StatusFailed:
			if row.ErrorMessage != nil {
				res.Error = *row.ErrorMessage
			}
		}
		return res, nil
	}

	qs, qErr := r.queue.TaskState(ctx, jobID)
	if qErr != nil {
		if errors.Is(qErr, ErrTaskGone) {
			// キューが保持期間を過ぎて忘れた後でも、行があればその
			// ステータスを報告します。行も無ければ未知のジョブです。
			if row != nil {
				return r.withPhase(ctx, &Resolution{JobID: jobID, Status: string(row.Status)}), nil
			}
			return nil, ErrJobNotFound
		}
		return nil, qErr
	}

	return r.withPhase(ctx, mapQueueState(jobID, qs)), nil
}

// mapQueueState はキュー固有の状態名を公開語彙へ写像します。
// 未知の状態は小文字化した生の名前をそのまま通します（最終手段）。
func mapQueueState(jobID string, qs *QueueState) *Resolution {
	res := &Resolution{JobID: jobID}
	switch qs.State {
	case "pending", "scheduled", "retry", "aggregating":
		res.Status = string(StatusQueued)
	case "active":
		res.Status = string(StatusRunning)
	case "completed":
		res.Status = string(StatusSucceeded)
		res.Result = qs.Result
	case "archived":
		res.Status = string(StatusFailed)
		res.Error = SanitizeError(qs.Err)
	default:
		res.Status = strings.ToLower(qs.State)
	}
	return res
}

func (r *Resolver) withPhase(ctx context.Context, res *Resolution) *Resolution {
	if r.phases == nil || res.Status != string(StatusRunning) {
		return res
	}
	phase, err := r.phases.Phase(ctx, res.JobID)
	if err != nil {
		r.logger.Debug("phase lookup failed", "job_id", res.JobID, "error", err)
		return res
	}
	res.Phase = phase
	return res
}
