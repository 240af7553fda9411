package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urukhq/whisperd/internal/core/engine"
	"github.com/urukhq/whisperd/internal/core/job"
	"github.com/urukhq/whisperd/internal/core/transcript"
)

// Task Queue へ報告する一時フェーズ。Job Store にはどれも running としか
// 記録されません。
const (
	PhaseRunning      = "running"
	PhaseDownloading  = "downloading"
	PhaseNormalizing  = "normalizing"
	PhaseTranscribing = "transcribing"
)

// Downloader は audio_url の音声を job_id をキーにしたスクラッチ領域へ
// 取得するコラボレータです。
type Downloader interface {
	Fetch(ctx context.Context, audioURL, jobID string) (path string, err error)
}

// Normalizer は音声を正準波形（mono/16kHz/16bit）へ変換するコラボレータです。
type Normalizer interface {
	Normalize(ctx context.Context, src, jobID string) (path string, err error)
}

// PhaseReporter は Task Queue 側の一時ステータスへフェーズタグを報告します。
// ベストエフォートであり、失敗してもパイプラインは止まりません。
type PhaseReporter interface {
	Report(ctx context.Context, jobID, phase string)
}

// JobUpdater は Job Store への部分更新です。
type JobUpdater interface {
	Update(ctx context.Context, jobID string, u job.Update) error
}

// Executor はワーカープロセス内でジョブの状態機械を駆動します。
// 1 ジョブは 1 ワーカータスク内で単一スレッド実行され、フェーズ境界ごとに
// Task Queue の一時ステータスと Job Store の永続行の両方を更新します。
type Executor struct {
	jobs    JobUpdater
	phases  PhaseReporter
	down    Downloader
	norm    Normalizer
	engines *engine.Registry
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecutor は新しい Executor を作成します。
func NewExecutor(jobs JobUpdater, phases PhaseReporter, down Downloader, norm Normalizer, engines *engine.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		jobs:    jobs,
		phases:  phases,
		down:    down,
		norm:    norm,
		engines: engines,
		logger:  logger,
		now:     time.Now,
	}
}

// Run は 1 ジョブのパイプライン全体を実行します。
// 致命的エラーでは Job Store へ failed を記録した上でエラーを返し、
// Task Queue 側の帳簿とも失敗として一致させます。コンテキストの取り消しは
// failed ではなく canceled として記録されます。
// 戻り値の結果は作業単位の出力として Task Queue の結果ストアにも
// 保存されます（副次的・ベストエフォートのチャネル）。
func (e *Executor) Run(ctx context.Context, jobID, audioURL string, metadata map[string]any) (*transcript.Result, error) {
	logger := e.logger.With("job_id", jobID)

	started := e.now().UTC()
	running := job.StatusRunning
	e.update(ctx, jobID, job.Update{Status: &running, StartedAt: &started})
	e.phases.Report(ctx, jobID, PhaseRunning)

	// ダウンロード: 失敗は致命的。Executor 内ではリトライしません。
	// 再実行は Task Queue 自身のリトライポリシーに委ねます。
	e.phases.Report(ctx, jobID, PhaseDownloading)
	audioPath, err := e.down.Fetch(ctx, audioURL, jobID)
	if err != nil {
		return nil, e.fail(ctx, jobID, logger, fmt.Errorf("%w: %v", ErrDownload, err))
	}

	// 正規化: 品質改善であって正しさの要件ではないため、失敗しても
	// ダウンロードした元ファイルで続行します。
	e.phases.Report(ctx, jobID, PhaseNormalizing)
	if normPath, nerr := e.norm.Normalize(ctx, audioPath, jobID); nerr == nil {
		audioPath = normPath
	} else {
		if ctx.Err() != nil {
			return nil, e.cancel(ctx, jobID, logger)
		}
		logger.Warn("audio normalization failed; using original file", "error", nerr)
	}

	e.phases.Report(ctx, jobID, PhaseTranscribing)
	asr, err := e.engines.Engine()
	if err != nil {
		return nil, e.fail(ctx, jobID, logger, fmt.Errorf("%w: %v", ErrTranscribe, err))
	}
	result, err := asr.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, e.fail(ctx, jobID, logger, fmt.Errorf("%w: %v", ErrTranscribe, err))
	}

	// エンハンスメントはいずれもフェイルオープン: 劣化した transcript の方が
	// 失敗したジョブよりも望ましいという信頼性契約です。
	result = e.align(ctx, jobID, logger, audioPath, result)
	if ctx.Err() != nil {
		return nil, e.cancel(ctx, jobID, logger)
	}
	result = e.diarize(ctx, jobID, logger, audioPath, result)
	if ctx.Err() != nil {
		return nil, e.cancel(ctx, jobID, logger)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	result.RequestMetadata = metadata
	result.Source = transcript.Source{AudioURL: audioURL}
	result.SortSegments()

	if err := e.finalize(ctx, jobID, result); err != nil {
		return nil, e.fail(ctx, jobID, logger, fmt.Errorf("%w: %v", ErrFinalize, err))
	}

	logger.Info("transcription job succeeded",
		"language", result.Language, "segments", len(result.Segments))
	return result, nil
}

func (e *Executor) align(ctx context.Context, jobID string, logger *slog.Logger, audioPath string, result *transcript.Result) *transcript.Result {
	if !e.engines.AlignmentEnabled() || result.Language == "" {
		return result
	}
	aligner, err := e.engines.Aligner()
	if err != nil {
		logger.Warn("alignment model unavailable; keeping unaligned result", "error", err)
		return result
	}
	aligned, err := aligner.Align(ctx, audioPath, result)
	if err != nil {
		logger.Warn("alignment failed; keeping unaligned result", "error", err)
		return result
	}
	aligned.Model.Alignment = true
	return aligned
}

func (e *Executor) diarize(ctx context.Context, jobID string, logger *slog.Logger, audioPath string, result *transcript.Result) *transcript.Result {
	if !e.engines.DiarizationEnabled() {
		return result
	}
	diarizer, err := e.engines.Diarizer()
	if err != nil {
		logger.Warn("diarization pipeline unavailable; keeping undiarized result", "error", err)
		return result
	}
	diarized, err := diarizer.Diarize(ctx, audioPath, result)
	if err != nil {
		logger.Warn("diarization failed; keeping undiarized result", "error", err)
		return result
	}
	diarized.Model.Diarization = true
	return diarized
}

// finalize は成功の終端書き込みです。duration_sec は最後の区間の終了時刻から
// 導出した値で上書きします。
func (e *Executor) finalize(ctx context.Context, jobID string, result *transcript.Result) error {
	duration := result.Duration()
	result.DurationSec = &duration

	transcriptJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}

	succeeded := job.StatusSucceeded
	finished := e.now().UTC()
	return e.jobs.Update(ctx, jobID, job.Update{
		Status:         &succeeded,
		FinishedAt:     &finished,
		Language:       &result.Language,
		DurationSec:    &duration,
		ModelName:      &result.Model.Name,
		Device:         &result.Model.Device,
		ComputeType:    &result.Model.ComputeType,
		TranscriptJSON: transcriptJSON,
		ClearError:     true,
	})
}

// fail は致命的エラーの終端書き込みです。Job Store へ failed を記録した後に
// エラーをそのまま返し、Task Queue 側でも失敗として扱わせます。プロセスが
// 両書き込みの間でクラッシュしても、Status Resolver はどちらか片方の記録
// だけで正しいステータスを返せます。
func (e *Executor) fail(ctx context.Context, jobID string, logger *slog.Logger, cause error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return e.cancel(ctx, jobID, logger)
	}

	failed := job.StatusFailed
	finished := e.now().UTC()
	msg := job.SanitizeError(cause.Error())
	e.update(ctx, jobID, job.Update{
		Status:       &failed,
		FinishedAt:   &finished,
		ErrorMessage: &msg,
	})
	logger.Error("transcription job failed", "error", cause)
	return cause
}

// cancel は取り消しの終端書き込みです。
func (e *Executor) cancel(ctx context.Context, jobID string, logger *slog.Logger) error {
	canceled := job.StatusCanceled
	finished := e.now().UTC()
	e.update(ctx, jobID, job.Update{Status: &canceled, FinishedAt: &finished})
	logger.Info("transcription job canceled")
	return context.Canceled
}

// update は終端書き込みを伴う経路で使う書き込みヘルパです。行が外部で
// 削除されていてもワーカーを落とさず、ログに残すだけにします。
// コンテキストが既に取り消されていても終端書き込みは試みる必要があるため、
// ストアへの書き込みには独立した短いコンテキストを使います。
func (e *Executor) update(ctx context.Context, jobID string, u job.Update) {
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := e.jobs.Update(writeCtx, jobID, u); err != nil {
		e.logger.Error("job row update failed", "job_id", jobID, "error", err)
	}
}
