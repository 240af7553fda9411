package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Repository は Job Store への永続化操作です。
type Repository interface {
	Insert(ctx context.Context, j *Job) error
	// Get は存在しない場合 ErrJobNotFound を返します。
	Get(ctx context.Context, jobID string) (*Job, error)
	// Update は部分更新です。行が存在しない場合は黙って no-op になります。
	Update(ctx context.Context, jobID string, u Update) error
	// CancelIfActive は queued/running の行のみを canceled へ遷移させます。
	// 遷移が起きた場合 true を返します。終端ステータスは決して上書きしません。
	CancelIfActive(ctx context.Context, jobID string, finishedAt time.Time) (bool, error)
	// List は作成日時の降順で全件を返します。
	List(ctx context.Context) ([]*Job, error)
}

// Dispatcher は Task Queue への作業単位の投入・取り消しです。
// 返却される jobID はキューが採番した識別子で、そのまま公開 job_id になります。
type Dispatcher interface {
	Dispatch(ctx context.Context, audioURL string, metadata map[string]any) (jobID string, err error)
	// Cancel は助言的です。未着手のタスクの開始を防ぐか、実行中の
	// ワーカーへ中断を通知しますが、成功は保証されません。
	Cancel(ctx context.Context, jobID string) error
}

// BlobStorage はユーザ投稿ファイルの外部ストレージです。
type BlobStorage interface {
	Upload(ctx context.Context, name string, data []byte) (publicURL string, err error)
}

// Receipt はジョブ受付の応答です。
type Receipt struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
}

// UploadReceipt はファイルアップロード経由の受付応答です。
type UploadReceipt struct {
	Message string `json:"message"`
	URL     string `json:"url"`
	JobID   string `json:"job_id"`
	Status  Status `json:"status"`
}

// Service は Submission Gateway です。リクエストを検証し、Task Queue への
// ディスパッチと Job Store への初期行挿入を行います。
type Service struct {
	repo    Repository
	queue   Dispatcher
	storage BlobStorage
	logger  *slog.Logger
	now     func() time.Time
}

// NewService は新しい Service を作成します。storage は nil を許容します
// （その場合アップロード経由の受付は ErrStorageNotConfigured になります）。
func NewService(repo Repository, queue Dispatcher, storage BlobStorage, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		queue:   queue,
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit はジョブを受け付けます。キューへのディスパッチが先、行挿入が後です。
// ディスパッチ成功後に挿入が失敗すると、対応する行を持たない孤児タスクが
// 残ります。Status Resolver は行が無い場合キュー状態を正とするため、
// この窓でもステータス照会は破綻しません。
func (s *Service) Submit(ctx context.Context, audioURL string, metadata map[string]any, userInfo json.RawMessage) (*Receipt, error) {
	if err := validateAudioURL(audioURL); err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	jobID, err := s.queue.Dispatch(ctx, audioURL, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch transcribe task: %w", err)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request metadata: %w", err)
	}

	if err := s.repo.Insert(ctx, &Job{
		JobID:           jobID,
		AudioURL:        audioURL,
		Status:          StatusQueued,
		RequestMetadata: metadataJSON,
		UserInfo:        userInfo,
	}); err != nil {
		s.logger.Error("job row insert failed after dispatch; queue task is orphaned",
			"job_id", jobID, "error", err)
		return nil, fmt.Errorf("failed to insert job row: %w", err)
	}

	s.logger.Info("transcription job accepted", "job_id", jobID, "audio_url", audioURL)
	return &Receipt{JobID: jobID, Status: StatusQueued}, nil
}

// UploadAndSubmit はファイルを Blob ストレージへ保存し、その URL でジョブを
// 受け付けます。ストレージが書き込みを拒否した場合、行もキュータスクも
// 一切作成されません。
func (s *Service) UploadAndSubmit(ctx context.Context, data []byte, filename string, userInfo json.RawMessage) (*UploadReceipt, error) {
	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}

	// uuid v4 は 122bit の乱数を持ち、名前衝突は実質的に起こりません。
	blobName := uuid.New().String() + filepath.Ext(filename)
	blobURL, err := s.storage.Upload(ctx, blobName, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	receipt, err := s.Submit(ctx, blobURL, map[string]any{"original_filename": filename}, userInfo)
	if err != nil {
		return nil, err
	}

	return &UploadReceipt{
		Message: "file uploaded and job enqueued",
		URL:     blobURL,
		JobID:   receipt.JobID,
		Status:  receipt.Status,
	}, nil
}

// Cancel はジョブの取り消しを要求します。キューへの取り消しは助言的で、
// 確実なのはガード付きの行更新（queued/running → canceled）だけです。
// 行更新前にキュー側だけが取り消しに成功したケースは Status Resolver の
// 第二層フォールバックが拾います。
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	if err := s.queue.Cancel(ctx, jobID); err != nil {
		s.logger.Warn("queue-side cancel failed; relying on job row update",
			"job_id", jobID, "error", err)
	}

	changed, err := s.repo.CancelIfActive(ctx, jobID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark job canceled: %w", err)
	}
	if changed {
		s.logger.Info("job canceled", "job_id", jobID)
	}
	return nil
}

// Get は Job Store の行を返します。
func (s *Service) Get(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.Get(ctx, jobID)
}

// List は全ジョブを新しい順に返します。
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

func validateAudioURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAudioURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAudioURL
	}
	return nil
}
