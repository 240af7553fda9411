package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urukhq/whisperd/internal/core/job"
)

// JobRepository は job.Repository インターフェースを実装する PostgreSQL
// リポジトリです。接続はプールから論理操作ごとに取得され、各書き込みは
// 単一のコミットで完結します。フェーズをまたぐ長寿命トランザクションは
// 持ちません。
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository は新しい JobRepository を作成します
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// コンパイル時の型チェック
var _ job.Repository = (*JobRepository)(nil)

const jobColumns = `job_id, audio_url, status, created_at, enqueued_at,
	started_at, finished_at, request_metadata, user_info,
	language, duration_sec, model_name, device, compute_type,
	error_message, transcript_json, result_blob_url`

// Insert は初期行を挿入します。created_at / enqueued_at はサーバ採番です。
func (r *JobRepository) Insert(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO transcription_jobs (job_id, audio_url, status, request_metadata, user_info)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		j.JobID, j.AudioURL, string(j.Status), j.RequestMetadata, j.UserInfo)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Get は job_id で 1 行を取得します。存在しない場合は job.ErrJobNotFound です。
func (r *JobRepository) Get(ctx context.Context, jobID string) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM transcription_jobs WHERE job_id = $1`

	j, err := scanJob(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// Update は部分更新です。nil のフィールドは SET 句に含めず、行が存在しない
// 場合は黙って no-op になります（ワーカーは行の外部削除でクラッシュしては
// ならないため）。ステータスを書く更新は WHERE 句で終端行を除外するため、
// 取り消しと競合したワーカーの終端書き込みが canceled を上書きすることは
// ありません。1 回の Exec が 1 つのアトミックなコミットです。
func (r *JobRepository) Update(ctx context.Context, jobID string, u job.Update) error {
	query, args := buildUpdateQuery(jobID, u)
	if query == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// buildUpdateQuery は部分更新の SQL を組み立てます。更新対象が無い場合は
// 空のクエリを返します。
func buildUpdateQuery(jobID string, u job.Update) (string, []any) {
	set := make([]string, 0, 10)
	args := []any{jobID}
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.StartedAt != nil {
		add("started_at", *u.StartedAt)
	}
	if u.FinishedAt != nil {
		add("finished_at", *u.FinishedAt)
	}
	if u.Language != nil {
		add("language", *u.Language)
	}
	if u.DurationSec != nil {
		add("duration_sec", *u.DurationSec)
	}
	if u.ModelName != nil {
		add("model_name", *u.ModelName)
	}
	if u.Device != nil {
		add("device", *u.Device)
	}
	if u.ComputeType != nil {
		add("compute_type", *u.ComputeType)
	}
	if u.ClearError {
		set = append(set, "error_message = NULL")
	} else if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.TranscriptJSON != nil {
		add("transcript_json", u.TranscriptJSON)
	}

	if len(set) == 0 {
		return "", nil
	}

	query := "UPDATE transcription_jobs SET " + strings.Join(set, ", ") + " WHERE job_id = $1"
	if u.Status != nil {
		// 終端ステータスは決して上書きしない
		query += " AND status NOT IN ('succeeded', 'failed', 'canceled')"
	}
	return query, args
}

// CancelIfActive は queued/running の行だけを canceled へ遷移させます。
// 終端ステータスの行は WHERE 句で除外されるため決して上書きされません。
func (r *JobRepository) CancelIfActive(ctx context.Context, jobID string, finishedAt time.Time) (bool, error) {
	query := `
		UPDATE transcription_jobs
		SET status = 'canceled', finished_at = $2
		WHERE job_id = $1 AND status IN ('queued', 'running')
	`
	tag, err := r.pool.Exec(ctx, query, jobID, finishedAt)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List は全ジョブを作成日時の降順で返します。ページングやフィルタリングは
// 提供しません。
func (r *JobRepository) List(ctx context.Context) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM transcription_jobs ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var j job.Job
	var status string
	err := row.Scan(
		&j.JobID,
		&j.AudioURL,
		&status,
		&j.CreatedAt,
		&j.EnqueuedAt,
		&j.StartedAt,
		&j.FinishedAt,
		&j.RequestMetadata,
		&j.UserInfo,
		&j.Language,
		&j.DurationSec,
		&j.ModelName,
		&j.Device,
		&j.ComputeType,
		&j.ErrorMessage,
		&j.TranscriptJSON,
		&j.ResultBlobURL,
	)
	if err != nil {
		return nil, err
	}
	j.Status = job.Status(status)
	return &j, nil
}
