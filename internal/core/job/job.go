package job

import (
	"encoding/json"
	"time"
)

// Status はジョブの公開ステータスです。
// downloading などのサブフェーズは永続化されず、Task Queue 側の
// 一時ステータスとしてのみ報告されます。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Valid はステータス列挙値の妥当性を返します。
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Terminal は終端ステータスかどうかを返します。
// 一度終端に達したジョブは二度と書き換えられません。
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// CanTransition は前方向のみの遷移規則を検証します。
// queued → running → {succeeded | failed}、および
// queued/running → canceled のみを許可します。
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusCanceled
	case StatusRunning:
		return to.Terminal()
	}
	return false
}

// Job は文字起こしジョブの永続化エンティティです。
// job_id は Task Queue がディスパッチ時に採番した識別子で、以後不変です。
type Job struct {
	JobID           string          `json:"job_id"`
	AudioURL        string          `json:"audio_url"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	EnqueuedAt      time.Time       `json:"enqueued_at"`
	StartedAt       *time.Time      `json:"started_at"`
	FinishedAt      *time.Time      `json:"finished_at"`
	RequestMetadata json.RawMessage `json:"request_metadata"`
	UserInfo        json.RawMessage `json:"user_info"`
	Language        *string         `json:"language"`
	DurationSec     *float64        `json:"duration_sec"`
	ModelName       *string         `json:"model_name"`
	Device          *string         `json:"device"`
	ComputeType     *string         `json:"compute_type"`
	ErrorMessage    *string         `json:"error_message"`
	TranscriptJSON  json.RawMessage `json:"transcript_json"`
	ResultBlobURL   *string         `json:"result_blob_url"`
}

// Update は部分更新のフィールド集合です。nil のフィールドは変更されません。
// 同じ内容を二度適用しても結果は変わりません（冪等）。
type Update struct {
	Status         *Status
	StartedAt      *time.Time
	FinishedAt     *time.Time
	Language       *string
	DurationSec    *float64
	ModelName      *string
	Device         *string
	ComputeType    *string
	ErrorMessage   *string
	ClearError     bool
	TranscriptJSON json.RawMessage
}
