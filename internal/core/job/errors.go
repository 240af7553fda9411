package job

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidAudioURL は audio_url が http(s) URL として不正な場合のエラー
	ErrInvalidAudioURL = errors.New("audio_url is not a valid http(s) URL")

	// ErrJobNotFound は Job Store にも Task Queue にもジョブが存在しない場合のエラー
	ErrJobNotFound = errors.New("job not found")

	// ErrTaskGone は Task Queue がジョブを保持していない場合のエラー
	// （結果保持期間の満了後など）
	ErrTaskGone = errors.New("task not found in queue")

	// ErrStorageNotConfigured は Blob ストレージ未設定でアップロードされた場合のエラー
	ErrStorageNotConfigured = errors.New("blob storage is not configured")

	// ErrUpload は Blob ストレージへの書き込みが拒否された場合のエラー
	ErrUpload = errors.New("upload to blob storage failed")
)

const maxErrorMessageLen = 500

// SanitizeError は内部エラーをクライアントに返しても安全な短い文字列へ変換します。
// スタックトレースや複数行の内部情報は先頭行のみに切り詰めます。
func SanitizeError(msg string) string {
	msg = strings.TrimSpace(msg)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	if msg == "" {
		msg = "internal error"
	}
	return msg
}
