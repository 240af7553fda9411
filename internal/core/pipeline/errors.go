package pipeline

import "errors"

var (
	// ErrDownload は音声の取得失敗です。ジョブにとって致命的です。
	ErrDownload = errors.New("download failed")

	// ErrTranscribe は音声認識の失敗です。ジョブにとって致命的です。
	ErrTranscribe = errors.New("transcription failed")

	// ErrFinalize は成功結果の永続化失敗です。終端書き込みは失敗側へ
	// 倒した上で伝播します。
	ErrFinalize = errors.New("failed to persist transcription result")

	// ErrBadPayload は作業単位のペイロードが解釈できない場合のエラー
	ErrBadPayload = errors.New("invalid task payload")
)
