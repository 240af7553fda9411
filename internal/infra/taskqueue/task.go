package taskqueue

// TypeTranscribe は文字起こしの作業単位のタスク種別名です。
const TypeTranscribe = "transcribe"

// TranscribePayload は transcribe タスクのペイロード契約です。
type TranscribePayload struct {
	AudioURL string         `json:"audio_url"`
	Metadata map[string]any `json:"metadata"`
}
