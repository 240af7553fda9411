package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/urukhq/whisperd/internal/core/engine"
	"github.com/urukhq/whisperd/internal/core/transcript"
)

// DefaultModel はデフォルトで使用する音声認識モデル
const DefaultModel = "whisper-1"

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// Engine は OpenAI の音声認識 API を使う代替 ASR エンジンです。
// ローカルの WhisperX と違い区間タイムスタンプを返さないため、
// 全文を単一区間として扱います。アライメントとダイアライゼーションは
// 提供しません。
type Engine struct {
	client openai.Client
	model  string
}

// NewEngine は新しい Engine を作成します。
func NewEngine(apiKey, model string) (*Engine, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}
	return &Engine{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// コンパイル時の型チェック
var _ engine.Engine = (*Engine)(nil)

// Transcribe は音声ファイルを API へ送信し、全文を単一区間として返します。
func (e *Engine) Transcribe(ctx context.Context, audioPath string) (*transcript.Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	resp, err := e.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call transcription API: %w", err)
	}

	return &transcript.Result{
		Segments: []transcript.Segment{
			{Start: 0, End: 0, Text: resp.Text},
		},
		Model: transcript.ModelInfo{
			Name:   e.model,
			Device: "api",
		},
	}, nil
}
